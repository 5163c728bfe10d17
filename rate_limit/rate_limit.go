package rate_limit

import (
	"net/http"
	"strings"
	"time"
)

// RateLimit defines the request budget of one GitHub rate limit window
type RateLimit struct {
	RequestsPerWindow int           // Requests allowed per window
	Window            time.Duration // Window length
}

// CoreRateLimit defines the default budget for the REST API with an
// authenticated token
var CoreRateLimit = RateLimit{
	RequestsPerWindow: 5000 * .9, // 5K per hour with 10% buffer to stay under the limit
	Window:            time.Hour,
}

// SearchRateLimit defines the default budget for the search API
var SearchRateLimit = RateLimit{
	RequestsPerWindow: 30 * .9, // 30 per minute with 10% buffer to stay under the limit
	Window:            time.Minute,
}

// GraphQLRateLimit defines the default budget for the GraphQL API
var GraphQLRateLimit = RateLimit{
	RequestsPerWindow: 5000 * .9, // 5K points per hour with 10% buffer to stay under the limit
	Window:            time.Hour,
}

// DefaultLimits returns the default budget for every resource
func DefaultLimits() map[Resource]RateLimit {
	return map[Resource]RateLimit{
		ResourceCore:    CoreRateLimit,
		ResourceSearch:  SearchRateLimit,
		ResourceGraphQL: GraphQLRateLimit,
	}
}

// OperationCost estimates how much budget an HTTP call burns. Mutations are
// weighted heavier because GitHub's secondary limits throttle
// content-generating requests long before the hourly quota runs out.
func OperationCost(method string) int {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return 1
	default:
		return 5
	}
}
