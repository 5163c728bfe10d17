package rate_limit

import "time"

// Resource identifies a GitHub rate limit bucket. Each bucket has its own
// budget and reset schedule.
type Resource int

const (
	ResourceCore Resource = iota
	ResourceSearch
	ResourceGraphQL
)

func (r Resource) String() string {
	switch r {
	case ResourceSearch:
		return "search"
	case ResourceGraphQL:
		return "graphql"
	default:
		return "core"
	}
}

// Backend defines the interface for rate limit budget tracking backends.
// Implementations can use different mechanisms (in-memory, file-based, Redis, etc.)
// to track and enforce budgets across single or multiple processes.
type Backend interface {
	// BudgetAvailable returns the remaining and total request budget for the
	// given resource in the current window.
	BudgetAvailable(resource Resource) (remaining int, total int)

	// RecordConsumption records request usage against the given resource.
	RecordConsumption(resource Resource, requests int) error

	// SyncFromServer aligns the local view with the authoritative remaining
	// count and reset time reported by GitHub's rate limit headers.
	SyncFromServer(resource Resource, remaining int, reset time.Time) error

	// TimeUntilReset returns the duration until the resource's budget resets.
	TimeUntilReset(resource Resource) time.Duration

	// SetBudgetForTests allows overriding budgets for testing purposes.
	SetBudgetForTests(resource Resource, requests int) error

	// Close cleans up any resources held by the backend (connections, files, etc.)
	Close() error
}
