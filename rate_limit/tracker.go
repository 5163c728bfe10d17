package rate_limit

import (
	"sync"
	"time"
)

// Tracker keeps a local view of request consumption per resource on top of a
// Backend. The backend is authoritative for budget decisions; the local
// counters add totals and per-window history for end-of-run reporting.
type Tracker struct {
	// Current window state
	current     map[Resource]int
	windowStart map[Resource]time.Time

	// total stats
	total map[Resource]int

	// Historical data, keyed by window start (RFC3339)
	history map[string]map[Resource]int

	// Thread safety
	mu sync.RWMutex

	// Budgets
	budgets map[Resource]RateLimit

	// Backend for budget persistence (in-memory, file-based, Redis, etc.)
	backend Backend

	now func() time.Time
}

// TrackerStats is a point-in-time snapshot for reporting
type TrackerStats struct {
	// Per-resource usage in the current window
	CoreUsed    int
	SearchUsed  int
	GraphQLUsed int

	// Per-resource remaining budget
	CoreRemaining    int
	SearchRemaining  int
	GraphQLRemaining int

	// Global stats
	TotalRequests  int
	TimeUntilReset time.Duration
	IsBlocked      bool
}

// NewTracker creates a tracker over the given backend with default budgets
func NewTracker(backend Backend) *Tracker {
	return newTrackerWithClock(backend, time.Now)
}

func newTrackerWithClock(backend Backend, now func() time.Time) *Tracker {
	t := &Tracker{
		current:     make(map[Resource]int),
		windowStart: make(map[Resource]time.Time),
		total:       make(map[Resource]int),
		history:     make(map[string]map[Resource]int),
		budgets:     DefaultLimits(),
		backend:     backend,
		now:         now,
	}
	for resource, limit := range t.budgets {
		t.windowStart[resource] = t.now().Truncate(limit.Window)
	}
	return t
}

// RecordConsumption records request usage for the current window
func (t *Tracker) RecordConsumption(resource Resource, requests int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.syncWindow(resource)
	t.current[resource] += requests
	t.total[resource] += requests

	// Also record in the backend. Don't fail if this doesn't work - local
	// tracking is still functional.
	t.backend.RecordConsumption(resource, requests)
}

// SyncFromServer forwards GitHub's authoritative remaining count and reset
// time to the backend and aligns the local window usage with it
func (t *Tracker) SyncFromServer(resource Resource, remaining int, reset time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.syncWindow(resource)
	if used := t.budgets[resource].RequestsPerWindow - remaining; used > t.current[resource] {
		t.current[resource] = used
	}
	t.backend.SyncFromServer(resource, remaining, reset)
}

// BudgetAvailable returns the requests still available for the resource in
// the current window: the minimum of the backend's view and the local one,
// so neither side can overspend a budget the other has already seen drained.
func (t *Tracker) BudgetAvailable(resource Resource) int {
	shared, _ := t.backend.BudgetAvailable(resource)

	t.mu.Lock()
	t.syncWindow(resource)
	local := t.budgets[resource].RequestsPerWindow - t.current[resource]
	t.mu.Unlock()

	if local < 0 {
		local = 0
	}
	if local < shared {
		return local
	}
	return shared
}

// IsBlocked returns true when the resource has no budget left in the
// current window
func (t *Tracker) IsBlocked(resource Resource) bool {
	return t.BudgetAvailable(resource) == 0
}

// TimeUntilReset returns the time until the resource's budget resets
func (t *Tracker) TimeUntilReset(resource Resource) time.Duration {
	// Use the backend for consistent timing across processes
	return t.backend.TimeUntilReset(resource)
}

// Cycle records the finished windows into history and resets their counters.
// Windows still in progress are left untouched, so calling it early is safe.
func (t *Tracker) Cycle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for resource, limit := range t.budgets {
		start := t.now().Truncate(limit.Window)
		if t.windowStart[resource].Equal(start) {
			continue
		}

		writeIndex := t.windowStart[resource].Format(time.RFC3339)
		entry, ok := t.history[writeIndex]
		if !ok {
			entry = make(map[Resource]int)
			t.history[writeIndex] = entry
		}
		entry[resource] = t.current[resource]

		t.windowStart[resource] = start
		t.current[resource] = 0
	}
}

// TotalRequests returns the requests recorded across all resources since
// the tracker was created
func (t *Tracker) TotalRequests() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, requests := range t.total {
		total += requests
	}
	return total
}

// CurrentRequests returns the requests recorded in the current windows
func (t *Tracker) CurrentRequests() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, requests := range t.current {
		total += requests
	}
	return total
}

// History returns a copy of the per-window usage recorded by Cycle
func (t *Tracker) History() map[string]map[Resource]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := make(map[string]map[Resource]int, len(t.history))
	for window, usage := range t.history {
		entry := make(map[Resource]int, len(usage))
		for resource, requests := range usage {
			entry[resource] = requests
		}
		history[window] = entry
	}
	return history
}

// GetStats returns a snapshot of the tracker
func (t *Tracker) GetStats() *TrackerStats {
	coreRemaining := t.BudgetAvailable(ResourceCore)
	searchRemaining := t.BudgetAvailable(ResourceSearch)
	graphqlRemaining := t.BudgetAvailable(ResourceGraphQL)

	t.mu.RLock()
	defer t.mu.RUnlock()

	totalRequests := 0
	for _, requests := range t.total {
		totalRequests += requests
	}

	return &TrackerStats{
		CoreUsed:         t.current[ResourceCore],
		SearchUsed:       t.current[ResourceSearch],
		GraphQLUsed:      t.current[ResourceGraphQL],
		CoreRemaining:    coreRemaining,
		SearchRemaining:  searchRemaining,
		GraphQLRemaining: graphqlRemaining,
		TotalRequests:    totalRequests,
		TimeUntilReset:   t.backend.TimeUntilReset(ResourceCore),
		IsBlocked:        coreRemaining == 0,
	}
}

// SetBudgetsForTests sets the request budgets (used primarily for testing)
func (t *Tracker) SetBudgetsForTests(core, search, graphql int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.budgets[ResourceCore] = RateLimit{RequestsPerWindow: core, Window: t.budgets[ResourceCore].Window}
	t.budgets[ResourceSearch] = RateLimit{RequestsPerWindow: search, Window: t.budgets[ResourceSearch].Window}
	t.budgets[ResourceGraphQL] = RateLimit{RequestsPerWindow: graphql, Window: t.budgets[ResourceGraphQL].Window}

	// Also update backend budgets so both views agree
	t.backend.SetBudgetForTests(ResourceCore, core)
	t.backend.SetBudgetForTests(ResourceSearch, search)
	t.backend.SetBudgetForTests(ResourceGraphQL, graphql)
}

// syncWindow resets stale window usage for the resource
// Note: This method assumes the caller already holds a lock
func (t *Tracker) syncWindow(resource Resource) {
	start := t.now().Truncate(t.budgets[resource].Window)
	if !t.windowStart[resource].Equal(start) {
		t.windowStart[resource] = start
		t.current[resource] = 0
	}
}
