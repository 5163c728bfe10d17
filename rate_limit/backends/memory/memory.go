package memory

import (
	"sync"
	"time"

	"github.com/hugo-valle/classroom-pilot/rate_limit"
)

// Memory is an in-memory rate limit backend for single-process runs.
// It tracks budgets locally without any inter-process coordination.
type Memory struct {
	used        map[rate_limit.Resource]int
	windowStart map[rate_limit.Resource]time.Time
	// resetAt pins a window to the server-reported reset. While set, local
	// truncation-based rollover is suspended for that resource.
	resetAt map[rate_limit.Resource]time.Time
	budgets map[rate_limit.Resource]rate_limit.RateLimit
	now     func() time.Time
	mu      sync.RWMutex
}

var _ rate_limit.Backend = (*Memory)(nil)

// NewBackend creates a new in-memory rate limit backend with default budgets
func NewBackend() *Memory {
	return NewBackendWithClock(time.Now)
}

// NewBackendWithClock creates a backend on an explicit clock so tests can
// drive window rollover deterministically
func NewBackendWithClock(now func() time.Time) *Memory {
	return &Memory{
		used:        make(map[rate_limit.Resource]int),
		windowStart: make(map[rate_limit.Resource]time.Time),
		resetAt:     make(map[rate_limit.Resource]time.Time),
		budgets:     rate_limit.DefaultLimits(),
		now:         now,
	}
}

// BudgetAvailable returns the remaining and total request budget for the given resource
func (m *Memory) BudgetAvailable(resource rate_limit.Resource) (remaining int, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetWindow(resource)

	total = m.budgets[resource].RequestsPerWindow
	remaining = total - m.used[resource]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, total
}

// RecordConsumption records request usage against the given resource
func (m *Memory) RecordConsumption(resource rate_limit.Resource, requests int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetWindow(resource)
	m.used[resource] += requests
	return nil
}

// SyncFromServer replaces the local view with the authoritative remaining
// count and reset time from GitHub's response headers
func (m *Memory) SyncFromServer(resource rate_limit.Resource, remaining int, reset time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.budgets[resource].RequestsPerWindow - remaining
	if used < 0 {
		used = 0
	}
	m.used[resource] = used
	m.resetAt[resource] = reset
	m.windowStart[resource] = m.now().Truncate(m.budgets[resource].Window)
	return nil
}

// TimeUntilReset returns the duration until the next window boundary, or
// until the server-reported reset when one is pinned
func (m *Memory) TimeUntilReset(resource rate_limit.Resource) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	if resetAt, ok := m.resetAt[resource]; ok && resetAt.After(now) {
		return resetAt.Sub(now)
	}
	window := m.budgets[resource].Window
	next := now.Truncate(window).Add(window)
	return next.Sub(now)
}

// SetBudgetForTests sets a custom request budget for testing purposes.
// The resource keeps its window length.
func (m *Memory) SetBudgetForTests(resource rate_limit.Resource, requests int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgets[resource] = rate_limit.RateLimit{
		RequestsPerWindow: requests,
		Window:            m.budgets[resource].Window,
	}
	return nil
}

// Close is a no-op for in-memory backend (no resources to clean up)
func (m *Memory) Close() error {
	return nil
}

// checkAndResetWindow resets usage if the resource entered a new window.
// A server-pinned reset takes precedence over boundary truncation.
// Note: caller must hold the lock
func (m *Memory) checkAndResetWindow(resource rate_limit.Resource) {
	now := m.now()

	if resetAt, ok := m.resetAt[resource]; ok {
		if !now.Before(resetAt) {
			delete(m.resetAt, resource)
			m.used[resource] = 0
			m.windowStart[resource] = now.Truncate(m.budgets[resource].Window)
		}
		return
	}

	start := now.Truncate(m.budgets[resource].Window)
	if !m.windowStart[resource].Equal(start) {
		m.windowStart[resource] = start
		m.used[resource] = 0
	}
}
