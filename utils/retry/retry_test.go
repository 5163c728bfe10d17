package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hugo-valle/classroom-pilot/gh_errors"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
)

// sleepRecorder stands in for real sleeping so episodes run instantly and
// tests can assert on the exact delays the engine asked for
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fakeClock advances only when the episode sleeps, so timeout accounting can
// be tested without waiting
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func testOptions(policy Policy, rec *sleepRecorder) Options {
	return Options{
		Policy: policy,
		Name:   "test operation",
		Logger: logger.NewNoopLogger(),
		Sleep:  rec.sleep,
	}
}

func networkError() error {
	return errors.New("dial tcp 140.82.112.6:443: connect: connection refused")
}

// TestExecute_SuccessFirstTry verifies a clean call runs exactly once with
// no sleeping
func TestExecute_SuccessFirstTry(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	value, err := Execute(context.Background(), testOptions(DefaultPolicy(), rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "ok", nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls, "Should not retry a successful call")
	assert.Empty(t, rec.recorded(), "Should not sleep on success")
}

// TestExecute_RetriesTransientFailuresUntilSuccess verifies two network
// failures followed by a success consume exactly three attempts
func TestExecute_RetriesTransientFailuresUntilSuccess(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	calls := 0

	value, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls <= 2 {
				return "", networkError()
			}
			return "synced", nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "synced", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, rec.recorded(),
		"Delays should follow the exponential schedule")
}

// TestExecute_AuthenticationFailsImmediately verifies a permanent failure
// ends the episode on the first attempt regardless of the attempt budget
func TestExecute_AuthenticationFailsImmediately(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttempts = 5
	rec := &sleepRecorder{}
	calls := 0

	_, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", gh_errors.NewAuthenticationError("bad credentials", nil, nil)
		})

	assert.Equal(t, 1, calls, "Authentication failures should never be retried")
	assert.Empty(t, rec.recorded())
	assert.True(t, gh_errors.IsAuthentication(err))

	var ghErr *gh_errors.Error
	assert.ErrorAs(t, err, &ghErr)
	assert.Equal(t, "1", ghErr.Context["attempt"])
}

// TestExecute_RepositoryNotFoundFailsImmediately verifies the other
// permanent variant also short-circuits
func TestExecute_RepositoryNotFoundFailsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	_, err := Execute(context.Background(), testOptions(DefaultPolicy(), rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", gh_errors.NewRepositoryNotFoundError("no such repository", nil, nil)
		})

	assert.Equal(t, 1, calls)
	assert.True(t, gh_errors.IsNotFound(err))
}

// TestExecute_ServerDelayOverridesBackoff verifies a rate limit hint larger
// than the computed delay wins
func TestExecute_ServerDelayOverridesBackoff(t *testing.T) {
	policy := Policy{
		MaxAttempts:       2,
		BaseDelay:         1 * time.Second,
		MaxDelay:          60 * time.Second,
		ExponentialBase:   2.0,
		RespectRateLimits: true,
	}
	rec := &sleepRecorder{}
	calls := 0

	value, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls == 1 {
				return "", gh_errors.NewRateLimitError("limit exceeded", 5*time.Second, nil, nil)
			}
			return "ok", nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.recorded(),
		"Server hint should override the 1s computed delay")
}

// TestExecute_ServerDelayIgnoredWhenDisabled verifies RespectRateLimits off
// keeps the computed schedule
func TestExecute_ServerDelayIgnoredWhenDisabled(t *testing.T) {
	policy := Policy{
		MaxAttempts:     2,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	calls := 0

	_, _ = Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls == 1 {
				return "", gh_errors.NewRateLimitError("limit exceeded", 5*time.Second, nil, nil)
			}
			return "ok", nil
		})

	assert.Equal(t, []time.Duration{1 * time.Second}, rec.recorded())
}

// TestExecute_ExhaustionWrapsLastError verifies the final taxonomy error
// carries the attempt count, cumulative delay and operation name
func TestExecute_ExhaustionWrapsLastError(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	cause := errors.New("boom")
	calls := 0

	_, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", cause
		})

	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, cause), "Should keep the last cause reachable")

	var ghErr *gh_errors.Error
	assert.ErrorAs(t, err, &ghErr)
	assert.Equal(t, gh_errors.ErrorTypeGeneric, ghErr.Type)
	assert.Equal(t, "3", ghErr.Context["attempt"])
	assert.Equal(t, "3s", ghErr.Context["total_delay"])
	assert.Equal(t, "test operation", ghErr.Context["operation"])
	assert.NotEmpty(t, ghErr.Suggestions)
}

// TestExecute_TimeoutPreemptsSleep verifies the episode fails instead of
// starting a sleep that would overrun the timeout
func TestExecute_TimeoutPreemptsSleep(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       5 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Timeout:         2 * time.Second,
	}
	rec := &sleepRecorder{}
	calls := 0

	_, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", networkError()
		})

	assert.Equal(t, 1, calls, "Should fail before the second attempt")
	assert.Empty(t, rec.recorded(), "Should not start a sleep that cannot finish in time")

	var ghErr *gh_errors.Error
	assert.ErrorAs(t, err, &ghErr)
	assert.Equal(t, gh_errors.ErrorTypeNetwork, ghErr.Type)
	assert.Equal(t, "1", ghErr.Context["attempt"])
}

// TestExecute_TimeoutAccountsForElapsedTime verifies the projection uses
// time already spent, not just the next delay
func TestExecute_TimeoutAccountsForElapsedTime(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		BaseDelay:       4 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Timeout:         10 * time.Second,
	}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	calls := 0

	_, err := Execute(context.Background(), Options{
		Policy: policy,
		Name:   "test operation",
		Logger: logger.NewNoopLogger(),
		Sleep:  clock.sleep,
		Now:    clock.Now,
	}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", networkError()
	})

	// Attempt 1 fails, sleeps 4s (4s elapsed). Attempt 2 fails; the next 8s
	// delay would land at 12s, past the 10s timeout.
	assert.Equal(t, 2, calls)
	assert.Error(t, err)

	var ghErr *gh_errors.Error
	assert.ErrorAs(t, err, &ghErr)
	assert.Equal(t, "2", ghErr.Context["attempt"])
	assert.Equal(t, "4s", ghErr.Context["total_delay"])
}

// TestExecute_DelayScheduleGrowsAndCaps verifies exponential growth stops at
// MaxDelay
func TestExecute_DelayScheduleGrowsAndCaps(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        400 * time.Millisecond,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}

	_, err := Execute(context.Background(), testOptions(policy, rec),
		func(ctx context.Context, attempt int) (string, error) {
			return "", networkError()
		})

	assert.Error(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond,
	}, rec.recorded())
}

// TestExecute_JitterScalesDelay verifies the injected randomness maps onto
// the ±10% band
func TestExecute_JitterScalesDelay(t *testing.T) {
	policy := Policy{
		MaxAttempts:     2,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        400 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          true,
	}

	cases := []struct {
		rand float64
		want time.Duration
	}{
		{0.0, 90 * time.Millisecond},
		{0.5, 100 * time.Millisecond},
		{1.0, 110 * time.Millisecond},
	}

	for _, tc := range cases {
		rec := &sleepRecorder{}
		opts := testOptions(policy, rec)
		opts.Rand = func() float64 { return tc.rand }

		_, _ = Execute(context.Background(), opts,
			func(ctx context.Context, attempt int) (string, error) {
				return "", networkError()
			})

		assert.Equal(t, []time.Duration{tc.want}, rec.recorded(), "rand=%v", tc.rand)
	}
}

// TestComputeDelay_JitterStaysWithinBounds verifies real randomness never
// leaves the band
func TestComputeDelay_JitterStaysWithinBounds(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
	opts := Options{}.withDefaults()

	for i := 0; i < 1000; i++ {
		delay := computeDelay(policy, 1, gh_errors.Analysis{Retryable: true}, opts.Rand)
		assert.GreaterOrEqual(t, delay, 900*time.Millisecond)
		assert.Less(t, delay, 1100*time.Millisecond)
	}
}

// TestExecute_ContextCancelledDuringSleep verifies cancellation ends the
// episode with the last failure wrapped
func TestExecute_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	calls := 0

	_, err := Execute(ctx, Options{
		Policy: policy,
		Name:   "test operation",
		Logger: logger.NewNoopLogger(),
	}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", networkError()
	})

	assert.Equal(t, 1, calls, "Cancellation should stop the episode at the first sleep")

	var ghErr *gh_errors.Error
	assert.ErrorAs(t, err, &ghErr)
	assert.Equal(t, gh_errors.ErrorTypeNetwork, ghErr.Type)
	assert.Equal(t, "1", ghErr.Context["attempt"])
}

// TestExecute_OnRetryCallback verifies the hook sees each failed attempt and
// its delay
func TestExecute_OnRetryCallback(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	opts := testOptions(policy, rec)

	var attempts []int
	var delays []time.Duration
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	_, _ = Execute(context.Background(), opts,
		func(ctx context.Context, attempt int) (string, error) {
			return "", networkError()
		})

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

// TestExecute_LogsRecoveryAtInfo verifies an episode that needed retries
// announces the recovery
func TestExecute_LogsRecoveryAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewWriterLogger(buf)
	log.SetLevel(logger.LevelDebug)

	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	calls := 0

	opts := testOptions(policy, rec)
	opts.Logger = log
	opts.Name = "sync repository"

	_, err := Execute(context.Background(), opts,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls == 1 {
				return "", networkError()
			}
			return "ok", nil
		})

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "[DEBUG] sync repository: attempt 1/3")
	assert.Contains(t, output, "retrying in 1s")
	assert.Contains(t, output, "[INFO] sync repository: succeeded on attempt 2/3")
}

// TestExecute_InvalidPolicyRejected verifies a broken policy never runs the
// operation
func TestExecute_InvalidPolicyRejected(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttempts = 0
	calls := 0

	_, err := Execute(context.Background(), testOptions(policy, &sleepRecorder{}),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", nil
		})

	assert.Error(t, err)
	assert.Equal(t, 0, calls, "Should reject the policy before the first attempt")
}

// TestExecute_ZeroOptionsUseDefaults verifies the zero Options value is
// usable as-is
func TestExecute_ZeroOptionsUseDefaults(t *testing.T) {
	value, err := Execute(context.Background(), Options{Logger: logger.NewNoopLogger()},
		func(ctx context.Context, attempt int) (string, error) {
			return "ok", nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "ok", value)
}

// TestDo_PropagatesFailure verifies the value-less form returns the same
// taxonomy error
func TestDo_PropagatesFailure(t *testing.T) {
	policy := Policy{
		MaxAttempts:     2,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}

	err := Do(context.Background(), testOptions(policy, rec), func(ctx context.Context) error {
		return gh_errors.NewAuthenticationError("bad credentials", nil, nil)
	})

	assert.True(t, gh_errors.IsAuthentication(err))
}

// TestWrap_EachCallIsItsOwnEpisode verifies attempt budgets reset between
// calls of a wrapped function
func TestWrap_EachCallIsItsOwnEpisode(t *testing.T) {
	policy := Policy{
		MaxAttempts:     2,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	var calls atomic.Int64

	fetch := Wrap(testOptions(policy, rec), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", networkError()
		}
		return "ok", nil
	})

	first, err := fetch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ok", first)

	second, err := fetch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ok", second)

	assert.Equal(t, int64(3), calls.Load(), "First call retries once, second succeeds immediately")
}

// TestExecute_ConcurrentEpisodesAreIsolated verifies one shared Options
// value can drive many goroutines without state bleeding between them
func TestExecute_ConcurrentEpisodesAreIsolated(t *testing.T) {
	policy := Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
	rec := &sleepRecorder{}
	opts := testOptions(policy, rec)

	const workers = 10
	var wg sync.WaitGroup
	var totalCalls atomic.Int64
	results := make([]string, workers)
	failures := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempts := 0
			results[i], failures[i] = Execute(context.Background(), opts,
				func(ctx context.Context, attempt int) (string, error) {
					totalCalls.Add(1)
					attempts++
					if attempts == 1 {
						return "", networkError()
					}
					return fmt.Sprintf("ok-%d", i), nil
				})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.NoError(t, failures[i])
		assert.Equal(t, fmt.Sprintf("ok-%d", i), results[i])
	}
	assert.Equal(t, int64(workers*2), totalCalls.Load(), "Each episode should retry exactly once")
	assert.Len(t, rec.recorded(), workers)
}

// TestPolicy_Validate verifies each malformed field is rejected
func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"negative attempts", func(p *Policy) { p.MaxAttempts = -1 }},
		{"zero base delay", func(p *Policy) { p.BaseDelay = 0 }},
		{"negative base delay", func(p *Policy) { p.BaseDelay = -time.Second }},
		{"max below base", func(p *Policy) { p.MaxDelay = 500 * time.Millisecond }},
		{"flat exponential base", func(p *Policy) { p.ExponentialBase = 1.0 }},
		{"negative timeout", func(p *Policy) { p.Timeout = -time.Second }},
	}

	for _, tc := range cases {
		policy := DefaultPolicy()
		tc.mutate(&policy)
		assert.Error(t, policy.Validate(), "%s should fail validation", tc.name)
	}
}

// TestDefaultPolicy verifies the documented defaults
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 1*time.Second, p.BaseDelay)
	assert.Equal(t, 60*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.ExponentialBase)
	assert.True(t, p.Jitter)
	assert.True(t, p.RespectRateLimits)
	assert.Equal(t, 30*time.Second, p.Timeout)
}

// TestDefaultSleep verifies the context-aware sleeper
func TestDefaultSleep(t *testing.T) {
	assert.NoError(t, DefaultSleep(context.Background(), 0), "Zero delay should return immediately")
	assert.NoError(t, DefaultSleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, DefaultSleep(ctx, time.Hour), context.Canceled,
		"Cancelled context should interrupt the sleep")
}
