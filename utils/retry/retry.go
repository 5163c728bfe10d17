package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hugo-valle/classroom-pilot/gh_errors"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
)

// Policy configures the backoff schedule of a wrapped operation. Immutable
// once constructed; a single value can be shared read-only across any number
// of concurrent episodes.
type Policy struct {
	// MaxAttempts bounds how many times the operation runs, first try included.
	MaxAttempts int
	// BaseDelay is the pre-jitter delay after the first failed attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// ExponentialBase is the growth factor between consecutive delays.
	ExponentialBase float64
	// Jitter randomizes each delay by ±10% to desynchronize concurrent retriers.
	Jitter bool
	// RespectRateLimits lets a larger server-provided delay override the
	// computed one, so attempts are not burned before the limit clears.
	RespectRateLimits bool
	// Timeout bounds the whole episode, sleeps included. Zero means no bound.
	Timeout time.Duration
}

// DefaultPolicy returns the policy used when Options carries a zero Policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          60 * time.Second,
		ExponentialBase:   2.0,
		Jitter:            true,
		RespectRateLimits: true,
		Timeout:           30 * time.Second,
	}
}

// Validate rejects policies the engine cannot run
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry: base delay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry: max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.ExponentialBase <= 1 {
		return fmt.Errorf("retry: exponential base must be greater than 1, got %g", p.ExponentialBase)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("retry: timeout must not be negative, got %v", p.Timeout)
	}
	return nil
}

// AnalyzeFunc classifies an operation error
type AnalyzeFunc func(err error) gh_errors.Analysis

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in that case
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures one wrapped operation.
type Options struct {
	// Policy is the backoff schedule. The zero value means DefaultPolicy.
	Policy Policy
	// Name identifies the operation in logs ("sync repository", "deploy secret", ...)
	Name string
	// Logger receives the attempt/delay/outcome log lines. Defaults to logger.Default().
	Logger logger.Logger
	// Analyze classifies errors. Defaults to gh_errors.Analyze.
	Analyze AnalyzeFunc
	// Sleep, Now and Rand exist so tests can substitute deterministic
	// sources. Production callers leave them nil.
	Sleep SleepFunc
	Now   func() time.Time
	Rand  func() float64
	// OnRetry, when set, is called before each sleep with the attempt that
	// just failed, its error, and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Policy == (Policy{}) {
		o.Policy = DefaultPolicy()
	}
	if o.Name == "" {
		o.Name = "operation"
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.Analyze == nil {
		o.Analyze = gh_errors.Analyze
	}
	if o.Sleep == nil {
		o.Sleep = DefaultSleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

// episode is the per-call retry state. Created fresh for every wrapped call
// and never shared, so concurrent episodes need no locking.
type episode struct {
	id           uuid.UUID
	attempt      int
	totalDelay   time.Duration
	lastErr      error
	lastAnalysis gh_errors.Analysis
	start        time.Time
}

// Execute runs fn under opts and returns its value, or a taxonomy error once
// a non-retryable classification, attempt exhaustion, the episode timeout or
// context cancellation ends the episode. fn receives the attempt number,
// starting at 1. Each call is an independent episode with fresh state.
func Execute[T any](ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T

	opts = opts.withDefaults()
	if err := opts.Policy.Validate(); err != nil {
		return zero, err
	}

	policy := opts.Policy
	ep := &episode{id: uuid.New(), start: opts.Now()}

	for {
		ep.attempt++
		opts.Logger.Debugf("%s: attempt %d/%d [episode %s]",
			opts.Name, ep.attempt, policy.MaxAttempts, ep.id)

		value, err := fn(ctx, ep.attempt)
		if err == nil {
			if ep.attempt > 1 {
				opts.Logger.Infof("%s: succeeded on attempt %d/%d after %v of delays [episode %s]",
					opts.Name, ep.attempt, policy.MaxAttempts, ep.totalDelay, ep.id)
			}
			return value, nil
		}

		ep.lastErr = err
		ep.lastAnalysis = opts.Analyze(err)

		if !ep.lastAnalysis.Retryable {
			return zero, ep.fail(opts, fmt.Sprintf("%s failure is not retryable", ep.lastAnalysis.Type))
		}
		if ep.attempt >= policy.MaxAttempts {
			return zero, ep.fail(opts, fmt.Sprintf("all %d attempts exhausted", policy.MaxAttempts))
		}

		delay := computeDelay(policy, ep.attempt, ep.lastAnalysis, opts.Rand)
		if policy.Timeout > 0 && opts.Now().Sub(ep.start)+delay > policy.Timeout {
			return zero, ep.fail(opts, fmt.Sprintf("next delay %v would exceed the %v timeout", delay, policy.Timeout))
		}

		opts.Logger.Debugf("%s: attempt %d failed (%s), retrying in %v: %v [episode %s]",
			opts.Name, ep.attempt, ep.lastAnalysis.Type, delay, err, ep.id)
		if opts.OnRetry != nil {
			opts.OnRetry(ep.attempt, err, delay)
		}

		if sleepErr := opts.Sleep(ctx, delay); sleepErr != nil {
			return zero, ep.fail(opts, fmt.Sprintf("context cancelled while waiting to retry: %v", sleepErr))
		}
		ep.totalDelay += delay
	}
}

// Do is Execute for operations that return no value
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, opts, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Wrap attaches the retry contract to fn: the returned function has the
// identical signature and runs every call as its own episode.
func Wrap[T any](opts Options, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Execute(ctx, opts, func(ctx context.Context, _ int) (T, error) {
			return fn(ctx)
		})
	}
}

// fail logs the episode's final failure and wraps the last cause into a
// taxonomy error carrying the attempt count and cumulative delay.
func (ep *episode) fail(opts Options, reason string) error {
	opts.Logger.Errorf("%s: failed after %d attempt(s): %s: %v [episode %s]",
		opts.Name, ep.attempt, reason, ep.lastErr, ep.id)

	ghErr := gh_errors.FromError(ep.lastErr, map[string]string{
		"attempt":     strconv.Itoa(ep.attempt),
		"total_delay": ep.totalDelay.String(),
	})
	return ghErr.WithContext("operation", opts.Name)
}

// computeDelay follows the schedule: exponential growth from BaseDelay
// capped at MaxDelay, overridden by a larger server-provided delay when the
// policy respects rate limits, then jittered by ±10%.
func computeDelay(policy Policy, attempt int, analysis gh_errors.Analysis, randFloat func() float64) time.Duration {
	backoff := float64(policy.BaseDelay) * math.Pow(policy.ExponentialBase, float64(attempt-1))
	if backoff > float64(policy.MaxDelay) {
		backoff = float64(policy.MaxDelay)
	}
	delay := time.Duration(backoff)

	if policy.RespectRateLimits && analysis.RetryDelay > delay {
		delay = analysis.RetryDelay
	}
	if policy.Jitter {
		delay = time.Duration(float64(delay) * (0.9 + 0.2*randFloat()))
	}
	return delay
}

// DefaultSleep blocks for d or until ctx is done
func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
