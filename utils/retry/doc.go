// Package retry provides a configurable retry mechanism with exponential
// backoff for GitHub API calls and other operations prone to transient
// failures.
//
// The package supports:
//   - Configurable attempt counts with exponential backoff and ±10% jitter
//   - Error classification through gh_errors so permanent failures stop immediately
//   - Server-provided rate limit delays overriding the computed backoff
//   - A per-episode timeout covering attempts and sleeps
//   - Context-aware sleeping with cancellation support
//   - Injectable clock, sleeper and randomness for deterministic tests
//
// Basic Usage:
//
//	ctx := context.Background()
//	opts := retry.Options{
//	    Name: "sync repository",
//	}
//
//	repo, err := retry.Execute(ctx, opts, func(ctx context.Context, attempt int) (*github.Repository, error) {
//	    return client.GetRepository(ctx, "org", "assignment-student")
//	})
//
// Operations without a return value use Do, and Wrap produces a decorated
// function with the same signature as the original:
//
//	fetch := retry.Wrap(opts, func(ctx context.Context) (*github.Repository, error) {
//	    return client.GetRepository(ctx, "org", "assignment-student")
//	})
//
// Configuration:
//
// The Policy struct tunes the backoff schedule:
//   - MaxAttempts: total tries including the first (default: 3)
//   - BaseDelay: delay after the first failure (default: 1s)
//   - MaxDelay: cap on the computed delay (default: 60s)
//   - ExponentialBase: growth factor between delays (default: 2.0)
//   - Jitter: randomize each delay by ±10% (default: true)
//   - RespectRateLimits: honor larger server-provided delays (default: true)
//   - Timeout: bound on the whole episode, zero disables (default: 30s)
//
// The backoff calculation is: delay = BaseDelay * (ExponentialBase ^ (attempt-1))
// capped at MaxDelay, then raised to the server's suggested delay when one is
// larger and RespectRateLimits is set, then jittered.
//
// Error Classification:
//
// Every failed attempt is classified by an AnalyzeFunc, gh_errors.Analyze by
// default. Retryable failures (network, rate limit, server errors) continue
// the episode; permanent ones (authentication, missing repository) end it on
// the spot. Episodes that end in failure return a *gh_errors.Error carrying
// the operation name, attempt count and cumulative delay as context.
//
// Context Support:
//
// Sleeps between attempts watch the context and the episode fails immediately
// when it is cancelled. The context is also passed through to the operation
// itself.
//
// Named policies can be loaded from YAML with LoadProfiles, letting deploys
// tune backoff without a rebuild.
package retry
