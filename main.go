package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/hugo-valle/classroom-pilot/batch"
	"github.com/hugo-valle/classroom-pilot/clients/github"
	"github.com/hugo-valle/classroom-pilot/rate_limit"
	"github.com/hugo-valle/classroom-pilot/rate_limit/backends/memory"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
	"github.com/hugo-valle/classroom-pilot/utils/retry"
)

// retryProfiles tunes pacing per operation kind. In a real deployment
// this would live in a YAML file next to the binary.
const retryProfiles = `
default:
  max_attempts: 3
  base_delay: 200ms
  max_delay: 5s
discovery:
  max_attempts: 5
  base_delay: 100ms
  max_delay: 2s
  timeout: 30s
provision:
  max_attempts: 4
  base_delay: 300ms
  max_delay: 10s
`

// classroom roster served by the mock API
var demoRepos = []string{
	"hw1-alice", "hw1-bob", "hw1-carol", "hw1-dana", "hw1-evan",
	"hw1-fay", "hw1-gil", "hw1-hana", "hw1-template", "syllabus",
}

// FlakyGitHubAPI implements a mock GitHub API for demo purposes: every
// call sleeps a little and sometimes fails with a realistic typed error.
type FlakyGitHubAPI struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Ensure FlakyGitHubAPI implements the client surface
var _ github.API = (*FlakyGitHubAPI)(nil)

func NewFlakyGitHubAPI() *FlakyGitHubAPI {
	return &FlakyGitHubAPI{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// simulate sleeps for a realistic round trip and rolls the dice: 10%
// server errors, 5% secondary rate limits, the rest succeed.
func (f *FlakyGitHubAPI) simulate(method string) error {
	f.mu.Lock()
	delay := time.Duration(20+f.rng.Intn(100)) * time.Millisecond
	roll := f.rng.Float32()
	f.mu.Unlock()
	time.Sleep(delay)

	switch {
	case roll < 0.10:
		return &gh.ErrorResponse{
			Response: demoResponse(http.StatusBadGateway, method),
			Message:  "Server error",
		}
	case roll < 0.15:
		retryAfter := 500 * time.Millisecond
		return &gh.AbuseRateLimitError{
			Response:   demoResponse(http.StatusForbidden, method),
			Message:    "You have exceeded a secondary rate limit",
			RetryAfter: &retryAfter,
		}
	default:
		return nil
	}
}

func demoResponse(status int, method string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Request: &http.Request{
			Method: method,
			URL:    &url.URL{Scheme: "https", Host: "api.github.com"},
		},
	}
}

func (f *FlakyGitHubAPI) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	if err := f.simulate(http.MethodGet); err != nil {
		return nil, err
	}
	return &gh.Repository{
		Name:     gh.String(repo),
		FullName: gh.String(owner + "/" + repo),
		Private:  gh.Bool(true),
	}, nil
}

func (f *FlakyGitHubAPI) ListRepositoriesByOrg(ctx context.Context, org string) ([]*gh.Repository, error) {
	if err := f.simulate(http.MethodGet); err != nil {
		return nil, err
	}
	repos := make([]*gh.Repository, 0, len(demoRepos))
	for _, name := range demoRepos {
		repos = append(repos, &gh.Repository{
			Name:     gh.String(name),
			FullName: gh.String(org + "/" + name),
		})
	}
	return repos, nil
}

func (f *FlakyGitHubAPI) AddCollaborator(ctx context.Context, owner, repo, username, permission string) error {
	return f.simulate(http.MethodPut)
}

func (f *FlakyGitHubAPI) CreateOrUpdateSecret(ctx context.Context, owner, repo string, secret *gh.EncryptedSecret) error {
	return f.simulate(http.MethodPut)
}

func main() {
	// Set environment to dev for verbose logging
	os.Setenv("ENV", "dev")

	fmt.Println("🚀 Classroom Pilot Batch Operations Demo")
	fmt.Println("=========================================")

	log := logger.Default()
	tracker := rate_limit.NewTracker(memory.NewBackend())
	api := NewFlakyGitHubAPI()

	profiles, err := retry.LoadProfiles([]byte(retryProfiles))
	if err != nil {
		fmt.Printf("Error loading retry profiles: %v\n", err)
		os.Exit(1)
	}

	// Ctrl-C cancels the run; queued tasks land in the report as failed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("\n🔍 Discovering assignment repositories in cs101...")
	discoverer := batch.NewDiscoverer(api, log)
	discover := retry.Wrap(retry.Options{
		Policy: profiles["discovery"],
		Name:   "discover repositories",
		Logger: log,
	}, func(ctx context.Context) ([]string, error) {
		return discoverer.Discover(ctx, "cs101", "hw1-*", "hw1-template")
	})

	repos, err := discover(ctx)
	if err != nil {
		fmt.Printf("❌ Discovery failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Found %d student repositories\n", len(repos))

	runner := batch.NewRunner(batch.Options{
		Workers: 4,
		Tracker: tracker,
		Logger:  log,
		Retry:   retry.Options{Policy: profiles["provision"]},
	})

	go printEvents(runner.Events())

	queueDemoWorkload(runner, api, repos)

	fmt.Println("\n⚙️  Running batch...")
	report := runner.Run(ctx)

	fmt.Println("\n📋 Final report:")
	fmt.Println(string(report.JSON()))

	stats := tracker.GetStats()
	fmt.Printf("📊 Budget: %d core requests used, %d remaining, window resets in %v\n",
		stats.CoreUsed, stats.CoreRemaining, stats.TimeUntilReset.Round(time.Second))

	if !report.Ok() {
		fmt.Printf("\n⚠️  %d repositories failed: %v\n", report.Summary.Failed, report.FailedRepos())
		for _, suggestion := range report.Summary.Suggestions {
			fmt.Println("   - " + suggestion)
		}
		os.Exit(1)
	}
	fmt.Println("\n🎉 All repositories processed")
}

// queueDemoWorkload queues one provisioning task per student repository:
// a repository sync, the grader invite, and the autograding secret. The
// template audit runs first, the roster survey last.
func queueDemoWorkload(runner *batch.Runner, api github.API, repos []string) {
	fmt.Println("\n📦 Queueing batch operations...")

	addTask := func(task *batch.Task) {
		if err := runner.Add(task); err != nil {
			fmt.Printf("Error queueing %s: %v\n", task.Repo, err)
		}
	}

	addTask(&batch.Task{
		Repo:      "cs101/hw1-template",
		Operation: "audit template",
		Priority:  10,
		Fn: func(ctx context.Context) error {
			_, err := api.GetRepository(ctx, "cs101", "hw1-template")
			return err
		},
	})

	for _, full := range repos {
		owner, name, _ := strings.Cut(full, "/")
		addTask(&batch.Task{
			Repo:      full,
			Operation: "provision repository",
			Priority:  5,
			Cost:      1 + 2*rate_limit.OperationCost(http.MethodPut),
			Fields:    map[string]string{"assignment": "hw1"},
			Fn: func(ctx context.Context) error {
				if _, err := api.GetRepository(ctx, owner, name); err != nil {
					return err
				}
				if err := api.AddCollaborator(ctx, owner, name, "course-grader", "push"); err != nil {
					return err
				}
				return api.CreateOrUpdateSecret(ctx, owner, name, &gh.EncryptedSecret{
					Name:           "AUTOGRADER_TOKEN",
					KeyID:          "demo-key",
					EncryptedValue: "c2VjcmV0LXZhbHVl",
				})
			},
		})
	}

	addTask(&batch.Task{
		Repo:      "cs101",
		Operation: "survey classroom",
		Priority:  1,
		Fn: func(ctx context.Context) error {
			_, err := api.ListRepositoriesByOrg(ctx, "cs101")
			return err
		},
	})

	fmt.Printf("✅ Queued %d tasks\n", len(repos)+2)
}

// printEvents renders runner lifecycle events as they happen
func printEvents(events <-chan *batch.Event) {
	for event := range events {
		switch event.Type {
		case batch.EventTaskRetrying:
			fmt.Printf("  🔄 %s retrying (attempt %v, waiting %v)\n",
				event.Repo, event.Data["attempt"], event.Data["delay"])
		case batch.EventBudgetBlocked:
			fmt.Printf("  ⏳ %s waiting for budget (%v)\n", event.Repo, event.Data["wait"])
		case batch.EventTaskSucceeded:
			fmt.Printf("  ✅ %s\n", event.Repo)
		case batch.EventTaskFailed:
			fmt.Printf("  ❌ %s: %v\n", event.Repo, event.Data["error"])
		}
	}
}
