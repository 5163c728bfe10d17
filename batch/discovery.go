package batch

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/go-github/v66/github"
	"github.com/tidwall/match"

	"github.com/hugo-valle/classroom-pilot/gh_errors"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
	"github.com/hugo-valle/classroom-pilot/utils/parallel"
)

// RepositoryLister is the slice of the GitHub client discovery needs.
type RepositoryLister interface {
	ListRepositoriesByOrg(ctx context.Context, org string) ([]*github.Repository, error)
}

// FilterRepositories keeps the names matching pattern, minus exclusions.
// Patterns use glob syntax: "assignment-*" matches every repository
// spawned from that assignment's template.
func FilterRepositories(names []string, pattern string, exclude ...string) []string {
	matched := make([]string, 0, len(names))
	for _, name := range names {
		if !match.Match(name, pattern) {
			continue
		}
		if excluded(name, exclude) {
			continue
		}
		matched = append(matched, name)
	}
	return matched
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if match.Match(name, pattern) {
			return true
		}
	}
	return false
}

// Discoverer finds assignment repositories in one or more organizations.
type Discoverer struct {
	lister RepositoryLister
	log    logger.Logger
}

// NewDiscoverer creates a Discoverer backed by the given client.
func NewDiscoverer(lister RepositoryLister, log logger.Logger) *Discoverer {
	if log == nil {
		log = logger.Default()
	}
	return &Discoverer{lister: lister, log: log}
}

// Discover lists an organization's repositories and returns the full
// names ("org/repo") whose repository name matches pattern, sorted.
// Exclusion patterns knock out template and instructor copies. Zero
// matches is a discovery error so callers don't silently run a batch
// over nothing.
func (d *Discoverer) Discover(ctx context.Context, org, pattern string, exclude ...string) ([]string, error) {
	op := gh_errors.BeginOperation(d.log, "discover repositories", map[string]string{
		"org":     org,
		"pattern": pattern,
	})
	defer op.End()

	repos, err := d.lister.ListRepositoriesByOrg(ctx, org)
	if err != nil {
		return nil, op.Error("", err)
	}

	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		names = append(names, repo.GetName())
	}

	matched := FilterRepositories(names, pattern, exclude...)
	if len(matched) == 0 {
		derr := gh_errors.NewDiscoveryError(
			fmt.Sprintf("no repositories in %s match %q", org, pattern),
			nil,
			map[string]string{"candidates": strconv.Itoa(len(names))},
		)
		return nil, op.Error("", derr)
	}
	sort.Strings(matched)

	full := make([]string, len(matched))
	for i, name := range matched {
		full[i] = org + "/" + name
	}

	op.Success(fmt.Sprintf("%d of %d repositories matched", len(matched), len(names)))
	return full, nil
}

// DiscoverAcrossOrgs runs Discover over several organizations in
// parallel. Organizations that fail don't hide the ones that succeeded;
// the error is nil only when every organization listed cleanly.
func (d *Discoverer) DiscoverAcrossOrgs(ctx context.Context, orgs []string, pattern string, exclude ...string) (map[string][]string, error) {
	builder := parallel.NewBuilder()
	for _, org := range orgs {
		org := org // pin per-iteration value; Go <1.22 shares the loop variable across iterations
		builder.Add(org, func(ctx context.Context) (any, error) {
			return d.Discover(ctx, org, pattern, exclude...)
		})
	}

	results := builder.Run(ctx)

	found := make(map[string][]string)
	for org, result := range results {
		if result.Error != nil {
			continue
		}
		if repos, ok := result.Value.([]string); ok {
			found[org] = repos
		}
	}

	summary := gh_errors.Summarize(results.Errors())
	if summary.Failed > 0 {
		return found, gh_errors.NewDiscoveryError(
			fmt.Sprintf("discovery failed in %d of %d organizations", summary.Failed, summary.Total),
			nil,
			map[string]string{"pattern": pattern},
		)
	}
	return found, nil
}
