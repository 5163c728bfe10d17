package batch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/pretty"

	"github.com/hugo-valle/classroom-pilot/gh_errors"
)

// Outcome is one repository's result in a finished run.
type Outcome struct {
	Status string              `json:"status"`
	Type   gh_errors.ErrorType `json:"type,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Report aggregates a finished run: per-repository outcomes, the failure
// summary, and how much of the rate-limit budget the run consumed.
type Report struct {
	Summary  gh_errors.Summary  `json:"summary"`
	Outcomes map[string]Outcome `json:"outcomes"`
	Requests int                `json:"requests"`
	Duration time.Duration      `json:"-"`

	results map[string]error
}

// MarshalJSON renders the duration human-readable instead of as raw
// nanoseconds.
func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		*alias
		Duration string `json:"duration"`
	}{(*alias)(r), r.Duration.Round(time.Millisecond).String()})
}

// JSON renders the report as indented JSON suitable for printing.
func (r *Report) JSON() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte("{}")
	}
	return pretty.Pretty(data)
}

// Errors returns the raw per-repository results. Repositories that
// succeeded map to nil.
func (r *Report) Errors() map[string]error {
	out := make(map[string]error, len(r.results))
	for repo, err := range r.results {
		out[repo] = err
	}
	return out
}

// FailedRepos lists the repositories that failed, sorted by name.
func (r *Report) FailedRepos() []string {
	var failed []string
	for repo, err := range r.results {
		if err != nil {
			failed = append(failed, repo)
		}
	}
	sort.Strings(failed)
	return failed
}

// Ok reports whether every task succeeded.
func (r *Report) Ok() bool {
	return r.Summary.Failed == 0
}

func (r *Runner) buildReport(start time.Time, baselineRequests int) *Report {
	r.mu.Lock()
	results := make(map[string]error, len(r.results))
	for repo, err := range r.results {
		results[repo] = err
	}
	r.mu.Unlock()

	report := &Report{
		Summary:  gh_errors.Summarize(results),
		Outcomes: make(map[string]Outcome, len(results)),
		Requests: r.tracker.TotalRequests() - baselineRequests,
		Duration: time.Since(start),
		results:  results,
	}

	for repo, err := range results {
		if err == nil {
			report.Outcomes[repo] = Outcome{Status: "ok"}
			continue
		}
		report.Outcomes[repo] = Outcome{
			Status: "failed",
			Type:   gh_errors.Analyze(err).Type,
			Error:  err.Error(),
		}
	}
	return report
}
