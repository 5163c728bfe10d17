package gh_errors

import (
	"fmt"
	"sort"
	"strings"
)

// Summary aggregates the outcome of a batch of operations for end-of-run
// reporting: counts per taxonomy variant plus the merged recovery guidance,
// so callers surface one digest instead of every individual failure.
type Summary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	ByType    map[ErrorType]int `json:"by_type,omitempty"`
	// Suggestions is the deduplicated recovery guidance drawn from every
	// failure, in key order of first appearance.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Summarize aggregates per-key operation errors into a Summary. A nil value
// means the keyed operation succeeded. Keys are visited in sorted order so
// the merged suggestions come out deterministic.
func Summarize(results map[string]error) Summary {
	s := Summary{ByType: make(map[ErrorType]int)}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	for _, key := range keys {
		err := results[key]
		s.Total++
		if err == nil {
			s.Succeeded++
			continue
		}
		s.Failed++

		analysis := Analyze(err)
		s.ByType[analysis.Type]++
		for _, suggestion := range analysis.Suggestions {
			if !seen[suggestion] {
				seen[suggestion] = true
				s.Suggestions = append(s.Suggestions, suggestion)
			}
		}
	}
	return s
}

// SuccessRate returns the fraction of operations that succeeded, in [0, 1].
// An empty batch counts as fully successful.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Succeeded) / float64(s.Total)
}

func (s Summary) String() string {
	if s.Failed == 0 {
		return fmt.Sprintf("%d/%d succeeded (%.1f%%)", s.Succeeded, s.Total, s.SuccessRate()*100)
	}

	types := make([]string, 0, len(s.ByType))
	for errType := range s.ByType {
		types = append(types, string(errType))
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, errType := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", errType, s.ByType[ErrorType(errType)]))
	}
	return fmt.Sprintf("%d/%d succeeded (%.1f%%); failures: %s",
		s.Succeeded, s.Total, s.SuccessRate()*100, strings.Join(parts, ", "))
}
