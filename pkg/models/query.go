// Package models provides data structures shared across the dispatch engine.
package models

import (
	"fmt"
	"sort"
	"time"
)

// BackendID identifies one registered query backend.
type BackendID string

// Well-known backend identities. The registry accepts arbitrary IDs; these
// are the ones wired by the default configuration.
const (
	BackendDuckDB     BackendID = "duckdb"
	BackendClickHouse BackendID = "clickhouse"
	BackendPostgres   BackendID = "postgres"
)

// Row is one result record, keyed by column name.
type Row map[string]interface{}

// Success is the positive variant of an Outcome.
type Success struct {
	Query         string        `json:"query"`
	Rows          []Row         `json:"rows"`
	Backend       BackendID     `json:"backend"`
	Explanation   string        `json:"explanation"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Failure is the negative variant of an Outcome.
type Failure struct {
	ErrorMessage string    `json:"error_message"`
	Backend      BackendID `json:"backend"`
	Query        string    `json:"query,omitempty"`
	Code         string    `json:"code,omitempty"`
}

// Outcome is the result of executing one query against one backend.
// Exactly one of Success or Failure is non-nil.
type Outcome struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// NewSuccess builds a success outcome.
func NewSuccess(s *Success) Outcome { return Outcome{Success: s} }

// NewFailure builds a failure outcome.
func NewFailure(f *Failure) Outcome { return Outcome{Failure: f} }

// OK reports whether the outcome is the success variant.
func (o Outcome) OK() bool { return o.Success != nil }

// Backend returns the identity of the backend that produced the outcome.
func (o Outcome) Backend() BackendID {
	if o.Success != nil {
		return o.Success.Backend
	}
	if o.Failure != nil {
		return o.Failure.Backend
	}
	return ""
}

// SelectionMode controls how a Selection resolves against the registered
// backend set.
type SelectionMode int

const (
	// SelectAll resolves to every registered backend.
	SelectAll SelectionMode = iota
	// SelectInclude resolves to exactly the listed backends.
	SelectInclude
	// SelectExclude resolves to every registered backend except the listed ones.
	SelectExclude
)

// Selection describes which backends a call should fan out to.
type Selection struct {
	Mode     SelectionMode
	Backends []BackendID
}

// All selects every registered backend.
func All() Selection { return Selection{Mode: SelectAll} }

// Include selects exactly the given backends.
func Include(ids ...BackendID) Selection {
	return Selection{Mode: SelectInclude, Backends: ids}
}

// Exclude selects every registered backend except the given ones.
func Exclude(ids ...BackendID) Selection {
	return Selection{Mode: SelectExclude, Backends: ids}
}

// Resolve computes the concrete backend set from the selection and the
// registered IDs. IDs named by the selection that are not registered come back
// in unknown so the caller can reject the selection instead of silently
// dropping a backend. Both slices are sorted for deterministic iteration.
func (s Selection) Resolve(registered []BackendID) (resolved, unknown []BackendID) {
	known := make(map[BackendID]bool, len(registered))
	for _, id := range registered {
		known[id] = true
	}
	switch s.Mode {
	case SelectInclude:
		seen := make(map[BackendID]bool, len(s.Backends))
		for _, id := range s.Backends {
			if seen[id] {
				continue
			}
			seen[id] = true
			if known[id] {
				resolved = append(resolved, id)
			} else {
				unknown = append(unknown, id)
			}
		}
	case SelectExclude:
		excluded := make(map[BackendID]bool, len(s.Backends))
		for _, id := range s.Backends {
			if !known[id] && !excluded[id] {
				unknown = append(unknown, id)
			}
			excluded[id] = true
		}
		for _, id := range registered {
			if !excluded[id] {
				resolved = append(resolved, id)
			}
		}
	default:
		resolved = append(resolved, registered...)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i] < resolved[j] })
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return resolved, unknown
}

// String returns a human-readable form for logging.
func (s Selection) String() string {
	switch s.Mode {
	case SelectInclude:
		return fmt.Sprintf("include%v", s.Backends)
	case SelectExclude:
		return fmt.Sprintf("exclude%v", s.Backends)
	default:
		return "all"
	}
}

// AggregateResult is the fan-in product of one orchestration call: one
// outcome per selected backend plus total wall-clock time for the fan-out.
type AggregateResult struct {
	Outcomes      map[BackendID]Outcome `json:"outcomes"`
	TotalDuration time.Duration         `json:"total_duration"`
}

// Succeeded returns the IDs of backends whose outcome is the success variant.
func (r *AggregateResult) Succeeded() []BackendID {
	return r.filter(true)
}

// Failed returns the IDs of backends whose outcome is the failure variant.
func (r *AggregateResult) Failed() []BackendID {
	return r.filter(false)
}

func (r *AggregateResult) filter(ok bool) []BackendID {
	var ids []BackendID
	for id, o := range r.Outcomes {
		if o.OK() == ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
