package task

import (
	"sort"
	"time"
)

// Canonical is the normalized representation of one unit of work the engine
// wants reflected on the board.
//
// Title is the correlation key: within one scope (project, or
// project+section) a Canonical matches at most one existing board item by
// title. Titles are derived deterministically from the source record's
// stable identifier, so re-normalizing the same record always produces the
// same key.
//
// A Canonical is built fresh each reconciliation pass and discarded once it
// has been turned into a mutation request. It never aliases board state.
type Canonical struct {
	// Title is the unique correlation key within the task's scope.
	Title string `json:"title"`

	// Completed mirrors the source record's processing/terminal flag.
	Completed bool `json:"completed"`

	// DueAt is the SLA deadline in UTC, second precision. Nil when the
	// source record carries no deadline - never a sentinel date.
	DueAt *time.Time `json:"due_at,omitempty"`

	// Notes is the free-text (HTML) body. Absent optional source fields
	// are omitted from the body rather than rendered as empty markers.
	Notes string `json:"notes,omitempty"`

	// Fields maps board custom-field IDs to values (strings, numbers, or
	// enum option IDs produced by the field mapper).
	Fields map[string]any `json:"fields,omitempty"`

	// ParentTitle names the enclosing roll-up task, if any. The executor
	// resolves it to a board ID after the parent has been created.
	ParentTitle string `json:"parent_title,omitempty"`

	// ParentID is the resolved board ID of the parent. Set by the
	// executor, never by normalizers.
	ParentID string `json:"parent_id,omitempty"`

	// Section is the board bucket the task belongs to.
	Section string `json:"section,omitempty"`

	// Assignee is the board user the task is assigned to on creation.
	// Assignment is a create-time concern; updates never resend it.
	Assignee string `json:"assignee,omitempty"`
}

// SortByDueAt orders tasks ascending by due date with undated tasks last.
// Ties keep the input order (the sort is stable), which keeps plans
// deterministic for records that share a deadline.
func SortByDueAt(tasks []Canonical) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.DueAt == nil {
			return false
		}
		if b.DueAt == nil {
			return true
		}
		return a.DueAt.Before(*b.DueAt)
	})
}

// EarliestDueAt returns the earliest non-nil due date among tasks, or nil
// when no task carries one. This is the "earliest due date wins" rule for
// roll-up aggregates.
func EarliestDueAt(times []*time.Time) *time.Time {
	var earliest *time.Time
	for _, t := range times {
		if t == nil {
			continue
		}
		if earliest == nil || t.Before(*earliest) {
			earliest = t
		}
	}
	return earliest
}
