package engine

import (
	"fmt"
	"log/slog"

	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// Suppression selects the change-suppression policy: the rule deciding
// whether a matched pair's differences are worth an update call.
type Suppression int

const (
	// SuppressOnCompletion (default) plans an update only when the
	// completion flag differs from the stored item's. Due dates and
	// custom fields are tolerated as stale until a state transition -
	// this trades field freshness for write volume and avoids update
	// storms on every scheduled run.
	SuppressOnCompletion Suppression = iota

	// SuppressNever always updates matched pairs.
	SuppressNever
)

// Normalizer converts one raw source record into a canonical task.
// Implementations must be total for well-formed input; malformed values
// surface as source.NormalizationError naming the offending field, and the
// planner skips that record.
type Normalizer interface {
	Normalize(rec source.Record) (task.Canonical, error)
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc func(rec source.Record) (task.Canonical, error)

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(rec source.Record) (task.Canonical, error) {
	return f(rec)
}

// Options configure one planner.
type Options struct {
	// Suppression is the change-suppression policy for matched pairs.
	Suppression Suppression

	// ResolveMissing marks existing items unreferenced by the current
	// pass as resolve candidates. Jobs whose tasks complete through the
	// completion flag leave this off.
	ResolveMissing bool

	// StrictMatching raises AmbiguousMatchError for duplicated titles
	// instead of deterministically picking the first item.
	StrictMatching bool
}

// Update pairs an existing item's GID with the canonical task to write
// over it.
type Update struct {
	GID  string         `json:"gid"`
	Task task.Canonical `json:"task"`
}

// Plan is the derived, transient outcome of one planning phase: three
// action sets, pairwise disjoint by item identity. Applying a plan and
// re-planning against the refreshed snapshot converges to an empty plan.
type Plan struct {
	Create  []task.Canonical `json:"create"`
	Update  []Update         `json:"update"`
	Resolve []string         `json:"resolve"`

	// Known maps matched titles to their board GIDs. The executor uses
	// it to resolve parent references for children whose roll-up parent
	// already exists on the board.
	Known map[string]string `json:"-"`
}

// Empty reports whether the plan carries no mutations.
func (p *Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Resolve) == 0
}

// Merge combines plans over disjoint scopes (different board sections)
// into one applicable plan, so roll-up parents and their children can be
// executed as a single batch with parent-first ordering intact.
func Merge(plans ...*Plan) *Plan {
	merged := &Plan{Known: make(map[string]string)}
	for _, p := range plans {
		if p == nil {
			continue
		}
		merged.Create = append(merged.Create, p.Create...)
		merged.Update = append(merged.Update, p.Update...)
		merged.Resolve = append(merged.Resolve, p.Resolve...)
		for title, gid := range p.Known {
			merged.Known[title] = gid
		}
	}
	return merged
}

// Planner computes reconciliation plans. Planning is single-threaded and
// runs to completion before the executor phase begins, so every decision
// sees one consistent existing-items snapshot.
type Planner struct {
	normalizer Normalizer
	opts       Options
}

// NewPlanner creates a planner with the given normalizer and options.
func NewPlanner(n Normalizer, opts Options) *Planner {
	return &Planner{normalizer: n, opts: opts}
}

// Plan normalizes records and reconciles them against the existing
// snapshot. Records that fail normalization are skipped with a warning;
// the pass continues.
func (p *Planner) Plan(records []source.Record, existing []tracker.Item) (*Plan, error) {
	tasks := make([]task.Canonical, 0, len(records))
	for _, rec := range records {
		t, err := p.normalizer.Normalize(rec)
		if err != nil {
			if source.IsNormalization(err) {
				slog.Warn("skipping malformed record", "error", err)
				continue
			}
			return nil, fmt.Errorf("normalize record: %w", err)
		}
		tasks = append(tasks, t)
	}
	return p.PlanTasks(tasks, existing)
}

// PlanTasks reconciles pre-normalized tasks against the existing snapshot.
// Used directly by jobs that build roll-up aggregates outside the
// per-record normalizer.
//
// Invariants:
//   - an existing item lands in at most one of update/resolve;
//   - created tasks reference no existing identity;
//   - two tasks with the same title collapse onto the same decision (the
//     second is dropped with a warning - duplicate creates would violate
//     the no-duplication property).
func (p *Planner) PlanTasks(tasks []task.Canonical, existing []tracker.Item) (*Plan, error) {
	idx := NewIndex(existing, p.opts.StrictMatching)

	plan := &Plan{Known: make(map[string]string)}
	referenced := make(map[string]bool, len(tasks))
	planned := make(map[string]bool, len(tasks))

	for _, t := range tasks {
		key := canonicalTitle(t.Title)
		if planned[key] {
			slog.Warn("duplicate task title in source snapshot, dropping", "title", t.Title)
			continue
		}
		planned[key] = true

		item, err := idx.Match(t.Title)
		if err != nil {
			if IsAmbiguous(err) {
				slog.Warn("skipping record with ambiguous board match", "error", err)
				// The record is still active; none of the duplicate
				// items it matched may be resolved this pass.
				for _, dup := range idx.Bucket(t.Title) {
					referenced[dup.GID] = true
				}
				continue
			}
			return nil, err
		}

		if item == nil {
			plan.Create = append(plan.Create, t)
			continue
		}

		referenced[item.GID] = true
		plan.Known[key] = item.GID

		if p.needsUpdate(*item, t) {
			plan.Update = append(plan.Update, Update{GID: item.GID, Task: t})
		}
	}

	if p.opts.ResolveMissing {
		for _, item := range existing {
			if referenced[item.GID] || item.Completed {
				continue
			}
			plan.Resolve = append(plan.Resolve, item.GID)
		}
	}

	return plan, nil
}

// needsUpdate is the change-suppression predicate.
func (p *Planner) needsUpdate(item tracker.Item, t task.Canonical) bool {
	switch p.opts.Suppression {
	case SuppressNever:
		return true
	default:
		return item.Completed != t.Completed
	}
}
