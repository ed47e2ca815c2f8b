package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// DefaultWorkers is the default mutation pool size.
const DefaultWorkers = 8

// Report is the typed outcome of applying one plan. The pass as a whole
// succeeds if dispatched; partial failure is reported here, not raised.
type Report struct {
	// Run is the pass's correlation token.
	Run string

	// Created, Updated, Resolved count successful mutations.
	Created  int
	Updated  int
	Resolved int

	// Errors holds per-item mutation failures keyed by the item's
	// stable identifier (title for creates, GID otherwise).
	Errors []*MutationError
}

// Failed reports whether any mutation in the batch failed.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

// record appends counters and errors under the report's own lock; workers
// never touch the report directly.
type reportCollector struct {
	mu     sync.Mutex
	report *Report
}

func (c *reportCollector) success(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch op {
	case "create":
		c.report.Created++
	case "update":
		c.report.Updated++
	case "resolve":
		c.report.Resolved++
	}
}

func (c *reportCollector) failure(op, key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Errors = append(c.report.Errors, &MutationError{Op: op, Key: key, Cause: err})
}

// Executor applies reconciliation plans against the tracker through a
// bounded worker pool.
type Executor struct {
	gateway tracker.Gateway
	project string
	workers int
	tokens  RunTokenGenerator
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithWorkers sets the mutation pool size (observed useful range 3-8).
func WithWorkers(n int) ExecOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRunTokens overrides the run token generator (tests).
func WithRunTokens(g RunTokenGenerator) ExecOption {
	return func(e *Executor) {
		e.tokens = g
	}
}

// NewExecutor creates an executor that mutates tasks within one project.
func NewExecutor(gateway tracker.Gateway, project string, opts ...ExecOption) *Executor {
	e := &Executor{
		gateway: gateway,
		project: project,
		workers: DefaultWorkers,
		tokens:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply dispatches the plan's mutations and returns the batch report.
//
// Ordering: roll-up parents (creates without a ParentTitle that other
// creates reference) are issued synchronously first, so a child's parent
// GID exists before the child create is dispatched. Everything else fans
// out through the pool in no particular order. Individual failures are
// collected and never cancel sibling work.
func (e *Executor) Apply(ctx context.Context, plan *Plan) *Report {
	run := e.tokens.Generate()
	collector := &reportCollector{report: &Report{Run: run}}

	slog.Info("applying plan",
		"run", run,
		"create", len(plan.Create),
		"update", len(plan.Update),
		"resolve", len(plan.Resolve),
	)

	// Parent GIDs visible to child creates: pre-matched board items plus
	// parents created in this pass.
	parents := &parentTable{gids: make(map[string]string, len(plan.Known))}
	for title, gid := range plan.Known {
		parents.gids[title] = gid
	}

	roots, children := splitCreates(plan.Create)

	// Parents synchronously, before any fan-out.
	for _, t := range roots {
		gid := e.create(ctx, t, collector)
		if gid != "" {
			parents.set(canonicalTitle(t.Title), gid)
		}
	}

	pool := newTaskGroup(e.workers)
	for _, t := range children {
		t := t
		pool.Go(func() {
			if t.ParentTitle != "" {
				gid, ok := parents.get(canonicalTitle(t.ParentTitle))
				if !ok {
					collector.failure("create", t.Title, fmt.Errorf("parent %q was not created", t.ParentTitle))
					return
				}
				t.ParentID = gid
			}
			e.create(ctx, t, collector)
		})
	}
	for _, u := range plan.Update {
		u := u
		pool.Go(func() {
			e.update(ctx, u, collector)
		})
	}
	for _, gid := range plan.Resolve {
		gid := gid
		pool.Go(func() {
			if _, err := e.gateway.ResolveItem(ctx, gid); err != nil {
				collector.failure("resolve", gid, err)
				return
			}
			collector.success("resolve")
		})
	}
	pool.Join()

	report := collector.report
	slog.Info("plan applied",
		"run", run,
		"created", report.Created,
		"updated", report.Updated,
		"resolved", report.Resolved,
		"errors", len(report.Errors),
	)
	return report
}

func (e *Executor) create(ctx context.Context, t task.Canonical, collector *reportCollector) string {
	item, err := e.gateway.CreateItem(ctx, tracker.NewCreateRequest(t, e.project))
	if err != nil {
		collector.failure("create", t.Title, err)
		return ""
	}
	collector.success("create")
	e.placeInSection(ctx, item.GID, t.Section, collector)
	return item.GID
}

func (e *Executor) update(ctx context.Context, u Update, collector *reportCollector) {
	if _, err := e.gateway.UpdateItem(ctx, u.GID, tracker.NewUpdateRequest(u.Task)); err != nil {
		collector.failure("update", u.GID, err)
		return
	}
	collector.success("update")
	e.placeInSection(ctx, u.GID, u.Task.Section, collector)
}

// placeInSection keeps the task in its board bucket. Section placement
// failing does not undo the mutation - it is reported as its own error.
func (e *Executor) placeInSection(ctx context.Context, gid, section string, collector *reportCollector) {
	if section == "" {
		return
	}
	if err := e.gateway.AddToSection(ctx, gid, section, tracker.Placement{}); err != nil {
		collector.failure("section", gid, err)
	}
}

// splitCreates partitions creates into roots (no parent reference) and
// children. Roots include both standalone tasks and roll-up parents.
func splitCreates(creates []task.Canonical) (roots, children []task.Canonical) {
	for _, t := range creates {
		if t.ParentTitle == "" {
			roots = append(roots, t)
			continue
		}
		children = append(children, t)
	}
	return roots, children
}

// parentTable is the title-to-GID map shared between the synchronous
// parent phase and pooled child creates.
type parentTable struct {
	mu   sync.RWMutex
	gids map[string]string
}

func (p *parentTable) set(title, gid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gids[title] = gid
}

func (p *parentTable) get(title string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	gid, ok := p.gids[title]
	return gid, ok
}
