package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Peter-Willmott/asana-updater/internal/config"
	"github.com/Peter-Willmott/asana-updater/internal/engine"
	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// BitbucketPRs maintains one review board per configured reviewer: a task
// per open pull request awaiting their approval. Approving (or closing)
// the PR resolves the task on the next pass.
type BitbucketPRs struct {
	deps *Deps
	cfg  config.BitbucketPRsJob
}

// NewBitbucketPRs creates the job.
func NewBitbucketPRs(deps *Deps) *BitbucketPRs {
	return &BitbucketPRs{deps: deps, cfg: deps.Config.BitbucketPRs}
}

// Name implements Job.
func (j *BitbucketPRs) Name() string { return "bitbucket-prs" }

// Run executes one pass. The review feed is fetched once; reviewers are
// processed independently, each against their own board with their own
// credentials, so one reviewer's bad key does not block the rest.
func (j *BitbucketPRs) Run(ctx context.Context) (*Summary, error) {
	if j.deps.Bitbucket == nil {
		return nil, fmt.Errorf("bitbucket prs: no review source configured")
	}
	records, err := j.deps.Bitbucket.ReviewRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("bitbucket prs: %w", err)
	}

	byReviewer := make(map[string][]source.Record)
	for _, rec := range records {
		name, err := rec.String("reviewer")
		if err != nil || name == "" {
			slog.Warn("skipping review record without reviewer", "error", err)
			continue
		}
		byReviewer[name] = append(byReviewer[name], rec)
	}

	names := make([]string, 0, len(j.cfg.Reviewers))
	for name := range j.cfg.Reviewers {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := &Summary{Job: j.Name()}
	for _, name := range names {
		reviewer := j.cfg.Reviewers[name]
		report, err := j.syncReviewer(ctx, name, reviewer, byReviewer[name])
		if err != nil {
			slog.Error("reviewer board sync failed", "reviewer", name, "error", err)
			continue
		}
		summary.Reports = append(summary.Reports, report)
	}
	return summary, nil
}

// syncReviewer reconciles one reviewer's board against their pending
// reviews.
func (j *BitbucketPRs) syncReviewer(ctx context.Context, name string, reviewer config.Reviewer, records []source.Record) (*engine.Report, error) {
	gateway, err := j.gatewayFor(reviewer)
	if err != nil {
		return nil, err
	}

	existing, err := gateway.ListItems(ctx, tracker.Scope{Project: reviewer.Project})
	if err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}

	dueAt := j.deps.clock().Now()
	normalizer := engine.NormalizerFunc(func(rec source.Record) (task.Canonical, error) {
		return reviewTask(rec, reviewer.Assignee, dueAt)
	})

	// PR tasks exist only while approval is pending, so unapproved PRs
	// are the whole source set; tasks for approved or disappeared PRs
	// fall out as resolves.
	pending := records[:0:0]
	for _, rec := range records {
		approved, err := rec.Bool("approved")
		if err != nil {
			slog.Warn("skipping review record", "reviewer", name, "error", err)
			continue
		}
		if !approved {
			pending = append(pending, rec)
		}
	}

	plan, err := engine.NewPlanner(normalizer, j.deps.planOpts(true)).Plan(pending, existing)
	if err != nil {
		return nil, fmt.Errorf("plan review board: %w", err)
	}

	executor := engine.NewExecutor(gateway, reviewer.Project,
		engine.WithWorkers(j.deps.workers()),
		engine.WithRunTokens(j.deps.tokens()),
	)
	return executor.Apply(ctx, plan), nil
}

// gatewayFor resolves the board gateway for a reviewer. Personal boards
// live under personal access keys; without a key resolver the shared
// gateway serves everyone.
func (j *BitbucketPRs) gatewayFor(reviewer config.Reviewer) (tracker.Gateway, error) {
	if j.deps.AssigneeKey == nil || j.deps.GatewayFor == nil {
		return j.deps.Gateway, nil
	}
	key, err := j.deps.AssigneeKey(reviewer.Assignee)
	if err != nil {
		return nil, fmt.Errorf("resolve board key: %w", err)
	}
	return j.deps.GatewayFor(key), nil
}

// reviewTask normalizes one pending review into a board task. The PR
// title is the correlation key; the link and description live in the
// notes.
func reviewTask(rec source.Record, assignee string, dueAt time.Time) (task.Canonical, error) {
	title, err := rec.MustString("title")
	if err != nil {
		return task.Canonical{}, err
	}
	link, err := rec.String("link")
	if err != nil {
		return task.Canonical{}, err
	}
	description, err := rec.String("description")
	if err != nil {
		return task.Canonical{}, err
	}

	var b strings.Builder
	if link != "" {
		fmt.Fprintf(&b, "<b>Pull Request: <a href=%q>%s</a></b>\n\n", link, link)
	}
	if description != "" {
		b.WriteString(description)
	}

	return task.Canonical{
		Title:    title,
		DueAt:    &dueAt,
		Notes:    b.String(),
		Assignee: assignee,
	}, nil
}
