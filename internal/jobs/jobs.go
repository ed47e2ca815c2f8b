// Package jobs assembles the sync jobs: each job is one reconciliation
// pass wiring a source provider, a per-job normalizer, and the shared
// engine against one board.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Peter-Willmott/asana-updater/internal/config"
	"github.com/Peter-Willmott/asana-updater/internal/engine"
	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// UploadSource is the slice of the internal gateway API the upload and
// survey jobs consume.
type UploadSource interface {
	UnprocessedUploads(ctx context.Context, since time.Time) ([]source.Record, error)
	SurveyIssues(ctx context.Context) ([]source.Record, error)
}

// ReviewSource is the slice of the Bitbucket API the PR job consumes.
type ReviewSource interface {
	ReviewRecords(ctx context.Context) ([]source.Record, error)
}

// Deps carries everything a job needs. Collaborators are passed in
// explicitly - there is no process-wide cached client - so tests inject a
// sandbox board and canned sources without global state.
type Deps struct {
	Config *config.Config

	// Gateway is the shared board gateway.
	Gateway tracker.Gateway

	// GatewayFor builds a gateway for a personal access key. Used by the
	// PR job, whose boards belong to individual reviewers. When nil, the
	// shared Gateway serves everyone.
	GatewayFor func(apiKey string) tracker.Gateway

	// AssigneeKey resolves the access key for a reviewer's board.
	// When nil, personal boards fall back to the shared gateway.
	AssigneeKey func(assigneeGID string) (string, error)

	Source    UploadSource
	Bitbucket ReviewSource

	Clock  task.Clock
	Tokens engine.RunTokenGenerator
}

func (d *Deps) clock() task.Clock {
	if d.Clock == nil {
		return task.SystemClock{}
	}
	return d.Clock
}

func (d *Deps) tokens() engine.RunTokenGenerator {
	if d.Tokens == nil {
		return engine.UUIDv7Generator{}
	}
	return d.Tokens
}

func (d *Deps) workers() int {
	if d.Config != nil && d.Config.Policy.Workers > 0 {
		return d.Config.Policy.Workers
	}
	return engine.DefaultWorkers
}

// suppression translates the policy switch into the engine mode.
func (d *Deps) suppression() engine.Suppression {
	if d.Config != nil && !d.Config.Policy.UpdateOnlyOnCompletion {
		return engine.SuppressNever
	}
	return engine.SuppressOnCompletion
}

func (d *Deps) planOpts(resolveMissing bool) engine.Options {
	return engine.Options{
		Suppression:    d.suppression(),
		ResolveMissing: resolveMissing,
		StrictMatching: d.Config != nil && d.Config.Policy.StrictMatching,
	}
}

// Job is one schedulable sync pass.
type Job interface {
	Name() string
	Run(ctx context.Context) (*Summary, error)
}

// Summary aggregates the apply reports of one job run (a job may apply
// several plans, one per board scope).
type Summary struct {
	Job     string
	Reports []*engine.Report
}

// Failed reports whether any applied mutation failed.
func (s *Summary) Failed() bool {
	for _, r := range s.Reports {
		if r.Failed() {
			return true
		}
	}
	return false
}

// Totals sums the mutation counters across reports.
func (s *Summary) Totals() (created, updated, resolved, failures int) {
	for _, r := range s.Reports {
		created += r.Created
		updated += r.Updated
		resolved += r.Resolved
		failures += len(r.Errors)
	}
	return
}

// All returns every job in its scheduled order.
func All(deps *Deps) []Job {
	return []Job{
		NewMappingUploads(deps),
		NewThermalUploads(deps),
		NewSurveyIssues(deps),
		NewBitbucketPRs(deps),
	}
}

// ByName returns the named job.
func ByName(deps *Deps, name string) (Job, error) {
	for _, j := range All(deps) {
		if j.Name() == name {
			return j, nil
		}
	}
	return nil, fmt.Errorf("unknown job %q", name)
}
