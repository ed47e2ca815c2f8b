package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Peter-Willmott/asana-updater/internal/config"
	"github.com/Peter-Willmott/asana-updater/internal/engine"
	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// Issue classification thresholds. A job is stuck when it has been running
// past runningThreshold; an error or end only counts once it is older than
// staleThreshold, giving the pipeline a chance to pick the survey up again.
const (
	runningThreshold = 7 * time.Hour
	staleThreshold   = 12 * time.Minute
)

// Issue type enum values, in classification order. Later classifications
// override earlier ones when several apply.
const (
	issueRunningLong = ">7hours"
	issueJobError    = "error"
	issueJobEnded    = "end"
	issueSLABreach   = "slabreach"
)

// SurveyIssues flags in-progress surveys whose latest processing job looks
// stuck, errored, or silently finished. Healthy surveys get no task, and
// tasks no longer backed by a current issue are resolved.
type SurveyIssues struct {
	deps *Deps
	cfg  config.SurveyIssuesJob
}

// NewSurveyIssues creates the job.
func NewSurveyIssues(deps *Deps) *SurveyIssues {
	return &SurveyIssues{deps: deps, cfg: deps.Config.SurveyIssues}
}

// Name implements Job.
func (j *SurveyIssues) Name() string { return "survey-issues" }

// Run executes one pass.
func (j *SurveyIssues) Run(ctx context.Context) (*Summary, error) {
	records, err := j.deps.Source.SurveyIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("survey issues: %w", err)
	}

	stages, err := j.stageOptions(ctx)
	if err != nil {
		return nil, err
	}

	var issues []task.Canonical
	for _, rec := range records {
		t, ok, err := j.issueTask(rec, stages)
		if err != nil {
			if source.IsNormalization(err) {
				slog.Warn("skipping survey", "error", err)
				continue
			}
			return nil, err
		}
		if !ok {
			continue
		}
		issues = append(issues, t)
	}
	slog.Info("survey issues classified", "surveys", len(records), "issues", len(issues))

	existing, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{Project: j.cfg.Project})
	if err != nil {
		return nil, fmt.Errorf("list survey issue tasks: %w", err)
	}

	// Issue details (stage, SLA state) move while the task stays open, so
	// completion-based suppression would freeze them. Updates always go out.
	opts := j.deps.planOpts(true)
	opts.Suppression = engine.SuppressNever

	plan, err := engine.NewPlanner(nil, opts).PlanTasks(issues, existing)
	if err != nil {
		return nil, fmt.Errorf("plan survey issues: %w", err)
	}

	executor := engine.NewExecutor(j.deps.Gateway, j.cfg.Project,
		engine.WithWorkers(j.deps.workers()),
		engine.WithRunTokens(j.deps.tokens()),
	)
	report := executor.Apply(ctx, plan)
	return &Summary{Job: j.Name(), Reports: []*engine.Report{report}}, nil
}

// issueTask classifies one survey. ok is false for healthy surveys.
func (j *SurveyIssues) issueTask(rec source.Record, stages []tracker.EnumOption) (task.Canonical, bool, error) {
	id, err := rec.Int("survey_id")
	if err != nil {
		return task.Canonical{}, false, err
	}
	if id == 0 {
		return task.Canonical{}, false, &source.NormalizationError{Field: "survey_id", Cause: fmt.Errorf("required field missing")}
	}

	started, err := rec.Time("time_started")
	if err != nil {
		return task.Canonical{}, false, err
	}
	errored, err := rec.Time("time_errored")
	if err != nil {
		return task.Canonical{}, false, err
	}
	ended, err := rec.Time("time_ended")
	if err != nil {
		return task.Canonical{}, false, err
	}
	slaAt, err := rec.Time("sla_datetime")
	if err != nil {
		return task.Canonical{}, false, err
	}

	now := j.deps.clock().Now()
	issueType, ok := j.classify(now, started, errored, ended, slaAt)
	if !ok {
		return task.Canonical{}, false, nil
	}

	clientName, err := rec.String("client_name")
	if err != nil {
		return task.Canonical{}, false, err
	}
	clientID, err := rec.Int("client_id")
	if err != nil {
		return task.Canonical{}, false, err
	}
	typeID, err := rec.Int("latest_job_type_id")
	if err != nil {
		return task.Canonical{}, false, err
	}

	fields := map[string]any{
		j.cfg.Fields.Client: fmt.Sprintf("%s (%d)", clientName, clientID),
	}
	if gid, err := j.cfg.Enums.Map("issue_type", issueType); err != nil {
		slog.Warn("omitting field", "error", err)
	} else {
		fields[j.cfg.Fields.IssueType] = gid
	}
	if slaAt != nil {
		if gid, err := j.cfg.Enums.MapBool("sla_on_track", slaAt.After(now)); err != nil {
			slog.Warn("omitting field", "error", err)
		} else {
			fields[j.cfg.Fields.SLAOnTrack] = gid
		}
	}
	if gid, ok := stageOption(stages, typeID); ok {
		fields[j.cfg.Fields.CurrentStage] = gid
	} else if typeID != 0 {
		slog.Warn("no current-stage option for job type", "type_id", typeID)
	}

	return task.Canonical{
		Title:  fmt.Sprintf("Survey ID: %d", id),
		DueAt:  slaAt,
		Notes:  surveyDescription(rec, issueType, started, errored, ended),
		Fields: fields,
	}, true, nil
}

// classify applies the issue rules in order; the last matching rule wins.
// A long-running start flags on elapsed time alone, then a stale error or
// end overrides it.
func (j *SurveyIssues) classify(now time.Time, started, errored, ended, slaAt *time.Time) (string, bool) {
	issueType := ""
	if started != nil && now.Sub(*started) > runningThreshold {
		issueType = issueRunningLong
	}
	if errored != nil && now.Sub(*errored) > staleThreshold {
		issueType = issueJobError
	}
	if ended != nil && now.Sub(*ended) > staleThreshold {
		issueType = issueJobEnded
	}
	if j.cfg.ClassifySLABreach && slaAt != nil && now.After(*slaAt) {
		issueType = issueSLABreach
	}
	return issueType, issueType != ""
}

// stageOptions returns the current-stage enum options of the board.
// Boards manage their own option sets, so the lookup is discovered per run
// rather than configured.
func (j *SurveyIssues) stageOptions(ctx context.Context) ([]tracker.EnumOption, error) {
	project, err := j.deps.Gateway.GetProject(ctx, j.cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("fetch survey project: %w", err)
	}
	var options []tracker.EnumOption
	for _, setting := range project.CustomFieldSettings {
		if setting.FieldGID != j.cfg.Fields.CurrentStage {
			continue
		}
		options = append(options, setting.EnumOptions...)
	}
	return options, nil
}

// stageOption resolves the option for a pipeline job type id. Option names
// on the board embed the numeric type id ("Tiling (4)"), so the match is
// by substring, first option wins.
func stageOption(options []tracker.EnumOption, typeID int64) (string, bool) {
	want := strconv.FormatInt(typeID, 10)
	for _, opt := range options {
		if strings.Contains(opt.Name, want) {
			return opt.GID, true
		}
	}
	return "", false
}

// surveyDescription renders the task body: where the survey lives and the
// job timeline that triggered the issue. Lines the record cannot supply
// are dropped.
func surveyDescription(rec source.Record, issueType string, started, errored, ended *time.Time) string {
	var b strings.Builder

	writeLine := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s\n\n", label, value)
	}

	if url, _ := rec.String("aeroview_url"); url != "" {
		writeLine("Link", fmt.Sprintf("<a href=%q>Aeroview</a>", url))
	}
	if farmName, _ := rec.String("farm_name"); farmName != "" {
		if farmID, err := rec.Int("farm_id"); err == nil && farmID != 0 {
			writeLine("Farm", fmt.Sprintf("%s (%d)", farmName, farmID))
		} else {
			writeLine("Farm", farmName)
		}
	}
	if clientName, _ := rec.String("client_name"); clientName != "" {
		clientID, _ := rec.Int("client_id")
		writeLine("Client", fmt.Sprintf("%s (%d)", clientName, clientID))
	}
	if orchardID, err := rec.Int("orchard_id"); err == nil && orchardID != 0 {
		if hectares, err := rec.Float("hectares"); err == nil && hectares > 0 {
			writeLine("Orchard", fmt.Sprintf("%d (%.2f ha)", orchardID, hectares))
		} else {
			writeLine("Orchard", strconv.FormatInt(orchardID, 10))
		}
	}
	if jobType, _ := rec.String("internal_job_type"); jobType != "" {
		writeLine("Latest Job", jobType)
	}
	writeLine("Issue", issueType)
	writeLine("Job Started", task.FormatOptional(started))
	writeLine("Job Errored", task.FormatOptional(errored))
	writeLine("Job Ended", task.FormatOptional(ended))

	return b.String()
}
