package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Peter-Willmott/asana-updater/internal/config"
	"github.com/Peter-Willmott/asana-updater/internal/engine"
	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// surveyProcessedStatus is the upstream status id marking a survey done.
const surveyProcessedStatus = 1

// ThermalUploads mirrors thermal uploads onto the thermal board: one task
// per upload in the uploads section, one child task per survey of that
// upload in the surveys section.
type ThermalUploads struct {
	deps *Deps
	cfg  config.ThermalUploadsJob
}

// NewThermalUploads creates the job.
func NewThermalUploads(deps *Deps) *ThermalUploads {
	return &ThermalUploads{deps: deps, cfg: deps.Config.ThermalUploads}
}

// Name implements Job.
func (j *ThermalUploads) Name() string { return "thermal-uploads" }

// Run executes one pass. Like the mapping board, thermal tasks complete
// through the completed flag and are never resolved away.
func (j *ThermalUploads) Run(ctx context.Context) (*Summary, error) {
	since := j.deps.clock().Now().Add(-uploadLookback)
	records, err := j.deps.Source.UnprocessedUploads(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("thermal uploads: %w", err)
	}

	var uploads, surveys []task.Canonical
	for _, rec := range records {
		if thermal, _ := rec.Bool("has_thermal_data"); !thermal {
			continue
		}
		parent, err := j.uploadTask(rec)
		if err != nil {
			if source.IsNormalization(err) {
				slog.Warn("skipping thermal upload", "error", err)
				continue
			}
			return nil, err
		}
		uploads = append(uploads, parent)

		children, err := j.surveyTasks(rec, parent.Title)
		if err != nil {
			if source.IsNormalization(err) {
				slog.Warn("skipping thermal upload surveys", "title", parent.Title, "error", err)
				continue
			}
			return nil, err
		}
		surveys = append(surveys, children...)
	}
	slog.Info("thermal uploads fetched", "uploads", len(uploads), "surveys", len(surveys))

	existingUploads, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{
		Project: j.cfg.Project,
		Section: j.cfg.Sections.Uploads,
	})
	if err != nil {
		return nil, fmt.Errorf("list thermal upload tasks: %w", err)
	}
	existingSurveys, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{
		Project: j.cfg.Project,
		Section: j.cfg.Sections.Surveys,
	})
	if err != nil {
		return nil, fmt.Errorf("list thermal survey tasks: %w", err)
	}

	planner := engine.NewPlanner(nil, j.deps.planOpts(false))
	uploadPlan, err := planner.PlanTasks(uploads, existingUploads)
	if err != nil {
		return nil, fmt.Errorf("plan thermal uploads: %w", err)
	}
	surveyPlan, err := planner.PlanTasks(surveys, existingSurveys)
	if err != nil {
		return nil, fmt.Errorf("plan thermal surveys: %w", err)
	}

	executor := engine.NewExecutor(j.deps.Gateway, j.cfg.Project,
		engine.WithWorkers(j.deps.workers()),
		engine.WithRunTokens(j.deps.tokens()),
	)
	report := executor.Apply(ctx, engine.Merge(uploadPlan, surveyPlan))
	return &Summary{Job: j.Name(), Reports: []*engine.Report{report}}, nil
}

// uploadTask normalizes one thermal upload into the uploads-section task.
func (j *ThermalUploads) uploadTask(rec source.Record) (task.Canonical, error) {
	id, err := rec.Int("id")
	if err != nil {
		return task.Canonical{}, err
	}
	if id == 0 {
		return task.Canonical{}, &source.NormalizationError{Field: "id", Cause: fmt.Errorf("required field missing")}
	}
	completed, err := rec.Bool("processed")
	if err != nil {
		return task.Canonical{}, err
	}
	dueAt, err := rec.Time("sla_datetime")
	if err != nil {
		return task.Canonical{}, err
	}

	fields, err := j.uploadFields(rec)
	if err != nil {
		return task.Canonical{}, err
	}

	notes, err := uploadDescription(rec)
	if err != nil {
		return task.Canonical{}, err
	}

	return task.Canonical{
		Title:     fmt.Sprintf("Upload: %d", id),
		Completed: completed,
		DueAt:     dueAt,
		Notes:     notes,
		Fields:    fields,
		Section:   j.cfg.Sections.Uploads,
	}, nil
}

// uploadFields builds the custom-field set shared by the upload task and
// its survey children.
func (j *ThermalUploads) uploadFields(rec source.Record) (map[string]any, error) {
	clientName, err := rec.String("client_name")
	if err != nil {
		return nil, err
	}
	clientID, err := rec.Int("client_id")
	if err != nil {
		return nil, err
	}
	uploadedFrom, err := rec.String("uploaded_from")
	if err != nil {
		return nil, err
	}
	hectares, err := rec.Float("hectares")
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		j.cfg.Fields.ClientID:   clientID,
		j.cfg.Fields.ClientName: clientName,
		j.cfg.Fields.Hectares:   hectares,
	}
	if uploadedFrom != "" {
		fields[j.cfg.Fields.UploadedFrom] = uploadedFrom
	}
	if rec.Has("mapping_drone_service_id") {
		serviceID, err := rec.Int("mapping_drone_service_id")
		if err != nil {
			return nil, err
		}
		fields[j.cfg.Fields.DroneService] = serviceID
	}
	return fields, nil
}

// surveyTasks normalizes the upload's surveys into surveys-section
// children of the upload task. A survey is done once its status reaches
// the processed id. Children inherit the upload's custom fields, with
// hectares narrowed to the survey's own coverage.
func (j *ThermalUploads) surveyTasks(rec source.Record, parentTitle string) ([]task.Canonical, error) {
	surveys, err := rec.Records("surveys")
	if err != nil {
		return nil, err
	}

	dueAt, err := rec.Time("sla_datetime")
	if err != nil {
		return nil, err
	}
	shared, err := j.uploadFields(rec)
	if err != nil {
		return nil, err
	}

	tasks := make([]task.Canonical, 0, len(surveys))
	for _, s := range surveys {
		id, err := s.Int("id")
		if err != nil {
			return nil, err
		}
		if id == 0 {
			return nil, &source.NormalizationError{Field: "surveys.id", Cause: fmt.Errorf("required field missing")}
		}
		status, err := s.Int("status_id")
		if err != nil {
			return nil, err
		}
		hectares, err := s.Float("hectares")
		if err != nil {
			return nil, err
		}

		fields := make(map[string]any, len(shared))
		for k, v := range shared {
			fields[k] = v
		}
		fields[j.cfg.Fields.Hectares] = hectares

		tasks = append(tasks, task.Canonical{
			Title:       fmt.Sprintf("Survey: %d", id),
			Completed:   status == surveyProcessedStatus,
			DueAt:       dueAt,
			Notes:       j.surveyNotes(id),
			Fields:      fields,
			ParentTitle: parentTitle,
			Section:     j.cfg.Sections.Surveys,
		})
	}
	return tasks, nil
}

// surveyNotes renders the survey child body: internal tool links for the
// survey's imagery and its processing heatmap.
func (j *ThermalUploads) surveyNotes(id int64) string {
	return fmt.Sprintf(
		"<b><a href=%q>Aeroview Link</a></b>\n\n<b><a href=%q>Heatmap Link</a></b>\n\n",
		fmt.Sprintf("%s/survey/%d/", j.cfg.ToolsURL, id),
		fmt.Sprintf("%s/human-intelligence/job-heatmap?survey_id=%d", j.cfg.ToolsURL, id),
	)
}
