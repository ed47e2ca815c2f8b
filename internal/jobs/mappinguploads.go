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

// uploadLookback bounds the source fetch: uploads older than six months
// are nobody's board problem anymore.
const uploadLookback = 6 * 30 * 24 * time.Hour

// MappingUploads mirrors unprocessed (non-thermal) mapping uploads onto
// the mapping board. Drone-service uploads roll up into one parent task
// per service with a child task per upload; satellite and self-serviced
// uploads are flat tasks in their own sections.
type MappingUploads struct {
	deps *Deps
	cfg  config.MappingUploadsJob
}

// NewMappingUploads creates the job.
func NewMappingUploads(deps *Deps) *MappingUploads {
	return &MappingUploads{deps: deps, cfg: deps.Config.MappingUploads}
}

// Name implements Job.
func (j *MappingUploads) Name() string { return "mapping-uploads" }

// Run executes one pass. Upload tasks are never resolved: completion
// mirrors the processed flag through updates instead.
func (j *MappingUploads) Run(ctx context.Context) (*Summary, error) {
	since := j.deps.clock().Now().Add(-uploadLookback)
	records, err := j.deps.Source.UnprocessedUploads(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("mapping uploads: %w", err)
	}

	groups, satellite, selfServiced := partitionUploads(records)
	slog.Info("mapping uploads fetched",
		"drone_services", len(groups),
		"satellite", len(satellite),
		"self_serviced", len(selfServiced),
	)

	summary := &Summary{Job: j.Name()}

	report, err := j.syncDroneServices(ctx, groups)
	if err != nil {
		return nil, err
	}
	summary.Reports = append(summary.Reports, report)

	report, err = j.syncFlat(ctx, satellite, j.cfg.Sections.Satellite, "Satellite", "Serviced")
	if err != nil {
		return nil, err
	}
	summary.Reports = append(summary.Reports, report)

	report, err = j.syncFlat(ctx, selfServiced, j.cfg.Sections.SelfServiced, "Drone", "Self-Serviced")
	if err != nil {
		return nil, err
	}
	summary.Reports = append(summary.Reports, report)

	return summary, nil
}

// syncDroneServices plans roll-up parents against the drone-service
// section and their children against the uploads section, then applies
// both as one batch so parents exist before children reference them.
func (j *MappingUploads) syncDroneServices(ctx context.Context, groups [][]source.Record) (*engine.Report, error) {
	existingParents, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{
		Project: j.cfg.Project,
		Section: j.cfg.Sections.DroneService,
	})
	if err != nil {
		return nil, fmt.Errorf("list drone-service tasks: %w", err)
	}
	existingChildren, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{
		Project: j.cfg.Project,
		Section: j.cfg.Sections.DroneServiceUploads,
	})
	if err != nil {
		return nil, fmt.Errorf("list drone-service upload tasks: %w", err)
	}

	var parents, children []task.Canonical
	for _, group := range groups {
		parent, err := j.rollupTask(group)
		if err != nil {
			if source.IsNormalization(err) {
				slog.Warn("skipping drone service group", "error", err)
				continue
			}
			return nil, err
		}
		parents = append(parents, parent)

		for _, rec := range group {
			child, err := j.uploadTask(rec, childUpload)
			if err != nil {
				if source.IsNormalization(err) {
					slog.Warn("skipping upload", "error", err)
					continue
				}
				return nil, err
			}
			child.ParentTitle = parent.Title
			child.Section = j.cfg.Sections.DroneServiceUploads
			children = append(children, child)
		}
	}
	task.SortByDueAt(children)

	planner := engine.NewPlanner(nil, j.deps.planOpts(false))
	parentPlan, err := planner.PlanTasks(parents, existingParents)
	if err != nil {
		return nil, fmt.Errorf("plan drone services: %w", err)
	}
	childPlan, err := planner.PlanTasks(children, existingChildren)
	if err != nil {
		return nil, fmt.Errorf("plan drone-service uploads: %w", err)
	}

	executor := engine.NewExecutor(j.deps.Gateway, j.cfg.Project,
		engine.WithWorkers(j.deps.workers()),
		engine.WithRunTokens(j.deps.tokens()),
	)
	return executor.Apply(ctx, engine.Merge(parentPlan, childPlan)), nil
}

// syncFlat mirrors a partition of uploads as standalone tasks in one
// section.
func (j *MappingUploads) syncFlat(ctx context.Context, records []source.Record, section, imageType, serviceType string) (*engine.Report, error) {
	existing, err := j.deps.Gateway.ListItems(ctx, tracker.Scope{
		Project: j.cfg.Project,
		Section: section,
	})
	if err != nil {
		return nil, fmt.Errorf("list section %s: %w", section, err)
	}

	normalizer := engine.NormalizerFunc(func(rec source.Record) (task.Canonical, error) {
		t, err := j.uploadTask(rec, flatUpload)
		if err != nil {
			return task.Canonical{}, err
		}
		t.Section = section
		j.setEnum(t.Fields, "image_type", j.cfg.Fields.ImageType, imageType)
		j.setEnum(t.Fields, "service_type", j.cfg.Fields.ServiceType, serviceType)
		return t, nil
	})

	plan, err := engine.NewPlanner(normalizer, j.deps.planOpts(false)).Plan(records, existing)
	if err != nil {
		return nil, fmt.Errorf("plan section %s: %w", section, err)
	}

	executor := engine.NewExecutor(j.deps.Gateway, j.cfg.Project,
		engine.WithWorkers(j.deps.workers()),
		engine.WithRunTokens(j.deps.tokens()),
	)
	return executor.Apply(ctx, plan), nil
}

// uploadTitleStyle selects between the flat and child title rules.
type uploadTitleStyle int

const (
	// flatUpload titles carry the client for board readability.
	flatUpload uploadTitleStyle = iota
	// childUpload titles carry only the stable id; the client lives on
	// the roll-up parent.
	childUpload
)

// uploadTask normalizes one upload record. Shared by the flat sections
// and the drone-service children; the caller fills Section, ParentTitle,
// and the image/service enums that depend on the partition.
func (j *MappingUploads) uploadTask(rec source.Record, style uploadTitleStyle) (task.Canonical, error) {
	id, err := rec.Int("id")
	if err != nil {
		return task.Canonical{}, err
	}
	if id == 0 {
		return task.Canonical{}, &source.NormalizationError{Field: "id", Cause: fmt.Errorf("required field missing")}
	}
	clientName, err := rec.String("client_name")
	if err != nil {
		return task.Canonical{}, err
	}
	completed, err := rec.Bool("processed")
	if err != nil {
		return task.Canonical{}, err
	}
	dueAt, err := rec.Time("sla_datetime")
	if err != nil {
		return task.Canonical{}, err
	}

	title := fmt.Sprintf("Upload: %d", id)
	if style == flatUpload {
		title = fmt.Sprintf("%s | Upload: %d", clientName, id)
	}

	fields, err := j.uploadFields(rec)
	if err != nil {
		return task.Canonical{}, err
	}
	j.slaOnTrack(fields, dueAt)

	notes, err := uploadDescription(rec)
	if err != nil {
		return task.Canonical{}, err
	}

	return task.Canonical{
		Title:     title,
		Completed: completed,
		DueAt:     dueAt,
		Notes:     notes,
		Fields:    fields,
	}, nil
}

// rollupTask builds the aggregate parent for one drone-service group.
// Numeric fields sum over members; the due date is the earliest dated
// member SLA; the farm label joins distinct names when the group spans
// farms.
func (j *MappingUploads) rollupTask(group []source.Record) (task.Canonical, error) {
	first := group[0]

	serviceID, err := first.Int("mapping_drone_service_id")
	if err != nil {
		return task.Canonical{}, err
	}
	clientName, err := first.String("client_name")
	if err != nil {
		return task.Canonical{}, err
	}
	clientID, err := first.Int("client_id")
	if err != nil {
		return task.Canonical{}, err
	}
	completed, err := first.Bool("processed")
	if err != nil {
		return task.Canonical{}, err
	}

	var (
		dues            []*time.Time
		sumDone, sumAll int64
	)
	for _, rec := range group {
		due, err := rec.Time("sla_datetime")
		if err != nil {
			return task.Canonical{}, err
		}
		dues = append(dues, due)

		done, err := rec.Int("count_surveys_processed")
		if err != nil {
			return task.Canonical{}, err
		}
		all, err := rec.Int("count_orchards")
		if err != nil {
			return task.Canonical{}, err
		}
		sumDone += done
		sumAll += all
	}
	dueAt := task.EarliestDueAt(dues)

	fields := map[string]any{
		j.cfg.Fields.Client:          fmt.Sprintf("%s (%d)", clientName, clientID),
		j.cfg.Fields.Farm:            farmLabel(group),
		j.cfg.Fields.BlocksCompleted: sumDone,
		j.cfg.Fields.BlocksUploaded:  sumAll,
		j.cfg.Fields.DroneService:    serviceID,
	}
	j.setEnum(fields, "image_type", j.cfg.Fields.ImageType, "Drone")
	j.setEnum(fields, "service_type", j.cfg.Fields.ServiceType, "Serviced")
	if pct, ok := task.Ratio(sumDone, sumAll); ok {
		fields[j.cfg.Fields.PercentageComplete] = pct
	}
	j.slaOnTrack(fields, dueAt)

	return task.Canonical{
		Title:     fmt.Sprintf("%s | DS: %d", clientName, serviceID),
		Completed: completed,
		DueAt:     dueAt,
		Fields:    fields,
		Section:   j.cfg.Sections.DroneService,
	}, nil
}

// uploadFields builds the per-upload custom fields shared by every
// partition.
func (j *MappingUploads) uploadFields(rec source.Record) (map[string]any, error) {
	clientName, err := rec.String("client_name")
	if err != nil {
		return nil, err
	}
	clientID, err := rec.Int("client_id")
	if err != nil {
		return nil, err
	}
	farmName, err := rec.String("farm_name")
	if err != nil {
		return nil, err
	}
	farmID, err := rec.Int("farm_id")
	if err != nil {
		return nil, err
	}
	done, err := rec.Int("count_surveys_processed")
	if err != nil {
		return nil, err
	}
	all, err := rec.Int("count_orchards")
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		j.cfg.Fields.Client:          fmt.Sprintf("%s (%d)", clientName, clientID),
		j.cfg.Fields.Farm:            fmt.Sprintf("%s (%d)", farmName, farmID),
		j.cfg.Fields.BlocksCompleted: done,
		j.cfg.Fields.BlocksUploaded:  all,
	}
	if rec.Has("mapping_drone_service_id") {
		serviceID, err := rec.Int("mapping_drone_service_id")
		if err != nil {
			return nil, err
		}
		fields[j.cfg.Fields.DroneService] = serviceID
	}
	if pct, ok := task.Ratio(done, all); ok {
		fields[j.cfg.Fields.PercentageComplete] = pct
	}
	return fields, nil
}

// slaOnTrack sets the SLA enum from the deadline's relation to now.
// No deadline, no field.
func (j *MappingUploads) slaOnTrack(fields map[string]any, dueAt *time.Time) {
	if dueAt == nil {
		return
	}
	onTrack := dueAt.After(j.deps.clock().Now())
	gid, err := j.cfg.Enums.MapBool("sla_on_track", onTrack)
	if err != nil {
		slog.Warn("omitting field", "error", err)
		return
	}
	fields[j.cfg.Fields.SLAOnTrack] = gid
}

// setEnum resolves a domain enum value and sets it, omitting the field
// when the tracker has no mapping (schemas drift independently).
func (j *MappingUploads) setEnum(fields map[string]any, enumName, fieldGID, value string) {
	gid, err := j.cfg.Enums.Map(enumName, value)
	if err != nil {
		slog.Warn("omitting field", "error", err)
		return
	}
	fields[fieldGID] = gid
}

// uploadDescription renders the task body. Lines for absent optional
// fields are dropped, not rendered empty; the percentage line is dropped
// on a zero denominator.
func uploadDescription(rec source.Record) (string, error) {
	var b strings.Builder

	writeLine := func(label, value string) {
		fmt.Fprintf(&b, "<b>%s: %s</b>\n\n", label, value)
	}

	farmName, err := rec.String("farm_name")
	if err != nil {
		return "", err
	}
	farmID, err := rec.Int("farm_id")
	if err != nil {
		return "", err
	}
	if farmName != "" {
		writeLine("Farm", fmt.Sprintf("%s (%d)", farmName, farmID))
	}

	clientName, err := rec.String("client_name")
	if err != nil {
		return "", err
	}
	clientID, err := rec.Int("client_id")
	if err != nil {
		return "", err
	}
	if clientName != "" {
		writeLine("Client", fmt.Sprintf("%s (%d)", clientName, clientID))
	}

	if rec.Has("mapping_drone_service_id") {
		serviceID, err := rec.Int("mapping_drone_service_id")
		if err != nil {
			return "", err
		}
		writeLine("Mapping Drone Service ID", fmt.Sprintf("%d", serviceID))
	}

	counts := []struct {
		label string
		field string
	}{
		{"Blocks Uploaded", "count_orchards"},
		{"Blocks Completed", "count_surveys_processed"},
		{"Blocks In-Progress", "count_surveys_in_progress"},
		{"Blocks Voided", "count_surveys_voided"},
	}
	for _, c := range counts {
		if !rec.Has(c.field) {
			continue
		}
		n, err := rec.Int(c.field)
		if err != nil {
			return "", err
		}
		writeLine(c.label, fmt.Sprintf("%d", n))
	}

	done, err := rec.Int("count_surveys_processed")
	if err != nil {
		return "", err
	}
	all, err := rec.Int("count_orchards")
	if err != nil {
		return "", err
	}
	if pct, ok := task.Ratio(done, all); ok {
		writeLine("Percentage Completed", fmt.Sprintf("%.1f %%", pct*100))
	}

	return b.String(), nil
}

// farmLabel names the group's farm(s): "{name} ({id})" for a single
// member, the joined distinct names for a multi-farm group.
func farmLabel(group []source.Record) string {
	if len(group) == 1 {
		name, _ := group[0].String("farm_name")
		id, _ := group[0].Int("farm_id")
		return fmt.Sprintf("%s (%d)", name, id)
	}

	seen := make(map[string]bool)
	var names []string
	for _, rec := range group {
		name, _ := rec.String("farm_name")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// partitionUploads splits the fetch into drone-service groups (ordered by
// service id, members in id order), satellite uploads, and self-serviced
// uploads. Thermal uploads are excluded - they have their own board.
func partitionUploads(records []source.Record) (groups [][]source.Record, satellite, selfServiced []source.Record) {
	byService := make(map[int64][]source.Record)
	var serviceIDs []int64

	for _, rec := range records {
		if thermal, _ := rec.Bool("has_thermal_data"); thermal {
			continue
		}
		switch {
		case rec.Has("mapping_drone_service_id"):
			id, err := rec.Int("mapping_drone_service_id")
			if err != nil {
				slog.Warn("skipping upload", "error", err)
				continue
			}
			if _, ok := byService[id]; !ok {
				serviceIDs = append(serviceIDs, id)
			}
			byService[id] = append(byService[id], rec)
		case rec.Has("satellite_task_id"):
			satellite = append(satellite, rec)
		default:
			selfServiced = append(selfServiced, rec)
		}
	}

	sort.Slice(serviceIDs, func(i, j int) bool { return serviceIDs[i] < serviceIDs[j] })
	for _, id := range serviceIDs {
		groups = append(groups, byService[id])
	}
	return groups, satellite, selfServiced
}
