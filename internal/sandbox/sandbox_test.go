package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Peter-Willmott/asana-updater/internal/engine"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

func openBoard(t *testing.T) *Board {
	t.Helper()

	board, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = board.Close() })
	return board
}

func TestBoard_CreateListRoundTrip(t *testing.T) {
	board := openBoard(t)
	ctx := context.Background()
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	created, err := board.CreateItem(ctx, tracker.CreateRequest{
		Name:         "Upload: 1",
		DueAt:        task.FormatTimestamp(due),
		CustomFields: map[string]any{"f1": "v1"},
		Projects:     []string{"p1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.GID)

	items, err := board.ListItems(ctx, tracker.Scope{Project: "p1"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, created.GID, got.GID)
	assert.Equal(t, "Upload: 1", got.Name)
	assert.False(t, got.Completed)
	require.NotNil(t, got.DueAt)
	assert.Equal(t, due, *got.DueAt)
	assert.Equal(t, map[string]any{"f1": "v1"}, got.Fields)
}

func TestBoard_SectionScoping(t *testing.T) {
	board := openBoard(t)
	ctx := context.Background()

	a, err := board.CreateItem(ctx, tracker.CreateRequest{Name: "A", Projects: []string{"p1"}})
	require.NoError(t, err)
	b, err := board.CreateItem(ctx, tracker.CreateRequest{Name: "B", Projects: []string{"p1"}})
	require.NoError(t, err)

	require.NoError(t, board.AddToSection(ctx, a.GID, "sec-1", tracker.Placement{}))
	require.NoError(t, board.AddToSection(ctx, b.GID, "sec-2", tracker.Placement{}))

	items, err := board.ListItems(ctx, tracker.Scope{Project: "p1", Section: "sec-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Name)
}

func TestBoard_UpdateAndResolve(t *testing.T) {
	board := openBoard(t)
	ctx := context.Background()

	created, err := board.CreateItem(ctx, tracker.CreateRequest{Name: "Upload: 1", Projects: []string{"p1"}})
	require.NoError(t, err)

	updated, err := board.UpdateItem(ctx, created.GID, tracker.UpdateRequest{Name: "Upload: 1", Completed: true})
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	resolved, err := board.ResolveItem(ctx, created.GID)
	require.NoError(t, err)
	assert.True(t, resolved.Completed)

	_, err = board.UpdateItem(ctx, "sandbox-999999", tracker.UpdateRequest{Name: "x"})
	assert.Error(t, err, "unknown gid must error")
}

func TestBoard_SeedProject(t *testing.T) {
	board := openBoard(t)
	ctx := context.Background()

	seeded := tracker.Project{
		GID:  "p1",
		Name: "Survey Issues",
		CustomFieldSettings: []tracker.CustomFieldSetting{
			{
				FieldGID:  "f-stage",
				FieldName: "Current Stage",
				EnumOptions: []tracker.EnumOption{
					{GID: "opt-1", Name: "tiling"},
					{GID: "opt-2", Name: "stitching"},
				},
			},
		},
	}
	require.NoError(t, board.SeedProject(ctx, seeded))

	got, err := board.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, seeded, got)

	unknown, err := board.GetProject(ctx, "p-unknown")
	require.NoError(t, err, "unknown project is empty, not an error")
	assert.Empty(t, unknown.CustomFieldSettings)
}

// Full engine pass against the sandbox: apply a plan, re-list, re-plan.
// The second plan must be empty under the default suppression policy.
func TestBoard_EngineConvergence(t *testing.T) {
	board := openBoard(t)
	ctx := context.Background()

	// Pre-existing board state: one stale open task, one matching task.
	_, err := board.CreateItem(ctx, tracker.CreateRequest{Name: "Survey ID: 9", Projects: []string{"p1"}})
	require.NoError(t, err)
	_, err = board.CreateItem(ctx, tracker.CreateRequest{Name: "Survey ID: 1", Projects: []string{"p1"}})
	require.NoError(t, err)

	tasks := []task.Canonical{
		{Title: "Survey ID: 1"},
		{Title: "Survey ID: 2"},
	}

	planner := engine.NewPlanner(nil, engine.Options{ResolveMissing: true})

	items, err := board.ListItems(ctx, tracker.Scope{Project: "p1"})
	require.NoError(t, err)
	plan, err := planner.PlanTasks(tasks, items)
	require.NoError(t, err)
	require.False(t, plan.Empty())

	report := engine.NewExecutor(board, "p1", engine.WithWorkers(2)).Apply(ctx, plan)
	require.False(t, report.Failed(), "errors: %v", report.Errors)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Resolved)

	items, err = board.ListItems(ctx, tracker.Scope{Project: "p1"})
	require.NoError(t, err)
	replan, err := planner.PlanTasks(tasks, items)
	require.NoError(t, err)
	assert.True(t, replan.Empty(), "second pass must be a no-op")
}
