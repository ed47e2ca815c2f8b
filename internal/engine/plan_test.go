package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/testutil"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

func scenarioOptions(t *testing.T, s testutil.Scenario) Options {
	t.Helper()

	opts := Options{
		ResolveMissing: s.Options.ResolveMissing,
		StrictMatching: s.Options.StrictMatching,
	}
	switch s.Options.Suppression {
	case "", "completion":
		opts.Suppression = SuppressOnCompletion
	case "never":
		opts.Suppression = SuppressNever
	default:
		t.Fatalf("unknown suppression %q", s.Options.Suppression)
	}
	return opts
}

func TestPlanner_Scenarios(t *testing.T) {
	for _, scenario := range testutil.LoadScenarios(t, "testdata/planner.yaml") {
		t.Run(scenario.Name, func(t *testing.T) {
			planner := NewPlanner(nil, scenarioOptions(t, scenario))

			plan, err := planner.PlanTasks(scenario.CanonicalTasks(t), scenario.Items(t))
			require.NoError(t, err)

			var created []string
			for _, c := range plan.Create {
				created = append(created, c.Title)
			}
			var updated []string
			for _, u := range plan.Update {
				updated = append(updated, u.GID)
			}
			assert.ElementsMatch(t, scenario.Expect.Create, created, "create set")
			assert.ElementsMatch(t, scenario.Expect.Update, updated, "update set")
			assert.ElementsMatch(t, scenario.Expect.Resolve, plan.Resolve, "resolve set")
			assert.Equal(t,
				len(scenario.Expect.Create)+len(scenario.Expect.Update)+len(scenario.Expect.Resolve) == 0,
				plan.Empty(),
			)
		})
	}
}

// Applying a plan's decisions to the snapshot and re-planning must yield an
// empty plan: the convergence property behind scheduled re-runs.
func TestPlanner_Converges(t *testing.T) {
	due := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	tasks := []task.Canonical{
		{Title: "Upload: 1", Completed: true},
		{Title: "Upload: 2", DueAt: &due},
		{Title: "Upload: 3"},
	}
	existing := []tracker.Item{
		{GID: "g1", Name: "Upload: 1"},
		{GID: "g9", Name: "Upload: 9"},
	}

	planner := NewPlanner(nil, Options{ResolveMissing: true})
	plan, err := planner.PlanTasks(tasks, existing)
	require.NoError(t, err)
	require.False(t, plan.Empty())

	// Replay the plan onto the snapshot.
	next := make([]tracker.Item, 0, len(existing)+len(plan.Create))
	for _, item := range existing {
		for _, u := range plan.Update {
			if u.GID == item.GID {
				item.Completed = u.Task.Completed
			}
		}
		for _, gid := range plan.Resolve {
			if gid == item.GID {
				item.Completed = true
			}
		}
		next = append(next, item)
	}
	for i, c := range plan.Create {
		next = append(next, tracker.Item{
			GID:       "new-" + string(rune('a'+i)),
			Name:      c.Title,
			Completed: c.Completed,
			DueAt:     c.DueAt,
		})
	}

	replan, err := planner.PlanTasks(tasks, next)
	require.NoError(t, err)
	assert.True(t, replan.Empty(), "second pass must be a no-op")
}

func TestPlanner_DisjointSets(t *testing.T) {
	tasks := []task.Canonical{
		{Title: "Survey ID: 1", Completed: true},
		{Title: "Survey ID: 2"},
	}
	existing := []tracker.Item{
		{GID: "g1", Name: "Survey ID: 1"},
		{GID: "g2", Name: "Survey ID: 2"},
		{GID: "g3", Name: "Survey ID: 3"},
	}

	plan, err := NewPlanner(nil, Options{Suppression: SuppressNever, ResolveMissing: true}).
		PlanTasks(tasks, existing)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, u := range plan.Update {
		assert.False(t, seen[u.GID], "gid %s in two sets", u.GID)
		seen[u.GID] = true
	}
	for _, gid := range plan.Resolve {
		assert.False(t, seen[gid], "gid %s in two sets", gid)
		seen[gid] = true
	}
	for _, c := range plan.Create {
		_, matched := plan.Known[c.Title]
		assert.False(t, matched, "created task %q references an existing item", c.Title)
	}
}

func TestPlanner_NormalizationFailureSkipsRecord(t *testing.T) {
	normalizer := NormalizerFunc(func(rec source.Record) (task.Canonical, error) {
		title, err := rec.MustString("title")
		if err != nil {
			return task.Canonical{}, err
		}
		return task.Canonical{Title: title}, nil
	})

	records := []source.Record{
		{"title": "Upload: 1"},
		{}, // malformed: no title
		{"title": "Upload: 2"},
	}

	plan, err := NewPlanner(normalizer, Options{}).Plan(records, nil)
	require.NoError(t, err, "malformed record must not abort the batch")
	assert.Len(t, plan.Create, 2)
}

func TestPlanner_StrictMatchingSkipsAmbiguous(t *testing.T) {
	tasks := []task.Canonical{
		{Title: "Survey ID: 7"},
		{Title: "Survey ID: 8"},
	}
	existing := []tracker.Item{
		{GID: "g1", Name: "Survey ID: 7"},
		{GID: "g2", Name: "Survey ID: 7"},
	}

	plan, err := NewPlanner(nil, Options{Suppression: SuppressNever, StrictMatching: true}).
		PlanTasks(tasks, existing)
	require.NoError(t, err, "ambiguity is per-record, the pass continues")
	require.Len(t, plan.Create, 1)
	assert.Equal(t, "Survey ID: 8", plan.Create[0].Title)
	assert.Empty(t, plan.Update)
}

// A record skipped for ambiguity is still an active record: the duplicate
// items it matched stay out of the resolve set, only truly unreferenced
// items are completed.
func TestPlanner_AmbiguousMatchBlocksResolution(t *testing.T) {
	tasks := []task.Canonical{
		{Title: "Survey ID: 7"},
	}
	existing := []tracker.Item{
		{GID: "g1", Name: "Survey ID: 7"},
		{GID: "g2", Name: "Survey ID: 7"},
		{GID: "g3", Name: "Survey ID: 9"},
	}

	plan, err := NewPlanner(nil, Options{StrictMatching: true, ResolveMissing: true}).
		PlanTasks(tasks, existing)
	require.NoError(t, err)
	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Update)
	assert.Equal(t, []string{"g3"}, plan.Resolve)
}

func TestPlan_GoldenJSON(t *testing.T) {
	due := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	tasks := []task.Canonical{
		{
			Title: "Acme Farms (12) | DS: 7",
			DueAt: &due,
			Fields: map[string]any{
				"field-client": "Acme Farms (12)",
				"field-done":   int64(3),
			},
			Section: "sec-ds",
		},
		{Title: "Upload: 101", ParentTitle: "Acme Farms (12) | DS: 7", Section: "sec-uploads"},
		{Title: "Upload: 102", Completed: true, Section: "sec-uploads"},
	}
	existing := []tracker.Item{
		{GID: "g-102", Name: "Upload: 102"},
		{GID: "g-gone", Name: "Upload: 55"},
	}

	plan, err := NewPlanner(nil, Options{ResolveMissing: true}).PlanTasks(tasks, existing)
	require.NoError(t, err)

	encoded, err := json.MarshalIndent(plan, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "plan", append(encoded, '\n'))
}
