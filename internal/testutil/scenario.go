// Package testutil holds deterministic helpers and the YAML scenario
// loader shared by the planner and job tests.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// Scenario is one planner table case: canonical tasks reconciled against a
// board snapshot, with the expected plan by title/GID.
type Scenario struct {
	Name     string         `yaml:"name"`
	Options  ScenarioOpts   `yaml:"options"`
	Tasks    []ScenarioTask `yaml:"tasks"`
	Existing []ScenarioItem `yaml:"existing"`
	Expect   ScenarioExpect `yaml:"expect"`
}

// ScenarioOpts mirrors engine.Options in fixture-friendly form.
type ScenarioOpts struct {
	// Suppression is "completion" (default) or "never".
	Suppression    string `yaml:"suppression"`
	ResolveMissing bool   `yaml:"resolve_missing"`
	StrictMatching bool   `yaml:"strict_matching"`
}

// ScenarioTask is a canonical task in fixture form.
type ScenarioTask struct {
	Title       string `yaml:"title"`
	Completed   bool   `yaml:"completed"`
	DueAt       string `yaml:"due_at"`
	ParentTitle string `yaml:"parent_title"`
	Section     string `yaml:"section"`
}

// ScenarioItem is a board item in fixture form.
type ScenarioItem struct {
	GID       string `yaml:"gid"`
	Name      string `yaml:"name"`
	Completed bool   `yaml:"completed"`
	DueAt     string `yaml:"due_at"`
}

// ScenarioExpect names the expected plan: created titles, updated and
// resolved GIDs.
type ScenarioExpect struct {
	Create  []string `yaml:"create"`
	Update  []string `yaml:"update"`
	Resolve []string `yaml:"resolve"`
}

// LoadScenarios parses a YAML fixture holding a list of scenarios.
func LoadScenarios(t *testing.T, path string) []Scenario {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err, "read scenario fixture")

	var scenarios []Scenario
	require.NoError(t, yaml.Unmarshal(raw, &scenarios), "parse scenario fixture")
	require.NotEmpty(t, scenarios, "fixture %s holds no scenarios", path)
	return scenarios
}

// CanonicalTasks converts the fixture tasks.
func (s Scenario) CanonicalTasks(t *testing.T) []task.Canonical {
	t.Helper()

	tasks := make([]task.Canonical, 0, len(s.Tasks))
	for _, st := range s.Tasks {
		tasks = append(tasks, task.Canonical{
			Title:       st.Title,
			Completed:   st.Completed,
			DueAt:       parseWhen(t, st.DueAt),
			ParentTitle: st.ParentTitle,
			Section:     st.Section,
		})
	}
	return tasks
}

// Items converts the fixture board snapshot.
func (s Scenario) Items(t *testing.T) []tracker.Item {
	t.Helper()

	items := make([]tracker.Item, 0, len(s.Existing))
	for _, si := range s.Existing {
		items = append(items, tracker.Item{
			GID:       si.GID,
			Name:      si.Name,
			Completed: si.Completed,
			DueAt:     parseWhen(t, si.DueAt),
		})
	}
	return items
}

func parseWhen(t *testing.T, s string) *time.Time {
	t.Helper()

	if s == "" {
		return nil
	}
	ts, err := task.ParseTimestamp(s)
	require.NoError(t, err, "fixture timestamp %q", s)
	return &ts
}
