package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// fakeGateway records mutations in memory. failOn marks request names or
// GIDs whose mutation should fail.
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	creates  []tracker.CreateRequest
	updates  map[string]tracker.UpdateRequest
	resolves []string
	sections map[string]string
	failOn   map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		updates:  make(map[string]tracker.UpdateRequest),
		sections: make(map[string]string),
		failOn:   make(map[string]bool),
	}
}

func (g *fakeGateway) ListItems(ctx context.Context, scope tracker.Scope) ([]tracker.Item, error) {
	return nil, nil
}

func (g *fakeGateway) GetProject(ctx context.Context, projectGID string) (tracker.Project, error) {
	return tracker.Project{GID: projectGID}, nil
}

func (g *fakeGateway) CreateItem(ctx context.Context, req tracker.CreateRequest) (tracker.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn[req.Name] {
		return tracker.Item{}, fmt.Errorf("injected create failure")
	}
	g.seq++
	g.creates = append(g.creates, req)
	return tracker.Item{GID: fmt.Sprintf("fake-%03d", g.seq), Name: req.Name}, nil
}

func (g *fakeGateway) UpdateItem(ctx context.Context, gid string, req tracker.UpdateRequest) (tracker.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn[gid] {
		return tracker.Item{}, fmt.Errorf("injected update failure")
	}
	g.updates[gid] = req
	return tracker.Item{GID: gid}, nil
}

func (g *fakeGateway) ResolveItem(ctx context.Context, gid string) (tracker.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn[gid] {
		return tracker.Item{}, fmt.Errorf("injected resolve failure")
	}
	g.resolves = append(g.resolves, gid)
	return tracker.Item{GID: gid, Completed: true}, nil
}

func (g *fakeGateway) AddToSection(ctx context.Context, gid, sectionGID string, _ tracker.Placement) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn["section:"+gid] {
		return fmt.Errorf("injected section failure")
	}
	g.sections[gid] = sectionGID
	return nil
}

func (g *fakeGateway) createByName(name string) (tracker.CreateRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, req := range g.creates {
		if req.Name == name {
			return req, true
		}
	}
	return tracker.CreateRequest{}, false
}

func TestExecutor_AppliesPlan(t *testing.T) {
	gw := newFakeGateway()
	due := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	plan := &Plan{
		Create: []task.Canonical{
			{Title: "Upload: 1", DueAt: &due, Section: "sec-a"},
			{Title: "Upload: 2"},
		},
		Update: []Update{
			{GID: "g1", Task: task.Canonical{Title: "Upload: 3", Completed: true}},
		},
		Resolve: []string{"g2"},
	}

	executor := NewExecutor(gw, "project-1",
		WithWorkers(4),
		WithRunTokens(NewFixedGenerator("run-1")),
	)
	report := executor.Apply(context.Background(), plan)

	require.False(t, report.Failed(), "errors: %v", report.Errors)
	assert.Equal(t, "run-1", report.Run)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Resolved)

	req, ok := gw.createByName("Upload: 1")
	require.True(t, ok)
	assert.Equal(t, []string{"project-1"}, req.Projects)
	assert.Equal(t, "2024-05-10T00:00:00Z", req.DueAt)

	assert.Contains(t, gw.updates, "g1")
	assert.True(t, gw.updates["g1"].Completed)
	assert.Equal(t, []string{"g2"}, gw.resolves)

	// Upload: 1 carries a section, Upload: 2 does not.
	assert.Len(t, gw.sections, 1)
}

func TestExecutor_ParentCreatedBeforeChildren(t *testing.T) {
	gw := newFakeGateway()

	plan := &Plan{
		Create: []task.Canonical{
			{Title: "Upload: 10", ParentTitle: "Acme | DS: 1"},
			{Title: "Acme | DS: 1"},
			{Title: "Upload: 11", ParentTitle: "Acme | DS: 1"},
		},
	}

	executor := NewExecutor(gw, "project-1", WithWorkers(8))
	report := executor.Apply(context.Background(), plan)
	require.False(t, report.Failed(), "errors: %v", report.Errors)

	parent, ok := gw.createByName("Acme | DS: 1")
	require.True(t, ok)
	assert.Empty(t, parent.Parent)

	// The parent is the first create issued, regardless of plan order.
	assert.Equal(t, "Acme | DS: 1", gw.creates[0].Name)

	for _, name := range []string{"Upload: 10", "Upload: 11"} {
		child, ok := gw.createByName(name)
		require.True(t, ok, "child %s not created", name)
		assert.Equal(t, "fake-001", child.Parent, "child %s must carry the parent GID", name)
	}
}

func TestExecutor_ChildrenOfKnownParentUseBoardGID(t *testing.T) {
	gw := newFakeGateway()

	plan := &Plan{
		Create: []task.Canonical{
			{Title: "Upload: 10", ParentTitle: "Acme | DS: 1"},
		},
		Known: map[string]string{"Acme | DS: 1": "g-parent"},
	}

	report := NewExecutor(gw, "project-1").Apply(context.Background(), plan)
	require.False(t, report.Failed(), "errors: %v", report.Errors)

	child, ok := gw.createByName("Upload: 10")
	require.True(t, ok)
	assert.Equal(t, "g-parent", child.Parent)
}

func TestExecutor_FailuresAreContained(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["Upload: 2"] = true
	gw.failOn["g-bad"] = true

	plan := &Plan{
		Create: []task.Canonical{
			{Title: "Upload: 1"},
			{Title: "Upload: 2"},
			{Title: "Upload: 3"},
		},
		Update: []Update{
			{GID: "g-bad", Task: task.Canonical{Title: "Upload: 4"}},
			{GID: "g-ok", Task: task.Canonical{Title: "Upload: 5"}},
		},
		Resolve: []string{"g-r"},
	}

	report := NewExecutor(gw, "project-1", WithWorkers(3)).Apply(context.Background(), plan)

	assert.True(t, report.Failed())
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Resolved)
	require.Len(t, report.Errors, 2)

	keys := make(map[string]string)
	for _, e := range report.Errors {
		keys[e.Key] = e.Op
		assert.True(t, IsMutation(e))
	}
	assert.Equal(t, "create", keys["Upload: 2"])
	assert.Equal(t, "update", keys["g-bad"])
}

func TestExecutor_MissingParentFailsChildOnly(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["Acme | DS: 1"] = true

	plan := &Plan{
		Create: []task.Canonical{
			{Title: "Acme | DS: 1"},
			{Title: "Upload: 10", ParentTitle: "Acme | DS: 1"},
			{Title: "Upload: 20"},
		},
	}

	report := NewExecutor(gw, "project-1").Apply(context.Background(), plan)

	assert.Equal(t, 1, report.Created, "the standalone create still lands")
	require.Len(t, report.Errors, 2)
	_, ok := gw.createByName("Upload: 20")
	assert.True(t, ok)
}

func TestExecutor_SectionFailureDoesNotUndoCreate(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["section:fake-001"] = true

	plan := &Plan{
		Create: []task.Canonical{{Title: "Upload: 1", Section: "sec-a"}},
	}

	report := NewExecutor(gw, "project-1").Apply(context.Background(), plan)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "section", report.Errors[0].Op)
}
