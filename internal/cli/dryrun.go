package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// RecordedUpdate pairs a task GID with the update that would be sent.
type RecordedUpdate struct {
	GID     string                `json:"gid"`
	Request tracker.UpdateRequest `json:"request"`
}

// RecordedMutations is the dry-run transcript: every mutation a pass
// would have issued, in dispatch order per kind.
type RecordedMutations struct {
	Create  []tracker.CreateRequest `json:"create"`
	Update  []RecordedUpdate        `json:"update"`
	Resolve []string                `json:"resolve"`
}

// Empty reports whether the pass would change nothing.
func (r *RecordedMutations) Empty() bool {
	return len(r.Create) == 0 && len(r.Update) == 0 && len(r.Resolve) == 0
}

// MutationRecorder is shared by every dry-run gateway of one pass so a
// multi-board job still yields a single transcript.
type MutationRecorder struct {
	mu  sync.Mutex
	rec RecordedMutations
	seq int
}

// Recorded returns the transcript.
func (m *MutationRecorder) Recorded() *RecordedMutations {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.rec
	return &rec
}

// Wrap returns a Gateway that reads through the given gateway and records
// mutations instead of performing them.
func (m *MutationRecorder) Wrap(reads tracker.Gateway) tracker.Gateway {
	return &dryRunGateway{reads: reads, recorder: m}
}

// dryRunGateway delegates reads and swallows writes. Created items get
// synthetic GIDs so parent wiring still threads through.
type dryRunGateway struct {
	reads    tracker.Gateway
	recorder *MutationRecorder
}

func (g *dryRunGateway) ListItems(ctx context.Context, scope tracker.Scope) ([]tracker.Item, error) {
	return g.reads.ListItems(ctx, scope)
}

func (g *dryRunGateway) GetProject(ctx context.Context, projectGID string) (tracker.Project, error) {
	return g.reads.GetProject(ctx, projectGID)
}

func (g *dryRunGateway) CreateItem(ctx context.Context, req tracker.CreateRequest) (tracker.Item, error) {
	m := g.recorder
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.rec.Create = append(m.rec.Create, req)
	return tracker.Item{GID: fmt.Sprintf("dry-%04d", m.seq), Name: req.Name}, nil
}

func (g *dryRunGateway) UpdateItem(ctx context.Context, gid string, req tracker.UpdateRequest) (tracker.Item, error) {
	m := g.recorder
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.Update = append(m.rec.Update, RecordedUpdate{GID: gid, Request: req})
	return tracker.Item{GID: gid}, nil
}

func (g *dryRunGateway) ResolveItem(ctx context.Context, gid string) (tracker.Item, error) {
	m := g.recorder
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.Resolve = append(m.rec.Resolve, gid)
	return tracker.Item{GID: gid, Completed: true}, nil
}

func (g *dryRunGateway) AddToSection(ctx context.Context, gid, sectionGID string, placement tracker.Placement) error {
	return nil
}
