package tracker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Peter-Willmott/asana-updater/internal/task"
)

func TestNewCreateRequest(t *testing.T) {
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	req := NewCreateRequest(task.Canonical{
		Title:     "Upload: 1",
		Completed: true,
		DueAt:     &due,
		Notes:     "<b>Farm: North (3)</b>",
		Fields:    map[string]any{"f1": "v1"},
		ParentID:  "g-parent",
		Assignee:  "user-1",
	}, "project-1")

	assert.Equal(t, "Upload: 1", req.Name)
	assert.True(t, req.Completed)
	assert.Equal(t, "2024-05-10T09:00:00Z", req.DueAt)
	assert.Equal(t, "<body><b>Farm: North (3)</b></body>", req.HTMLNotes)
	assert.Equal(t, "g-parent", req.Parent)
	assert.Equal(t, "user-1", req.Assignee)
	assert.Equal(t, []string{"project-1"}, req.Projects)
	assert.Equal(t, "pending", req.ApprovalStatus)
	assert.NotNil(t, req.Followers)
	assert.Empty(t, req.Followers)
}

func TestNewCreateRequest_OptionalFieldsAbsent(t *testing.T) {
	req := NewCreateRequest(task.Canonical{Title: "Upload: 1"}, "")

	assert.Empty(t, req.DueAt, "missing deadline stays missing, no sentinel")
	assert.Empty(t, req.HTMLNotes)
	assert.Nil(t, req.Projects)
}

func TestNewUpdateRequest_StripsImmutableFields(t *testing.T) {
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	req := NewUpdateRequest(task.Canonical{
		Title:     "Upload: 1",
		Completed: true,
		DueAt:     &due,
		Notes:     "body",
		Fields:    map[string]any{"f1": "v1"},
	})

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))

	for _, immutable := range []string{"approval_status", "projects", "followers", "parent", "assignee"} {
		assert.NotContains(t, wire, immutable)
	}
	assert.Equal(t, "Upload: 1", wire["name"])
	assert.Equal(t, true, wire["completed"])
	assert.Equal(t, "<body>body</body>", wire["html_notes"])
}

func TestCreateRequest_FollowersAlwaysOnWire(t *testing.T) {
	raw, err := json.Marshal(NewCreateRequest(task.Canonical{Title: "x"}, ""))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"followers":[]`)
}
