package tracker

import (
	"github.com/Peter-Willmott/asana-updater/internal/task"
)

// CreateRequest is the full task payload for a create call.
type CreateRequest struct {
	Name           string         `json:"name"`
	Completed      bool           `json:"completed"`
	DueAt          string         `json:"due_at,omitempty"`
	HTMLNotes      string         `json:"html_notes,omitempty"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
	Parent         string         `json:"parent,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	Projects       []string       `json:"projects,omitempty"`
	ApprovalStatus string         `json:"approval_status,omitempty"`
	Followers      []string       `json:"followers"`
}

// UpdateRequest is the partial payload for an update call.
//
// Approval status, project membership, and followers are deliberately
// absent: the tracker rejects or misbehaves when they are resent on
// update, and they never change after creation. This is a static contract
// of the tracker API, not a per-pass decision.
type UpdateRequest struct {
	Name         string         `json:"name"`
	Completed    bool           `json:"completed"`
	DueAt        string         `json:"due_at,omitempty"`
	HTMLNotes    string         `json:"html_notes,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// NewCreateRequest builds the create payload for a canonical task within a
// project. Parent linkage uses the resolved ParentID; the title-level
// ParentTitle never reaches the wire.
func NewCreateRequest(t task.Canonical, projectGID string) CreateRequest {
	req := CreateRequest{
		Name:           t.Title,
		Completed:      t.Completed,
		DueAt:          task.FormatOptional(t.DueAt),
		CustomFields:   t.Fields,
		Parent:         t.ParentID,
		Assignee:       t.Assignee,
		ApprovalStatus: "pending",
		Followers:      []string{},
	}
	if t.Notes != "" {
		req.HTMLNotes = "<body>" + t.Notes + "</body>"
	}
	if projectGID != "" {
		req.Projects = []string{projectGID}
	}
	return req
}

// NewUpdateRequest builds the update payload for a canonical task,
// stripping the fields the tracker treats as immutable.
func NewUpdateRequest(t task.Canonical) UpdateRequest {
	req := UpdateRequest{
		Name:         t.Title,
		Completed:    t.Completed,
		DueAt:        task.FormatOptional(t.DueAt),
		CustomFields: t.Fields,
	}
	if t.Notes != "" {
		req.HTMLNotes = "<body>" + t.Notes + "</body>"
	}
	return req
}
