// Package tracker defines the board-side model and the Gateway contract,
// the only seam through which the engine touches the task tracker.
//
// The tracker is an external, independently mutable resource: humans move
// and complete tasks between passes. Every Item snapshot is therefore
// treated as possibly stale by the time mutations land, and the engine
// correlates by title (re-derivable from source) rather than by position.
package tracker

import (
	"context"
	"time"
)

// Item is the tracker's existing representation of a task. Items are owned
// and mutated exclusively by the tracker; the engine reads them and issues
// mutation requests through the Gateway, never mutating an Item directly.
type Item struct {
	// GID is the tracker-assigned stable identifier.
	GID string

	// Name is the task title, the correlation key for matching.
	Name string

	// Completed reports whether the tracker marks the task done.
	Completed bool

	// DueAt is the stored due timestamp, nil when unset.
	DueAt *time.Time

	// Fields holds custom-field values keyed by field GID.
	Fields map[string]any
}

// Scope selects which items a listing covers: a project, optionally
// narrowed to one section, excluding tasks completed before CompletedSince.
type Scope struct {
	Project        string
	Section        string
	CompletedSince time.Time
	OptFields      []string
}

// Project is the board-level resource. Custom-field settings are needed by
// jobs that resolve enum options dynamically (survey current-stage).
type Project struct {
	GID                 string
	Name                string
	CustomFieldSettings []CustomFieldSetting
}

// CustomFieldSetting describes one custom field attached to a project.
type CustomFieldSetting struct {
	FieldGID    string
	FieldName   string
	EnumOptions []EnumOption
}

// EnumOption is one selectable value of an enum custom field.
type EnumOption struct {
	GID  string
	Name string
}

// Gateway is the only component that performs network I/O against the
// tracker. Implemented by the Asana REST client (production) and the
// SQLite sandbox board (local runs and tests).
type Gateway interface {
	// ListItems returns the items in scope.
	ListItems(ctx context.Context, scope Scope) ([]Item, error)

	// GetProject fetches board metadata including custom-field settings.
	GetProject(ctx context.Context, projectGID string) (Project, error)

	// CreateItem creates a task from the request and returns the created
	// item with its tracker-assigned GID.
	CreateItem(ctx context.Context, req CreateRequest) (Item, error)

	// UpdateItem applies the partial fields of the request to an
	// existing task.
	UpdateItem(ctx context.Context, gid string, req UpdateRequest) (Item, error)

	// ResolveItem marks a task completed.
	ResolveItem(ctx context.Context, gid string) (Item, error)

	// AddToSection moves a task into a section. A zero Placement appends.
	AddToSection(ctx context.Context, gid, sectionGID string, placement Placement) error
}

// Placement optionally positions a task relative to a sibling when adding
// it to a section.
type Placement struct {
	InsertBefore string
	InsertAfter  string
}
