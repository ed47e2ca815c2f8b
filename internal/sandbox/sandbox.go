// Package sandbox is a SQLite-backed board: a full tracker.Gateway
// implementation against a local file (or :memory:) instead of the live
// API. `asana-updater plan` and the integration tests run whole passes
// against it without touching a real board.
//
// The sandbox persists a *board*, not engine state - the engine stays
// stateless between runs either way.
package sandbox

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Peter-Willmott/asana-updater/internal/task"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

//go:embed schema.sql
var schemaSQL string

// Board is a sandbox tracker over SQLite.
type Board struct {
	db  *sql.DB
	seq atomic.Int64
}

// Open creates or opens a sandbox board at path. ":memory:" gives a
// throwaway board for tests.
func Open(path string) (*Board, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sandbox: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sandbox: %w", err)
	}

	// Single writer, same as the engine's mutation pool expects of a
	// small local database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	b := &Board{db: db}
	if err := b.initSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying database.
func (b *Board) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Board) initSeq() error {
	var max sql.NullInt64
	if err := b.db.QueryRow("SELECT MAX(created_seq) FROM tasks").Scan(&max); err != nil {
		return fmt.Errorf("init sequence: %w", err)
	}
	if max.Valid {
		b.seq.Store(max.Int64)
	}
	return nil
}

func (b *Board) nextGID() (string, int64) {
	n := b.seq.Add(1)
	return fmt.Sprintf("sandbox-%06d", n), n
}

// SeedProject registers a project with custom-field settings so jobs that
// resolve enum options (survey issues) can run against the sandbox.
func (b *Board) SeedProject(ctx context.Context, p tracker.Project) error {
	settings, err := json.Marshal(p.CustomFieldSettings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO projects (gid, name, custom_field_settings)
		VALUES (?, ?, ?)
		ON CONFLICT(gid) DO UPDATE SET name = excluded.name,
			custom_field_settings = excluded.custom_field_settings
	`, p.GID, p.Name, string(settings))
	if err != nil {
		return fmt.Errorf("seed project %s: %w", p.GID, err)
	}
	return nil
}

// ListItems returns tasks in scope, in creation order.
func (b *Board) ListItems(ctx context.Context, scope tracker.Scope) ([]tracker.Item, error) {
	query := `
		SELECT gid, name, completed, due_at, custom_fields
		FROM tasks
	`
	var args []any
	switch {
	case scope.Section != "":
		query += " WHERE section_gid = ?"
		args = append(args, scope.Section)
	default:
		query += " WHERE project_gid = ?"
		args = append(args, scope.Project)
	}
	query += " ORDER BY created_seq ASC"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []tracker.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	if items == nil {
		items = []tracker.Item{}
	}
	return items, nil
}

// GetProject returns a seeded project. Unknown projects come back empty
// rather than failing - jobs probe for enum options and tolerate absence.
func (b *Board) GetProject(ctx context.Context, projectGID string) (tracker.Project, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT gid, name, custom_field_settings FROM projects WHERE gid = ?
	`, projectGID)

	var gid, name, settingsJSON string
	if err := row.Scan(&gid, &name, &settingsJSON); err != nil {
		if err == sql.ErrNoRows {
			return tracker.Project{GID: projectGID}, nil
		}
		return tracker.Project{}, fmt.Errorf("get project %s: %w", projectGID, err)
	}

	p := tracker.Project{GID: gid, Name: name}
	if err := json.Unmarshal([]byte(settingsJSON), &p.CustomFieldSettings); err != nil {
		return tracker.Project{}, fmt.Errorf("decode settings for %s: %w", projectGID, err)
	}
	return p, nil
}

// CreateItem inserts a task and returns it with its assigned GID.
func (b *Board) CreateItem(ctx context.Context, req tracker.CreateRequest) (tracker.Item, error) {
	gid, seq := b.nextGID()

	fields, err := json.Marshal(req.CustomFields)
	if err != nil {
		return tracker.Item{}, fmt.Errorf("marshal fields: %w", err)
	}
	project := ""
	if len(req.Projects) > 0 {
		project = req.Projects[0]
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO tasks (gid, name, completed, due_at, html_notes, custom_fields, parent_gid, project_gid, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, gid, req.Name, boolInt(req.Completed), req.DueAt, req.HTMLNotes, string(fields), nullable(req.Parent), project, seq)
	if err != nil {
		return tracker.Item{}, fmt.Errorf("create item %q: %w", req.Name, err)
	}

	return b.readItem(ctx, gid)
}

// UpdateItem applies the partial payload to an existing task.
func (b *Board) UpdateItem(ctx context.Context, gid string, req tracker.UpdateRequest) (tracker.Item, error) {
	fields, err := json.Marshal(req.CustomFields)
	if err != nil {
		return tracker.Item{}, fmt.Errorf("marshal fields: %w", err)
	}

	res, err := b.db.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, completed = ?, due_at = ?, html_notes = ?, custom_fields = ?
		WHERE gid = ?
	`, req.Name, boolInt(req.Completed), req.DueAt, req.HTMLNotes, string(fields), gid)
	if err != nil {
		return tracker.Item{}, fmt.Errorf("update item %s: %w", gid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracker.Item{}, fmt.Errorf("update item %s: not found", gid)
	}

	return b.readItem(ctx, gid)
}

// ResolveItem marks a task completed.
func (b *Board) ResolveItem(ctx context.Context, gid string) (tracker.Item, error) {
	res, err := b.db.ExecContext(ctx, "UPDATE tasks SET completed = 1 WHERE gid = ?", gid)
	if err != nil {
		return tracker.Item{}, fmt.Errorf("resolve item %s: %w", gid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracker.Item{}, fmt.Errorf("resolve item %s: not found", gid)
	}
	return b.readItem(ctx, gid)
}

// AddToSection moves a task into a section. Placement is ignored: the
// sandbox lists by creation order regardless.
func (b *Board) AddToSection(ctx context.Context, gid, sectionGID string, _ tracker.Placement) error {
	res, err := b.db.ExecContext(ctx, "UPDATE tasks SET section_gid = ? WHERE gid = ?", sectionGID, gid)
	if err != nil {
		return fmt.Errorf("add item %s to section %s: %w", gid, sectionGID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("add item %s to section %s: not found", gid, sectionGID)
	}
	return nil
}

func (b *Board) readItem(ctx context.Context, gid string) (tracker.Item, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT gid, name, completed, due_at, custom_fields FROM tasks WHERE gid = ?
	`, gid)
	return scanItem(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (tracker.Item, error) {
	var (
		gid, name  string
		completed  int
		dueAt      sql.NullString
		fieldsJSON string
	)
	if err := row.Scan(&gid, &name, &completed, &dueAt, &fieldsJSON); err != nil {
		return tracker.Item{}, fmt.Errorf("scan item: %w", err)
	}

	item := tracker.Item{GID: gid, Name: name, Completed: completed != 0}
	if dueAt.Valid && dueAt.String != "" {
		if t, err := task.ParseTimestamp(dueAt.String); err == nil {
			item.DueAt = &t
		}
	}
	if fieldsJSON != "" && fieldsJSON != "{}" && fieldsJSON != "null" {
		if err := json.Unmarshal([]byte(fieldsJSON), &item.Fields); err != nil {
			return tracker.Item{}, fmt.Errorf("decode fields for %s: %w", gid, err)
		}
	}
	return item, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
