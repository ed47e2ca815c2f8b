package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Peter-Willmott/asana-updater/internal/task"
)

// DefaultAsanaBaseURL is the production Asana REST endpoint.
const DefaultAsanaBaseURL = "https://app.asana.com/api/1.0"

// mutationTimeout bounds each tracker call so a hung request fails the item
// instead of blocking its worker slot for the rest of the pass.
const mutationTimeout = 30 * time.Second

// AsanaClient is the production Gateway implementation over the Asana REST
// API. One client is constructed per process invocation and passed in
// explicitly - there is no package-level shared client.
type AsanaClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// AsanaOption configures an AsanaClient.
type AsanaOption func(*AsanaClient)

// WithBaseURL points the client at a non-default endpoint (test servers).
func WithBaseURL(u string) AsanaOption {
	return func(c *AsanaClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) AsanaOption {
	return func(c *AsanaClient) {
		c.client = hc
	}
}

// NewAsanaClient creates a Gateway against the Asana API using a personal
// access token.
func NewAsanaClient(token string, opts ...AsanaOption) *AsanaClient {
	c := &AsanaClient{
		baseURL: DefaultAsanaBaseURL,
		token:   token,
		client:  &http.Client{Timeout: mutationTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// asanaTask is the wire shape of a task resource, reduced to the fields
// the engine reads back.
type asanaTask struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	Completed    bool   `json:"completed"`
	DueAt        string `json:"due_at"`
	CustomFields []struct {
		GID          string `json:"gid"`
		DisplayValue string `json:"display_value"`
		EnumValue    *struct {
			GID string `json:"gid"`
		} `json:"enum_value"`
	} `json:"custom_fields"`
}

func (t asanaTask) toItem() Item {
	item := Item{
		GID:       t.GID,
		Name:      t.Name,
		Completed: t.Completed,
	}
	if t.DueAt != "" {
		if parsed, err := task.ParseTimestamp(t.DueAt); err == nil {
			item.DueAt = &parsed
		}
	}
	if len(t.CustomFields) > 0 {
		item.Fields = make(map[string]any, len(t.CustomFields))
		for _, f := range t.CustomFields {
			if f.EnumValue != nil {
				item.Fields[f.GID] = f.EnumValue.GID
				continue
			}
			item.Fields[f.GID] = f.DisplayValue
		}
	}
	return item
}

// ListItems returns tasks in the scope. Section-scoped listings use the
// section tasks endpoint; project-scoped listings use the task search with
// a completed_since cutoff so long-resolved tasks stay out of the snapshot.
func (c *AsanaClient) ListItems(ctx context.Context, scope Scope) ([]Item, error) {
	query := url.Values{}
	optFields := scope.OptFields
	if len(optFields) == 0 {
		optFields = []string{"name", "completed", "due_at"}
	}
	query.Set("opt_fields", strings.Join(optFields, ","))

	var path string
	if scope.Section != "" {
		path = "/sections/" + scope.Section + "/tasks"
	} else {
		path = "/tasks"
		query.Set("project", scope.Project)
		if !scope.CompletedSince.IsZero() {
			query.Set("completed_since", scope.CompletedSince.UTC().Format("2006-01-02"))
		}
	}

	var resp struct {
		Data []asanaTask `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]Item, 0, len(resp.Data))
	for _, t := range resp.Data {
		items = append(items, t.toItem())
	}
	return items, nil
}

// GetProject fetches project metadata including custom-field settings.
func (c *AsanaClient) GetProject(ctx context.Context, projectGID string) (Project, error) {
	var resp struct {
		Data struct {
			GID                 string `json:"gid"`
			Name                string `json:"name"`
			CustomFieldSettings []struct {
				CustomField struct {
					GID         string `json:"gid"`
					Name        string `json:"name"`
					EnumOptions []struct {
						GID  string `json:"gid"`
						Name string `json:"name"`
					} `json:"enum_options"`
				} `json:"custom_field"`
			} `json:"custom_field_settings"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectGID, nil, nil, &resp); err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", projectGID, err)
	}

	project := Project{GID: resp.Data.GID, Name: resp.Data.Name}
	for _, s := range resp.Data.CustomFieldSettings {
		setting := CustomFieldSetting{
			FieldGID:  s.CustomField.GID,
			FieldName: s.CustomField.Name,
		}
		for _, o := range s.CustomField.EnumOptions {
			setting.EnumOptions = append(setting.EnumOptions, EnumOption{GID: o.GID, Name: o.Name})
		}
		project.CustomFieldSettings = append(project.CustomFieldSettings, setting)
	}
	return project, nil
}

// CreateItem creates a task and returns it with its assigned GID.
func (c *AsanaClient) CreateItem(ctx context.Context, req CreateRequest) (Item, error) {
	var resp struct {
		Data asanaTask `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, envelope{Data: req}, &resp); err != nil {
		return Item{}, fmt.Errorf("create item %q: %w", req.Name, err)
	}
	return resp.Data.toItem(), nil
}

// UpdateItem applies partial fields to an existing task.
func (c *AsanaClient) UpdateItem(ctx context.Context, gid string, req UpdateRequest) (Item, error) {
	var resp struct {
		Data asanaTask `json:"data"`
	}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+gid, nil, envelope{Data: req}, &resp); err != nil {
		return Item{}, fmt.Errorf("update item %s: %w", gid, err)
	}
	return resp.Data.toItem(), nil
}

// ResolveItem marks a task completed.
func (c *AsanaClient) ResolveItem(ctx context.Context, gid string) (Item, error) {
	var resp struct {
		Data asanaTask `json:"data"`
	}
	body := envelope{Data: map[string]any{"completed": true}}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+gid, nil, body, &resp); err != nil {
		return Item{}, fmt.Errorf("resolve item %s: %w", gid, err)
	}
	return resp.Data.toItem(), nil
}

// AddToSection moves a task into a section, optionally positioned relative
// to a sibling.
func (c *AsanaClient) AddToSection(ctx context.Context, gid, sectionGID string, placement Placement) error {
	data := map[string]any{"task": gid}
	if placement.InsertBefore != "" {
		data["insert_before"] = placement.InsertBefore
	}
	if placement.InsertAfter != "" {
		data["insert_after"] = placement.InsertAfter
	}
	if err := c.do(ctx, http.MethodPost, "/sections/"+sectionGID+"/addTask", nil, envelope{Data: data}, nil); err != nil {
		return fmt.Errorf("add item %s to section %s: %w", gid, sectionGID, err)
	}
	return nil
}

// envelope is the Asana request/response wrapper.
type envelope struct {
	Data any `json:"data"`
}

func (c *AsanaClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
