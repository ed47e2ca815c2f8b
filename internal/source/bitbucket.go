package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

const (
	bitbucketTokenURL = "https://bitbucket.org/site/oauth2/access_token"
	bitbucketAPIBase  = "https://api.bitbucket.org/2.0"
)

// BitbucketProvider fetches open pull requests and their reviewer state for
// every member of a workspace.
type BitbucketProvider struct {
	workspace    string
	clientID     string
	clientSecret string
	http         *httpClient
}

// NewBitbucketProvider creates a provider for the given workspace using
// OAuth2 client-credentials.
func NewBitbucketProvider(workspace, clientID, clientSecret string) *BitbucketProvider {
	return &BitbucketProvider{
		workspace:    workspace,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         newHTTPClient(bitbucketAPIBase, nil),
	}
}

// ReviewRecords returns one record per (pull request, reviewer) pair across
// the workspace. Each record carries: "reviewer" (display name), "title",
// "link", "state", "approved", "description".
//
// A member whose PR listing fails is skipped with a warning; only the token
// exchange and member listing are fatal (no snapshot is possible without
// them).
func (p *BitbucketProvider) ReviewRecords(ctx context.Context) ([]Record, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("bitbucket token: %w", err)
	}
	authed := newHTTPClient(bitbucketAPIBase, map[string]string{
		"Authorization": "Bearer " + token,
	})

	members, err := p.workspaceMembers(ctx, authed)
	if err != nil {
		return nil, fmt.Errorf("bitbucket members: %w", err)
	}

	var records []Record
	for _, m := range members {
		prs, err := p.pullRequestsForUser(ctx, authed, m.uuid)
		if err != nil {
			slog.Warn("skipping bitbucket member", "member", m.displayName, "error", err)
			continue
		}
		for _, pr := range prs {
			expanded, err := p.pullRequestDetail(ctx, authed, pr)
			if err != nil {
				slog.Warn("skipping pull request", "member", m.displayName, "error", err)
				continue
			}
			records = append(records, reviewerRecords(expanded)...)
		}
	}
	return records, nil
}

type bitbucketMember struct {
	uuid        string
	displayName string
}

func (p *BitbucketProvider) accessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.http.postForm(ctx, bitbucketTokenURL, form, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return resp.AccessToken, nil
}

func (p *BitbucketProvider) workspaceMembers(ctx context.Context, c *httpClient) ([]bitbucketMember, error) {
	var resp struct {
		Values []struct {
			User struct {
				UUID        string `json:"uuid"`
				DisplayName string `json:"display_name"`
			} `json:"user"`
		} `json:"values"`
	}
	if err := c.getJSON(ctx, "/workspaces/"+p.workspace+"/members", nil, &resp); err != nil {
		return nil, err
	}

	members := make([]bitbucketMember, 0, len(resp.Values))
	for _, v := range resp.Values {
		members = append(members, bitbucketMember{uuid: v.User.UUID, displayName: v.User.DisplayName})
	}
	return members, nil
}

func (p *BitbucketProvider) pullRequestsForUser(ctx context.Context, c *httpClient, userUUID string) ([]Record, error) {
	var resp struct {
		Values []map[string]any `json:"values"`
	}
	if err := c.getJSON(ctx, "/pullrequests/"+userUUID, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(resp.Values))
	for _, v := range resp.Values {
		records = append(records, Record(v))
	}
	return records, nil
}

// pullRequestDetail follows the PR's self link to fetch the full resource,
// which carries participants and the rendered title the listing omits.
func (p *BitbucketProvider) pullRequestDetail(ctx context.Context, c *httpClient, pr Record) (Record, error) {
	links, _ := pr["links"].(map[string]any)
	self, _ := links["self"].(map[string]any)
	href, _ := self["href"].(string)
	if href == "" {
		return nil, fmt.Errorf("pull request missing self link")
	}

	var detail map[string]any
	if err := c.getJSON(ctx, hrefPath(href), nil, &detail); err != nil {
		return nil, err
	}
	return Record(detail), nil
}

// hrefPath strips the API base from an absolute self link so the shared
// client (which owns the base URL) can fetch it.
func hrefPath(href string) string {
	if len(href) > len(bitbucketAPIBase) && href[:len(bitbucketAPIBase)] == bitbucketAPIBase {
		return href[len(bitbucketAPIBase):]
	}
	return href
}

// reviewerRecords flattens one expanded PR into per-reviewer records.
// Only REVIEWER participants count; authors and other participants are not
// mirrored onto anyone's board.
func reviewerRecords(pr Record) []Record {
	title := renderedTitle(pr)
	link := htmlLink(pr)
	state, _ := pr.String("state")
	description, _ := pr.String("description")

	participants, err := pr.Records("participants")
	if err != nil {
		return nil
	}

	var out []Record
	for _, part := range participants {
		role, _ := part.String("role")
		if role != "REVIEWER" {
			continue
		}
		approved, _ := part.Bool("approved")
		user, _ := part["user"].(map[string]any)
		name, _ := user["display_name"].(string)

		out = append(out, Record{
			"reviewer":    name,
			"title":       title,
			"link":        link,
			"state":       state,
			"approved":    approved,
			"description": description,
		})
	}
	return out
}

func renderedTitle(pr Record) string {
	rendered, _ := pr["rendered"].(map[string]any)
	title, _ := rendered["title"].(map[string]any)
	raw, _ := title["raw"].(string)
	if raw != "" {
		return raw
	}
	t, _ := pr.String("title")
	return t
}

func htmlLink(pr Record) string {
	links, _ := pr["links"].(map[string]any)
	html, _ := links["html"].(map[string]any)
	href, _ := html["href"].(string)
	return href
}
