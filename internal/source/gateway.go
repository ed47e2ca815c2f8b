package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"
)

// GatewayProvider fetches upload and survey records from the internal
// gateway API. It is the system of record for the upload and survey-issue
// boards.
//
// A total fetch failure here is fatal for the whole pass: without a
// complete source snapshot the engine cannot plan safely.
type GatewayProvider struct {
	http *httpClient
}

// NewGatewayProvider creates a provider against the given base URL.
// The token is sent as a bearer credential on every request.
func NewGatewayProvider(baseURL, token string) *GatewayProvider {
	return &GatewayProvider{
		http: newHTTPClient(baseURL, map[string]string{
			"Authorization": "Bearer " + token,
		}),
	}
}

// UnprocessedUploads returns unprocessed uploads completed on or after
// since, sorted by stable id so downstream grouping is deterministic.
func (p *GatewayProvider) UnprocessedUploads(ctx context.Context, since time.Time) ([]Record, error) {
	query := url.Values{}
	query.Set("upload_completed_on__gte", since.UTC().Format("2006-01-02"))

	var records []Record
	if err := p.http.getJSON(ctx, "/uploads/unprocessed/", query, &records); err != nil {
		return nil, fmt.Errorf("fetch unprocessed uploads: %w", err)
	}

	sortByID(records)
	return records, nil
}

// SurveyIssues returns in-progress surveys annotated with the status of
// their latest internal processing job.
func (p *GatewayProvider) SurveyIssues(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := p.http.getJSON(ctx, "/surveys/in-progress/latest-internal-job-status/", nil, &records); err != nil {
		return nil, fmt.Errorf("fetch survey issues: %w", err)
	}

	sortByID(records)
	return records, nil
}

// sortByID orders records by their numeric "id" field, then by "survey_id"
// for feeds that key on the survey. Records without either keep input order.
func sortByID(records []Record) {
	key := func(r Record) int64 {
		if n, err := r.Int("id"); err == nil && n != 0 {
			return n
		}
		n, _ := r.Int("survey_id")
		return n
	}
	sort.SliceStable(records, func(i, j int) bool {
		return key(records[i]) < key(records[j])
	})
}
