package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Accessors(t *testing.T) {
	rec := Record{
		"name":    "Acme",
		"id":      float64(42),
		"ratio":   0.5,
		"flag":    true,
		"when":    "2024-05-01 12:00:00+00",
		"absent":  nil,
		"surveys": []any{map[string]any{"id": float64(1)}},
	}

	s, err := rec.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Acme", s)

	s, err = rec.String("missing")
	require.NoError(t, err)
	assert.Empty(t, s)

	n, err := rec.Int("id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	f, err := rec.Float("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	b, err := rec.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	ts, err := rec.Time("when")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), *ts)

	ts, err = rec.Time("absent")
	require.NoError(t, err)
	assert.Nil(t, ts)

	nested, err := rec.Records("surveys")
	require.NoError(t, err)
	require.Len(t, nested, 1)

	assert.True(t, rec.Has("name"))
	assert.False(t, rec.Has("absent"))
	assert.False(t, rec.Has("missing"))
}

func TestRecord_TypeErrorsAreNormalizationErrors(t *testing.T) {
	rec := Record{
		"name": 42,
		"id":   "forty-two",
		"when": "yesterday-ish",
		"list": "not a list",
	}

	_, err := rec.String("name")
	assert.True(t, IsNormalization(err))

	_, err = rec.Int("id")
	assert.True(t, IsNormalization(err))

	_, err = rec.Time("when")
	assert.True(t, IsNormalization(err))

	_, err = rec.Records("list")
	assert.True(t, IsNormalization(err))

	_, err = rec.MustString("missing")
	require.Error(t, err)
	assert.True(t, IsNormalization(err))
}

func TestReviewerRecords_Flattening(t *testing.T) {
	pr := Record{
		"title": "plain title",
		"state": "OPEN",
		"rendered": map[string]any{
			"title": map[string]any{"raw": "Fix watcher shutdown"},
		},
		"links": map[string]any{
			"html": map[string]any{"href": "https://bitbucket.org/acme/repo/pull-requests/7"},
		},
		"description": "Deflakes the shutdown path.",
		"participants": []any{
			map[string]any{
				"role":     "REVIEWER",
				"approved": false,
				"user":     map[string]any{"display_name": "Jane Doe"},
			},
			map[string]any{
				"role":     "REVIEWER",
				"approved": true,
				"user":     map[string]any{"display_name": "Sam Smith"},
			},
			map[string]any{
				"role":     "PARTICIPANT",
				"approved": false,
				"user":     map[string]any{"display_name": "Author Person"},
			},
		},
	}

	records := reviewerRecords(pr)
	require.Len(t, records, 2, "only REVIEWER participants are mirrored")

	first := records[0]
	assert.Equal(t, "Jane Doe", first["reviewer"])
	assert.Equal(t, "Fix watcher shutdown", first["title"], "rendered title wins over raw field")
	assert.Equal(t, "https://bitbucket.org/acme/repo/pull-requests/7", first["link"])
	assert.Equal(t, "OPEN", first["state"])
	assert.Equal(t, false, first["approved"])

	assert.Equal(t, true, records[1]["approved"])
}

func TestHrefPath(t *testing.T) {
	assert.Equal(t, "/repositories/acme/repo/pullrequests/7",
		hrefPath("https://api.bitbucket.org/2.0/repositories/acme/repo/pullrequests/7"))
	assert.Equal(t, "/already/relative", hrefPath("/already/relative"))
}

func TestSortByID(t *testing.T) {
	records := []Record{
		{"id": float64(3)},
		{"id": float64(1)},
		{"survey_id": float64(2)},
	}
	sortByID(records)

	first, _ := records[0].Int("id")
	assert.Equal(t, int64(1), first)
	second, _ := records[1].Int("survey_id")
	assert.Equal(t, int64(2), second)
}
