package source

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Normalization ────────────────────────────────────────────

// NormalizationConfig maps JSON paths in a source's raw payload onto
// the universal item fields. Paths use gjson syntax ("data.attributes.title").
type NormalizationConfig struct {
	IDPath          string `json:"idPath,omitempty"`
	TitlePath       string `json:"titlePath,omitempty"`
	SummaryPath     string `json:"summaryPath,omitempty"`
	URLPath         string `json:"urlPath,omitempty"`
	PublishedAtPath string `json:"publishedAtPath,omitempty"`
	AuthorPath      string `json:"authorPath,omitempty"`
	ScorePath       string `json:"scorePath,omitempty"`
}

// Apply overlays mapped fields from the item's raw payload. Fields
// whose path is empty or missing in the payload are left untouched, so
// driver-populated defaults survive. Raw itself is never modified.
func (c *NormalizationConfig) Apply(it *models.Item) {
	raw := string(it.Raw)
	if raw == "" {
		return
	}
	if s := pathString(raw, c.IDPath); s != "" {
		it.ID = s
	}
	if s := pathString(raw, c.TitlePath); s != "" {
		it.Title = s
	}
	if s := pathString(raw, c.SummaryPath); s != "" {
		it.Summary = s
	}
	if s := pathString(raw, c.URLPath); s != "" {
		it.URL = s
	}
	if s := pathString(raw, c.AuthorPath); s != "" {
		it.Author = s
	}
	if c.PublishedAtPath != "" {
		if t, ok := parseTime(gjson.Get(raw, c.PublishedAtPath)); ok {
			it.PublishedAt = &t
		}
	}
	if c.ScorePath != "" {
		if v := gjson.Get(raw, c.ScorePath); v.Exists() {
			f := v.Float()
			it.Score = &f
		}
	}
}

func pathString(raw, path string) string {
	if path == "" {
		return ""
	}
	return gjson.Get(raw, path).String()
}

// timeLayouts are tried in order when a timestamp is a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC3339-style strings, RFC1123 (RSS pubDate), and
// numeric Unix seconds or milliseconds.
func parseTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		s := v.String()
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		// Numeric string epoch
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(n), true
		}
	case gjson.Number:
		return epochToTime(v.Int()), true
	}
	return time.Time{}, false
}

func epochToTime(n int64) time.Time {
	// Heuristic: values past the year 33658 in seconds are millis.
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
