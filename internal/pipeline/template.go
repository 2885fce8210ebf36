package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Prompt & Output Templates ────────────────────────────────

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// RenderTemplate substitutes {key} and {scope.key} placeholders from
// the data map. Unknown placeholders are left as-is so a typo is
// visible in the rendered text instead of silently vanishing.
func RenderTemplate(tpl string, data map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.Trim(m, "{}")
		if v, ok := lookup(data, key); ok {
			return stringify(v)
		}
		return m
	})
}

func lookup(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	// Dotted path into nested maps.
	parts := strings.Split(key, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// itemData exposes one item's fields for template rendering under the
// "item" scope.
func itemData(it models.Item) map[string]any {
	d := map[string]any{
		"id":      it.ID,
		"title":   it.Title,
		"summary": it.Summary,
		"content": it.Content,
		"url":     it.URL,
		"author":  it.Author,
	}
	if it.Score != nil {
		d["score"] = fmt.Sprintf("%.2f", *it.Score)
	}
	if it.PublishedAt != nil {
		d["publishedAt"] = it.PublishedAt.Format("2006-01-02 15:04")
	}
	for k, v := range it.Extra {
		d[k] = v
	}
	return d
}

// TemplateData builds the rendering scope for prompts: profile fields
// under "profile", one item under "item" when given.
func TemplateData(profile map[string]any, item *models.Item) map[string]any {
	d := map[string]any{}
	if profile != nil {
		d["profile"] = profile
	}
	if item != nil {
		d["item"] = itemData(*item)
	}
	return d
}

// ItemsDigest renders an item list as numbered plain text for LLM
// prompts and summary templates.
func ItemsDigest(items []models.Item) string {
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s", i+1, firstNonEmpty(it.Title, it.URL, it.ID))
		if it.Summary != "" {
			sb.WriteString(" - ")
			sb.WriteString(truncate(it.Summary, 300))
		}
		if it.URL != "" {
			sb.WriteString(" (")
			sb.WriteString(it.URL)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
