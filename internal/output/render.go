package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Channel Rendering ────────────────────────────────────────

// Payload is everything the channels can render: the final item list,
// the aggregate summary produced by the pipeline, and run identity.
type Payload struct {
	AgentName string
	RunID     string
	Items     []models.Item
	Summary   string
	Profile   map[string]any
}

// templateData builds the rendering scope shared by all text channels.
func (p Payload) templateData() map[string]any {
	return map[string]any{
		"agent":   p.AgentName,
		"runId":   p.RunID,
		"summary": p.Summary,
		"count":   fmt.Sprint(len(p.Items)),
		"items":   pipeline.ItemsDigest(p.Items),
		"profile": p.Profile,
	}
}

// RenderSMS renders and truncates the SMS body. Truncation cuts at the
// limit with a trailing ellipsis so carriers never split mid-message.
func RenderSMS(cfg models.SMSOutput, p Payload) string {
	text := pipeline.RenderTemplate(cfg.Template, p.templateData())
	limit := cfg.EffectiveMaxLength()
	if len(text) > limit {
		if limit > 3 {
			text = text[:limit-3] + "..."
		} else {
			text = text[:limit]
		}
	}
	return text
}

// RenderTwitter renders the tweet text under the platform limit.
func RenderTwitter(cfg models.TwitterOutput, p Payload) string {
	text := pipeline.RenderTemplate(cfg.Template, p.templateData())
	limit := cfg.MaxLength
	if limit <= 0 || limit > 280 {
		limit = 280
	}
	if len(text) > limit {
		if limit > 3 {
			text = text[:limit-3] + "..."
		} else {
			text = text[:limit]
		}
	}
	return text
}

// RenderReport renders the report sections in the configured format.
func RenderReport(cfg models.ReportOutput, p Payload) string {
	format := cfg.Format
	if format == "" {
		format = "markdown"
	}
	if format == "json" {
		doc := map[string]any{
			"agent":   p.AgentName,
			"summary": p.Summary,
			"items":   p.Items,
		}
		b, _ := json.MarshalIndent(doc, "", "  ")
		return string(b)
	}

	sections := cfg.Sections
	if len(sections) == 0 {
		sections = []models.ReportSection{
			{Title: "Summary", Content: "summary"},
			{Title: "Items", Content: "items"},
		}
	}

	var sb strings.Builder
	h := func(s string) { fmt.Fprintf(&sb, "## %s\n\n", s) }
	if format == "html" {
		h = func(s string) { fmt.Fprintf(&sb, "<h2>%s</h2>\n", s) }
	}
	if format == "markdown" {
		fmt.Fprintf(&sb, "# %s\n\n", p.AgentName)
	} else {
		fmt.Fprintf(&sb, "<h1>%s</h1>\n", p.AgentName)
	}
	for _, sec := range sections {
		h(sec.Title)
		switch sec.Content {
		case "summary":
			sb.WriteString(p.Summary)
		case "items":
			if format == "html" {
				sb.WriteString("<ul>\n")
				for _, it := range p.Items {
					fmt.Fprintf(&sb, "<li><a href=%q>%s</a> %s</li>\n", it.URL, it.Title, it.Summary)
				}
				sb.WriteString("</ul>")
			} else {
				for _, it := range p.Items {
					fmt.Fprintf(&sb, "- [%s](%s)", it.Title, it.URL)
					if it.Summary != "" {
						sb.WriteString(" - " + it.Summary)
					}
					sb.WriteString("\n")
				}
			}
		default:
			sb.WriteString(pipeline.RenderTemplate(sec.Template, p.templateData()))
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// RenderEmail renders subject and body, separated for the transport.
func RenderEmail(cfg models.EmailOutput, p Payload) (subject, body string) {
	data := p.templateData()
	return pipeline.RenderTemplate(cfg.Subject, data), pipeline.RenderTemplate(cfg.Template, data)
}

// RenderChat renders the slack/discord message text, falling back to a
// default digest when no template is configured.
func RenderChat(template string, p Payload) string {
	if template == "" {
		template = "*{agent}*\n{summary}\n{items}"
	}
	return pipeline.RenderTemplate(template, p.templateData())
}
