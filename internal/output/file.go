package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── File Sender ──────────────────────────────────────────────

// RenderFile produces the file channel's content in the configured
// format (json by default).
func RenderFile(cfg models.FileOutput, p Payload) string {
	switch cfg.Format {
	case "csv":
		return sheetsCSV(p)
	case "markdown":
		return RenderReport(models.ReportOutput{Format: "markdown"}, p)
	default:
		return webhookBody(p)
	}
}

// sheetsCSV renders items as CSV rows; shared by the sheets and file
// channels.
func sheetsCSV(p Payload) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write([]string{"id", "title", "summary", "url", "author", "publishedAt", "score", "source"})
	for _, it := range p.Items {
		score := ""
		if it.Score != nil {
			score = fmt.Sprintf("%.3f", *it.Score)
		}
		published := ""
		if it.PublishedAt != nil {
			published = it.PublishedAt.Format(time.RFC3339)
		}
		w.Write([]string{it.ID, it.Title, it.Summary, it.URL, it.Author, published, score, it.SourceID})
	}
	w.Flush()
	return sb.String()
}

// FileSender writes the rendered content into the configured output
// directory. Filenames default to <agent>-<runID>.<ext>.
type FileSender struct {
	dir string
}

func (s *FileSender) Kind() models.ChannelKind { return models.ChannelFile }

func (s *FileSender) Send(_ context.Context, cfg models.OutputConfig, p Payload, rendered string) error {
	dir := s.dir
	if dir == "" {
		dir = "."
	}
	name := cfg.File.Filename
	if name == "" {
		ext := "json"
		switch cfg.File.Format {
		case "csv":
			ext = "csv"
		case "markdown":
			ext = "md"
		}
		name = fmt.Sprintf("%s-%s.%s", slugify(p.AgentName), p.RunID, ext)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// RenderChatTitleBody renders a push notification as "title\nbody".
func RenderChatTitleBody(title, body string, data map[string]any) string {
	return pipeline.RenderTemplate(title, data) + "\n" + pipeline.RenderTemplate(body, data)
}
