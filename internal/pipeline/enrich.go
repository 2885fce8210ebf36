package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Enrichment steps that annotate items in place. Except for translation
// and enrich_data these are local heuristics with no external calls.

func init() {
	RegisterHandler(models.StepSentimentAnalysis, handleSentimentAnalysis)
	RegisterHandler(models.StepEntityExtraction, handleEntityExtraction)
	RegisterHandler(models.StepCategoryClassification, handleCategoryClassification)
	RegisterHandler(models.StepTranslation, handleTranslation)
	RegisterHandler(models.StepTextCleanup, handleTextCleanup)
	RegisterHandler(models.StepURLExtraction, handleURLExtraction)
	RegisterHandler(models.StepEnrichData, handleEnrichData)
}

// ── Sentiment ────────────────────────────────────────────────

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "amazing": true,
	"love": true, "best": true, "win": true, "wins": true, "success": true,
	"breakthrough": true, "improve": true, "improved": true, "growth": true,
	"record": true, "strong": true, "positive": true, "surge": true,
}

var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "awful": true, "hate": true, "worst": true,
	"fail": true, "fails": true, "failure": true, "crash": true, "drop": true,
	"decline": true, "loss": true, "losses": true, "weak": true, "negative": true,
	"crisis": true, "breach": true, "lawsuit": true, "layoff": true, "layoffs": true,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "hardly": true,
}

// classifySentiment is a lexicon count over the item text. The
// "advanced" model additionally flips words preceded by a negation.
func classifySentiment(text, model string) models.Sentiment {
	words := strings.Fields(strings.ToLower(text))
	score := 0
	for i, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		delta := 0
		if positiveWords[w] {
			delta = 1
		} else if negativeWords[w] {
			delta = -1
		}
		if delta == 0 {
			continue
		}
		if model == "advanced" && i > 0 && negations[strings.Trim(words[i-1], ".,!?;:\"'()")] {
			delta = -delta
		}
		score += delta
	}
	switch {
	case score > 0:
		return models.SentimentPositive
	case score < 0:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func handleSentimentAnalysis(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Sentiment = classifySentiment(itemText(out[i]), step.Model)
	}
	return out, nil
}

// ── Entities ─────────────────────────────────────────────────

// capitalizedRun matches sequences of capitalized words ("Sam Altman",
// "New York Times").
var capitalizedRun = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)

var dateLike = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?)\b`)

var orgSuffixes = []string{"Inc", "Corp", "Ltd", "LLC", "Labs", "AI", "Technologies", "Systems", "University"}

func handleEntityExtraction(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	wantDates := false
	for _, t := range step.EntityTypes {
		if t == "date" {
			wantDates = true
		}
	}
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		text := itemText(out[i])
		seen := map[string]bool{}
		var entities []string
		for _, m := range capitalizedRun.FindAllString(text, -1) {
			// Single common words capitalized at sentence start are noise.
			if !strings.Contains(m, " ") && len(m) < 4 {
				continue
			}
			if !seen[m] {
				seen[m] = true
				entities = append(entities, m)
			}
		}
		if wantDates {
			for _, m := range dateLike.FindAllString(text, -1) {
				if !seen[m] {
					seen[m] = true
					entities = append(entities, m)
				}
			}
		}
		out[i].Entities = entities
	}
	return out, nil
}

// ── Categories ───────────────────────────────────────────────

var defaultCategoryKeywords = map[string][]string{
	"technology":    {"software", "ai", "startup", "app", "tech", "compute", "chip"},
	"finance":       {"stock", "market", "investment", "bank", "revenue", "earnings"},
	"crypto":        {"bitcoin", "ethereum", "crypto", "blockchain", "token"},
	"science":       {"research", "study", "paper", "experiment", "discovery"},
	"health":        {"health", "medical", "disease", "treatment", "vaccine"},
	"entertainment": {"movie", "music", "game", "show", "celebrity"},
}

func handleCategoryClassification(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	keywords := defaultCategoryKeywords
	if len(step.Categories) > 0 {
		keywords = make(map[string][]string, len(step.Categories))
		for _, c := range step.Categories {
			// Custom categories match on their own name.
			keywords[c] = []string{strings.ToLower(c)}
		}
	}
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		text := strings.ToLower(itemText(out[i]))
		var cats []string
		for cat, kws := range keywords {
			for _, kw := range kws {
				if strings.Contains(text, kw) {
					cats = append(cats, cat)
					break
				}
			}
		}
		if len(cats) == 0 {
			cats = []string{"other"}
		}
		out[i].Categories = cats
	}
	return out, nil
}

// ── Translation ──────────────────────────────────────────────

// handleTranslation translates the configured fields per item through
// the LLM client. One call per item; the step is budget-bounded like
// any other LLM step.
func handleTranslation(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(perItemConcurrency)
	for i := range out {
		g.Go(func() error {
			var parts []string
			for _, f := range step.TranslateFields {
				parts = append(parts, regexField(out[i], f))
			}
			resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
				Model: "gpt-4",
				System: fmt.Sprintf("Translate to %s. Respond with a JSON array of the translated "+
					"texts in input order, nothing else.", step.TargetLanguage),
				Prompt:    strings.Join(parts, "\n---\n"),
				MaxTokens: models.DefaultStepTokens,
			})
			if err != nil {
				return err
			}
			arr := gjson.Parse(extractJSON(resp.Text))
			if !arr.IsArray() {
				return fmt.Errorf("translation response: expected a JSON array")
			}
			translated := arr.Array()
			for j, f := range step.TranslateFields {
				if j >= len(translated) {
					break
				}
				setField(&out[i], f, translated[j].String())
			}
			out[i].Language = step.TargetLanguage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Text Cleanup ─────────────────────────────────────────────

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	emojiRe      = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}]`)
)

func cleanupText(s string, step models.PipelineStep) string {
	if step.RemoveHTML == nil || *step.RemoveHTML {
		s = htmlTagRe.ReplaceAllString(s, " ")
		s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	}
	if step.RemoveEmojis {
		s = emojiRe.ReplaceAllString(s, "")
	}
	if step.NormalizeWhitespace == nil || *step.NormalizeWhitespace {
		s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	}
	return s
}

func handleTextCleanup(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Title = cleanupText(out[i].Title, step)
		out[i].Summary = cleanupText(out[i].Summary, step)
		out[i].Content = cleanupText(out[i].Content, step)
	}
	return out, nil
}

// ── URL Extraction ───────────────────────────────────────────

// handleURLExtraction annotates items with their link's domain and,
// when enabled, resolves short links by following redirects.
func handleURLExtraction(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].URL == "" {
			continue
		}
		if step.ExpandShortLinks != nil && *step.ExpandShortLinks && isShortLink(out[i].URL) {
			if expanded := expandURL(ctx, env, out[i].URL); expanded != "" {
				out[i].URL = expanded
			}
		}
		if step.ExtractDomain == nil || *step.ExtractDomain {
			if u, err := url.Parse(out[i].URL); err == nil {
				out[i].SetExtra("domain", strings.TrimPrefix(u.Hostname(), "www."))
			}
		}
	}
	return out, nil
}

var shortHosts = map[string]bool{
	"bit.ly": true, "t.co": true, "goo.gl": true, "tinyurl.com": true,
	"buff.ly": true, "ow.ly": true, "dlvr.it": true,
}

func isShortLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return shortHosts[u.Hostname()]
}

func expandURL(ctx context.Context, env *Env, raw string) string {
	req, err := newHeadRequest(ctx, raw)
	if err != nil {
		return ""
	}
	resp, err := env.HTTP.Do(req)
	if err != nil {
		return ""
	}
	resp.Body.Close()
	return resp.Request.URL.String()
}

// ── Enrich Data ──────────────────────────────────────────────

// handleEnrichData calls an external API per item and copies response
// fields onto the item. fieldMapping is responsePath→itemField; without
// one the whole response lands under "enrichment".
func handleEnrichData(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(perItemConcurrency)
	for i := range out {
		g.Go(func() error {
			apiURL := RenderTemplate(step.APIURL, TemplateData(env.Profile, &out[i]))
			req, err := newGetRequest(ctx, apiURL, step.Headers)
			if err != nil {
				return fmt.Errorf("enrich request: %w", err)
			}
			resp, err := env.HTTP.Do(req)
			if err != nil {
				return fmt.Errorf("enrich %s: %w", apiURL, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("enrich %s: status %d", apiURL, resp.StatusCode)
			}
			body, err := readCapped(resp.Body)
			if err != nil {
				return err
			}
			if len(step.FieldMapping) == 0 {
				out[i].SetExtra("enrichment", gjson.ParseBytes(body).Value())
				return nil
			}
			doc := gjson.ParseBytes(body)
			for path, field := range step.FieldMapping {
				if v := doc.Get(path); v.Exists() {
					setField(&out[i], field, v.Value())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
