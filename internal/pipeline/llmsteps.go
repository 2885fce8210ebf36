package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// LLM-backed steps. Every completion goes through env.LLM, which
// charges the safety governor before the request leaves the process;
// a budget error from any of these stops the run as aborted.

func init() {
	RegisterHandler(models.StepSummarize, handleSummarize)
	RegisterHandler(models.StepRank, handleRank)
	RegisterHandler(models.StepTransform, handleTransform)
	RegisterHandler(models.StepScoringRank, handleScoringRank)
	RegisterHandler(models.StepAgent, handleAgent)
}

// ArtifactSummary is the Artifacts key holding the aggregate summary
// consumed by the {summary} output placeholder.
const ArtifactSummary = "summary"

// perItemConcurrency bounds parallel per-item completions.
const perItemConcurrency = 4

// handleSummarize writes item summaries. With perItem it rewrites each
// item's Summary concurrently; otherwise it produces one digest of the
// whole list and stores it as the run's summary artifact.
func handleSummarize(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	if !step.PerItem {
		prompt := RenderTemplate(step.PromptTemplateID, TemplateData(env.Profile, nil))
		resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
			Model:     step.Model,
			System:    "You summarize content lists into short digests. Respond with the digest only.",
			Prompt:    prompt + "\n\nItems:\n" + ItemsDigest(items),
			MaxTokens: step.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		env.Artifacts[ArtifactSummary] = strings.TrimSpace(resp.Text)
		return items, nil
	}

	out := make([]models.Item, len(items))
	copy(out, items)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(perItemConcurrency)
	for i := range out {
		g.Go(func() error {
			data := TemplateData(env.Profile, &out[i])
			resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
				Model:     step.Model,
				System:    "You summarize one content item in 2-3 sentences. Respond with the summary only.",
				Prompt:    RenderTemplate(step.PromptTemplateID, data) + "\n\n" + firstNonEmpty(out[i].Content, out[i].Summary, out[i].Title),
				MaxTokens: step.MaxTokens,
			})
			if err != nil {
				return err
			}
			out[i].Summary = strings.TrimSpace(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// handleRank asks the model to reorder items by relevance. The model
// answers with a JSON array of item numbers; unparseable answers fail
// the step rather than silently reordering.
func handleRank(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) < 2 {
		return items, nil
	}
	prompt := RenderTemplate(step.PromptTemplateID, TemplateData(env.Profile, nil))
	resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
		Model: step.Model,
		System: "You rank content items by relevance. Respond with only a JSON array " +
			"of item numbers, most relevant first, e.g. [3,1,2].",
		Prompt:    prompt + "\n\nItems:\n" + ItemsDigest(items),
		MaxTokens: 256,
	})
	if err != nil {
		return nil, err
	}

	order, err := parseIndexOrder(resp.Text, len(items))
	if err != nil {
		return nil, fmt.Errorf("rank response: %w", err)
	}
	out := make([]models.Item, 0, len(items))
	for _, idx := range order {
		out = append(out, items[idx])
	}
	return out, nil
}

// parseIndexOrder extracts a 1-based permutation from model output,
// appending any omitted items in original order.
func parseIndexOrder(text string, n int) ([]int, error) {
	arr := gjson.Parse(extractJSON(text))
	if !arr.IsArray() {
		return nil, fmt.Errorf("expected a JSON array, got %q", truncate(text, 120))
	}
	seen := make(map[int]bool, n)
	var order []int
	for _, v := range arr.Array() {
		idx := int(v.Int()) - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no valid item numbers in %q", truncate(text, 120))
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}

// extractJSON trims chatter around the first JSON array or object in
// model output.
func extractJSON(text string) string {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return text
	}
	closer := byte(']')
	if text[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return text[start:]
	}
	return text[start : end+1]
}

// handleTransform rewrites items through one completion. JSON output is
// merged back onto the items by number; text and markdown output lands
// in the artifacts under the step label.
func handleTransform(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	prompt := RenderTemplate(step.PromptTemplateID, TemplateData(env.Profile, nil))

	system := "You transform content items per the instructions."
	if step.OutputFormat == "json" {
		system += " Respond with only a JSON array, one object per input item number, " +
			`like [{"item":1,"title":"...","summary":"..."}].`
	}
	resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
		Model:     step.Model,
		System:    system,
		Prompt:    prompt + "\n\nItems:\n" + ItemsDigest(items),
		MaxTokens: models.MaxStepTokens,
	})
	if err != nil {
		return nil, err
	}

	if step.OutputFormat != "json" {
		env.Artifacts[step.Label()] = strings.TrimSpace(resp.Text)
		return items, nil
	}

	arr := gjson.Parse(extractJSON(resp.Text))
	if !arr.IsArray() {
		return nil, fmt.Errorf("transform response: expected a JSON array, got %q", truncate(resp.Text, 120))
	}
	out := make([]models.Item, len(items))
	copy(out, items)
	for _, obj := range arr.Array() {
		idx := int(obj.Get("item").Int()) - 1
		if idx < 0 || idx >= len(out) {
			continue
		}
		if v := obj.Get("title"); v.Exists() {
			out[idx].Title = v.String()
		}
		if v := obj.Get("summary"); v.Exists() {
			out[idx].Summary = v.String()
		}
		if v := obj.Get("content"); v.Exists() {
			out[idx].Content = v.String()
		}
	}
	return out, nil
}

// handleScoringRank scores every item against free-form criteria in a
// single completion, recording score and relevance reason.
func handleScoringRank(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
		Model: step.Model,
		System: "You score content items 0.0-1.0 against given criteria. Respond with only " +
			`a JSON array like [{"item":1,"score":0.8,"reason":"..."}].`,
		Prompt:    "Criteria: " + step.Criteria + "\n\nItems:\n" + ItemsDigest(items),
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	arr := gjson.Parse(extractJSON(resp.Text))
	if !arr.IsArray() {
		return nil, fmt.Errorf("scoring response: expected a JSON array, got %q", truncate(resp.Text, 120))
	}
	out := make([]models.Item, len(items))
	copy(out, items)
	for _, obj := range arr.Array() {
		idx := int(obj.Get("item").Int()) - 1
		if idx < 0 || idx >= len(out) {
			continue
		}
		score := obj.Get("score").Float()
		out[idx].Score = &score
		if reason := obj.Get("reason").String(); reason != "" {
			out[idx].RelevanceReason = reason
		}
	}
	return out, nil
}

// handleAgent runs a free-form prompt per item and stores the response
// under the step's output field.
func handleAgent(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(perItemConcurrency)
	for i := range out {
		g.Go(func() error {
			data := TemplateData(env.Profile, &out[i])
			resp, err := env.LLM.Complete(ctx, env.Gov, llm.Request{
				Model:     step.Model,
				System:    RenderTemplate(step.SystemPrompt, data),
				Prompt:    RenderTemplate(step.UserPromptTemplate, data),
				MaxTokens: step.MaxTokens,
			})
			if err != nil {
				return err
			}
			out[i].SetExtra(step.OutputField, strings.TrimSpace(resp.Text))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
