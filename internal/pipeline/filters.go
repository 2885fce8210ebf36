package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Structural and filtering steps. All of them are pure item-list
// transformations with no external calls.

func init() {
	RegisterHandler(models.StepFetch, handleFetch)
	RegisterHandler(models.StepDedupe, handleDedupe)
	RegisterHandler(models.StepFilter, handleFilter)
	RegisterHandler(models.StepSort, handleSort)
	RegisterHandler(models.StepCustom, handleCustom)
	RegisterHandler(models.StepDateFilter, handleDateFilter)
	RegisterHandler(models.StepKeywordFilter, handleKeywordFilter)
	RegisterHandler(models.StepLimitFilter, handleLimitFilter)
	RegisterHandler(models.StepSentimentFilter, handleSentimentFilter)
	RegisterHandler(models.StepLengthFilter, handleLengthFilter)
	RegisterHandler(models.StepScoreFilter, handleScoreFilter)
	RegisterHandler(models.StepRegexFilter, handleRegexFilter)
	RegisterHandler(models.StepAuthorFilter, handleAuthorFilter)
	RegisterHandler(models.StepLanguageFilter, handleLanguageFilter)
	RegisterHandler(models.StepTopNFilter, handleTopNFilter)
	RegisterHandler(models.StepRandomSampleFilter, handleRandomSample)
	RegisterHandler(models.StepHasMediaFilter, handleHasMediaFilter)
	RegisterHandler(models.StepFieldMapping, handleFieldMapping)
	RegisterHandler(models.StepMergeItems, handleMergeItems)
}

// handleFetch is a no-op: sources are fetched before the pipeline runs,
// and the step exists so definitions can mark the boundary explicitly.
func handleFetch(_ context.Context, _ *Env, _ models.PipelineStep, items []models.Item) ([]models.Item, error) {
	return items, nil
}

func dedupeKey(it models.Item, by string) string {
	switch by {
	case "id":
		return it.ID
	case "title":
		return strings.ToLower(strings.TrimSpace(it.Title))
	default:
		return it.URL
	}
}

// handleDedupe keeps the first occurrence of each key. Items with an
// empty key are always kept.
func handleDedupe(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		key := dedupeKey(it, step.DedupeBy)
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, it)
	}
	return out, nil
}

func handleFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := items
	if step.MinScore != nil {
		kept := out[:0:0]
		for _, it := range out {
			if it.Score != nil && *it.Score >= *step.MinScore {
				kept = append(kept, it)
			}
		}
		out = kept
	}
	if step.MaxItems > 0 && len(out) > step.MaxItems {
		out = out[:step.MaxItems]
	}
	return out, nil
}

func sortItems(items []models.Item, sortBy, order string) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	asc := order == "asc"
	less := func(a, b models.Item) bool { return a.PublishedUnix() < b.PublishedUnix() }
	switch sortBy {
	case "score", "relevance":
		less = func(a, b models.Item) bool { return a.ScoreValue() < b.ScoreValue() }
	}
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

func handleSort(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	return sortItems(items, step.SortBy, step.Order), nil
}

func handleCustom(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if env.Custom == nil {
		return nil, fmt.Errorf("custom step %q: no custom registry configured", step.CustomStepID)
	}
	fn, ok := env.Custom.Get(step.CustomStepID)
	if !ok {
		return nil, fmt.Errorf("custom step %q is not registered", step.CustomStepID)
	}
	return fn(ctx, step.Config, items)
}

func handleDateFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	var start, end time.Time
	if step.TimeRange != "" {
		if d := step.TimeRange.Duration(); d > 0 {
			start = time.Now().Add(-d)
		}
	}
	if step.StartDate != "" {
		t, err := time.Parse(time.RFC3339, step.StartDate)
		if err != nil {
			t, err = time.Parse("2006-01-02", step.StartDate)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid startDate %q", step.StartDate)
		}
		start = t
	}
	if step.EndDate != "" {
		t, err := time.Parse(time.RFC3339, step.EndDate)
		if err != nil {
			t, err = time.Parse("2006-01-02", step.EndDate)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid endDate %q", step.EndDate)
		}
		end = t
	}

	out := items[:0:0]
	for _, it := range items {
		if it.PublishedAt == nil {
			continue
		}
		if !start.IsZero() && it.PublishedAt.Before(start) {
			continue
		}
		if !end.IsZero() && it.PublishedAt.After(end) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func itemText(it models.Item) string {
	return it.Title + " " + it.Summary + " " + it.Content
}

func handleKeywordFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	match := func(text, kw string) bool {
		if step.CaseSensitive {
			return strings.Contains(text, kw)
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(kw))
	}
	out := items[:0:0]
	for _, it := range items {
		text := itemText(it)
		keep := len(step.Include) == 0
		for _, kw := range step.Include {
			if match(text, kw) {
				keep = true
				break
			}
		}
		for _, kw := range step.Exclude {
			if match(text, kw) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, it)
		}
	}
	return out, nil
}

func handleLimitFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) > step.MaxItems {
		return items[:step.MaxItems], nil
	}
	return items, nil
}

func handleSentimentFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := items[:0:0]
	for _, it := range items {
		if it.Sentiment == step.Sentiment {
			out = append(out, it)
		}
	}
	return out, nil
}

func handleLengthFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	measure := func(s string) int { return len(s) }
	if step.MeasureBy == "words" {
		measure = func(s string) int { return len(strings.Fields(s)) }
	}
	out := items[:0:0]
	for _, it := range items {
		n := measure(firstNonEmpty(it.Content, it.Summary, it.Title))
		if step.MinLength != nil && n < *step.MinLength {
			continue
		}
		if step.MaxLength != nil && n > *step.MaxLength {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func handleScoreFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if step.MinScore == nil {
		return items, nil
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Score != nil && *it.Score >= *step.MinScore {
			out = append(out, it)
		}
	}
	return out, nil
}

func regexField(it models.Item, field string) string {
	switch field {
	case "title":
		return it.Title
	case "content":
		return it.Content
	default:
		return it.Summary
	}
}

func handleRegexFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	re, err := regexp.Compile(step.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	out := items[:0:0]
	for _, it := range items {
		if re.MatchString(regexField(it, step.Field)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func handleAuthorFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	contains := func(list []string, author string) bool {
		for _, a := range list {
			if strings.EqualFold(a, author) {
				return true
			}
		}
		return false
	}
	out := items[:0:0]
	for _, it := range items {
		if len(step.Include) > 0 && !contains(step.Include, it.Author) {
			continue
		}
		if contains(step.Exclude, it.Author) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// handleLanguageFilter keeps items whose detected language matches.
// Items with no language tag pass through; run language detection or
// a translation step first for strict filtering.
func handleLanguageFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	want := make(map[string]bool, len(step.Languages))
	for _, l := range step.Languages {
		want[strings.ToLower(l)] = true
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Language == "" || want[strings.ToLower(it.Language)] {
			out = append(out, it)
		}
	}
	return out, nil
}

func handleTopNFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	sorted := sortItems(items, step.SortBy, "desc")
	if len(sorted) > step.N {
		sorted = sorted[:step.N]
	}
	return sorted, nil
}

// handleRandomSample draws without replacement using the run's seeded
// source, so previews are reproducible.
func handleRandomSample(_ context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	if len(items) <= step.SampleSize {
		return items, nil
	}
	idx := env.Rand.Perm(len(items))[:step.SampleSize]
	sort.Ints(idx)
	out := make([]models.Item, 0, step.SampleSize)
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out, nil
}

func handleHasMediaFilter(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := items[:0:0]
	for _, it := range items {
		hasImage := it.ImageURL != ""
		hasVideo := it.VideoURL != ""
		keep := false
		switch step.MediaType {
		case "image":
			keep = hasImage
		case "video":
			keep = hasVideo
		default:
			keep = hasImage || hasVideo
		}
		if keep {
			out = append(out, it)
		}
	}
	return out, nil
}

// handleFieldMapping copies fields under new names: mappings are
// source→target, targets landing in typed slots when the name matches
// one, otherwise in Extra.
func handleFieldMapping(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := range out {
		for src, dst := range step.Mappings {
			v, ok := out[i].Field(src)
			if !ok {
				continue
			}
			setField(&out[i], dst, v)
		}
	}
	return out, nil
}

func setField(it *models.Item, name string, v any) {
	s, isStr := v.(string)
	switch name {
	case "title":
		if isStr {
			it.Title = s
			return
		}
	case "summary":
		if isStr {
			it.Summary = s
			return
		}
	case "content":
		if isStr {
			it.Content = s
			return
		}
	case "url":
		if isStr {
			it.URL = s
			return
		}
	case "author":
		if isStr {
			it.Author = s
			return
		}
	}
	it.SetExtra(name, v)
}

// handleMergeItems folds duplicates into one item, concatenating
// summaries and keeping the best score.
func handleMergeItems(_ context.Context, _ *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error) {
	index := make(map[string]int)
	var out []models.Item
	for _, it := range items {
		key := dedupeKey(it, step.MergeBy)
		if key == "" {
			out = append(out, it)
			continue
		}
		if j, ok := index[key]; ok {
			merged := &out[j]
			if it.Summary != "" && !strings.Contains(merged.Summary, it.Summary) {
				merged.Summary = strings.TrimSpace(merged.Summary + "\n" + it.Summary)
			}
			if it.Score != nil && (merged.Score == nil || *it.Score > *merged.Score) {
				merged.Score = it.Score
			}
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
