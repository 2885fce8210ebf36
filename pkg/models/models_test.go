package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

func validDefinition() *models.AgentDefinition {
	return &models.AgentDefinition{
		Metadata: models.AgentMetadata{
			Name:        "AI News Digest",
			Slug:        "ai-news-digest",
			Description: "Daily digest of AI news",
			Category:    models.CategoryTechnology,
		},
		Triggers: models.AgentTriggers{
			Commands: []models.Command{{Keyword: "AI"}},
		},
		Sources: []models.DataSourceConfig{
			{Kind: models.SourceBuiltin, SourceType: models.SourceRSS, FeedURL: "https://example.com/feed.xml"},
			{Kind: models.SourceBuiltin, SourceType: models.SourceHackerNews},
		},
		Pipeline: []models.PipelineStep{
			{Kind: models.StepDedupe},
			{Kind: models.StepSort, SortBy: "score", Order: "desc"},
			{Kind: models.StepLimitFilter, MaxItems: 10},
		},
		Collation: models.CollationConfig{Strategy: models.CollateMerge},
		Output: models.OutputConfig{
			SMS: models.SMSOutput{Enabled: true, Template: "{{summary}}"},
		},
	}
}

func TestValidate_ValidDefinition(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	def := validDefinition()
	def.Metadata.Slug = "Not A Slug"
	def.Sources = nil
	def.Output.SMS.Template = ""

	err := def.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	errs, ok := err.(models.ValidationErrors)
	if !ok {
		t.Fatalf("Validate() returned %T, want ValidationErrors", err)
	}
	if len(errs) != 3 {
		t.Errorf("len(errs) = %d, want 3: %v", len(errs), errs)
	}
	paths := map[string]bool{}
	for _, e := range errs {
		paths[e.Path] = true
	}
	for _, want := range []string{"metadata.slug", "sources", "output.sms.template"} {
		if !paths[want] {
			t.Errorf("missing error for path %q in %v", want, errs)
		}
	}
}

func TestValidate_EmptyPipeline(t *testing.T) {
	def := validDefinition()
	def.Pipeline = []models.PipelineStep{}
	err := def.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for empty pipeline")
	}
	errs, ok := err.(models.ValidationErrors)
	if !ok || len(errs) != 1 || errs[0].Path != "pipeline" {
		t.Errorf("errors = %v, want one at path pipeline", err)
	}
}

func TestValidate_TooManySources(t *testing.T) {
	def := validDefinition()
	for len(def.Sources) <= models.MaxSourcesPerAgent {
		def.Sources = append(def.Sources, models.DataSourceConfig{
			Kind: models.SourceBuiltin, SourceType: models.SourceHackerNews,
		})
	}
	if err := def.Validate(); err == nil {
		t.Error("Validate() = nil, want error for too many sources")
	}
}

func TestValidate_StepRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		step models.PipelineStep
	}{
		{"summarize missing prompt", models.PipelineStep{Kind: models.StepSummarize}},
		{"custom missing id", models.PipelineStep{Kind: models.StepCustom}},
		{"limit missing max", models.PipelineStep{Kind: models.StepLimitFilter}},
		{"regex bad pattern", models.PipelineStep{Kind: models.StepRegexFilter, Pattern: "("}},
		{"score missing min", models.PipelineStep{Kind: models.StepScoreFilter}},
		{"top_n missing n", models.PipelineStep{Kind: models.StepTopNFilter, SortBy: "score"}},
		{"translation missing lang", models.PipelineStep{Kind: models.StepTranslation}},
		{"agent missing prompts", models.PipelineStep{Kind: models.StepAgent}},
		{"unknown kind", models.PipelineStep{Kind: "explode"}},
	}
	for _, tc := range cases {
		def := validDefinition()
		def.Pipeline = []models.PipelineStep{tc.step}
		if err := def.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
		}
	}
}

func TestValidate_SafetyCeilings(t *testing.T) {
	def := validDefinition()
	def.Safety = &models.SafetyConfig{MaxLLMCalls: 21}
	if err := def.Validate(); err == nil {
		t.Error("Validate() = nil, want error for maxLLMCalls over ceiling")
	}

	def.Safety = &models.SafetyConfig{MaxTokensPerRun: 50001}
	if err := def.Validate(); err == nil {
		t.Error("Validate() = nil, want error for maxTokensPerRun over ceiling")
	}

	def.Safety = &models.SafetyConfig{Timeout: 301}
	if err := def.Validate(); err == nil {
		t.Error("Validate() = nil, want error for timeout over ceiling")
	}
}

func TestSafetyConfig_WithDefaults(t *testing.T) {
	got := models.SafetyConfig{}.WithDefaults()
	want := models.SafetyConfig{
		MaxSourcesPerRun:  5,
		MaxItemsPerSource: 50,
		MaxLLMCalls:       20,
		MaxTokensPerRun:   50000,
		Timeout:           300,
	}
	if got != want {
		t.Errorf("WithDefaults() = %+v, want %+v", got, want)
	}

	partial := models.SafetyConfig{MaxLLMCalls: 3}.WithDefaults()
	if partial.MaxLLMCalls != 3 {
		t.Errorf("WithDefaults() overwrote explicit MaxLLMCalls: %d", partial.MaxLLMCalls)
	}
}

func TestApplyDefaults_Steps(t *testing.T) {
	def := validDefinition()
	def.Pipeline = []models.PipelineStep{
		{Kind: models.StepDedupe},
		{Kind: models.StepSort},
		{Kind: models.StepSummarize, PromptTemplateID: "tpl-1"},
		{Kind: models.StepTextCleanup},
		{Kind: models.StepAgent, SystemPrompt: "s", UserPromptTemplate: "u"},
	}
	def.ApplyDefaults()

	if got := def.Pipeline[0].DedupeBy; got != "url" {
		t.Errorf("dedupe.dedupeBy = %q, want url", got)
	}
	if got := def.Pipeline[1].SortBy; got != "publishedAt" {
		t.Errorf("sort.sortBy = %q, want publishedAt", got)
	}
	if got := def.Pipeline[1].Order; got != "desc" {
		t.Errorf("sort.order = %q, want desc", got)
	}
	if got := def.Pipeline[2].MaxTokens; got != 1000 {
		t.Errorf("summarize.maxTokens = %d, want 1000", got)
	}
	if p := def.Pipeline[3].RemoveHTML; p == nil || !*p {
		t.Error("text_cleanup.removeHTML default should be true")
	}
	if got := def.Pipeline[4].OutputField; got != "agentOutput" {
		t.Errorf("agent.outputField = %q, want agentOutput", got)
	}
	if got := def.Pipeline[4].MaxTokens; got != 1024 {
		t.Errorf("agent.maxTokens = %d, want 1024", got)
	}
}

func TestDefinition_JSONRoundTrip(t *testing.T) {
	def := validDefinition()
	def.Safety = &models.SafetyConfig{MaxLLMCalls: 5, Timeout: 60}

	data, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back models.AgentDefinition
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Errorf("round-tripped definition invalid: %v", err)
	}
	if back.Safety.MaxLLMCalls != 5 {
		t.Errorf("Safety.MaxLLMCalls = %d, want 5", back.Safety.MaxLLMCalls)
	}
	if len(back.Pipeline) != len(def.Pipeline) {
		t.Errorf("pipeline length = %d, want %d", len(back.Pipeline), len(def.Pipeline))
	}
}

func TestMatchCommand(t *testing.T) {
	def := validDefinition()
	if !def.MatchCommand("ai") {
		t.Error("MatchCommand should be case-insensitive")
	}
	if def.MatchCommand("crypto") {
		t.Error("MatchCommand matched an unregistered keyword")
	}
}

func TestItem_SortKeys(t *testing.T) {
	var it models.Item
	if got := it.ScoreValue(); got != -1 {
		t.Errorf("missing score ranks %v, want -1", got)
	}
	if got := it.PublishedUnix(); got != 0 {
		t.Errorf("missing publishedAt ranks %v, want 0", got)
	}

	score := 0.9
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	it = models.Item{Score: &score, PublishedAt: &ts}
	if got := it.ScoreValue(); got != 0.9 {
		t.Errorf("ScoreValue() = %v, want 0.9", got)
	}
	if got := it.PublishedUnix(); got != ts.UnixMilli() {
		t.Errorf("PublishedUnix() = %v, want %v", got, ts.UnixMilli())
	}
}

func TestItem_Field(t *testing.T) {
	it := models.Item{Title: "hello"}
	it.SetExtra("custom", 42)

	if v, ok := it.Field("title"); !ok || v != "hello" {
		t.Errorf("Field(title) = %v, %v", v, ok)
	}
	if v, ok := it.Field("custom"); !ok || v != 42 {
		t.Errorf("Field(custom) = %v, %v", v, ok)
	}
	if _, ok := it.Field("score"); ok {
		t.Error("Field(score) should be absent when nil")
	}
}

func TestIsLLM_BudgetConsumingKinds(t *testing.T) {
	llmKinds := []models.StepKind{
		models.StepSummarize, models.StepRank, models.StepTransform,
		models.StepScoringRank, models.StepTranslation, models.StepAgent,
	}
	for _, k := range llmKinds {
		if !(models.PipelineStep{Kind: k}).IsLLM() {
			t.Errorf("step %s should consume LLM budget", k)
		}
	}
	for _, k := range []models.StepKind{models.StepDedupe, models.StepSentimentAnalysis, models.StepTextCleanup} {
		if (models.PipelineStep{Kind: k}).IsLLM() {
			t.Errorf("step %s should not consume LLM budget", k)
		}
	}
}

func TestStepErrorPolicy_Default(t *testing.T) {
	def := validDefinition()
	if got := def.StepErrorPolicy(); got != models.StepErrorAbort {
		t.Errorf("default policy = %q, want abort", got)
	}
	def.Execution = &models.ExecutionConfig{OnStepError: models.StepErrorSkip}
	if got := def.StepErrorPolicy(); got != models.StepErrorSkip {
		t.Errorf("policy = %q, want skip", got)
	}
}
