package runner_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/internal/runner"
	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// stubSource serves canned items, an error, or blocks until the run
// deadline, depending on configuration.
type stubSource struct {
	items []models.Item
	err   error
	block bool
}

func (s *stubSource) Fetch(ctx context.Context, _ models.DataSourceConfig, maxItems int) ([]models.Item, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	items := s.items
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// scriptedLLM returns canned completions in order.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (d *scriptedLLM) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	text := "ok"
	if d.calls < len(d.responses) {
		text = d.responses[d.calls]
	}
	d.calls++
	return &llm.Response{Text: text, InputTokens: 10, OutputTokens: 10}, nil
}

func stubItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{
			ID:      fmt.Sprintf("item-%d", i),
			Title:   fmt.Sprintf("Story %d", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Summary: "A test story",
		}
	}
	return items
}

func testDefinition(sources ...models.DataSourceConfig) *models.AgentDefinition {
	return &models.AgentDefinition{
		Metadata: models.AgentMetadata{
			Name:        "Digest",
			Slug:        "digest",
			Description: "Test digest agent",
			Category:    models.CategoryTechnology,
		},
		Sources: sources,
		Pipeline: []models.PipelineStep{
			{Kind: models.StepDedupe},
			{Kind: models.StepLimitFilter, MaxItems: 5},
		},
		Output: models.OutputConfig{
			SMS: models.SMSOutput{Enabled: true, Template: "{agent}: {count} items"},
		},
	}
}

func newRunner(st store.Store) *runner.Runner {
	return runner.New(
		source.NewService(nil),
		llm.NewClient(),
		output.NewDispatcher(""),
		pipeline.NewCustomRegistry(),
		st,
	)
}

func TestExecute_EndToEndRSS(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Feed</title>
<item><title>One</title><link>https://example.com/1</link><guid>g1</guid></item>
<item><title>Two</title><link>https://example.com/2</link><guid>g2</guid></item>
<item><title>One again</title><link>https://example.com/1</link><guid>g3</guid></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	def := testDefinition(models.DataSourceConfig{
		Kind: models.SourceBuiltin, SourceType: models.SourceRSS, FeedURL: srv.URL,
	})
	def.Pipeline = []models.PipelineStep{
		{Kind: models.StepDedupe, DedupeBy: "url"},
		{Kind: models.StepLimitFilter, MaxItems: 10},
	}

	res := newRunner(nil).Execute(context.Background(), def, models.RunContext{
		AgentID: "a1", TriggerType: models.TriggerManual, DryRun: true,
	})

	if !res.Success || res.Status != models.RunCompleted {
		t.Fatalf("status = %s success = %v errors = %v", res.Status, res.Success, res.Errors)
	}
	if res.Metrics.SourcesFetched != 1 {
		t.Errorf("SourcesFetched = %d, want 1", res.Metrics.SourcesFetched)
	}
	if res.Metrics.ItemsProcessed != 2 {
		t.Errorf("ItemsProcessed = %d, want 2 after url dedupe", res.Metrics.ItemsProcessed)
	}
	sms := res.Outputs[models.ChannelSMS]
	if sms != "Digest: 2 items" {
		t.Errorf("sms output = %q", sms)
	}
	if len(res.StepTraces) != 2 {
		t.Errorf("StepTraces = %d, want 2", len(res.StepTraces))
	}
}

func TestExecute_BudgetAbortKeepsPartialProgress(t *testing.T) {
	source.RegisterDriver(models.SourceGitHub, &stubSource{items: stubItems(3)})
	driver := &scriptedLLM{}
	llm.RegisterDriver("openai", driver)

	def := testDefinition(models.DataSourceConfig{
		Kind: models.SourceBuiltin, SourceType: models.SourceGitHub, Query: "golang",
	})
	def.Pipeline = []models.PipelineStep{
		{Kind: models.StepSummarize, PromptTemplateID: "digest-item", PerItem: true, Model: "gpt-4", MaxTokens: 100},
	}
	def.Safety = &models.SafetyConfig{MaxLLMCalls: 1}

	res := newRunner(nil).Execute(context.Background(), def, models.RunContext{AgentID: "a1", DryRun: true})

	if res.Status != models.RunAborted || res.Success {
		t.Fatalf("status = %s success = %v, want aborted/false", res.Status, res.Success)
	}
	if res.Metrics.LLMCallsMade != 1 {
		t.Errorf("LLMCallsMade = %d, want 1", res.Metrics.LLMCallsMade)
	}
	if res.Metrics.ItemsProcessed == 0 {
		t.Error("ItemsProcessed = 0, want partial progress retained")
	}
	if len(res.Errors) == 0 {
		t.Error("expected budget error recorded")
	}
}

func TestExecute_TimeoutDuringFetch(t *testing.T) {
	source.RegisterDriver(models.SourceReddit, &stubSource{block: true})

	def := testDefinition(models.DataSourceConfig{
		Kind: models.SourceBuiltin, SourceType: models.SourceReddit, Query: "golang",
	})
	def.Safety = &models.SafetyConfig{Timeout: 1}

	started := time.Now()
	res := newRunner(nil).Execute(context.Background(), def, models.RunContext{AgentID: "a1", DryRun: true})

	if res.Status != models.RunTimedOut || res.Success {
		t.Fatalf("status = %s success = %v, want timed_out/false", res.Status, res.Success)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Errorf("run took %s, deadline did not cut the fetch", elapsed)
	}
	if res.Metrics.DurationMs <= 0 {
		t.Error("DurationMs not recorded")
	}
}

func TestExecute_ValidationFailure(t *testing.T) {
	def := testDefinition() // no sources
	res := newRunner(nil).Execute(context.Background(), def, models.RunContext{AgentID: "a1"})

	if res.Success || res.Status != models.RunFailed {
		t.Fatalf("status = %s success = %v, want failed/false", res.Status, res.Success)
	}
	if len(res.Errors) == 0 || res.Errors[0].Step != "validate" {
		t.Errorf("errors = %v, want validate error first", res.Errors)
	}
}

func TestExecute_AllSourcesFailed(t *testing.T) {
	source.RegisterDriver(models.SourceGitHub, &stubSource{err: fmt.Errorf("upstream down")})

	def := testDefinition(models.DataSourceConfig{
		Kind: models.SourceBuiltin, SourceType: models.SourceGitHub, Query: "golang",
	})
	res := newRunner(nil).Execute(context.Background(), def, models.RunContext{AgentID: "a1", DryRun: true})

	if res.Success || res.Status != models.RunFailed {
		t.Fatalf("status = %s success = %v, want failed/false", res.Status, res.Success)
	}
	found := false
	for _, e := range res.Errors {
		if strings.HasPrefix(e.Step, "fetch:") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want a fetch error", res.Errors)
	}
}

func TestExecute_PersistsRunRecord(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	source.RegisterDriver(models.SourceGitHub, &stubSource{items: stubItems(2)})

	def := testDefinition(models.DataSourceConfig{
		Kind: models.SourceBuiltin, SourceType: models.SourceGitHub, Query: "golang",
	})
	r := newRunner(st)

	res := r.Execute(context.Background(), def, models.RunContext{
		AgentID: "a1", TriggerType: models.TriggerScheduled,
	})
	if res.Status != models.RunCompleted {
		t.Fatalf("status = %s, errors = %v", res.Status, res.Errors)
	}

	run, err := st.GetAgentRun(context.Background(), res.AgentRunID)
	if err != nil {
		t.Fatalf("GetAgentRun: %v", err)
	}
	if run.RunType != models.TriggerScheduled || run.Status != models.RunCompleted {
		t.Errorf("persisted run = %+v", run)
	}

	// Previews never persist.
	pres := r.Preview(context.Background(), def, models.RunContext{AgentID: "a1"})
	if _, err := st.GetAgentRun(context.Background(), pres.AgentRunID); err == nil {
		t.Error("preview run was persisted")
	}
}
