package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kochi-intel/agent-engine/internal/api"
	"github.com/kochi-intel/agent-engine/internal/api/handlers"
	"github.com/kochi-intel/agent-engine/internal/catalog"
	"github.com/kochi-intel/agent-engine/internal/config"
	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/internal/resolver"
	"github.com/kochi-intel/agent-engine/internal/runner"
	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// stubSource serves canned items for API-level tests.
type stubSource struct{ items []models.Item }

func (s *stubSource) Fetch(_ context.Context, _ models.DataSourceConfig, maxItems int) ([]models.Item, error) {
	items := s.items
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

func newTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	sources := source.NewService(resolver.NewResolver(st))
	dispatcher := output.NewDispatcher(t.TempDir())
	run := runner.New(sources, llm.NewClient(), dispatcher, pipeline.NewCustomRegistry(), st)
	h := handlers.New(st, run, catalog.New(dispatcher))
	return api.NewRouter(config.Load(), h), st
}

func definitionJSON() []byte {
	def := models.AgentDefinition{
		Metadata: models.AgentMetadata{
			Name:        "Tech Digest",
			Slug:        "tech-digest",
			Description: "Tech headlines on demand",
			Category:    models.CategoryTechnology,
		},
		Triggers: models.AgentTriggers{
			Commands: []models.Command{{Keyword: "tech"}},
		},
		Sources: []models.DataSourceConfig{
			{Kind: models.SourceBuiltin, SourceType: models.SourceStockPrice, Query: "ACME"},
		},
		Pipeline: []models.PipelineStep{
			{Kind: models.StepDedupe},
			{Kind: models.StepLimitFilter, MaxItems: 3},
		},
		Output: models.OutputConfig{
			SMS: models.SMSOutput{Enabled: true, Template: "{agent}: {count}"},
		},
	}
	b, _ := json.Marshal(def)
	return b
}

func doJSON(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]any
	json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestValidateEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/v1/agents/validate", definitionJSON())
	if w.Code != http.StatusOK || body["valid"] != true {
		t.Errorf("valid definition: status = %d body = %v", w.Code, body)
	}

	var def models.AgentDefinition
	json.Unmarshal(definitionJSON(), &def)
	def.Sources = nil
	bad, _ := json.Marshal(def)

	w, body = doJSON(t, h, http.MethodPost, "/api/v1/agents/validate", bad)
	if w.Code != http.StatusUnprocessableEntity || body["valid"] != false {
		t.Errorf("invalid definition: status = %d body = %v", w.Code, body)
	}
}

func TestVersionAndExecuteFlow(t *testing.T) {
	source.RegisterDriver(models.SourceStockPrice, &stubSource{items: []models.Item{
		{ID: "1", Title: "ACME up 5%"},
		{ID: "2", Title: "ACME down 2%"},
	}})

	h, _ := newTestServer(t)

	// Store a version
	w, created := doJSON(t, h, http.MethodPost, "/api/v1/agents/acme-watch/versions", definitionJSON())
	if w.Code != http.StatusCreated {
		t.Fatalf("create version: status = %d body = %v", w.Code, created)
	}
	if created["version"] != "0.1.0" {
		t.Errorf("first version = %v, want 0.1.0", created["version"])
	}

	// A second revision bumps the patch number
	w, second := doJSON(t, h, http.MethodPost, "/api/v1/agents/acme-watch/versions", definitionJSON())
	if w.Code != http.StatusCreated || second["version"] != "0.1.1" {
		t.Errorf("second version = %v, want 0.1.1", second["version"])
	}

	// Execute the latest version
	w, result := doJSON(t, h, http.MethodPost, "/api/v1/agents/acme-watch/execute",
		[]byte(`{"triggerType":"manual","dryRun":true}`))
	if w.Code != http.StatusOK {
		t.Fatalf("execute: status = %d body = %v", w.Code, result)
	}
	if result["success"] != true || result["status"] != "completed" {
		t.Errorf("run result = %v", result)
	}
	outputs := result["outputs"].(map[string]any)
	if outputs["sms"] != "Tech Digest: 2" {
		t.Errorf("sms output = %v", outputs["sms"])
	}

	// Dry runs are not persisted
	w, runs := doJSON(t, h, http.MethodGet, "/api/v1/agents/acme-watch/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list runs: status = %d body = %v", w.Code, runs)
	}
}

func TestExecute_CommandMatching(t *testing.T) {
	source.RegisterDriver(models.SourceStockPrice, &stubSource{items: []models.Item{{ID: "1", Title: "x"}}})
	h, _ := newTestServer(t)

	if w, _ := doJSON(t, h, http.MethodPost, "/api/v1/agents/a1/versions", definitionJSON()); w.Code != http.StatusCreated {
		t.Fatalf("create version failed: %d", w.Code)
	}

	// Keyword matching is case-insensitive
	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/agents/a1/execute",
		[]byte(`{"command":"TECH","dryRun":true}`))
	if w.Code != http.StatusOK {
		t.Errorf("matching command: status = %d", w.Code)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/agents/a1/execute",
		[]byte(`{"command":"sports","dryRun":true}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("unmatched command: status = %d, want 404", w.Code)
	}
}

func TestExecute_UnknownAgent(t *testing.T) {
	h, _ := newTestServer(t)
	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/agents/ghost/execute", []byte(`{}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUserSourceCRUD(t *testing.T) {
	h, _ := newTestServer(t)

	src := models.UserSource{
		Name: "My Feed",
		Config: models.DataSourceConfig{
			Kind: models.SourceBuiltin, SourceType: models.SourceRSS, FeedURL: "https://example.com/f.xml",
		},
	}
	b, _ := json.Marshal(src)
	w, created := doJSON(t, h, http.MethodPost, "/api/v1/sources", b)
	if w.Code != http.StatusCreated {
		t.Fatalf("create source: status = %d body = %v", w.Code, created)
	}
	id := created["id"].(string)

	w, got := doJSON(t, h, http.MethodGet, "/api/v1/sources/"+id, nil)
	if w.Code != http.StatusOK || got["name"] != "My Feed" {
		t.Errorf("get source: status = %d body = %v", w.Code, got)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sources/"+id, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete source: status = %d", rec.Code)
	}
}

func TestCapabilitiesEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	w, body := doJSON(t, h, http.MethodGet, "/api/v1/capabilities", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	steps := body["steps"].([]any)
	if len(steps) != len(models.StepKinds) {
		t.Errorf("steps = %d, want %d", len(steps), len(models.StepKinds))
	}
	if _, ok := body["sources"].([]any); !ok {
		t.Error("sources missing from capabilities")
	}
}

func TestPreviewEndpoint(t *testing.T) {
	source.RegisterDriver(models.SourceStockPrice, &stubSource{items: []models.Item{{ID: "1", Title: "x"}}})
	h, st := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"definition": json.RawMessage(definitionJSON())})
	w, result := doJSON(t, h, http.MethodPost, "/api/v1/agents/preview", body)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status = %d body = %v", w.Code, result)
	}
	if result["status"] != "completed" {
		t.Errorf("preview result = %v", result)
	}

	// Previews never write run records
	runID := result["agentRunId"].(string)
	if _, err := st.GetAgentRun(context.Background(), runID); err == nil {
		t.Error("preview run was persisted")
	}
}
