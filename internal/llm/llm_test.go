package llm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/safety"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

type mockDriver struct {
	calls int
	resp  llm.Response
	err   error
}

func (m *mockDriver) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	r := m.resp
	return &r, nil
}

func newGovernor(t *testing.T, cfg models.SafetyConfig) *safety.Governor {
	t.Helper()
	g, _, cancel := safety.NewGovernor(context.Background(), cfg)
	t.Cleanup(cancel)
	return g
}

func TestProviderFor(t *testing.T) {
	cases := map[string]string{
		"claude-3-5-sonnet-20241022": "anthropic",
		"claude-3-opus":              "anthropic",
		"gpt-4":                      "openai",
		"gpt-3.5-turbo":              "openai",
	}
	for model, want := range cases {
		if got := llm.ProviderFor(model); got != want {
			t.Errorf("ProviderFor(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestClient_ChargesBeforeCall(t *testing.T) {
	mock := &mockDriver{resp: llm.Response{Text: "ok", InputTokens: 10, OutputTokens: 5}}
	llm.RegisterDriver("openai", mock)

	gov := newGovernor(t, models.SafetyConfig{MaxLLMCalls: 1})
	client := llm.NewClient()

	resp, err := client.Complete(context.Background(), gov, llm.Request{
		Model: "gpt-4", Prompt: "hello", MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Text = %q, want ok", resp.Text)
	}

	// Budget exhausted: the driver must not be called again.
	_, err = client.Complete(context.Background(), gov, llm.Request{
		Model: "gpt-4", Prompt: "hello", MaxTokens: 100,
	})
	var budget *safety.BudgetExceededError
	if !errors.As(err, &budget) {
		t.Fatalf("second Complete() = %v, want BudgetExceededError", err)
	}
	if mock.calls != 1 {
		t.Errorf("driver called %d times, want 1", mock.calls)
	}
}

func TestClient_SettlesToActualUsage(t *testing.T) {
	mock := &mockDriver{resp: llm.Response{Text: "ok", InputTokens: 20, OutputTokens: 30}}
	llm.RegisterDriver("openai", mock)

	gov := newGovernor(t, models.SafetyConfig{})
	client := llm.NewClient()

	if _, err := client.Complete(context.Background(), gov, llm.Request{
		Model: "gpt-4", Prompt: "some prompt text", MaxTokens: 1000,
	}); err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	_, _, tokens := gov.Usage()
	if tokens != 50 {
		t.Errorf("tokens after settle = %d, want 50", tokens)
	}
}

func TestClient_DriverErrorReleasesTokens(t *testing.T) {
	mock := &mockDriver{err: fmt.Errorf("upstream 500")}
	llm.RegisterDriver("openai", mock)

	gov := newGovernor(t, models.SafetyConfig{})
	client := llm.NewClient()

	_, err := client.Complete(context.Background(), gov, llm.Request{
		Model: "gpt-4", Prompt: "x", MaxTokens: 1000,
	})
	if err == nil {
		t.Fatal("Complete() = nil, want error")
	}
	_, calls, tokens := gov.Usage()
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (slot consumed)", calls)
	}
	if tokens != 0 {
		t.Errorf("tokens = %d, want 0 (reservation released)", tokens)
	}
}

func TestEstimator_Fallback(t *testing.T) {
	e := llm.NewEstimator()
	text := "the quick brown fox jumps over the lazy dog"
	n := e.Estimate("gpt-4", text)
	if n <= 0 {
		t.Errorf("Estimate() = %d, want positive", n)
	}
	if e.Estimate("gpt-4", "") != 0 {
		t.Error("Estimate of empty string should be 0")
	}
}
