package safety_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kochi-intel/agent-engine/internal/safety"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

func TestGovernor_SourceBudget(t *testing.T) {
	g, _, cancel := safety.NewGovernor(context.Background(), models.SafetyConfig{MaxSourcesPerRun: 2})
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := g.ChargeSource(); err != nil {
			t.Fatalf("ChargeSource() #%d = %v, want nil", i+1, err)
		}
	}
	err := g.ChargeSource()
	var budget *safety.BudgetExceededError
	if !errors.As(err, &budget) {
		t.Fatalf("ChargeSource() #3 = %v, want BudgetExceededError", err)
	}
	if budget.Resource != "sources" || budget.Limit != 2 {
		t.Errorf("budget error = %+v, want sources/2", budget)
	}
}

func TestGovernor_LLMCallBudget(t *testing.T) {
	g, _, cancel := safety.NewGovernor(context.Background(), models.SafetyConfig{MaxLLMCalls: 1})
	defer cancel()

	if err := g.ChargeLLMCall(100); err != nil {
		t.Fatalf("first ChargeLLMCall() = %v", err)
	}
	err := g.ChargeLLMCall(100)
	var budget *safety.BudgetExceededError
	if !errors.As(err, &budget) || budget.Resource != "llm_calls" {
		t.Errorf("second ChargeLLMCall() = %v, want llm_calls budget error", err)
	}
}

func TestGovernor_TokenBudget(t *testing.T) {
	g, _, cancel := safety.NewGovernor(context.Background(), models.SafetyConfig{MaxTokensPerRun: 500})
	defer cancel()

	if err := g.ChargeLLMCall(400); err != nil {
		t.Fatalf("ChargeLLMCall(400) = %v", err)
	}
	err := g.ChargeLLMCall(200)
	var budget *safety.BudgetExceededError
	if !errors.As(err, &budget) || budget.Resource != "tokens" {
		t.Errorf("ChargeLLMCall(200) = %v, want tokens budget error", err)
	}

	// Settling down to real usage frees headroom.
	g.SettleTokens(400, 250)
	if err := g.ChargeLLMCall(200); err != nil {
		t.Errorf("ChargeLLMCall after settle = %v, want nil", err)
	}
	_, calls, tokens := g.Usage()
	if calls != 2 || tokens != 450 {
		t.Errorf("Usage() = %d calls, %d tokens; want 2, 450", calls, tokens)
	}
}

func TestGovernor_CheckDeadline(t *testing.T) {
	g, ctx, cancel := safety.NewGovernor(context.Background(), models.SafetyConfig{Timeout: 300})
	defer cancel()

	if err := g.CheckDeadline(ctx); err != nil {
		t.Fatalf("CheckDeadline before expiry = %v", err)
	}

	cancel()
	err := g.CheckDeadline(ctx)
	var timeout *safety.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("CheckDeadline after cancel = %v, want TimeoutError", err)
	}
	if timeout.Timeout != 300*time.Second {
		t.Errorf("TimeoutError.Timeout = %v, want 300s", timeout.Timeout)
	}
}

func TestGovernor_ConcurrentCharges(t *testing.T) {
	g, _, cancel := safety.NewGovernor(context.Background(), models.SafetyConfig{MaxLLMCalls: 20, MaxTokensPerRun: 50000})
	defer cancel()

	done := make(chan error, 40)
	for i := 0; i < 40; i++ {
		go func() { done <- g.ChargeLLMCall(10) }()
	}
	granted := 0
	for i := 0; i < 40; i++ {
		if err := <-done; err == nil {
			granted++
		}
	}
	if granted != 20 {
		t.Errorf("granted %d LLM calls, want exactly 20", granted)
	}
}
