// Package safety enforces per-run resource budgets. A Governor is
// created per run from the definition's SafetyConfig and charged by the
// fetch, pipeline, and LLM layers as resources are consumed. Charges
// are checked before the resource is spent, so a run never exceeds its
// configured ceilings.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Errors ───────────────────────────────────────────────────

// BudgetExceededError reports which budget dimension was exhausted.
// Runs that hit a budget finish as aborted, not failed.
type BudgetExceededError struct {
	Resource string // sources | llm_calls | tokens
	Limit    int
	Used     int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("safety budget exceeded: %s limit %d reached (used %d)", e.Resource, e.Limit, e.Used)
}

// TimeoutError reports that the run's wall-clock deadline passed.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run timed out after %s (limit %s)", e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// ── Governor ─────────────────────────────────────────────────

// Governor tracks resource consumption for one run. All methods are
// safe for concurrent use; source fetches and per-item LLM calls charge
// it from multiple goroutines.
type Governor struct {
	cfg     models.SafetyConfig
	started time.Time

	mu       sync.Mutex
	sources  int
	llmCalls int
	tokens   int
}

// NewGovernor builds a governor with defaults applied to the config.
// The returned context carries the run's wall-clock deadline.
func NewGovernor(ctx context.Context, cfg models.SafetyConfig) (*Governor, context.Context, context.CancelFunc) {
	cfg = cfg.WithDefaults()
	g := &Governor{cfg: cfg, started: time.Now()}
	runCtx, cancel := context.WithTimeout(ctx, g.Timeout())
	return g, runCtx, cancel
}

// Timeout returns the configured wall-clock limit.
func (g *Governor) Timeout() time.Duration {
	return time.Duration(g.cfg.Timeout) * time.Second
}

// MaxItemsPerSource returns the per-source item ceiling, applied on top
// of each source's own maxItems.
func (g *Governor) MaxItemsPerSource() int {
	return g.cfg.MaxItemsPerSource
}

// ChargeSource consumes one source-fetch slot.
func (g *Governor) ChargeSource() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sources >= g.cfg.MaxSourcesPerRun {
		return &BudgetExceededError{Resource: "sources", Limit: g.cfg.MaxSourcesPerRun, Used: g.sources}
	}
	g.sources++
	return nil
}

// ChargeLLMCall reserves one LLM call and its estimated token cost.
// The estimate is charged before the call is made; settle the real
// usage afterwards with SettleTokens.
func (g *Governor) ChargeLLMCall(estimatedTokens int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.llmCalls >= g.cfg.MaxLLMCalls {
		return &BudgetExceededError{Resource: "llm_calls", Limit: g.cfg.MaxLLMCalls, Used: g.llmCalls}
	}
	if g.tokens+estimatedTokens > g.cfg.MaxTokensPerRun {
		return &BudgetExceededError{Resource: "tokens", Limit: g.cfg.MaxTokensPerRun, Used: g.tokens}
	}
	g.llmCalls++
	g.tokens += estimatedTokens
	log.Debug().
		Int("llm_calls", g.llmCalls).
		Int("tokens", g.tokens).
		Msg("LLM budget charged")
	return nil
}

// SettleTokens replaces an earlier estimate with the provider-reported
// usage for one call.
func (g *Governor) SettleTokens(estimated, actual int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens += actual - estimated
	if g.tokens < 0 {
		g.tokens = 0
	}
}

// CheckDeadline returns a TimeoutError once the run context deadline
// has passed. Pipeline boundaries call this between steps.
func (g *Governor) CheckDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &TimeoutError{Timeout: g.Timeout(), Elapsed: time.Since(g.started)}
	default:
		return nil
	}
}

// Usage returns a snapshot of consumption so far.
func (g *Governor) Usage() (sources, llmCalls, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sources, g.llmCalls, g.tokens
}

// Elapsed returns wall-clock time since the governor was created.
func (g *Governor) Elapsed() time.Duration {
	return time.Since(g.started)
}
