// Package llm routes pipeline LLM steps to configured providers.
//
// Providers register as drivers keyed by name ("anthropic", "openai");
// the model id on a step selects the driver. Every completion is
// charged against the run's safety governor before the request leaves
// the process, using a tokenizer estimate plus the step's max output
// tokens; the reservation is settled to provider-reported usage after
// the call returns.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/internal/safety"
)

// ── Requests & Responses ─────────────────────────────────────

// Request is one completion call.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Response carries the completion text and provider-reported usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output usage.
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ── Driver Registry ──────────────────────────────────────────

// Driver is one provider backend.
type Driver interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver registers a provider driver by name. Later
// registrations replace earlier ones, which lets tests install mocks.
func RegisterDriver(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// GetDriver returns the registered driver for a provider name.
func GetDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// ProviderFor maps a model id to its provider driver name.
func ProviderFor(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic"
	}
	return "openai"
}

// ── Client ───────────────────────────────────────────────────

// Client is the budget-aware completion entry point used by pipeline
// steps. One Client serves all runs; per-run accounting lives in the
// governor passed to Complete.
type Client struct {
	estimator *Estimator
}

// NewClient builds a client with a shared token estimator.
func NewClient() *Client {
	return &Client{estimator: NewEstimator()}
}

// Complete runs one completion through the provider selected by the
// request's model, charging the governor first. A budget error from the
// governor is returned unwrapped so the orchestrator can classify the
// run as aborted rather than failed.
func (c *Client) Complete(ctx context.Context, gov *safety.Governor, req Request) (*Response, error) {
	provider := ProviderFor(req.Model)
	driver, ok := GetDriver(provider)
	if !ok {
		return nil, fmt.Errorf("no driver registered for provider %q (model %q)", provider, req.Model)
	}

	estimated := c.estimator.Estimate(req.Model, req.System+req.Prompt) + req.MaxTokens
	if err := gov.ChargeLLMCall(estimated); err != nil {
		return nil, err
	}

	resp, err := driver.Complete(ctx, req)
	if err != nil {
		// The call consumed a slot but no tokens.
		gov.SettleTokens(estimated, 0)
		return nil, fmt.Errorf("%s completion: %w", provider, err)
	}
	gov.SettleTokens(estimated, resp.TotalTokens())

	log.Debug().
		Str("provider", provider).
		Str("model", req.Model).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Msg("LLM completion finished")
	return resp, nil
}
