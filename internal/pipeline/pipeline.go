// Package pipeline executes the linear step list of an agent
// definition. Handlers register per step kind in a package-level table;
// the Executor walks the pipeline in order, passing each step the item
// list produced by its predecessor and enforcing the run's deadline and
// step-error policy at every boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/safety"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Execution Context ────────────────────────────────────────

// Env carries the per-run collaborators handlers need. Handlers must
// treat it as read-only.
type Env struct {
	Gov     *safety.Governor
	LLM     *llm.Client
	Profile map[string]any
	HTTP    *http.Client
	Custom  *CustomRegistry

	// Rand drives random_sample_filter. Seeded per run; tests inject a
	// fixed seed for determinism.
	Rand *rand.Rand

	// Artifacts collects run-level step products that are not items,
	// like the aggregate summary the output templates consume. Steps
	// run sequentially, so no locking.
	Artifacts map[string]string
}

// NewEnv builds an Env with sensible defaults for the optional fields.
func NewEnv(gov *safety.Governor, client *llm.Client) *Env {
	return &Env{
		Gov:       gov,
		LLM:       client,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		Artifacts: make(map[string]string),
	}
}

// ── Handler Registry ─────────────────────────────────────────

// Handler executes one pipeline step over the current item list and
// returns the replacement list.
type Handler func(ctx context.Context, env *Env, step models.PipelineStep, items []models.Item) ([]models.Item, error)

var (
	handlersMu sync.RWMutex
	handlers   = make(map[models.StepKind]Handler)
)

// RegisterHandler registers the handler for a step kind. Built-in kinds
// register from init; later registrations replace earlier ones.
func RegisterHandler(kind models.StepKind, h Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[kind] = h
}

func getHandler(kind models.StepKind) (Handler, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	h, ok := handlers[kind]
	return h, ok
}

// ── Custom Steps ─────────────────────────────────────────────

// CustomFunc is a host-registered step implementation invoked by the
// "custom" step kind.
type CustomFunc func(ctx context.Context, config map[string]any, items []models.Item) ([]models.Item, error)

// CustomRegistry holds host-registered custom steps by id.
type CustomRegistry struct {
	mu    sync.RWMutex
	funcs map[string]CustomFunc
}

func NewCustomRegistry() *CustomRegistry {
	return &CustomRegistry{funcs: make(map[string]CustomFunc)}
}

func (r *CustomRegistry) Register(id string, fn CustomFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[id] = fn
}

func (r *CustomRegistry) Get(id string) (CustomFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[id]
	return fn, ok
}

// ── Executor ─────────────────────────────────────────────────

// Result is the outcome of walking one pipeline.
type Result struct {
	Items  []models.Item
	Traces []models.StepTrace
	Errors []models.RunError

	// Stopped is the budget or timeout error that ended the walk early,
	// nil otherwise.
	Stopped error
}

// Executor runs pipelines under a step-error policy.
type Executor struct {
	policy models.StepErrorPolicy
}

func NewExecutor(policy models.StepErrorPolicy) *Executor {
	if policy == "" {
		policy = models.StepErrorAbort
	}
	return &Executor{policy: policy}
}

// Run executes the steps in order. Budget and timeout errors always
// stop the walk and surface in Result.Stopped; ordinary step failures
// follow the policy — abort keeps the items processed so far and stops,
// skip records the error and continues with the failing step's input.
func (e *Executor) Run(ctx context.Context, env *Env, steps []models.PipelineStep, items []models.Item) Result {
	res := Result{Items: items}

	for i, step := range steps {
		if err := env.Gov.CheckDeadline(ctx); err != nil {
			res.Stopped = err
			res.Errors = append(res.Errors, models.RunError{Step: stepName(i, step), Message: err.Error()})
			return res
		}

		handler, ok := getHandler(step.Kind)
		if !ok {
			err := fmt.Errorf("no handler for step kind %q", step.Kind)
			res.Errors = append(res.Errors, models.RunError{Step: stepName(i, step), Message: err.Error()})
			if e.policy == models.StepErrorAbort {
				return res
			}
			continue
		}

		started := time.Now()
		out, err := handler(ctx, env, step, res.Items)
		trace := models.StepTrace{
			Kind:       string(step.Kind),
			Name:       step.Name,
			ItemsIn:    len(res.Items),
			ItemsOut:   len(res.Items),
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			trace.Error = err.Error()
			res.Traces = append(res.Traces, trace)
			res.Errors = append(res.Errors, models.RunError{Step: stepName(i, step), Message: err.Error()})

			if isStopError(err) {
				res.Stopped = err
				return res
			}
			log.Warn().Str("step", step.Label()).Err(err).Msg("Pipeline step failed")
			if e.policy == models.StepErrorAbort {
				return res
			}
			continue
		}
		res.Items = out
		trace.ItemsOut = len(out)
		res.Traces = append(res.Traces, trace)

		log.Debug().
			Str("step", step.Label()).
			Int("in", trace.ItemsIn).
			Int("out", trace.ItemsOut).
			Msg("Pipeline step finished")
	}
	return res
}

func stepName(i int, step models.PipelineStep) string {
	return fmt.Sprintf("pipeline[%d]:%s", i, step.Label())
}

// isStopError reports whether the error must end the run regardless of
// the step-error policy.
func isStopError(err error) bool {
	var budget *safety.BudgetExceededError
	var timeout *safety.TimeoutError
	return errors.As(err, &budget) || errors.As(err, &timeout) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
