// Package runner orchestrates one agent run end to end: fetch sources,
// collate, execute the pipeline under the safety governor, dispatch
// outputs, and assemble the RunResult. The orchestrator never returns
// an error to the caller; success=false plus a populated errors list is
// the only failure signal.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kochi-intel/agent-engine/internal/collate"
	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/internal/safety"
	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

var tracer = otel.Tracer("agent-engine")

// runPhase tracks the forward-only run state machine. Phases only ever
// advance; terminal states are the RunStatus values.
type runPhase string

const (
	phasePending     runPhase = "pending"
	phaseFetching    runPhase = "fetching"
	phaseCollating   runPhase = "collating"
	phaseExecuting   runPhase = "executing"
	phaseDispatching runPhase = "dispatching"
)

// Runner executes agent definitions.
type Runner struct {
	sources    *source.Service
	llm        *llm.Client
	dispatcher *output.Dispatcher
	custom     *pipeline.CustomRegistry
	store      store.Store // nil disables persistence
}

// New creates a runner. The store may be nil, in which case run records
// are never persisted (previews, embedded use).
func New(sources *source.Service, client *llm.Client, dispatcher *output.Dispatcher, custom *pipeline.CustomRegistry, st store.Store) *Runner {
	return &Runner{
		sources:    sources,
		llm:        client,
		dispatcher: dispatcher,
		custom:     custom,
		store:      st,
	}
}

// Execute runs a definition and always returns a structured RunResult.
// The definition is validated and defaulted before anything is charged;
// a validation failure produces a failed result with no run record.
func (r *Runner) Execute(ctx context.Context, def *models.AgentDefinition, rc models.RunContext) models.RunResult {
	runID := uuid.NewString()
	startedAt := time.Now()

	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", rc.AgentID),
		attribute.String("agent.run_id", runID),
		attribute.String("agent.trigger", string(rc.TriggerType)),
	)

	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		return models.RunResult{
			Success: false,
			Status:  models.RunFailed,
			Outputs: map[models.ChannelKind]string{},
			Errors:  []models.RunError{{Step: "validate", Message: err.Error()}},
		}
	}

	res := r.run(ctx, def, rc, runID)
	res.Metrics.DurationMs = time.Since(startedAt).Milliseconds()
	span.SetAttributes(
		attribute.String("agent.run_status", string(res.Status)),
		attribute.Int("agent.llm_calls", res.Metrics.LLMCallsMade),
		attribute.Int("agent.tokens_used", res.Metrics.TokensUsed),
	)

	r.persist(ctx, rc, runID, startedAt, &res)

	log.Info().
		Str("run_id", runID).
		Str("agent", rc.AgentID).
		Str("status", string(res.Status)).
		Int("items", res.Metrics.ItemsProcessed).
		Int("llm_calls", res.Metrics.LLMCallsMade).
		Int64("duration_ms", res.Metrics.DurationMs).
		Msg("Agent run finished")
	return res
}

// Preview runs a definition with dryRun forced and no persistence.
// Outputs are rendered but never delivered; step traces come back for
// the builder to display.
func (r *Runner) Preview(ctx context.Context, def *models.AgentDefinition, rc models.RunContext) models.RunResult {
	rc.DryRun = true
	if rc.TriggerType == "" {
		rc.TriggerType = models.TriggerPreview
	}
	return r.Execute(ctx, def, rc)
}

func (r *Runner) run(parent context.Context, def *models.AgentDefinition, rc models.RunContext, runID string) models.RunResult {
	res := models.RunResult{
		AgentRunID: runID,
		Outputs:    map[models.ChannelKind]string{},
	}

	gov, ctx, cancel := safety.NewGovernor(parent, def.EffectiveSafety())
	defer cancel()

	phase := phasePending
	advance := func(next runPhase) {
		phase = next
		log.Debug().Str("run_id", runID).Str("phase", string(phase)).Msg("Run phase")
	}

	// ── Fetch ────────────────────────────────────────────────
	advance(phaseFetching)
	fetched := r.sources.FetchAll(ctx, gov, def.Sources)

	var inputs []collate.Input
	for _, f := range fetched {
		if f.Err != nil {
			res.Errors = append(res.Errors, models.RunError{
				Step:    "fetch:" + f.SourceID,
				Message: f.Err.Error(),
			})
			continue
		}
		res.Metrics.SourcesFetched++
		inputs = append(inputs, collate.Input{SourceID: f.SourceID, Items: f.Items})
	}

	if len(inputs) == 0 && len(def.Sources) > 0 {
		// All sources failed. A deadline hit during fetch is a timeout,
		// not a failure.
		res.Status = models.RunFailed
		if err := gov.CheckDeadline(ctx); err != nil {
			res.Status = models.RunTimedOut
		}
		res.Metrics = fillUsage(res.Metrics, gov)
		return res
	}

	// ── Collate ──────────────────────────────────────────────
	advance(phaseCollating)
	items := collate.Collate(def.Collation, inputs)
	res.Metrics.ItemsProcessed = len(items)

	// ── Pipeline ─────────────────────────────────────────────
	advance(phaseExecuting)
	env := pipeline.NewEnv(gov, r.llm)
	env.Profile = rc.UserProfile
	env.Custom = r.custom

	exec := pipeline.NewExecutor(def.StepErrorPolicy())
	pres := exec.Run(ctx, env, def.Pipeline, items)

	res.StepTraces = pres.Traces
	res.Errors = append(res.Errors, pres.Errors...)
	res.Metrics.ItemsProcessed = len(pres.Items)
	res.Metrics = fillUsage(res.Metrics, gov)

	if status, stopped := classify(def.StepErrorPolicy(), pres); stopped {
		res.Status = status
		return res
	}

	// ── Dispatch ─────────────────────────────────────────────
	advance(phaseDispatching)
	payload := output.Payload{
		AgentName: def.Metadata.Name,
		RunID:     runID,
		Items:     pres.Items,
		Summary:   env.Artifacts[pipeline.ArtifactSummary],
		Profile:   rc.UserProfile,
	}
	outputs, dispatchErrs := r.dispatcher.Dispatch(ctx, def.Output, payload, rc.DryRun)
	res.Outputs = outputs
	res.Errors = append(res.Errors, dispatchErrs...)

	res.Status = models.RunCompleted
	// Source and channel failures never flip success once the pipeline
	// completed; skipped step errors do.
	res.Success = len(pres.Errors) == 0
	return res
}

// classify maps a pipeline outcome onto a terminal status. The second
// return is true when the run must stop before dispatch.
func classify(policy models.StepErrorPolicy, pres pipeline.Result) (models.RunStatus, bool) {
	if pres.Stopped != nil {
		var budget *safety.BudgetExceededError
		if errors.As(pres.Stopped, &budget) {
			return models.RunAborted, true
		}
		return models.RunTimedOut, true
	}
	if policy == models.StepErrorAbort && len(pres.Errors) > 0 {
		return models.RunFailed, true
	}
	return models.RunCompleted, false
}

func fillUsage(m models.RunMetrics, gov *safety.Governor) models.RunMetrics {
	sources, calls, tokens := gov.Usage()
	if m.SourcesFetched == 0 {
		m.SourcesFetched = sources
	}
	m.LLMCallsMade = calls
	m.TokensUsed = tokens
	return m
}

// persist writes the run record unless this is a dry run or no store is
// configured. Persistence failures are logged, never surfaced.
func (r *Runner) persist(ctx context.Context, rc models.RunContext, runID string, startedAt time.Time, res *models.RunResult) {
	if rc.DryRun || r.store == nil {
		return
	}
	runType := rc.TriggerType
	if runType == "" {
		runType = models.TriggerManual
	}
	run := &models.AgentRun{
		ID:         runID,
		AgentID:    rc.AgentID,
		VersionID:  rc.AgentVersionID,
		UserID:     rc.UserID,
		RunType:    runType,
		Status:     res.Status,
		Result:     *res,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err := r.store.CreateAgentRun(ctx, run); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("Cannot persist run record")
	}
}
