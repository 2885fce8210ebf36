// Package handlers implements the HTTP handlers for the agent engine:
// definition validation, version management, run execution, previews,
// run history, and user source CRUD.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/internal/catalog"
	"github.com/kochi-intel/agent-engine/internal/runner"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store   store.Store
	Runner  *runner.Runner
	Catalog *catalog.Catalog
}

// New creates a new Handlers instance.
func New(s store.Store, r *runner.Runner, c *catalog.Catalog) *Handlers {
	return &Handlers{Store: s, Runner: r, Catalog: c}
}

// ── Capability Handlers ──────────────────────────────────────

// GetCapabilities returns the engine's step, source, and channel
// vocabulary with live driver availability.
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Catalog.Capabilities())
}

// ── Definition Handlers ──────────────────────────────────────

// ValidateDefinition checks a definition without storing or running it.
func (h *Handlers) ValidateDefinition(w http.ResponseWriter, r *http.Request) {
	var def models.AgentDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"valid":  false,
				"errors": verrs,
			})
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// CreateAgentVersion stores a new immutable revision of a definition.
// The version number is bumped from the latest stored revision.
func (h *Handlers) CreateAgentVersion(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var def models.AgentDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	version := def.Metadata.Version
	if latest, err := h.Store.LatestAgentVersion(r.Context(), agentID); err == nil {
		version = models.BumpPatch(latest.Version)
	} else if version == "" {
		version = models.DefaultAgentVersion
	}
	def.Metadata.Version = version

	v := &models.AgentVersion{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Version:    version,
		Definition: def,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Store.CreateAgentVersion(r.Context(), v); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("agent", agentID).Str("version", version).Str("id", v.ID).Msg("Agent version stored")
	respondJSON(w, http.StatusCreated, v)
}

func (h *Handlers) ListAgentVersions(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	versions, err := h.Store.ListAgentVersions(r.Context(), agentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if versions == nil {
		versions = []models.AgentVersion{}
	}
	respondJSON(w, http.StatusOK, versions)
}

func (h *Handlers) GetAgentVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.Store.GetAgentVersion(r.Context(), chi.URLParam(r, "versionId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// ── Execution Handlers ───────────────────────────────────────

// executeRequest is the body of POST /agents/{agentId}/execute.
type executeRequest struct {
	VersionID      string             `json:"versionId,omitempty"`
	UserID         string             `json:"userId,omitempty"`
	UserProfile    map[string]any     `json:"userProfile,omitempty"`
	TriggerType    models.TriggerType `json:"triggerType,omitempty"`
	TriggerPayload map[string]any     `json:"triggerPayload,omitempty"`
	Command        string             `json:"command,omitempty"`
	DryRun         bool               `json:"dryRun,omitempty"`
}

// ExecuteAgent loads a stored definition version and runs it. The
// response is always a RunResult; run-level failures surface there, not
// as HTTP errors.
func (h *Handlers) ExecuteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var v *models.AgentVersion
	var err error
	if req.VersionID != "" {
		v, err = h.Store.GetAgentVersion(r.Context(), req.VersionID)
	} else {
		v, err = h.Store.LatestAgentVersion(r.Context(), agentID)
	}
	if err != nil {
		respondStoreError(w, err)
		return
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerManual
	}
	if req.Command != "" {
		if !v.Definition.MatchCommand(req.Command) {
			respondError(w, http.StatusNotFound, "No trigger command matches "+strconv.Quote(req.Command))
			return
		}
		triggerType = models.TriggerCommand
	}

	def := v.Definition
	res := h.Runner.Execute(r.Context(), &def, models.RunContext{
		AgentID:        agentID,
		AgentVersionID: v.ID,
		UserID:         req.UserID,
		UserProfile:    req.UserProfile,
		TriggerType:    triggerType,
		TriggerPayload: req.TriggerPayload,
		DryRun:         req.DryRun,
	})
	respondJSON(w, http.StatusOK, res)
}

// previewRequest is the body of POST /agents/preview.
type previewRequest struct {
	Definition  models.AgentDefinition `json:"definition"`
	UserProfile map[string]any         `json:"userProfile,omitempty"`
}

// PreviewAgent runs a definition straight from the request body with
// delivery and persistence disabled.
func (h *Handlers) PreviewAgent(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.Runner.Preview(r.Context(), &req.Definition, models.RunContext{
		UserProfile: req.UserProfile,
		TriggerType: models.TriggerPreview,
	})
	respondJSON(w, http.StatusOK, res)
}

// ── Run History Handlers ─────────────────────────────────────

func (h *Handlers) ListAgentRuns(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	filter := store.RunFilter{
		Status: models.RunStatus(r.URL.Query().Get("status")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	runs, err := h.Store.ListAgentRuns(r.Context(), agentID, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.AgentRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) GetAgentRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetAgentRun(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ── User Source Handlers ─────────────────────────────────────

func (h *Handlers) ListUserSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.Store.ListUserSources(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []models.UserSource{}
	}
	respondJSON(w, http.StatusOK, sources)
}

func (h *Handlers) CreateUserSource(w http.ResponseWriter, r *http.Request) {
	var src models.UserSource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if src.Config.Kind == models.SourceUserSourceRef {
		respondError(w, http.StatusUnprocessableEntity, "User sources cannot reference other user sources")
		return
	}

	src.ID = uuid.NewString()
	src.CreatedAt = time.Now().UTC()
	src.UpdatedAt = src.CreatedAt

	if err := h.Store.CreateUserSource(r.Context(), &src); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("source", src.ID).Str("name", src.Name).Msg("User source registered")
	respondJSON(w, http.StatusCreated, src)
}

func (h *Handlers) GetUserSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.Store.GetUserSource(r.Context(), chi.URLParam(r, "sourceId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, src)
}

func (h *Handlers) UpdateUserSource(w http.ResponseWriter, r *http.Request) {
	var src models.UserSource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	src.ID = chi.URLParam(r, "sourceId")
	src.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateUserSource(r.Context(), &src); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, src)
}

func (h *Handlers) DeleteUserSource(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteUserSource(r.Context(), chi.URLParam(r, "sourceId")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Response Helpers ─────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	var notFound *store.ErrNotFound
	if errors.As(err, &notFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
