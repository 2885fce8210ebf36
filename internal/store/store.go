// Package store provides persistence for agent versions, run records,
// and user-registered sources. The in-memory implementation backs local
// dev and tests; PostgreSQL backs production.
package store

import (
	"context"
	"time"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Store is the engine's storage interface. Handler and runner code
// depend on this interface so the in-memory and PostgreSQL
// implementations are interchangeable.
type Store interface {
	AgentVersionStore
	AgentRunStore
	UserSourceStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates or updates the backing schema.
	Migrate(ctx context.Context) error
}

// ── Agent Version Store ─────────────────────────────────────

// AgentVersionStore keeps the immutable revision history of agent
// definitions. Versions are append-only.
type AgentVersionStore interface {
	CreateAgentVersion(ctx context.Context, v *models.AgentVersion) error
	GetAgentVersion(ctx context.Context, id string) (*models.AgentVersion, error)

	// LatestAgentVersion returns the most recently created version for
	// an agent.
	LatestAgentVersion(ctx context.Context, agentID string) (*models.AgentVersion, error)
	ListAgentVersions(ctx context.Context, agentID string) ([]models.AgentVersion, error)
}

// ── Agent Run Store ─────────────────────────────────────────

// RunFilter defines optional filters for listing runs.
type RunFilter struct {
	Status models.RunStatus // exact match on status
	Limit  int              // max results (default 50)
}

type AgentRunStore interface {
	CreateAgentRun(ctx context.Context, run *models.AgentRun) error
	GetAgentRun(ctx context.Context, id string) (*models.AgentRun, error)

	// ListAgentRuns returns runs for an agent, newest first.
	ListAgentRuns(ctx context.Context, agentID string, filter RunFilter) ([]models.AgentRun, error)

	// ListAgentRunsBefore returns up to limit runs that finished before
	// the cutoff, oldest first. Used by the retention janitor.
	ListAgentRunsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AgentRun, error)

	// DeleteAgentRuns removes run records by ID and reports how many
	// were deleted.
	DeleteAgentRuns(ctx context.Context, ids []string) (int, error)
}

// ── User Source Store ───────────────────────────────────────

type UserSourceStore interface {
	GetUserSource(ctx context.Context, id string) (*models.UserSource, error)
	CreateUserSource(ctx context.Context, src *models.UserSource) error
	UpdateUserSource(ctx context.Context, src *models.UserSource) error
	DeleteUserSource(ctx context.Context, id string) error
	ListUserSources(ctx context.Context, userID string) ([]models.UserSource, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
