// Package store — PostgreSQL Store implementation backed by pgx.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool. Definitions,
// results, and field path maps live in JSONB columns so schema changes
// in the definition shape never need migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ae_agent_versions (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			version    TEXT NOT NULL,
			definition JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ae_versions_agent ON ae_agent_versions (agent_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS ae_agent_runs (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			version_id  TEXT NOT NULL DEFAULT '',
			user_id     TEXT NOT NULL DEFAULT '',
			run_type    TEXT NOT NULL,
			status      TEXT NOT NULL,
			result      JSONB NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ae_runs_agent ON ae_agent_runs (agent_id, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ae_runs_status ON ae_agent_runs (agent_id, status);

		CREATE TABLE IF NOT EXISTS ae_user_sources (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL DEFAULT '',
			name        TEXT NOT NULL,
			config      JSONB NOT NULL,
			field_paths JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ae_user_sources_user ON ae_user_sources (user_id);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Agent Version Store ─────────────────────────────────────

func (s *PostgresStore) CreateAgentVersion(ctx context.Context, v *models.AgentVersion) error {
	def, err := json.Marshal(v.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ae_agent_versions (id, agent_id, version, definition, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		v.ID, v.AgentID, v.Version, def, v.CreatedAt)
	return err
}

func (s *PostgresStore) GetAgentVersion(ctx context.Context, id string) (*models.AgentVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, version, definition, created_at
		FROM ae_agent_versions WHERE id = $1`, id)
	return scanVersion(row, id)
}

func (s *PostgresStore) LatestAgentVersion(ctx context.Context, agentID string) (*models.AgentVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, version, definition, created_at
		FROM ae_agent_versions WHERE agent_id = $1
		ORDER BY created_at DESC LIMIT 1`, agentID)
	return scanVersion(row, agentID)
}

func (s *PostgresStore) ListAgentVersions(ctx context.Context, agentID string) ([]models.AgentVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, version, definition, created_at
		FROM ae_agent_versions WHERE agent_id = $1
		ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentVersion
	for rows.Next() {
		v, err := scanVersion(rows, agentID)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanVersion(row pgx.Row, key string) (*models.AgentVersion, error) {
	var v models.AgentVersion
	var def []byte
	if err := row.Scan(&v.ID, &v.AgentID, &v.Version, &def, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "agent version", Key: key}
		}
		return nil, err
	}
	if err := json.Unmarshal(def, &v.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &v, nil
}

// ── Agent Run Store ─────────────────────────────────────────

func (s *PostgresStore) CreateAgentRun(ctx context.Context, run *models.AgentRun) error {
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ae_agent_runs (id, agent_id, version_id, user_id, run_type, status, result, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.AgentID, run.VersionID, run.UserID, run.RunType, run.Status, result, run.StartedAt, run.FinishedAt)
	return err
}

func (s *PostgresStore) GetAgentRun(ctx context.Context, id string) (*models.AgentRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, version_id, user_id, run_type, status, result, started_at, finished_at
		FROM ae_agent_runs WHERE id = $1`, id)
	return scanRun(row, id)
}

func (s *PostgresStore) ListAgentRuns(ctx context.Context, agentID string, filter RunFilter) ([]models.AgentRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, agent_id, version_id, user_id, run_type, status, result, started_at, finished_at
		FROM ae_agent_runs WHERE agent_id = $1`
	args := []any{agentID}
	if filter.Status != "" {
		query += " AND status = $2"
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentRun
	for rows.Next() {
		run, err := scanRun(rows, agentID)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAgentRunsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AgentRun, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, version_id, user_id, run_type, status, result, started_at, finished_at
		FROM ae_agent_runs WHERE finished_at < $1
		ORDER BY finished_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentRun
	for rows.Next() {
		run, err := scanRun(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAgentRuns(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM ae_agent_runs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row pgx.Row, key string) (*models.AgentRun, error) {
	var run models.AgentRun
	var result []byte
	if err := row.Scan(&run.ID, &run.AgentID, &run.VersionID, &run.UserID, &run.RunType, &run.Status, &result, &run.StartedAt, &run.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "agent run", Key: key}
		}
		return nil, err
	}
	if err := json.Unmarshal(result, &run.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &run, nil
}

// ── User Source Store ───────────────────────────────────────

func (s *PostgresStore) GetUserSource(ctx context.Context, id string) (*models.UserSource, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, config, field_paths, created_at, updated_at
		FROM ae_user_sources WHERE id = $1`, id)
	return scanUserSource(row, id)
}

func (s *PostgresStore) CreateUserSource(ctx context.Context, src *models.UserSource) error {
	cfg, paths, err := marshalUserSource(src)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ae_user_sources (id, user_id, name, config, field_paths, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		src.ID, src.UserID, src.Name, cfg, paths, src.CreatedAt, src.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateUserSource(ctx context.Context, src *models.UserSource) error {
	cfg, paths, err := marshalUserSource(src)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ae_user_sources
		SET name = $2, config = $3, field_paths = $4, updated_at = $5
		WHERE id = $1`,
		src.ID, src.Name, cfg, paths, src.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user source", Key: src.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteUserSource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ae_user_sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user source", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListUserSources(ctx context.Context, userID string) ([]models.UserSource, error) {
	query := `
		SELECT id, user_id, name, config, field_paths, created_at, updated_at
		FROM ae_user_sources`
	var args []any
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserSource
	for rows.Next() {
		src, err := scanUserSource(rows, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func marshalUserSource(src *models.UserSource) (cfg, paths []byte, err error) {
	if cfg, err = json.Marshal(src.Config); err != nil {
		return nil, nil, fmt.Errorf("marshal source config: %w", err)
	}
	fieldPaths := src.FieldPaths
	if fieldPaths == nil {
		fieldPaths = map[string]string{}
	}
	if paths, err = json.Marshal(fieldPaths); err != nil {
		return nil, nil, fmt.Errorf("marshal field paths: %w", err)
	}
	return cfg, paths, nil
}

func scanUserSource(row pgx.Row, key string) (*models.UserSource, error) {
	var src models.UserSource
	var cfg, paths []byte
	if err := row.Scan(&src.ID, &src.UserID, &src.Name, &cfg, &paths, &src.CreatedAt, &src.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "user source", Key: key}
		}
		return nil, err
	}
	if err := json.Unmarshal(cfg, &src.Config); err != nil {
		return nil, fmt.Errorf("unmarshal source config: %w", err)
	}
	if err := json.Unmarshal(paths, &src.FieldPaths); err != nil {
		return nil, fmt.Errorf("unmarshal field paths: %w", err)
	}
	return &src, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
