// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev,
// tests). Supports file-based snapshot persistence so data survives
// restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Versions    map[string]*models.AgentVersion `json:"versions"`
	Runs        map[string]*models.AgentRun     `json:"runs"`
	UserSources map[string]*models.UserSource   `json:"user_sources"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	versions    map[string]*models.AgentVersion // key: id
	runs        map[string]*models.AgentRun     // key: id
	userSources map[string]*models.UserSource   // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store. If AGENT_ENGINE_DATA_DIR
// is set, data is persisted to a JSON file in that directory. An empty
// value disables persistence, which is what tests want.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		versions:    make(map[string]*models.AgentVersion),
		runs:        make(map[string]*models.AgentRun),
		userSources: make(map[string]*models.UserSource),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	if dataDir := os.Getenv("AGENT_ENGINE_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Corrupt snapshot, starting empty")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Versions != nil {
		m.versions = snap.Versions
	}
	if snap.Runs != nil {
		m.runs = snap.Runs
	}
	if snap.UserSources != nil {
		m.userSources = snap.UserSources
	}
	log.Info().
		Int("versions", len(m.versions)).
		Int("runs", len(m.runs)).
		Int("user_sources", len(m.userSources)).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Versions:    m.versions,
		Runs:        m.runs,
		UserSources: m.userSources,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Atomic write: temp file then rename.
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", tmp).Msg("Cannot write snapshot")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot replace snapshot")
	}
}

// ── Agent Version Store ─────────────────────────────────────

func (m *MemoryStore) CreateAgentVersion(_ context.Context, v *models.AgentVersion) error {
	m.mu.Lock()
	cp := *v
	m.versions[v.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgentVersion(_ context.Context, id string) (*models.AgentVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent version", Key: id}
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) LatestAgentVersion(_ context.Context, agentID string) (*models.AgentVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.AgentVersion
	for _, v := range m.versions {
		if v.AgentID != agentID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, &ErrNotFound{Entity: "agent version", Key: agentID}
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListAgentVersions(_ context.Context, agentID string) ([]models.AgentVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AgentVersion
	for _, v := range m.versions {
		if v.AgentID == agentID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ── Agent Run Store ─────────────────────────────────────────

func (m *MemoryStore) CreateAgentRun(_ context.Context, run *models.AgentRun) error {
	m.mu.Lock()
	cp := *run
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgentRun(_ context.Context, id string) (*models.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent run", Key: id}
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListAgentRuns(_ context.Context, agentID string, filter RunFilter) ([]models.AgentRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	var out []models.AgentRun
	for _, run := range m.runs {
		if run.AgentID != agentID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, *run)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListAgentRunsBefore(_ context.Context, cutoff time.Time, limit int) ([]models.AgentRun, error) {
	m.mu.RLock()
	var out []models.AgentRun
	for _, run := range m.runs {
		if run.FinishedAt.Before(cutoff) {
			out = append(out, *run)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteAgentRuns(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.runs[id]; ok {
			delete(m.runs, id)
			deleted++
		}
	}
	m.mu.Unlock()

	if deleted > 0 {
		m.requestSave()
	}
	return deleted, nil
}

// ── User Source Store ───────────────────────────────────────

func (m *MemoryStore) GetUserSource(_ context.Context, id string) (*models.UserSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.userSources[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user source", Key: id}
	}
	cp := *src
	return &cp, nil
}

func (m *MemoryStore) CreateUserSource(_ context.Context, src *models.UserSource) error {
	m.mu.Lock()
	cp := *src
	m.userSources[src.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateUserSource(_ context.Context, src *models.UserSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userSources[src.ID]; !ok {
		return &ErrNotFound{Entity: "user source", Key: src.ID}
	}
	cp := *src
	m.userSources[src.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteUserSource(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userSources[id]; !ok {
		return &ErrNotFound{Entity: "user source", Key: id}
	}
	delete(m.userSources, id)
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListUserSources(_ context.Context, userID string) ([]models.UserSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.UserSource
	for _, src := range m.userSources {
		if userID == "" || src.UserID == userID {
			out = append(out, *src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	close(m.doneCh)
	if m.snapshotPath != "" {
		m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
