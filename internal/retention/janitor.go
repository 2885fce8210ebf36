// Package retention implements the run-history retention policy. It
// periodically archives and/or purges run records older than the
// configured TTL so the run table stays bounded.
//
// Archive modes:
//   - purge:             delete expired runs without archiving (default)
//   - archive-and-purge: archive to a durable store, then delete
//   - archive-only:      archive but keep in the hot store
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. Archive failures are fail-safe:
// runs are NOT deleted if archiving fails.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// DefaultRunTTL keeps a week of run history.
const DefaultRunTTL = 7 * 24 * time.Hour

// DefaultBatchSize is the max run records processed per cycle.
const DefaultBatchSize = 500

// Mode selects what happens to expired runs.
type Mode string

const (
	ModePurge           Mode = "purge"
	ModeArchiveAndPurge Mode = "archive-and-purge"
	ModeArchiveOnly     Mode = "archive-only"
)

// Archiver writes expired runs to a durable location before they leave
// the hot store.
type Archiver interface {
	Kind() string
	ArchiveRuns(ctx context.Context, runs []models.AgentRun) (string, error)
	HealthCheck(ctx context.Context) error
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Archived    int
	Purged      int
	ArchivePath string
	Err         error
}

// Janitor periodically archives and purges expired run records.
type Janitor struct {
	store    store.AgentRunStore
	interval time.Duration
	ttl      time.Duration
	mode     Mode

	// archivers is a registry of pluggable archive backends.
	archivers      map[string]Archiver
	driverMu       sync.RWMutex
	defaultBackend string
}

// NewJanitor creates a retention janitor that sweeps on the given
// interval, removing runs that finished more than ttl ago.
func NewJanitor(s store.AgentRunStore, interval, ttl time.Duration, mode Mode) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	if mode == "" {
		mode = ModePurge
	}
	return &Janitor{
		store:     s,
		interval:  interval,
		ttl:       ttl,
		mode:      mode,
		archivers: make(map[string]Archiver),
	}
}

// RegisterArchiver adds an archive driver. The first registered driver
// becomes the default backend.
func (j *Janitor) RegisterArchiver(driver Archiver) {
	j.driverMu.Lock()
	defer j.driverMu.Unlock()
	kind := driver.Kind()
	if len(j.archivers) == 0 {
		j.defaultBackend = kind
	}
	j.archivers[kind] = driver
	log.Info().Str("kind", kind).Msg("Archive driver registered")
}

func (j *Janitor) archiver() Archiver {
	j.driverMu.RLock()
	defer j.driverMu.RUnlock()
	return j.archivers[j.defaultBackend]
}

// Start runs the janitor until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("ttl", j.ttl).
		Str("mode", string(j.mode)).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep and reports what it did.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	cutoff := start.Add(-j.ttl)

	expired, err := j.store.ListAgentRunsBefore(ctx, cutoff, DefaultBatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("Retention janitor: cannot list expired runs")
		return CycleStats{Err: err}
	}
	if len(expired) == 0 {
		return CycleStats{}
	}

	stats := CycleStats{}
	archive := j.mode == ModeArchiveAndPurge || j.mode == ModeArchiveOnly
	if archive {
		driver := j.archiver()
		if driver == nil {
			log.Warn().Str("mode", string(j.mode)).Msg("No archive driver registered — skipping purge (fail-safe)")
			return stats
		}
		path, err := driver.ArchiveRuns(ctx, expired)
		if err != nil {
			log.Warn().Err(err).Msg("Archive failed — skipping purge (fail-safe)")
			stats.Err = err
			return stats
		}
		stats.Archived = len(expired)
		stats.ArchivePath = path
	}

	if j.mode != ModeArchiveOnly {
		ids := make([]string, len(expired))
		for i, run := range expired {
			ids[i] = run.ID
		}
		purged, err := j.store.DeleteAgentRuns(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Msg("Retention janitor: purge failed")
			stats.Err = err
			return stats
		}
		stats.Purged = purged
	}

	log.Info().
		Int("archived", stats.Archived).
		Int("purged", stats.Purged).
		Dur("elapsed", time.Since(start)).
		Msg("Retention cycle complete")
	return stats
}
