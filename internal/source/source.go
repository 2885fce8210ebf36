// Package source fetches and normalizes data from the configured data
// sources of an agent. Built-in source types register as drivers keyed
// by type; user_source_ref configs resolve through a Resolver before
// fetching. All sources of a run are fetched concurrently, each one
// charged against the safety governor, and per-source failures are
// recorded without failing the others.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kochi-intel/agent-engine/internal/safety"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 4 << 20

// ── Driver Registry ──────────────────────────────────────────

// Driver fetches raw items for one built-in source type. Implementations
// must respect ctx cancellation and the maxItems cap.
type Driver interface {
	Fetch(ctx context.Context, cfg models.DataSourceConfig, maxItems int) ([]models.Item, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[models.BuiltinSourceType]Driver)
)

// defaultClient serves the built-in HTTP-backed drivers.
var defaultClient = &http.Client{Timeout: 20 * time.Second}

func init() {
	RegisterDriver(models.SourceRSS, NewRSSDriver(defaultClient))
	// Podcast feeds are RSS with enclosures; the same driver serves both.
	RegisterDriver(models.SourcePodcast, NewRSSDriver(defaultClient))
	RegisterDriver(models.SourceHTTPJSON, NewHTTPJSONDriver(defaultClient))
	RegisterDriver(models.SourceHackerNews, NewHackerNewsDriver(defaultClient))
}

// RegisterDriver registers a driver for a source type. Later
// registrations replace earlier ones.
func RegisterDriver(t models.BuiltinSourceType, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[t] = d
}

// GetDriver returns the registered driver for a source type.
func GetDriver(t models.BuiltinSourceType) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[t]
	return d, ok
}

// RegisteredTypes returns the source types that have a driver, sorted
// for stable output.
func RegisteredTypes() []models.BuiltinSourceType {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]models.BuiltinSourceType, 0, len(drivers))
	for t := range drivers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolver maps a user_source_ref to a concrete built-in config plus
// optional normalization paths. Implementations typically read the
// user-sources store.
type Resolver interface {
	ResolveUserSource(ctx context.Context, userSourceID string) (models.DataSourceConfig, *NormalizationConfig, error)
}

// ── Fetch Service ────────────────────────────────────────────

// Result is the outcome of fetching one configured source.
type Result struct {
	SourceID string
	Items    []models.Item
	Err      error
}

// Service fans out fetches across a run's sources.
type Service struct {
	resolver Resolver
}

// NewService builds a fetch service. resolver may be nil when no
// user-source store is wired; user_source_ref configs then fail
// per-source.
func NewService(resolver Resolver) *Service {
	return &Service{resolver: resolver}
}

// defaultFetchConcurrency bounds parallel source fetches; sources are
// capped at five per run so this covers the worst case.
const defaultFetchConcurrency = 5

// FetchAll fetches every source concurrently. Each fetch charges one
// source slot on the governor before starting; per-item caps apply the
// tighter of the source's own maxItems and the governor's
// maxItemsPerSource. The returned slice is ordered like cfgs, one
// Result per source; failures are per-source and never abort siblings.
func (s *Service) FetchAll(ctx context.Context, gov *safety.Governor, cfgs []models.DataSourceConfig) []Result {
	results := make([]Result, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultFetchConcurrency)
	for i, cfg := range cfgs {
		g.Go(func() error {
			results[i] = s.fetchOne(ctx, gov, cfg)
			return nil
		})
	}
	g.Wait()
	return results
}

func (s *Service) fetchOne(ctx context.Context, gov *safety.Governor, cfg models.DataSourceConfig) Result {
	res := Result{SourceID: cfg.Label()}

	if err := gov.ChargeSource(); err != nil {
		res.Err = err
		return res
	}

	norm := (*NormalizationConfig)(nil)
	if cfg.Kind == models.SourceUserSourceRef {
		if s.resolver == nil {
			res.Err = fmt.Errorf("user source %q: no resolver configured", cfg.UserSourceID)
			return res
		}
		resolved, nc, err := s.resolver.ResolveUserSource(ctx, cfg.UserSourceID)
		if err != nil {
			res.Err = fmt.Errorf("resolve user source %q: %w", cfg.UserSourceID, err)
			return res
		}
		resolved.ID = cfg.Label()
		// Per-reference overrides win over the stored defaults.
		if cfg.MaxItems > 0 {
			resolved.MaxItems = cfg.MaxItems
		}
		if cfg.TimeRange != "" {
			resolved.TimeRange = cfg.TimeRange
		}
		cfg = resolved
		norm = nc
	}

	driver, ok := GetDriver(cfg.SourceType)
	if !ok {
		res.Err = fmt.Errorf("no driver registered for source type %q", cfg.SourceType)
		return res
	}

	maxItems := cfg.EffectiveMaxItems()
	if limit := gov.MaxItemsPerSource(); limit > 0 && limit < maxItems {
		maxItems = limit
	}

	started := time.Now()
	items, err := driver.Fetch(ctx, cfg, maxItems)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s: %w", res.SourceID, err)
		log.Warn().Str("source", res.SourceID).Err(err).Msg("Source fetch failed")
		return res
	}

	if len(items) > maxItems {
		items = items[:maxItems]
	}
	for i := range items {
		items[i].SourceID = res.SourceID
		if norm != nil && len(items[i].Raw) > 0 {
			norm.Apply(&items[i])
		}
	}
	res.Items = items

	log.Debug().
		Str("source", res.SourceID).
		Int("items", len(items)).
		Dur("took", time.Since(started)).
		Msg("Source fetched")
	return res
}

// TimeCutoff returns the oldest acceptable publish time for a source,
// or zero when the source has no recency constraint.
func TimeCutoff(cfg models.DataSourceConfig, now time.Time) time.Time {
	d := cfg.TimeRange.Duration()
	if d == 0 {
		return time.Time{}
	}
	return now.Add(-d)
}

// FilterByTime drops items older than the cutoff, keeping items with no
// publish timestamp.
func FilterByTime(items []models.Item, cutoff time.Time) []models.Item {
	if cutoff.IsZero() {
		return items
	}
	kept := items[:0]
	for _, it := range items {
		if it.PublishedAt == nil || !it.PublishedAt.Before(cutoff) {
			kept = append(kept, it)
		}
	}
	return kept
}

// SortByPublished orders items newest first, missing timestamps last.
func SortByPublished(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedUnix() > items[j].PublishedUnix()
	})
}

// httpGet performs a capped GET with the engine's user agent. Shared by
// the HTTP-backed drivers.
func httpGet(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "agent-engine/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
