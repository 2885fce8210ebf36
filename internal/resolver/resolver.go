// Package resolver resolves user_source_ref configs at run time.
//
// Agent definitions can reference a user-registered source by ID
// instead of inlining its configuration. The Resolver looks the source
// up in the store and translates its stored field paths into the
// fetcher's normalization mapping.
package resolver

import (
	"context"
	"fmt"

	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Resolver implements source.Resolver against the store.
type Resolver struct {
	store store.UserSourceStore
}

// NewResolver creates a store-backed user source resolver.
func NewResolver(s store.UserSourceStore) *Resolver {
	return &Resolver{store: s}
}

// ResolveUserSource returns the referenced source's stored config plus
// its normalization mapping. The stored config must itself be a builtin
// source; chained references are rejected.
func (r *Resolver) ResolveUserSource(ctx context.Context, userSourceID string) (models.DataSourceConfig, *source.NormalizationConfig, error) {
	src, err := r.store.GetUserSource(ctx, userSourceID)
	if err != nil {
		return models.DataSourceConfig{}, nil, err
	}
	if src.Config.Kind == models.SourceUserSourceRef {
		return models.DataSourceConfig{}, nil, fmt.Errorf("user source %q references another user source", userSourceID)
	}
	return src.Config, normFromPaths(src.FieldPaths), nil
}

// normFromPaths translates the stored field path map into the fetcher's
// normalization config. Unknown keys are ignored.
func normFromPaths(paths map[string]string) *source.NormalizationConfig {
	if len(paths) == 0 {
		return nil
	}
	nc := &source.NormalizationConfig{}
	for key, path := range paths {
		switch key {
		case "id":
			nc.IDPath = path
		case "title":
			nc.TitlePath = path
		case "summary":
			nc.SummaryPath = path
		case "url":
			nc.URLPath = path
		case "publishedAt":
			nc.PublishedAtPath = path
		case "author":
			nc.AuthorPath = path
		case "score":
			nc.ScorePath = path
		}
	}
	return nc
}
