package resolver_test

import (
	"context"
	"testing"

	"github.com/kochi-intel/agent-engine/internal/resolver"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

func TestResolveUserSource(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	err := s.CreateUserSource(ctx, &models.UserSource{
		ID:   "feed-1",
		Name: "Custom API",
		Config: models.DataSourceConfig{
			Kind:       models.SourceBuiltin,
			SourceType: models.SourceHTTPJSON,
			URL:        "https://api.example.com/articles",
			JSONPath:   "data.items",
		},
		FieldPaths: map[string]string{
			"title":       "attributes.headline",
			"publishedAt": "attributes.created",
			"bogus":       "ignored",
		},
	})
	if err != nil {
		t.Fatalf("CreateUserSource: %v", err)
	}

	r := resolver.NewResolver(s)
	cfg, norm, err := r.ResolveUserSource(ctx, "feed-1")
	if err != nil {
		t.Fatalf("ResolveUserSource: %v", err)
	}
	if cfg.SourceType != models.SourceHTTPJSON || cfg.URL != "https://api.example.com/articles" {
		t.Errorf("resolved config = %+v", cfg)
	}
	if norm == nil || norm.TitlePath != "attributes.headline" || norm.PublishedAtPath != "attributes.created" {
		t.Errorf("normalization = %+v", norm)
	}
}

func TestResolveUserSource_NotFound(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	r := resolver.NewResolver(s)
	if _, _, err := r.ResolveUserSource(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown user source")
	}
}

func TestResolveUserSource_RejectsChainedRefs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	s.CreateUserSource(ctx, &models.UserSource{
		ID: "loop",
		Config: models.DataSourceConfig{
			Kind:         models.SourceUserSourceRef,
			UserSourceID: "loop",
		},
	})

	r := resolver.NewResolver(s)
	if _, _, err := r.ResolveUserSource(ctx, "loop"); err == nil {
		t.Fatal("expected error for chained user source reference")
	}
}
