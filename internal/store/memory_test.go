package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

func newVersion(id, agentID, version string, at time.Time) *models.AgentVersion {
	return &models.AgentVersion{
		ID:      id,
		AgentID: agentID,
		Version: version,
		Definition: models.AgentDefinition{
			Metadata: models.AgentMetadata{Name: "Test Agent"},
		},
		CreatedAt: at,
	}
}

func TestMemoryStore_AgentVersions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	t0 := time.Now().Add(-time.Hour)
	if err := s.CreateAgentVersion(ctx, newVersion("v1", "a1", "0.1.0", t0)); err != nil {
		t.Fatalf("CreateAgentVersion: %v", err)
	}
	if err := s.CreateAgentVersion(ctx, newVersion("v2", "a1", "0.2.0", t0.Add(time.Minute))); err != nil {
		t.Fatalf("CreateAgentVersion: %v", err)
	}

	got, err := s.GetAgentVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("GetAgentVersion: %v", err)
	}
	if got.Version != "0.1.0" {
		t.Errorf("Version = %q, want 0.1.0", got.Version)
	}

	latest, err := s.LatestAgentVersion(ctx, "a1")
	if err != nil {
		t.Fatalf("LatestAgentVersion: %v", err)
	}
	if latest.ID != "v2" {
		t.Errorf("latest = %q, want v2", latest.ID)
	}

	all, err := s.ListAgentVersions(ctx, "a1")
	if err != nil {
		t.Fatalf("ListAgentVersions: %v", err)
	}
	if len(all) != 2 || all[0].ID != "v2" {
		t.Errorf("ListAgentVersions returned %d versions, want v2 first", len(all))
	}

	if _, err := s.GetAgentVersion(ctx, "missing"); err == nil {
		t.Error("expected ErrNotFound for missing version")
	} else if _, ok := err.(*store.ErrNotFound); !ok {
		t.Errorf("error type = %T, want *ErrNotFound", err)
	}
}

func TestMemoryStore_RunsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	base := time.Now().Add(-time.Hour)
	runs := []*models.AgentRun{
		{ID: "r1", AgentID: "a1", Status: models.RunCompleted, StartedAt: base},
		{ID: "r2", AgentID: "a1", Status: models.RunFailed, StartedAt: base.Add(time.Minute)},
		{ID: "r3", AgentID: "a1", Status: models.RunCompleted, StartedAt: base.Add(2 * time.Minute)},
		{ID: "r4", AgentID: "other", Status: models.RunCompleted, StartedAt: base},
	}
	for _, r := range runs {
		r.FinishedAt = r.StartedAt.Add(time.Second)
		if err := s.CreateAgentRun(ctx, r); err != nil {
			t.Fatalf("CreateAgentRun(%s): %v", r.ID, err)
		}
	}

	all, err := s.ListAgentRuns(ctx, "a1", store.RunFilter{})
	if err != nil {
		t.Fatalf("ListAgentRuns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r3" || all[2].ID != "r1" {
		t.Errorf("runs = %v, want [r3 r2 r1]", runIDs(all))
	}

	completed, err := s.ListAgentRuns(ctx, "a1", store.RunFilter{Status: models.RunCompleted})
	if err != nil {
		t.Fatalf("ListAgentRuns filtered: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("completed = %v, want 2 runs", runIDs(completed))
	}

	limited, err := s.ListAgentRuns(ctx, "a1", store.RunFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListAgentRuns limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "r3" {
		t.Errorf("limited = %v, want [r3]", runIDs(limited))
	}
}

func TestMemoryStore_UserSources(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	src := &models.UserSource{
		ID:     "s1",
		UserID: "u1",
		Name:   "My Feed",
		Config: models.DataSourceConfig{
			Kind:       models.SourceBuiltin,
			SourceType: models.SourceRSS,
			FeedURL:    "https://example.com/feed.xml",
		},
		FieldPaths: map[string]string{"title": "headline"},
	}
	if err := s.CreateUserSource(ctx, src); err != nil {
		t.Fatalf("CreateUserSource: %v", err)
	}

	got, err := s.GetUserSource(ctx, "s1")
	if err != nil {
		t.Fatalf("GetUserSource: %v", err)
	}
	if got.Config.FeedURL != "https://example.com/feed.xml" || got.FieldPaths["title"] != "headline" {
		t.Errorf("GetUserSource = %+v", got)
	}

	src.Name = "Renamed"
	if err := s.UpdateUserSource(ctx, src); err != nil {
		t.Fatalf("UpdateUserSource: %v", err)
	}
	got, _ = s.GetUserSource(ctx, "s1")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q after update", got.Name)
	}

	if err := s.DeleteUserSource(ctx, "s1"); err != nil {
		t.Fatalf("DeleteUserSource: %v", err)
	}
	if err := s.DeleteUserSource(ctx, "s1"); err == nil {
		t.Error("expected ErrNotFound on second delete")
	}
}

func TestMemoryStore_CopiesOnRead(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	v := newVersion("v1", "a1", "0.1.0", time.Now())
	if err := s.CreateAgentVersion(ctx, v); err != nil {
		t.Fatalf("CreateAgentVersion: %v", err)
	}

	got, _ := s.GetAgentVersion(ctx, "v1")
	got.Version = "mutated"

	again, _ := s.GetAgentVersion(ctx, "v1")
	if again.Version != "0.1.0" {
		t.Errorf("stored version mutated through returned copy: %q", again.Version)
	}
}

func runIDs(runs []models.AgentRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
