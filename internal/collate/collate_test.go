package collate_test

import (
	"testing"
	"time"

	"github.com/kochi-intel/agent-engine/internal/collate"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

func itemsFor(source string, n int, base time.Time) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		ts := base.Add(-time.Duration(i) * time.Hour)
		items[i] = models.Item{
			ID:          source + "-" + string(rune('0'+i)),
			SourceID:    source,
			PublishedAt: &ts,
		}
	}
	return items
}

func TestCollate_MergeKeepsSourceOrder(t *testing.T) {
	now := time.Now()
	// Source b carries newer items; merge must still put a's items first.
	inputs := []collate.Input{
		{SourceID: "a", Items: itemsFor("a", 2, now.Add(-24*time.Hour))},
		{SourceID: "b", Items: itemsFor("b", 2, now)},
	}
	got := collate.Collate(models.CollationConfig{Strategy: models.CollateMerge}, inputs)
	want := []string{"a-0", "a-1", "b-0", "b-1"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("item %d = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestCollate_MergeCapsTotal(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "a", Items: itemsFor("a", 8, now)},
		{SourceID: "b", Items: itemsFor("b", 8, now)},
	}
	got := collate.Collate(models.CollationConfig{MaxTotalItems: 5}, inputs)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// Truncation happens after concatenation, so the cap lands on a.
	for i, it := range got {
		if it.SourceID != "a" {
			t.Errorf("item %d from %q, want a", i, it.SourceID)
		}
	}
}

func TestCollate_SeparateKeepsGrouping(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "a", Items: itemsFor("a", 4, now)},
		{SourceID: "b", Items: itemsFor("b", 4, now)},
	}
	got := collate.Collate(models.CollationConfig{Strategy: models.CollateSeparate, MaxTotalItems: 3}, inputs)
	// The cap is per source: 3 from each group.
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	// Blocks stay contiguous: all of a's items precede b's.
	seenB := false
	for _, it := range got {
		if it.SourceID == "b" {
			seenB = true
		} else if seenB {
			t.Fatalf("source a item after b items: %v", got)
		}
	}
}

func TestCollate_SeparatePerSourceCap(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "a", Items: itemsFor("a", 1, now)},
		{SourceID: "b", Items: itemsFor("b", 9, now)},
	}
	got := collate.Collate(models.CollationConfig{Strategy: models.CollateSeparate, MaxTotalItems: 6}, inputs)
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7 (1 from a, b capped at 6)", len(got))
	}
	counts := map[string]int{}
	for _, it := range got {
		counts[it.SourceID]++
	}
	if counts["a"] != 1 || counts["b"] != 6 {
		t.Errorf("per-source counts = %v, want a:1 b:6", counts)
	}
}

func TestCollate_PrioritizeFirstNonEmptyWins(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "low", Items: itemsFor("low", 5, now)},
		{SourceID: "high", Items: itemsFor("high", 2, now)},
	}
	got := collate.Collate(models.CollationConfig{
		Strategy:       models.CollatePrioritize,
		SourcePriority: []string{"high", "low"},
		MaxTotalItems:  7,
	}, inputs)
	// high is non-empty, so low is never consulted.
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (only the top-priority source)", len(got))
	}
	for i, it := range got {
		if it.SourceID != "high" {
			t.Errorf("item %d from %q, want high", i, it.SourceID)
		}
	}
}

func TestCollate_PrioritizeFallsBackWhenEmpty(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "a", Items: nil},
		{SourceID: "b", Items: itemsFor("b", 5, now)},
	}
	got := collate.Collate(models.CollationConfig{Strategy: models.CollatePrioritize}, inputs)
	if len(got) != 5 {
		t.Fatalf("len = %d, want all 5 of b's items", len(got))
	}
	for _, it := range got {
		if it.SourceID != "b" {
			t.Errorf("item from %q, want b", it.SourceID)
		}
	}
}

func TestCollate_PrioritizeCapsWinner(t *testing.T) {
	now := time.Now()
	inputs := []collate.Input{
		{SourceID: "a", Items: itemsFor("a", 9, now)},
		{SourceID: "b", Items: itemsFor("b", 9, now)},
	}
	got := collate.Collate(models.CollationConfig{Strategy: models.CollatePrioritize, MaxTotalItems: 4}, inputs)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for _, it := range got {
		if it.SourceID != "a" {
			t.Errorf("item from %q, want a", it.SourceID)
		}
	}
}

func TestCollate_EmptyInputs(t *testing.T) {
	got := collate.Collate(models.CollationConfig{}, nil)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
