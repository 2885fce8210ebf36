// Package collate combines per-source item lists into the final run
// output according to the definition's collation strategy.
package collate

import (
	"sort"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// Input is one source's contribution, in fetch-completion order.
type Input struct {
	SourceID string
	Items    []models.Item
}

// Collate applies the configured strategy:
//
//	merge      — concatenate in source-definition order, cap total
//	separate   — keep per-source grouping, cap applied to each group
//	            independently (no interleaving)
//	prioritize — the first non-empty source wins; later sources are
//	            fallbacks consulted only when every earlier one is empty
//
// The input lists are not modified.
func Collate(cfg models.CollationConfig, inputs []Input) []models.Item {
	limit := cfg.EffectiveMaxTotalItems()
	switch cfg.EffectiveStrategy() {
	case models.CollateSeparate:
		return separate(inputs, limit)
	case models.CollatePrioritize:
		return prioritize(cfg, inputs, limit)
	default:
		return merge(inputs, limit)
	}
}

func merge(inputs []Input, limit int) []models.Item {
	var all []models.Item
	for _, in := range inputs {
		all = append(all, in.Items...)
	}
	return capItems(all, limit)
}

// separate keeps source blocks contiguous; maxTotalItems bounds each
// block on its own, so the overall count can exceed it.
func separate(inputs []Input, limit int) []models.Item {
	var out []models.Item
	for _, in := range inputs {
		out = append(out, capItems(in.Items, limit)...)
	}
	return out
}

// prioritize returns the first non-empty source's items, capped. The
// priority list (when set) reorders sources before the scan; unlisted
// sources keep their definition order behind the listed ones.
func prioritize(cfg models.CollationConfig, inputs []Input, limit int) []models.Item {
	ordered := inputs
	if len(cfg.SourcePriority) > 0 {
		rank := make(map[string]int, len(cfg.SourcePriority))
		for i, id := range cfg.SourcePriority {
			rank[id] = i
		}
		ordered = make([]Input, len(inputs))
		copy(ordered, inputs)
		sort.SliceStable(ordered, func(i, j int) bool {
			ri, iok := rank[ordered[i].SourceID]
			rj, jok := rank[ordered[j].SourceID]
			if iok != jok {
				return iok // ranked sources before unranked
			}
			return ri < rj
		})
	}

	for _, in := range ordered {
		if len(in.Items) > 0 {
			return capItems(in.Items, limit)
		}
	}
	return nil
}

func capItems(items []models.Item, limit int) []models.Item {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
