// Package catalog exposes the engine's capability surface: which
// pipeline step kinds exist, which built-in source types are supported
// and what each requires, and which output channels can actually be
// delivered. Definition builders query it instead of hardcoding the
// vocabulary.
//
// Source availability and channel deliverability are read live from
// the driver registries, so a host that registers extra drivers or
// senders sees them reflected immediately.
package catalog

import (
	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

// StepInfo describes one pipeline step kind.
type StepInfo struct {
	Kind    models.StepKind `json:"kind"`
	Group   string          `json:"group"` // core | filter | transform
	UsesLLM bool            `json:"usesLLM"`
}

// SourceInfo describes one built-in source type.
type SourceInfo struct {
	Type models.BuiltinSourceType `json:"type"`

	// Requires names the config field this type needs: query, feedUrl,
	// or url. Empty means no extra field.
	Requires string `json:"requires,omitempty"`

	// Available reports whether a fetch driver is registered. Types
	// without a driver still validate but fail at fetch time.
	Available bool `json:"available"`
}

// ChannelInfo describes one output channel.
type ChannelInfo struct {
	Kind models.ChannelKind `json:"kind"`

	// Deliverable reports whether a sender is registered. Channels
	// without a sender render only; the host delivers the content.
	Deliverable bool `json:"deliverable"`
}

// Capabilities is the full capability snapshot.
type Capabilities struct {
	Steps    []StepInfo    `json:"steps"`
	Sources  []SourceInfo  `json:"sources"`
	Channels []ChannelInfo `json:"channels"`
}

// Catalog builds capability snapshots against the live registries.
type Catalog struct {
	dispatcher *output.Dispatcher
}

// New creates a catalog backed by the given dispatcher's sender
// registry.
func New(d *output.Dispatcher) *Catalog {
	return &Catalog{dispatcher: d}
}

var filterKinds = map[models.StepKind]bool{
	models.StepDateFilter: true, models.StepKeywordFilter: true,
	models.StepLimitFilter: true, models.StepSentimentFilter: true,
	models.StepLengthFilter: true, models.StepScoreFilter: true,
	models.StepRegexFilter: true, models.StepAuthorFilter: true,
	models.StepLanguageFilter: true, models.StepTopNFilter: true,
	models.StepRandomSampleFilter: true, models.StepHasMediaFilter: true,
}

var coreKinds = map[models.StepKind]bool{
	models.StepFetch: true, models.StepDedupe: true,
	models.StepFilter: true, models.StepSort: true,
	models.StepSummarize: true, models.StepRank: true,
	models.StepTransform: true, models.StepCustom: true,
}

// sourceRequires mirrors the schema's per-type required field.
var sourceRequires = map[models.BuiltinSourceType]string{
	models.SourceRSS:         "feedUrl",
	models.SourcePodcast:     "feedUrl",
	models.SourceHTTPJSON:    "url",
	models.SourceWebScraper:  "url",
	models.SourceArxiv:       "query",
	models.SourceReddit:      "query",
	models.SourceYouTube:     "query",
	models.SourceTwitter:     "query",
	models.SourceGitHub:      "query",
	models.SourceNewsAPI:     "query",
	models.SourceGoogleNews:  "query",
	models.SourceCryptoPrice: "query",
	models.SourceStockPrice:  "query",
	models.SourceWeather:     "query",
}

// Capabilities returns the current capability snapshot.
func (c *Catalog) Capabilities() Capabilities {
	registered := make(map[models.BuiltinSourceType]bool)
	for _, t := range source.RegisteredTypes() {
		registered[t] = true
	}
	deliverable := make(map[models.ChannelKind]bool)
	if c.dispatcher != nil {
		for _, k := range c.dispatcher.SenderKinds() {
			deliverable[k] = true
		}
	}

	caps := Capabilities{
		Steps:    make([]StepInfo, 0, len(models.StepKinds)),
		Sources:  make([]SourceInfo, 0, len(models.BuiltinSourceTypes)),
		Channels: make([]ChannelInfo, 0, len(models.ChannelKinds)),
	}
	for _, k := range models.StepKinds {
		group := "transform"
		switch {
		case coreKinds[k]:
			group = "core"
		case filterKinds[k]:
			group = "filter"
		}
		caps.Steps = append(caps.Steps, StepInfo{
			Kind:    k,
			Group:   group,
			UsesLLM: models.LLMStepKinds[k],
		})
	}
	for _, t := range models.BuiltinSourceTypes {
		caps.Sources = append(caps.Sources, SourceInfo{
			Type:      t,
			Requires:  sourceRequires[t],
			Available: registered[t],
		})
	}
	for _, k := range models.ChannelKinds {
		caps.Channels = append(caps.Channels, ChannelInfo{
			Kind:        k,
			Deliverable: deliverable[k],
		})
	}
	return caps
}
