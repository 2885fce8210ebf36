package models

// ── Pipeline Steps ───────────────────────────────────────────

// StepKind discriminates the pipeline step union.
type StepKind string

const (
	// Core steps
	StepFetch     StepKind = "fetch"
	StepDedupe    StepKind = "dedupe"
	StepFilter    StepKind = "filter"
	StepSort      StepKind = "sort"
	StepSummarize StepKind = "summarize"
	StepRank      StepKind = "rank"
	StepTransform StepKind = "transform"
	StepCustom    StepKind = "custom"

	// Filter steps
	StepDateFilter         StepKind = "date_filter"
	StepKeywordFilter      StepKind = "keyword_filter"
	StepLimitFilter        StepKind = "limit_filter"
	StepSentimentFilter    StepKind = "sentiment_filter"
	StepLengthFilter       StepKind = "length_filter"
	StepScoreFilter        StepKind = "score_filter"
	StepRegexFilter        StepKind = "regex_filter"
	StepAuthorFilter       StepKind = "author_filter"
	StepLanguageFilter     StepKind = "language_filter"
	StepTopNFilter         StepKind = "top_n_filter"
	StepRandomSampleFilter StepKind = "random_sample_filter"
	StepHasMediaFilter     StepKind = "has_media_filter"

	// Transform / enrichment steps
	StepSentimentAnalysis      StepKind = "sentiment_analysis"
	StepEntityExtraction       StepKind = "entity_extraction"
	StepCategoryClassification StepKind = "category_classification"
	StepTranslation            StepKind = "translation"
	StepTextCleanup            StepKind = "text_cleanup"
	StepURLExtraction          StepKind = "url_extraction"
	StepScoringRank            StepKind = "scoring_rank"
	StepFieldMapping           StepKind = "field_mapping"
	StepMergeItems             StepKind = "merge_items"
	StepEnrichData             StepKind = "enrich_data"
	StepAgent                  StepKind = "claude_agent"
)

// StepKinds lists every recognized pipeline step kind.
var StepKinds = []StepKind{
	StepFetch, StepDedupe, StepFilter, StepSort, StepSummarize,
	StepRank, StepTransform, StepCustom,
	StepDateFilter, StepKeywordFilter, StepLimitFilter,
	StepSentimentFilter, StepLengthFilter, StepScoreFilter,
	StepRegexFilter, StepAuthorFilter, StepLanguageFilter,
	StepTopNFilter, StepRandomSampleFilter, StepHasMediaFilter,
	StepSentimentAnalysis, StepEntityExtraction,
	StepCategoryClassification, StepTranslation, StepTextCleanup,
	StepURLExtraction, StepScoringRank, StepFieldMapping,
	StepMergeItems, StepEnrichData, StepAgent,
}

// LLMStepKinds are the kinds whose execution consumes LLM budget.
var LLMStepKinds = map[StepKind]bool{
	StepSummarize:   true,
	StepRank:        true,
	StepTransform:   true,
	StepScoringRank: true,
	StepTranslation: true,
	StepAgent:       true,
}

// Step limits shared by several kinds.
const (
	MaxStepItems        = 100
	DefaultStepTokens   = 1000
	MaxStepTokens       = 4000
	DefaultAgentTokens  = 1024
	MaxAgentTokens      = 4096
	DefaultAgentField   = "agentOutput"
)

// PipelineStep is a tagged union over Kind. Only the fields relevant to
// a step's kind are consulted; Validate rejects steps missing their
// kind's required fields. The zero value of an optional field means
// "use the default" (see ApplyDefaults).
type PipelineStep struct {
	Kind StepKind `json:"kind"`
	Name string   `json:"name,omitempty"`

	// dedupe, merge_items
	DedupeBy string `json:"dedupeBy,omitempty"` // url | id | title
	MergeBy  string `json:"mergeBy,omitempty"`  // url | id | title

	// filter, limit_filter, score_filter
	MaxItems int      `json:"maxItems,omitempty"`
	MinScore *float64 `json:"minScore,omitempty"`

	// sort, top_n_filter
	SortBy string `json:"sortBy,omitempty"` // publishedAt | score | relevance
	Order  string `json:"order,omitempty"`  // asc | desc
	N      int    `json:"n,omitempty"`

	// LLM steps (summarize, rank, transform, scoring_rank, claude_agent)
	PromptTemplateID   string `json:"promptTemplateId,omitempty"`
	Model              string `json:"model,omitempty"`
	MaxTokens          int    `json:"maxTokens,omitempty"`
	PerItem            bool   `json:"perItem,omitempty"`
	OutputFormat       string `json:"outputFormat,omitempty"` // json | text | markdown
	Criteria           string `json:"criteria,omitempty"`
	SystemPrompt       string `json:"systemPrompt,omitempty"`
	UserPromptTemplate string `json:"userPromptTemplate,omitempty"`
	OutputField        string `json:"outputField,omitempty"`

	// custom
	CustomStepID string         `json:"customStepId,omitempty"`
	Config       map[string]any `json:"config,omitempty"`

	// date_filter
	StartDate string    `json:"startDate,omitempty"`
	EndDate   string    `json:"endDate,omitempty"`
	TimeRange TimeRange `json:"timeRange,omitempty"`

	// keyword_filter, author_filter
	Include       []string `json:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`

	// sentiment_filter
	Sentiment Sentiment `json:"sentiment,omitempty"`

	// length_filter
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	MeasureBy string `json:"measureBy,omitempty"` // characters | words

	// regex_filter
	Pattern string `json:"pattern,omitempty"`
	Field   string `json:"field,omitempty"` // title | summary | content

	// language_filter, translation
	Languages       []string `json:"languages,omitempty"`
	TargetLanguage  string   `json:"targetLanguage,omitempty"`
	TranslateFields []string `json:"translateFields,omitempty"`

	// random_sample_filter
	SampleSize int `json:"sampleSize,omitempty"`

	// has_media_filter
	MediaType string `json:"mediaType,omitempty"` // image | video | any

	// entity_extraction, category_classification
	EntityTypes []string `json:"entityTypes,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	// text_cleanup (nil means default true for the first two)
	RemoveHTML          *bool `json:"removeHTML,omitempty"`
	NormalizeWhitespace *bool `json:"normalizeWhitespace,omitempty"`
	RemoveEmojis        bool  `json:"removeEmojis,omitempty"`

	// url_extraction (nil means default true)
	ExpandShortLinks *bool `json:"expandShortLinks,omitempty"`
	ExtractDomain    *bool `json:"extractDomain,omitempty"`

	// enrich_data
	APIURL       string            `json:"apiUrl,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	FieldMapping map[string]string `json:"fieldMapping,omitempty"`

	// field_mapping
	Mappings map[string]string `json:"mappings,omitempty"`
}

// Label returns the step's display name for logs, traces, and error
// records, falling back to the kind.
func (s PipelineStep) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// IsLLM reports whether executing this step consumes LLM budget.
func (s PipelineStep) IsLLM() bool {
	return LLMStepKinds[s.Kind]
}

// ApplyDefaults fills zero-valued optional fields with their schema
// defaults. It is idempotent and never touches fields irrelevant to
// the step's kind.
func (s *PipelineStep) ApplyDefaults() {
	trueP := func() *bool { v := true; return &v }
	switch s.Kind {
	case StepDedupe:
		if s.DedupeBy == "" {
			s.DedupeBy = "url"
		}
	case StepSort:
		if s.SortBy == "" {
			s.SortBy = "publishedAt"
		}
		if s.Order == "" {
			s.Order = "desc"
		}
	case StepSummarize:
		if s.Model == "" {
			s.Model = "gpt-4"
		}
		if s.MaxTokens <= 0 {
			s.MaxTokens = DefaultStepTokens
		}
	case StepRank, StepScoringRank:
		if s.Model == "" {
			s.Model = "gpt-4"
		}
	case StepTransform:
		if s.Model == "" {
			s.Model = "gpt-4"
		}
		if s.OutputFormat == "" {
			s.OutputFormat = "json"
		}
	case StepLengthFilter:
		if s.MeasureBy == "" {
			s.MeasureBy = "characters"
		}
	case StepRegexFilter:
		if s.Field == "" {
			s.Field = "summary"
		}
	case StepHasMediaFilter:
		if s.MediaType == "" {
			s.MediaType = "any"
		}
	case StepSentimentAnalysis:
		if s.Model == "" {
			s.Model = "simple"
		}
	case StepEntityExtraction:
		if len(s.EntityTypes) == 0 {
			s.EntityTypes = []string{"person", "organization", "location"}
		}
	case StepTranslation:
		if len(s.TranslateFields) == 0 {
			s.TranslateFields = []string{"summary"}
		}
	case StepTextCleanup:
		if s.RemoveHTML == nil {
			s.RemoveHTML = trueP()
		}
		if s.NormalizeWhitespace == nil {
			s.NormalizeWhitespace = trueP()
		}
	case StepURLExtraction:
		if s.ExpandShortLinks == nil {
			s.ExpandShortLinks = trueP()
		}
		if s.ExtractDomain == nil {
			s.ExtractDomain = trueP()
		}
	case StepMergeItems:
		if s.MergeBy == "" {
			s.MergeBy = "url"
		}
	case StepAgent:
		if s.Model == "" {
			s.Model = "claude-3-5-sonnet-20241022"
		}
		if s.MaxTokens <= 0 {
			s.MaxTokens = DefaultAgentTokens
		}
		if s.OutputField == "" {
			s.OutputField = DefaultAgentField
		}
	}
}
