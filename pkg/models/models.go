// Package models defines the wire types of the agent execution engine:
// the declarative AgentDefinition, the universal item shape that flows
// through a pipeline, and the RunContext/RunResult pair exchanged with
// callers. Everything here is JSON-serializable; a definition that
// round-trips through encoding/json validates identically.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ── Semantic Versioning Helpers ──────────────────────────────

// DefaultAgentVersion is the initial version assigned to newly stored agents.
const DefaultAgentVersion = "0.1.0"

// ParseSemver splits a "major.minor.patch" string. Returns (0,1,0) on error.
func ParseSemver(v string) (major, minor, patch int) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return 0, 1, 0
	}
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	patch, _ = strconv.Atoi(parts[2])
	return
}

// FormatSemver formats major.minor.patch into a version string.
func FormatSemver(major, minor, patch int) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// BumpPatch increments the patch component: 0.1.2 → 0.1.3
func BumpPatch(v string) string {
	major, minor, patch := ParseSemver(v)
	return FormatSemver(major, minor, patch+1)
}

// BumpMinor increments the minor component and resets patch: 0.1.3 → 0.2.0
func BumpMinor(v string) string {
	major, minor, _ := ParseSemver(v)
	return FormatSemver(major, minor+1, 0)
}

// IsSemver returns true if the string looks like "X.Y.Z".
func IsSemver(v string) bool {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// ── Agent Metadata ───────────────────────────────────────────

type AgentCategory string

const (
	CategoryResearch      AgentCategory = "research"
	CategoryNews          AgentCategory = "news"
	CategoryFinance       AgentCategory = "finance"
	CategoryCrypto        AgentCategory = "crypto"
	CategoryHealth        AgentCategory = "health"
	CategoryTechnology    AgentCategory = "technology"
	CategoryRecruiting    AgentCategory = "recruiting"
	CategoryEducation     AgentCategory = "education"
	CategoryEntertainment AgentCategory = "entertainment"
	CategoryOther         AgentCategory = "other"
)

// AgentCategories lists the accepted metadata categories.
var AgentCategories = []AgentCategory{
	CategoryResearch, CategoryNews, CategoryFinance, CategoryCrypto,
	CategoryHealth, CategoryTechnology, CategoryRecruiting,
	CategoryEducation, CategoryEntertainment, CategoryOther,
}

// AgentMetadata identifies an agent definition.
type AgentMetadata struct {
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Icon        string        `json:"icon,omitempty"`
	Category    AgentCategory `json:"category"`
	Tags        []string      `json:"tags,omitempty"`
	Version     string        `json:"version,omitempty"`
}

// ── Triggers ─────────────────────────────────────────────────

// Schedule describes a cron-style trigger. The engine itself does not
// run a scheduler; the schedule is carried for external trigger services.
type Schedule struct {
	Enabled  bool   `json:"enabled"`
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Command is a keyword trigger ("AI" runs the AI digest agent).
type Command struct {
	Keyword     string `json:"keyword"`
	Description string `json:"description,omitempty"`
}

type AgentTriggers struct {
	Schedule *Schedule `json:"schedule,omitempty"`
	Commands []Command `json:"commands"`
}

// ── User Profile ─────────────────────────────────────────────

type ProfileFieldType string

const (
	ProfileFieldText        ProfileFieldType = "text"
	ProfileFieldNumber      ProfileFieldType = "number"
	ProfileFieldSelect      ProfileFieldType = "select"
	ProfileFieldMultiSelect ProfileFieldType = "multiselect"
)

// ProfileField is a typed descriptor for one personalization input.
// Values supplied at run time are substituted into {profile.key}
// template placeholders.
type ProfileField struct {
	Key          string           `json:"key"`
	Label        string           `json:"label"`
	Type         ProfileFieldType `json:"type"`
	Required     bool             `json:"required"`
	Options      []string         `json:"options,omitempty"`
	DefaultValue any              `json:"defaultValue,omitempty"`
}

type UserProfile struct {
	Fields []ProfileField `json:"fields,omitempty"`
}

// ── Data Sources ─────────────────────────────────────────────

type SourceKind string

const (
	SourceBuiltin       SourceKind = "builtin"
	SourceUserSourceRef SourceKind = "user_source_ref"
)

type BuiltinSourceType string

const (
	SourceArxiv       BuiltinSourceType = "arxiv"
	SourceReddit      BuiltinSourceType = "reddit"
	SourceHackerNews  BuiltinSourceType = "hackernews"
	SourceYouTube     BuiltinSourceType = "youtube"
	SourceTwitter     BuiltinSourceType = "twitter"
	SourceRSS         BuiltinSourceType = "rss"
	SourceHTTPJSON    BuiltinSourceType = "http_json"
	SourceWebScraper  BuiltinSourceType = "web_scraper"
	SourceGitHub      BuiltinSourceType = "github"
	SourceProductHunt BuiltinSourceType = "producthunt"
	SourceNewsAPI     BuiltinSourceType = "news_api"
	SourceGoogleNews  BuiltinSourceType = "google_news"
	SourceCryptoPrice BuiltinSourceType = "crypto_price"
	SourceStockPrice  BuiltinSourceType = "stock_price"
	SourceWeather     BuiltinSourceType = "weather"
	SourceGmail       BuiltinSourceType = "gmail"
	SourcePodcast     BuiltinSourceType = "podcast"
)

// BuiltinSourceTypes lists every supported built-in source type.
var BuiltinSourceTypes = []BuiltinSourceType{
	SourceArxiv, SourceReddit, SourceHackerNews, SourceYouTube,
	SourceTwitter, SourceRSS, SourceHTTPJSON, SourceWebScraper,
	SourceGitHub, SourceProductHunt, SourceNewsAPI, SourceGoogleNews,
	SourceCryptoPrice, SourceStockPrice, SourceWeather, SourceGmail,
	SourcePodcast,
}

type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range6h  TimeRange = "6h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// Duration converts a TimeRange to a time.Duration. Unknown ranges
// return zero, which fetchers treat as "no recency cutoff".
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range6h:
		return 6 * time.Hour
	case Range24h:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	}
	return 0
}

const (
	DefaultSourceMaxItems = 10
	MaxSourceMaxItems     = 50
	MaxSourcesPerAgent    = 5
)

// DataSourceConfig is a tagged union over Kind. Builtin sources carry
// type-specific optional fields (FeedURL for rss, URL/JSONPath for
// http_json, Selectors for web_scraper, Query for search-style sources);
// user_source_ref delegates resolution to an externally managed source.
type DataSourceConfig struct {
	ID   string     `json:"id,omitempty"`
	Kind SourceKind `json:"kind"`

	// Builtin fields
	SourceType  BuiltinSourceType `json:"sourceType,omitempty"`
	Query       string            `json:"query,omitempty"`
	MaxItems    int               `json:"maxItems,omitempty"`
	TimeRange   TimeRange         `json:"timeRange,omitempty"`
	FeedURL     string            `json:"feedUrl,omitempty"`
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	JSONPath    string            `json:"jsonPath,omitempty"`
	ExtractMode string            `json:"extractMode,omitempty"`
	Selectors   map[string]string `json:"selectors,omitempty"`

	// user_source_ref fields
	UserSourceID string `json:"userSourceId,omitempty"`
}

// Label returns a human-readable identifier for logs and error records.
func (c DataSourceConfig) Label() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Kind == SourceUserSourceRef {
		return "user_source:" + c.UserSourceID
	}
	return string(c.SourceType)
}

// EffectiveMaxItems returns the configured item cap, defaulted and
// clamped to the schema bounds.
func (c DataSourceConfig) EffectiveMaxItems() int {
	n := c.MaxItems
	if n <= 0 {
		n = DefaultSourceMaxItems
	}
	if n > MaxSourceMaxItems {
		n = MaxSourceMaxItems
	}
	return n
}

// ── Collation ────────────────────────────────────────────────

type CollationStrategy string

const (
	CollateMerge      CollationStrategy = "merge"
	CollateSeparate   CollationStrategy = "separate"
	CollatePrioritize CollationStrategy = "prioritize"
)

const (
	DefaultMaxTotalItems = 20
	MaxMaxTotalItems     = 100
)

type CollationConfig struct {
	Strategy CollationStrategy `json:"strategy,omitempty"`
	// SourcePriority orders source IDs for the prioritize strategy.
	SourcePriority []string `json:"sourcePriority,omitempty"`
	MaxTotalItems  int      `json:"maxTotalItems,omitempty"`
}

// EffectiveStrategy returns the strategy, defaulting to merge.
func (c CollationConfig) EffectiveStrategy() CollationStrategy {
	if c.Strategy == "" {
		return CollateMerge
	}
	return c.Strategy
}

// EffectiveMaxTotalItems returns the total item cap, defaulted and
// clamped to the schema bounds.
func (c CollationConfig) EffectiveMaxTotalItems() int {
	n := c.MaxTotalItems
	if n <= 0 {
		n = DefaultMaxTotalItems
	}
	if n > MaxMaxTotalItems {
		n = MaxMaxTotalItems
	}
	return n
}

// ── Output Channels ──────────────────────────────────────────

type ChannelKind string

const (
	ChannelSMS          ChannelKind = "sms"
	ChannelReport       ChannelKind = "report"
	ChannelAudio        ChannelKind = "audio"
	ChannelEmail        ChannelKind = "email"
	ChannelWebhook      ChannelKind = "webhook"
	ChannelSlack        ChannelKind = "slack"
	ChannelDiscord      ChannelKind = "discord"
	ChannelTwitter      ChannelKind = "twitter"
	ChannelNotification ChannelKind = "notification"
	ChannelDatabase     ChannelKind = "database"
	ChannelSheets       ChannelKind = "sheets"
	ChannelFile         ChannelKind = "file"
)

// ChannelKinds lists every supported output channel.
var ChannelKinds = []ChannelKind{
	ChannelSMS, ChannelReport, ChannelAudio, ChannelEmail,
	ChannelWebhook, ChannelSlack, ChannelDiscord, ChannelTwitter,
	ChannelNotification, ChannelDatabase, ChannelSheets, ChannelFile,
}

const DefaultSMSMaxLength = 1600

type SMSOutput struct {
	Enabled   bool   `json:"enabled"`
	Template  string `json:"template"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// EffectiveMaxLength returns the SMS truncation limit with the carrier
// default applied.
func (o SMSOutput) EffectiveMaxLength() int {
	if o.MaxLength <= 0 {
		return DefaultSMSMaxLength
	}
	return o.MaxLength
}

type ReportSection struct {
	Title    string `json:"title"`
	Content  string `json:"content"` // summary | items | custom
	Template string `json:"template,omitempty"`
}

type ReportOutput struct {
	Enabled  bool            `json:"enabled"`
	Format   string          `json:"format,omitempty"` // markdown | html | json
	Sections []ReportSection `json:"sections,omitempty"`
}

type AudioOutput struct {
	Enabled bool   `json:"enabled"`
	Voice   string `json:"voice,omitempty"`
}

type EmailOutput struct {
	Enabled  bool     `json:"enabled"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Template string   `json:"template"`
}

type WebhookOutput struct {
	Enabled bool              `json:"enabled"`
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"` // POST | PUT
	Headers map[string]string `json:"headers,omitempty"`
	Secret  string            `json:"secret,omitempty"`
}

type SlackOutput struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel"`
	WebhookURL string `json:"webhookUrl"`
	Template   string `json:"template,omitempty"`
}

type DiscordOutput struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhookUrl"`
	Template   string `json:"template,omitempty"`
}

type TwitterOutput struct {
	Enabled   bool   `json:"enabled"`
	Template  string `json:"template"`
	MaxLength int    `json:"maxLength,omitempty"`
}

type NotificationOutput struct {
	Enabled      bool     `json:"enabled"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	DeviceTokens []string `json:"deviceTokens,omitempty"`
}

type DatabaseOutput struct {
	Enabled          bool              `json:"enabled"`
	ConnectionString string            `json:"connectionString"`
	Table            string            `json:"table"`
	FieldMapping     map[string]string `json:"fieldMapping,omitempty"`
}

type SheetsOutput struct {
	Enabled       bool   `json:"enabled"`
	SpreadsheetID string `json:"spreadsheetId"`
	SheetName     string `json:"sheetName"`
	AppendMode    bool   `json:"appendMode"`
}

type FileOutput struct {
	Enabled  bool   `json:"enabled"`
	Format   string `json:"format,omitempty"` // csv | json | markdown
	Filename string `json:"filename,omitempty"`
}

// OutputConfig fans the final item list out to delivery channels. SMS is
// the one mandatory channel; everything else is opt-in.
type OutputConfig struct {
	SMS          SMSOutput           `json:"sms"`
	Report       *ReportOutput       `json:"report,omitempty"`
	Audio        *AudioOutput        `json:"audio,omitempty"`
	Email        *EmailOutput        `json:"email,omitempty"`
	Webhook      *WebhookOutput      `json:"webhook,omitempty"`
	Slack        *SlackOutput        `json:"slack,omitempty"`
	Discord      *DiscordOutput      `json:"discord,omitempty"`
	Twitter      *TwitterOutput      `json:"twitter,omitempty"`
	Notification *NotificationOutput `json:"notification,omitempty"`
	Database     *DatabaseOutput     `json:"database,omitempty"`
	Sheets       *SheetsOutput       `json:"sheets,omitempty"`
	File         *FileOutput         `json:"file,omitempty"`
}

// ── Safety ───────────────────────────────────────────────────

// Ceilings for SafetyConfig fields. Values above these fail validation;
// zero values take the defaults.
const (
	MaxSafetySources  = 5
	MaxSafetyItems    = 50
	MaxSafetyLLMCalls = 20
	MaxSafetyTokens   = 50000
	MaxSafetyTimeout  = 300

	DefaultSafetySources  = 5
	DefaultSafetyItems    = 50
	DefaultSafetyLLMCalls = 20
	DefaultSafetyTokens   = 50000
	DefaultSafetyTimeout  = 300
)

// SafetyConfig bounds the resources one run may consume. Timeout is in
// seconds of wall-clock time.
type SafetyConfig struct {
	MaxSourcesPerRun  int `json:"maxSourcesPerRun,omitempty"`
	MaxItemsPerSource int `json:"maxItemsPerSource,omitempty"`
	MaxLLMCalls       int `json:"maxLLMCalls,omitempty"`
	MaxTokensPerRun   int `json:"maxTokensPerRun,omitempty"`
	Timeout           int `json:"timeout,omitempty"`
}

// WithDefaults returns a copy with zero fields replaced by the default
// budget values.
func (s SafetyConfig) WithDefaults() SafetyConfig {
	if s.MaxSourcesPerRun <= 0 {
		s.MaxSourcesPerRun = DefaultSafetySources
	}
	if s.MaxItemsPerSource <= 0 {
		s.MaxItemsPerSource = DefaultSafetyItems
	}
	if s.MaxLLMCalls <= 0 {
		s.MaxLLMCalls = DefaultSafetyLLMCalls
	}
	if s.MaxTokensPerRun <= 0 {
		s.MaxTokensPerRun = DefaultSafetyTokens
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultSafetyTimeout
	}
	return s
}

// ── Execution Policy ─────────────────────────────────────────

type StepErrorPolicy string

const (
	// StepErrorAbort stops the pipeline on the first step failure,
	// keeping items processed so far. This is the default.
	StepErrorAbort StepErrorPolicy = "abort"
	// StepErrorSkip records the failure and continues with the items the
	// failing step received as input.
	StepErrorSkip StepErrorPolicy = "skip"
)

// ExecutionConfig carries run-behavior knobs that are not part of the
// pipeline itself.
type ExecutionConfig struct {
	OnStepError StepErrorPolicy `json:"onStepError,omitempty"`
}

// ── Agent Definition ─────────────────────────────────────────

// AgentDefinition is the complete declarative configuration of one
// agent: where to fetch, how to process, how to combine, where to send.
// A definition is treated as immutable once validated for a run.
type AgentDefinition struct {
	Metadata    AgentMetadata      `json:"metadata"`
	Triggers    AgentTriggers      `json:"triggers"`
	UserProfile *UserProfile       `json:"userProfile,omitempty"`
	Sources     []DataSourceConfig `json:"sources"`
	Pipeline    []PipelineStep     `json:"pipeline"`
	Collation   CollationConfig    `json:"collation"`
	Output      OutputConfig       `json:"output"`
	Safety      *SafetyConfig      `json:"safety,omitempty"`
	Execution   *ExecutionConfig   `json:"execution,omitempty"`
}

// EffectiveSafety returns the safety config with defaults applied,
// whether or not the definition carries one.
func (d *AgentDefinition) EffectiveSafety() SafetyConfig {
	if d.Safety == nil {
		return SafetyConfig{}.WithDefaults()
	}
	return d.Safety.WithDefaults()
}

// StepErrorPolicy returns the configured policy, defaulting to abort.
func (d *AgentDefinition) StepErrorPolicy() StepErrorPolicy {
	if d.Execution != nil && d.Execution.OnStepError == StepErrorSkip {
		return StepErrorSkip
	}
	return StepErrorAbort
}

// MatchCommand reports whether a trigger command matches the keyword,
// case-insensitively.
func (d *AgentDefinition) MatchCommand(keyword string) bool {
	for _, c := range d.Triggers.Commands {
		if strings.EqualFold(c.Keyword, keyword) {
			return true
		}
	}
	return false
}

// ── Items ────────────────────────────────────────────────────

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Item is the universal record shape flowing through a pipeline. The
// base fields are populated by source normalization; enrichment fields
// are added by pipeline steps. Raw always carries the original source
// payload untouched.
type Item struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Content     string     `json:"content,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Author      string     `json:"author,omitempty"`
	Score       *float64   `json:"score,omitempty"`

	// Enrichment fields, written by pipeline steps.
	RelevanceReason string    `json:"relevanceReason,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	KeyPoints       []string  `json:"keyPoints,omitempty"`
	Sentiment       Sentiment `json:"sentiment,omitempty"`
	Entities        []string  `json:"entities,omitempty"`
	Language        string    `json:"language,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	VideoURL        string    `json:"videoUrl,omitempty"`

	// SourceID tags which configured source produced the item; the
	// "separate" collation strategy groups output by it.
	SourceID string `json:"sourceId,omitempty"`

	// Extra holds step-added fields that have no typed slot
	// (field_mapping targets, agent step outputField, enrich_data).
	Extra map[string]any `json:"extra,omitempty"`

	// Raw is the opaque original payload, preserved end to end.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// SetExtra records a dynamic field on the item.
func (it *Item) SetExtra(key string, value any) {
	if it.Extra == nil {
		it.Extra = make(map[string]any)
	}
	it.Extra[key] = value
}

// Field reads a named field off the item, checking typed slots first
// and falling back to Extra. The second return reports presence.
func (it Item) Field(key string) (any, bool) {
	switch key {
	case "id":
		return it.ID, it.ID != ""
	case "title":
		return it.Title, it.Title != ""
	case "summary":
		return it.Summary, it.Summary != ""
	case "content":
		return it.Content, it.Content != ""
	case "url":
		return it.URL, it.URL != ""
	case "author":
		return it.Author, it.Author != ""
	case "score":
		if it.Score == nil {
			return nil, false
		}
		return *it.Score, true
	case "publishedAt":
		if it.PublishedAt == nil {
			return nil, false
		}
		return *it.PublishedAt, true
	case "sentiment":
		return string(it.Sentiment), it.Sentiment != ""
	case "language":
		return it.Language, it.Language != ""
	case "relevanceReason":
		return it.RelevanceReason, it.RelevanceReason != ""
	case "sourceId":
		return it.SourceID, it.SourceID != ""
	}
	v, ok := it.Extra[key]
	return v, ok
}

// ScoreValue returns the score for sorting, with missing scores ranking
// lowest.
func (it Item) ScoreValue() float64 {
	if it.Score == nil {
		return -1
	}
	return *it.Score
}

// PublishedUnix returns the publish time in Unix millis for sorting,
// with missing timestamps ranking lowest.
func (it Item) PublishedUnix() int64 {
	if it.PublishedAt == nil {
		return 0
	}
	return it.PublishedAt.UnixMilli()
}

// ── Run Context & Result ─────────────────────────────────────

type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerCommand   TriggerType = "command"
	TriggerManual    TriggerType = "manual"
	TriggerPreview   TriggerType = "preview"
)

// RunContext is the caller-supplied input of one run.
type RunContext struct {
	AgentID        string         `json:"agentId"`
	AgentVersionID string         `json:"agentVersionId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	UserProfile    map[string]any `json:"userProfile,omitempty"`
	TriggerType    TriggerType    `json:"triggerType"`
	TriggerPayload map[string]any `json:"triggerPayload,omitempty"`
	// DryRun renders outputs without delivering them and skips run
	// persistence.
	DryRun bool `json:"dryRun,omitempty"`
}

// RunMetrics reflects real resource consumption, including partial
// progress when a run stops early.
type RunMetrics struct {
	SourcesFetched int   `json:"sourcesFetched"`
	ItemsProcessed int   `json:"itemsProcessed"`
	LLMCallsMade   int   `json:"llmCallsMade"`
	TokensUsed     int   `json:"tokensUsed"`
	DurationMs     int64 `json:"durationMs"`
}

// RunError is one recorded failure, ordered by occurrence.
type RunError struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// StepTrace records one pipeline step execution for debugging and
// previews.
type StepTrace struct {
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	ItemsIn    int    `json:"itemsIn"`
	ItemsOut   int    `json:"itemsOut"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"   // resource budget exceeded
	RunTimedOut  RunStatus = "timed_out" // wall-clock deadline hit
)

// RunResult is the engine's only output. Callers never see a raw error
// from the orchestrator: Success=false plus a populated Errors list is
// the sole failure signal.
type RunResult struct {
	Success    bool                   `json:"success"`
	Status     RunStatus              `json:"status"`
	AgentRunID string                 `json:"agentRunId,omitempty"`
	Outputs    map[ChannelKind]string `json:"outputs"`
	Metrics    RunMetrics             `json:"metrics"`
	Errors     []RunError             `json:"errors,omitempty"`
	StepTraces []StepTrace            `json:"stepTraces,omitempty"`
}

// ── Stored Records ───────────────────────────────────────────

// AgentVersion is one immutable stored revision of a definition.
type AgentVersion struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	Version    string          `json:"version"`
	Definition AgentDefinition `json:"definition"`
	CreatedAt  time.Time       `json:"created_at"`
}

// UserSource is a user-registered source definition that agent
// definitions reference by ID through the user_source_ref kind.
// FieldPaths maps normalized item fields (id, title, summary, url,
// publishedAt, author, score) to JSON paths in the raw payload.
type UserSource struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id,omitempty"`
	Name       string            `json:"name"`
	Config     DataSourceConfig  `json:"config"`
	FieldPaths map[string]string `json:"field_paths,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// AgentRun is the persisted record of one completed run.
type AgentRun struct {
	ID         string      `json:"id"`
	AgentID    string      `json:"agent_id"`
	VersionID  string      `json:"version_id,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	RunType    TriggerType `json:"run_type"`
	Status     RunStatus   `json:"status"`
	Result     RunResult   `json:"result"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}
