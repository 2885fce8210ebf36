package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ── Definition Validation ────────────────────────────────────

// ValidationError is one schema violation, addressed by a JSON-ish
// field path ("sources[2].feedUrl").
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every violation found in one pass, so a
// caller can surface all problems at once.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "invalid agent definition"
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return "invalid agent definition: " + strings.Join(parts, "; ")
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type validator struct {
	errs ValidationErrors
}

func (v *validator) addf(path, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) require(path, val string) {
	if strings.TrimSpace(val) == "" {
		v.addf(path, "is required")
	}
}

// Validate checks the definition against the schema without mutating
// it. It returns nil or a ValidationErrors listing every violation.
func (d *AgentDefinition) Validate() error {
	v := &validator{}
	v.metadata(d.Metadata)
	v.triggers(d.Triggers)
	v.sources(d.Sources)
	v.pipeline(d.Pipeline)
	v.collation(d.Collation, d.Sources)
	v.output(d.Output)
	if d.Safety != nil {
		v.safety(*d.Safety)
	}
	if d.Execution != nil {
		switch d.Execution.OnStepError {
		case "", StepErrorAbort, StepErrorSkip:
		default:
			v.addf("execution.onStepError", "unknown policy %q", d.Execution.OnStepError)
		}
	}
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

func (v *validator) metadata(m AgentMetadata) {
	v.require("metadata.name", m.Name)
	v.require("metadata.description", m.Description)
	if m.Slug == "" {
		v.addf("metadata.slug", "is required")
	} else if !slugRe.MatchString(m.Slug) {
		v.addf("metadata.slug", "must be lowercase alphanumeric with hyphens")
	}
	if m.Category == "" {
		v.addf("metadata.category", "is required")
	} else if !containsCategory(m.Category) {
		v.addf("metadata.category", "unknown category %q", m.Category)
	}
	if m.Version != "" && !IsSemver(m.Version) {
		v.addf("metadata.version", "must be semver (X.Y.Z)")
	}
}

func containsCategory(c AgentCategory) bool {
	for _, k := range AgentCategories {
		if k == c {
			return true
		}
	}
	return false
}

func (v *validator) triggers(t AgentTriggers) {
	if t.Schedule != nil && t.Schedule.Enabled && t.Schedule.Cron == "" {
		v.addf("triggers.schedule.cron", "is required when schedule is enabled")
	}
	for i, c := range t.Commands {
		v.require(fmt.Sprintf("triggers.commands[%d].keyword", i), c.Keyword)
	}
}

func (v *validator) sources(sources []DataSourceConfig) {
	if len(sources) == 0 {
		v.addf("sources", "at least one source is required")
	}
	if len(sources) > MaxSourcesPerAgent {
		v.addf("sources", "at most %d sources allowed, got %d", MaxSourcesPerAgent, len(sources))
	}
	for i, s := range sources {
		path := fmt.Sprintf("sources[%d]", i)
		if s.MaxItems < 0 || s.MaxItems > MaxSourceMaxItems {
			v.addf(path+".maxItems", "must be between 1 and %d", MaxSourceMaxItems)
		}
		switch s.Kind {
		case SourceBuiltin:
			v.builtinSource(path, s)
		case SourceUserSourceRef:
			v.require(path+".userSourceId", s.UserSourceID)
		default:
			v.addf(path+".kind", "unknown source kind %q", s.Kind)
		}
	}
}

func (v *validator) builtinSource(path string, s DataSourceConfig) {
	known := false
	for _, t := range BuiltinSourceTypes {
		if t == s.SourceType {
			known = true
			break
		}
	}
	if !known {
		v.addf(path+".sourceType", "unknown source type %q", s.SourceType)
		return
	}
	switch s.SourceType {
	case SourceRSS, SourcePodcast:
		v.requireURL(path+".feedUrl", s.FeedURL)
	case SourceHTTPJSON, SourceWebScraper:
		v.requireURL(path+".url", s.URL)
	case SourceArxiv, SourceReddit, SourceYouTube, SourceTwitter,
		SourceGitHub, SourceNewsAPI, SourceGoogleNews,
		SourceCryptoPrice, SourceStockPrice, SourceWeather:
		v.require(path+".query", s.Query)
	}
}

func (v *validator) requireURL(path, raw string) {
	if raw == "" {
		v.addf(path, "is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		v.addf(path, "must be an http(s) URL")
	}
}

func (v *validator) pipeline(steps []PipelineStep) {
	if len(steps) == 0 {
		v.addf("pipeline", "at least one step is required")
	}
	for i, s := range steps {
		path := fmt.Sprintf("pipeline[%d]", i)
		known := false
		for _, k := range StepKinds {
			if k == s.Kind {
				known = true
				break
			}
		}
		if !known {
			v.addf(path+".kind", "unknown step kind %q", s.Kind)
			continue
		}
		v.step(path, s)
	}
}

func (v *validator) step(path string, s PipelineStep) {
	switch s.Kind {
	case StepFilter:
		if s.MaxItems < 0 || s.MaxItems > MaxStepItems {
			v.addf(path+".maxItems", "must be between 1 and %d", MaxStepItems)
		}
	case StepSummarize, StepRank, StepTransform:
		v.require(path+".promptTemplateId", s.PromptTemplateID)
		if s.Kind == StepSummarize && s.MaxTokens > MaxStepTokens {
			v.addf(path+".maxTokens", "must be at most %d", MaxStepTokens)
		}
	case StepCustom:
		v.require(path+".customStepId", s.CustomStepID)
	case StepLimitFilter:
		if s.MaxItems < 1 || s.MaxItems > MaxStepItems {
			v.addf(path+".maxItems", "must be between 1 and %d", MaxStepItems)
		}
	case StepSentimentFilter:
		switch s.Sentiment {
		case SentimentPositive, SentimentNegative, SentimentNeutral:
		default:
			v.addf(path+".sentiment", "must be positive, negative, or neutral")
		}
	case StepScoreFilter:
		if s.MinScore == nil {
			v.addf(path+".minScore", "is required")
		} else if *s.MinScore < 0 {
			v.addf(path+".minScore", "must be non-negative")
		}
	case StepRegexFilter:
		if s.Pattern == "" {
			v.addf(path+".pattern", "is required")
		} else if _, err := regexp.Compile(s.Pattern); err != nil {
			v.addf(path+".pattern", "invalid regex: %v", err)
		}
	case StepLanguageFilter:
		if len(s.Languages) == 0 {
			v.addf(path+".languages", "at least one language is required")
		}
	case StepTopNFilter:
		if s.N < 1 || s.N > MaxStepItems {
			v.addf(path+".n", "must be between 1 and %d", MaxStepItems)
		}
		v.require(path+".sortBy", s.SortBy)
	case StepRandomSampleFilter:
		if s.SampleSize < 1 || s.SampleSize > MaxStepItems {
			v.addf(path+".sampleSize", "must be between 1 and %d", MaxStepItems)
		}
	case StepTranslation:
		v.require(path+".targetLanguage", s.TargetLanguage)
	case StepScoringRank:
		v.require(path+".criteria", s.Criteria)
	case StepFieldMapping:
		if len(s.Mappings) == 0 {
			v.addf(path+".mappings", "at least one mapping is required")
		}
	case StepEnrichData:
		v.requireURL(path+".apiUrl", s.APIURL)
	case StepAgent:
		v.require(path+".systemPrompt", s.SystemPrompt)
		v.require(path+".userPromptTemplate", s.UserPromptTemplate)
		if s.MaxTokens > MaxAgentTokens {
			v.addf(path+".maxTokens", "must be at most %d", MaxAgentTokens)
		}
	}
}

func (v *validator) collation(c CollationConfig, sources []DataSourceConfig) {
	switch c.Strategy {
	case "", CollateMerge, CollateSeparate, CollatePrioritize:
	default:
		v.addf("collation.strategy", "unknown strategy %q", c.Strategy)
	}
	if c.MaxTotalItems < 0 || c.MaxTotalItems > MaxMaxTotalItems {
		v.addf("collation.maxTotalItems", "must be between 1 and %d", MaxMaxTotalItems)
	}
	if c.Strategy == CollatePrioritize && len(c.SourcePriority) > 0 {
		ids := make(map[string]bool, len(sources))
		for _, s := range sources {
			ids[s.Label()] = true
		}
		for i, id := range c.SourcePriority {
			if !ids[id] {
				v.addf(fmt.Sprintf("collation.sourcePriority[%d]", i), "unknown source %q", id)
			}
		}
	}
}

func (v *validator) output(o OutputConfig) {
	v.require("output.sms.template", o.SMS.Template)
	if o.Webhook != nil && o.Webhook.Enabled {
		v.requireURL("output.webhook.url", o.Webhook.URL)
		if m := o.Webhook.Method; m != "" && m != "POST" && m != "PUT" {
			v.addf("output.webhook.method", "must be POST or PUT")
		}
	}
	if o.Email != nil && o.Email.Enabled {
		if len(o.Email.To) == 0 {
			v.addf("output.email.to", "at least one recipient is required")
		}
		v.require("output.email.subject", o.Email.Subject)
		v.require("output.email.template", o.Email.Template)
	}
	if o.Slack != nil && o.Slack.Enabled {
		v.require("output.slack.channel", o.Slack.Channel)
		v.requireURL("output.slack.webhookUrl", o.Slack.WebhookURL)
	}
	if o.Discord != nil && o.Discord.Enabled {
		v.requireURL("output.discord.webhookUrl", o.Discord.WebhookURL)
	}
	if o.Twitter != nil && o.Twitter.Enabled {
		v.require("output.twitter.template", o.Twitter.Template)
	}
	if o.Notification != nil && o.Notification.Enabled {
		v.require("output.notification.title", o.Notification.Title)
		v.require("output.notification.body", o.Notification.Body)
	}
	if o.Database != nil && o.Database.Enabled {
		v.require("output.database.connectionString", o.Database.ConnectionString)
		v.require("output.database.table", o.Database.Table)
	}
	if o.Sheets != nil && o.Sheets.Enabled {
		v.require("output.sheets.spreadsheetId", o.Sheets.SpreadsheetID)
		v.require("output.sheets.sheetName", o.Sheets.SheetName)
	}
}

func (v *validator) safety(s SafetyConfig) {
	check := func(path string, val, max int) {
		if val < 0 || val > max {
			v.addf(path, "must be between 1 and %d", max)
		}
	}
	check("safety.maxSourcesPerRun", s.MaxSourcesPerRun, MaxSafetySources)
	check("safety.maxItemsPerSource", s.MaxItemsPerSource, MaxSafetyItems)
	check("safety.maxLLMCalls", s.MaxLLMCalls, MaxSafetyLLMCalls)
	check("safety.maxTokensPerRun", s.MaxTokensPerRun, MaxSafetyTokens)
	check("safety.timeout", s.Timeout, MaxSafetyTimeout)
}

// ApplyDefaults fills schema defaults across the whole definition. Call
// after Validate; the pair is how a raw definition becomes runnable.
func (d *AgentDefinition) ApplyDefaults() {
	if d.Metadata.Version == "" {
		d.Metadata.Version = DefaultAgentVersion
	}
	for i := range d.Pipeline {
		d.Pipeline[i].ApplyDefaults()
	}
	if d.Output.SMS.MaxLength <= 0 {
		d.Output.SMS.MaxLength = DefaultSMSMaxLength
	}
}
