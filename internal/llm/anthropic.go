package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ── Anthropic Driver ─────────────────────────────────────────

// AnthropicDriver calls the Anthropic Messages API.
type AnthropicDriver struct {
	client anthropic.Client
}

// NewAnthropicDriver builds a driver using the official client. An
// empty apiKey falls back to the SDK's environment lookup.
func NewAnthropicDriver(apiKey string) *AnthropicDriver {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicDriver{client: anthropic.NewClient(opts...)}
}

func (d *AnthropicDriver) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := d.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return &Response{
		Text:         sb.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
