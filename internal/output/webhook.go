package output

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Webhook Sender ───────────────────────────────────────────

// webhookBody is the JSON payload webhooks and database exports carry.
func webhookBody(p Payload) string {
	doc := map[string]any{
		"agent":     p.AgentName,
		"runId":     p.RunID,
		"summary":   p.Summary,
		"itemCount": len(p.Items),
		"items":     p.Items,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// WebhookSender posts the run payload to the configured URL with
// optional HMAC-SHA256 signing and exponential-backoff retries.
type WebhookSender struct {
	client *http.Client
}

func (s *WebhookSender) Kind() models.ChannelKind { return models.ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, cfg models.OutputConfig, p Payload, rendered string) error {
	wh := cfg.Webhook
	method := wh.Method
	if method == "" {
		method = http.MethodPost
	}
	body := []byte(rendered)

	headers := map[string]string{
		"Content-Type":      "application/json",
		"User-Agent":        "agent-engine/1.0",
		"X-AgentEngine-Run": p.RunID,
	}
	for k, v := range wh.Headers {
		headers[k] = v
	}
	if wh.Secret != "" {
		mac := hmac.New(sha256.New, []byte(wh.Secret))
		mac.Write(body)
		headers["X-AgentEngine-Signature"] = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}

	return postWithBackoff(ctx, s.client, method, wh.URL, body, headers)
}

// postWithBackoff retries transient failures up to 3 attempts with
// exponential backoff. 4xx responses are permanent and never retried.
func postWithBackoff(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
		default:
			return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("delivery to %s failed: %w", url, err)
	}
	return nil
}

// ── Slack / Discord Senders ──────────────────────────────────

// SlackSender posts the rendered message to an incoming webhook.
type SlackSender struct {
	client *http.Client
}

func (s *SlackSender) Kind() models.ChannelKind { return models.ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, cfg models.OutputConfig, _ Payload, rendered string) error {
	body, _ := json.Marshal(map[string]string{
		"channel": cfg.Slack.Channel,
		"text":    rendered,
	})
	return postWithBackoff(ctx, s.client, http.MethodPost, cfg.Slack.WebhookURL, body, map[string]string{
		"Content-Type": "application/json",
	})
}

// DiscordSender posts the rendered message to a Discord webhook.
type DiscordSender struct {
	client *http.Client
}

func (s *DiscordSender) Kind() models.ChannelKind { return models.ChannelDiscord }

func (s *DiscordSender) Send(ctx context.Context, cfg models.OutputConfig, _ Payload, rendered string) error {
	body, _ := json.Marshal(map[string]string{"content": rendered})
	return postWithBackoff(ctx, s.client, http.MethodPost, cfg.Discord.WebhookURL, body, map[string]string{
		"Content-Type": "application/json",
	})
}
