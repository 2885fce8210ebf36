package output_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/pkg/models"
)

func testPayload() output.Payload {
	score := 0.9
	return output.Payload{
		AgentName: "AI Digest",
		RunID:     "run-1",
		Summary:   "Two big stories today.",
		Items: []models.Item{
			{ID: "1", Title: "Story A", URL: "https://x/a", Summary: "First", Score: &score},
			{ID: "2", Title: "Story B", URL: "https://x/b", Summary: "Second"},
		},
	}
}

func TestRenderSMS_TemplateAndTruncation(t *testing.T) {
	p := testPayload()
	got := output.RenderSMS(models.SMSOutput{Template: "{agent}: {summary}"}, p)
	if got != "AI Digest: Two big stories today." {
		t.Errorf("RenderSMS = %q", got)
	}

	short := output.RenderSMS(models.SMSOutput{Template: "{summary}", MaxLength: 10}, p)
	if len(short) != 10 || !strings.HasSuffix(short, "...") {
		t.Errorf("truncated = %q (len %d), want 10 chars ending ...", short, len(short))
	}
}

func TestRenderReport_Markdown(t *testing.T) {
	got := output.RenderReport(models.ReportOutput{Enabled: true}, testPayload())
	for _, want := range []string{"# AI Digest", "## Summary", "Two big stories", "[Story A](https://x/a)"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestDispatch_DryRunRendersWithoutSending(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer srv.Close()

	cfg := models.OutputConfig{
		SMS:     models.SMSOutput{Enabled: true, Template: "{summary}"},
		Webhook: &models.WebhookOutput{Enabled: true, URL: srv.URL},
	}
	d := output.NewDispatcher(t.TempDir())
	outputs, errs := d.Dispatch(context.Background(), cfg, testPayload(), true)

	if hits != 0 {
		t.Errorf("dry run hit the webhook %d times", hits)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v", errs)
	}
	if outputs[models.ChannelSMS] == "" || outputs[models.ChannelWebhook] == "" {
		t.Errorf("outputs missing rendered channels: %v", outputs)
	}
}

func TestDispatch_WebhookSignsPayload(t *testing.T) {
	const secret = "shh"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-AgentEngine-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	cfg := models.OutputConfig{
		SMS:     models.SMSOutput{Enabled: true, Template: "{summary}"},
		Webhook: &models.WebhookOutput{Enabled: true, URL: srv.URL, Secret: secret},
	}
	d := output.NewDispatcher(t.TempDir())
	_, errs := d.Dispatch(context.Background(), cfg, testPayload(), false)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	if !strings.Contains(string(gotBody), `"agent":"AI Digest"`) {
		t.Errorf("body = %s", gotBody)
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := models.OutputConfig{
		SMS:     models.SMSOutput{Enabled: true, Template: "{summary}"},
		Webhook: &models.WebhookOutput{Enabled: true, URL: srv.URL},
		File:    &models.FileOutput{Enabled: true, Format: "json", Filename: "out.json"},
	}
	d := output.NewDispatcher(dir)
	outputs, errs := d.Dispatch(context.Background(), cfg, testPayload(), false)

	if len(errs) != 1 || !strings.HasPrefix(errs[0].Step, "output:webhook") {
		t.Errorf("errs = %v, want one webhook error", errs)
	}
	// The file channel still delivered.
	if _, err := os.Stat(filepath.Join(dir, "out.json")); err != nil {
		t.Errorf("file output missing: %v", err)
	}
	if len(outputs) != 3 {
		t.Errorf("outputs = %d channels, want 3 (render always succeeds)", len(outputs))
	}
}

func TestFileSender_CSVFormat(t *testing.T) {
	dir := t.TempDir()
	cfg := models.OutputConfig{
		SMS:  models.SMSOutput{Enabled: true, Template: "x"},
		File: &models.FileOutput{Enabled: true, Format: "csv"},
	}
	d := output.NewDispatcher(dir)
	outputs, errs := d.Dispatch(context.Background(), cfg, testPayload(), false)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	csvOut := outputs[models.ChannelFile]
	if !strings.HasPrefix(csvOut, "id,title,summary") {
		t.Errorf("csv header missing: %q", csvOut)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "ai-digest-run-1.csv"))
	if len(matches) != 1 {
		t.Errorf("expected ai-digest-run-1.csv in %s", dir)
	}
}

func TestRenderTwitter_Limit(t *testing.T) {
	p := testPayload()
	p.Summary = strings.Repeat("long ", 100)
	got := output.RenderTwitter(models.TwitterOutput{Template: "{summary}"}, p)
	if len(got) > 280 {
		t.Errorf("tweet length = %d, want <= 280", len(got))
	}
}

func TestRenderTwitter_TinyLimit(t *testing.T) {
	p := testPayload()
	// Limits too small for an ellipsis cut hard instead of slicing
	// below zero.
	got := output.RenderTwitter(models.TwitterOutput{Template: "{summary}", MaxLength: 2}, p)
	if got != p.Summary[:2] {
		t.Errorf("RenderTwitter = %q, want %q", got, p.Summary[:2])
	}
}
