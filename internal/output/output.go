// Package output fans the final item list of a run out to the
// definition's delivery channels. Rendering is separated from
// transport: every enabled channel renders its content into the run's
// outputs map, and channels with a registered sender also deliver it.
// Dry runs render everything and send nothing.
package output

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Sender Registry ──────────────────────────────────────────

// Sender delivers one channel's rendered content. Implementations get
// the channel-specific config through the closure that built them.
type Sender interface {
	Kind() models.ChannelKind
	Send(ctx context.Context, cfg models.OutputConfig, p Payload, rendered string) error
}

// Dispatcher renders and delivers run outputs.
type Dispatcher struct {
	client  *http.Client
	senders map[models.ChannelKind]Sender
	sendMu  sync.RWMutex
}

// NewDispatcher creates a dispatcher with the built-in webhook, slack,
// discord, and file senders. Hosts register SMS/email/etc transports
// for the render-only channels via RegisterSender.
func NewDispatcher(fileDir string) *Dispatcher {
	d := &Dispatcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		senders: make(map[models.ChannelKind]Sender),
	}
	d.RegisterSender(&WebhookSender{client: d.client})
	d.RegisterSender(&SlackSender{client: d.client})
	d.RegisterSender(&DiscordSender{client: d.client})
	d.RegisterSender(&FileSender{dir: fileDir})
	return d
}

// RegisterSender adds or replaces the transport for a channel kind.
func (d *Dispatcher) RegisterSender(s Sender) {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	d.senders[s.Kind()] = s
	log.Info().Str("kind", string(s.Kind())).Msg("Registered output sender")
}

func (d *Dispatcher) sender(kind models.ChannelKind) Sender {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	return d.senders[kind]
}

// SenderKinds returns the channels with a registered transport, sorted
// for stable output.
func (d *Dispatcher) SenderKinds() []models.ChannelKind {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	out := make([]models.ChannelKind, 0, len(d.senders))
	for k := range d.senders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ── Dispatch ─────────────────────────────────────────────────

// channelJob is one enabled channel's rendered content, ready to send.
type channelJob struct {
	kind     models.ChannelKind
	rendered string
}

// Dispatch renders every enabled channel and delivers concurrently.
// The outputs map always holds the rendered content for every enabled
// channel, delivered or not; delivery failures come back as RunErrors
// without affecting sibling channels.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg models.OutputConfig, p Payload, dryRun bool) (map[models.ChannelKind]string, []models.RunError) {
	jobs := d.render(cfg, p)

	outputs := make(map[models.ChannelKind]string, len(jobs))
	for _, j := range jobs {
		outputs[j.kind] = j.rendered
	}
	if dryRun {
		return outputs, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []models.RunError
	)
	for _, j := range jobs {
		sender := d.sender(j.kind)
		if sender == nil {
			// Render-only channel; the host delivers it.
			continue
		}
		wg.Add(1)
		go func(j channelJob, s Sender) {
			defer wg.Done()
			if err := s.Send(ctx, cfg, p, j.rendered); err != nil {
				log.Warn().Str("channel", string(j.kind)).Err(err).Msg("Output delivery failed")
				mu.Lock()
				errs = append(errs, models.RunError{
					Step:    "output:" + string(j.kind),
					Message: err.Error(),
				})
				mu.Unlock()
				return
			}
			log.Debug().Str("channel", string(j.kind)).Msg("Output delivered")
		}(j, sender)
	}
	wg.Wait()
	return outputs, errs
}

// render produces the content for every enabled channel. SMS always
// renders; it is the one mandatory channel.
func (d *Dispatcher) render(cfg models.OutputConfig, p Payload) []channelJob {
	var jobs []channelJob
	add := func(kind models.ChannelKind, rendered string) {
		jobs = append(jobs, channelJob{kind: kind, rendered: rendered})
	}

	add(models.ChannelSMS, RenderSMS(cfg.SMS, p))

	if c := cfg.Report; c != nil && c.Enabled {
		add(models.ChannelReport, RenderReport(*c, p))
	}
	if c := cfg.Audio; c != nil && c.Enabled {
		// Audio synthesizes from the summary; the script is the output.
		add(models.ChannelAudio, p.Summary)
	}
	if c := cfg.Email; c != nil && c.Enabled {
		subject, body := RenderEmail(*c, p)
		add(models.ChannelEmail, "Subject: "+subject+"\n\n"+body)
	}
	if c := cfg.Webhook; c != nil && c.Enabled {
		add(models.ChannelWebhook, webhookBody(p))
	}
	if c := cfg.Slack; c != nil && c.Enabled {
		add(models.ChannelSlack, RenderChat(c.Template, p))
	}
	if c := cfg.Discord; c != nil && c.Enabled {
		add(models.ChannelDiscord, RenderChat(c.Template, p))
	}
	if c := cfg.Twitter; c != nil && c.Enabled {
		add(models.ChannelTwitter, RenderTwitter(*c, p))
	}
	if c := cfg.Notification; c != nil && c.Enabled {
		data := p.templateData()
		add(models.ChannelNotification, RenderChatTitleBody(c.Title, c.Body, data))
	}
	if c := cfg.Database; c != nil && c.Enabled {
		add(models.ChannelDatabase, webhookBody(p))
	}
	if c := cfg.Sheets; c != nil && c.Enabled {
		add(models.ChannelSheets, sheetsCSV(p))
	}
	if c := cfg.File; c != nil && c.Enabled {
		add(models.ChannelFile, RenderFile(*c, p))
	}
	return jobs
}
