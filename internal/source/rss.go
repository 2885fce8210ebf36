package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── RSS / Atom Driver ────────────────────────────────────────

// RSSDriver fetches RSS 2.0 and Atom feeds. It backs both the rss and
// podcast source types.
type RSSDriver struct {
	client *http.Client
}

func NewRSSDriver(client *http.Client) *RSSDriver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RSSDriver{client: client}
}

type rssFeed struct {
	XMLName xml.Name
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom entries live at the document root.
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Creator     string `xml:"creator"` // dc:creator
	Author      string `xml:"author"`
}

type atomEntry struct {
	ID      string     `xml:"id"`
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
	Updated string     `xml:"updated"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func (d *RSSDriver) Fetch(ctx context.Context, cfg models.DataSourceConfig, maxItems int) ([]models.Item, error) {
	body, err := httpGet(ctx, d.client, cfg.FeedURL, nil)
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	cutoff := TimeCutoff(cfg, time.Now())
	var items []models.Item
	for _, e := range feed.Channel.Items {
		items = append(items, rssToItem(e))
	}
	for _, e := range feed.Entries {
		items = append(items, atomToItem(e))
	}

	items = FilterByTime(items, cutoff)
	SortByPublished(items)
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

func rssToItem(e rssItem) models.Item {
	it := models.Item{
		ID:      strings.TrimSpace(e.GUID),
		Title:   strings.TrimSpace(e.Title),
		Summary: strings.TrimSpace(e.Description),
		URL:     strings.TrimSpace(e.Link),
		Author:  strings.TrimSpace(firstNonEmpty(e.Creator, e.Author)),
	}
	if it.ID == "" {
		it.ID = it.URL
	}
	if e.PubDate != "" {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, e.PubDate); err == nil {
				t = t.UTC()
				it.PublishedAt = &t
				break
			}
		}
	}
	if raw, err := json.Marshal(e); err == nil {
		it.Raw = raw
	}
	return it
}

func atomToItem(e atomEntry) models.Item {
	it := models.Item{
		ID:      strings.TrimSpace(e.ID),
		Title:   strings.TrimSpace(e.Title),
		Summary: strings.TrimSpace(firstNonEmpty(e.Summary, e.Content)),
		Author:  strings.TrimSpace(e.Author.Name),
	}
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			it.URL = l.Href
			break
		}
	}
	if it.ID == "" {
		it.ID = it.URL
	}
	if e.Updated != "" {
		if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
			t = t.UTC()
			it.PublishedAt = &t
		}
	}
	if raw, err := json.Marshal(e); err == nil {
		it.Raw = raw
	}
	return it
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
