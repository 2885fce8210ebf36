package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── Hacker News Driver ───────────────────────────────────────

const hnSearchURL = "https://hn.algolia.com/api/v1/search"

// HackerNewsDriver fetches stories from the Algolia HN search API.
// With a query it searches; without one it returns the front page.
type HackerNewsDriver struct {
	client  *http.Client
	baseURL string
}

func NewHackerNewsDriver(client *http.Client) *HackerNewsDriver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HackerNewsDriver{client: client, baseURL: hnSearchURL}
}

func (d *HackerNewsDriver) Fetch(ctx context.Context, cfg models.DataSourceConfig, maxItems int) ([]models.Item, error) {
	q := url.Values{}
	q.Set("tags", "story")
	q.Set("hitsPerPage", fmt.Sprint(maxItems))
	if cfg.Query != "" {
		q.Set("query", cfg.Query)
	}
	if cutoff := TimeCutoff(cfg, time.Now()); !cutoff.IsZero() {
		q.Set("numericFilters", fmt.Sprintf("created_at_i>%d", cutoff.Unix()))
	}

	body, err := httpGet(ctx, d.client, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	hits := gjson.GetBytes(body, "hits")
	if !hits.Exists() {
		return nil, fmt.Errorf("unexpected response shape from hn search")
	}

	var items []models.Item
	for _, hit := range hits.Array() {
		if len(items) >= maxItems {
			break
		}
		it := models.Item{
			ID:     hit.Get("objectID").String(),
			Title:  hit.Get("title").String(),
			URL:    hit.Get("url").String(),
			Author: hit.Get("author").String(),
			Raw:    json.RawMessage(hit.Raw),
		}
		if it.URL == "" {
			it.URL = "https://news.ycombinator.com/item?id=" + it.ID
		}
		if pts := hit.Get("points"); pts.Exists() {
			f := pts.Float()
			it.Score = &f
		}
		if created := hit.Get("created_at_i"); created.Exists() {
			t := time.Unix(created.Int(), 0).UTC()
			it.PublishedAt = &t
		}
		items = append(items, it)
	}
	return items, nil
}
