package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kochi-intel/agent-engine/pkg/models"
)

// ── HTTP JSON Driver ─────────────────────────────────────────

// HTTPJSONDriver fetches a JSON endpoint and extracts one item per
// element of the array addressed by the config's jsonPath (the root
// array when the path is empty). Field extraction beyond Raw happens
// through a user source's normalization paths; the driver itself only
// guesses the common field names.
type HTTPJSONDriver struct {
	client *http.Client
}

func NewHTTPJSONDriver(client *http.Client) *HTTPJSONDriver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPJSONDriver{client: client}
}

// guessNorm covers the usual field names so plain http_json sources
// get sensible items without explicit normalization.
var guessNorm = NormalizationConfig{
	IDPath:          "id",
	TitlePath:       "title",
	SummaryPath:     "description",
	URLPath:         "url",
	PublishedAtPath: "published_at",
	AuthorPath:      "author",
}

func (d *HTTPJSONDriver) Fetch(ctx context.Context, cfg models.DataSourceConfig, maxItems int) ([]models.Item, error) {
	body, err := httpGet(ctx, d.client, cfg.URL, cfg.Headers)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response from %s is not valid JSON", cfg.URL)
	}

	root := gjson.ParseBytes(body)
	if cfg.JSONPath != "" {
		root = root.Get(cfg.JSONPath)
		if !root.Exists() {
			return nil, fmt.Errorf("jsonPath %q matched nothing", cfg.JSONPath)
		}
	}

	var elements []gjson.Result
	if root.IsArray() {
		elements = root.Array()
	} else {
		elements = []gjson.Result{root}
	}

	var items []models.Item
	for _, el := range elements {
		if len(items) >= maxItems {
			break
		}
		it := models.Item{Raw: json.RawMessage(el.Raw)}
		guessNorm.Apply(&it)
		items = append(items, it)
	}
	return items, nil
}
