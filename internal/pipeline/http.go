package pipeline

import (
	"context"
	"io"
	"net/http"
)

// maxEnrichBytes caps how much of an enrichment response is read.
const maxEnrichBytes = 1 << 20

func newGetRequest(ctx context.Context, url string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "agent-engine/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func newHeadRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "agent-engine/1.0")
	return req, nil
}

func readCapped(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxEnrichBytes))
}
