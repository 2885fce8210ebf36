package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ── Token Estimation ─────────────────────────────────────────

// encodingFor maps a model id to its tiktoken encoding. Claude models
// have no public tokenizer; cl100k_base is a close enough proxy for
// budget estimation.
func encodingFor(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// Estimator counts tokens for budget reservations. Encodings are
// loaded lazily and cached; if tiktoken data cannot be loaded (offline
// environments), it falls back to the chars/4 heuristic.
type Estimator struct {
	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	return &Estimator{encs: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate returns the token count of text under the model's encoding.
func (e *Estimator) Estimate(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encoding(encodingFor(model))
	if enc == nil {
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *Estimator) encoding(name string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.encs[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		e.encs[name] = nil
		return nil
	}
	e.encs[name] = enc
	return enc
}
