// Package tokenizer estimates prompt token counts for request logging and
// metrics. Estimates never gate a request; the per-session context cap is
// character based.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens with a tiktoken encoding, falling back to a
// character heuristic when the encoding is unavailable (e.g. no network to
// fetch the BPE data).
type Estimator struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
}

// NewEstimator creates an estimator backed by the cl100k_base encoding, which
// approximates all the chat models the backend dispatches to closely enough
// for logging purposes.
func NewEstimator() *Estimator {
	return &Estimator{encoding: "cl100k_base"}
}

// Count returns the estimated token count for text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err == nil {
			e.enc = enc
		}
	})

	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return fallbackCount(text)
}

// fallbackCount approximates ~4 ASCII chars per token, rounding up.
func fallbackCount(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
