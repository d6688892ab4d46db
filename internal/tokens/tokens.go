// Package tokens estimates token counts for injected text and savings
// reporting. It prefers a real BPE count and degrades to a chars/4 estimate
// when the encoding cannot be loaded (tiktoken fetches encoding data on
// first use, which can fail offline).
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const (
	encodingName  = "cl100k_base"
	charsPerToken = 4
)

// Counter counts tokens in text.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter, falling back to estimation when the encoding
// is unavailable.
func NewCounter(logger *zap.Logger) *Counter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using chars/4 estimate", zap.Error(err))
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// NewEstimateCounter always estimates. Used in tests and as the fallback.
func NewEstimateCounter() *Counter {
	return &Counter{}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	n := len(text) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// FromChars converts a cumulative character volume into an estimated token
// count. Aggregated counters only keep character totals, so this is always
// an estimate regardless of encoding availability.
func (c *Counter) FromChars(chars int) int {
	if chars <= 0 {
		return 0
	}
	return chars / charsPerToken
}
