// Package tokenizer counts tokens for backends that have no counting endpoint.
//
// Counting uses a tiktoken BPE encoding. The encoding is loaded lazily on first
// use; when it cannot be loaded (the BPE ranks are fetched over the network)
// the counter degrades to a four-characters-per-token estimate and logs once.
package tokenizer

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in text. It is safe for concurrent use.
type Counter struct {
	encoding string
	offline  bool

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// New returns a counter for the named tiktoken encoding.
func New(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{encoding: encoding}
}

// NewEstimator returns a counter that never loads an encoding.
func NewEstimator() *Counter {
	return &Counter{offline: true}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() { c.load(ctx) })
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) load(ctx context.Context) {
	if c.offline {
		return
	}
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		slog.WarnContext(ctx, "tiktoken encoding unavailable, falling back to estimate",
			"encoding", c.encoding, "error", err)
		return
	}
	c.enc = enc
}

// Estimate approximates a token count as one token per four characters, rounded up.
func Estimate(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
