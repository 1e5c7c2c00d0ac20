// Package token estimates token costs for buffer accounting and prompt
// budgeting.
package token

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter estimates and truncates token counts. Two implementations:
// Tokenizer (tiktoken-backed, exact for cl100k models) and Approx
// (character heuristic, no model data needed).
type Counter interface {
	Count(s string) int
	Truncate(s string, maxTokens int) string
}

// Tokenizer wraps tiktoken for accurate token counting.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer creates a Tokenizer using the cl100k_base encoding, a good
// approximation across providers.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("token: get encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// Truncate cuts s to at most maxTokens tokens.
func (t *Tokenizer) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	return t.enc.Decode(tokens[:maxTokens])
}

// Approx is a model-free Counter using the common one-token-per-four-bytes
// heuristic. It keeps the core usable when the tiktoken encoding data is
// unavailable (offline installs, tests).
type Approx struct{}

// Count approximates the token count of s.
func (Approx) Count(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// Truncate cuts s to approximately maxTokens tokens.
func (Approx) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	maxBytes := maxTokens * 4
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

// Best returns the tiktoken Counter when its encoding data is available,
// falling back to Approx.
func Best() Counter {
	if t, err := NewTokenizer(); err == nil {
		return t
	}
	return Approx{}
}
