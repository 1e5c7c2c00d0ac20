package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemex/mnemex/internal/adapter"
	"github.com/mnemex/mnemex/internal/token"
)

// LLMCompressor shrinks buffer content by asking a model for a summary that
// fits a token target. It satisfies buffer.Compressor.
type LLMCompressor struct {
	gen     adapter.Generator
	counter token.Counter
}

// NewLLMCompressor builds a compressor over the given generator.
func NewLLMCompressor(gen adapter.Generator, counter token.Counter) *LLMCompressor {
	if counter == nil {
		counter = token.Best()
	}
	return &LLMCompressor{gen: gen, counter: counter}
}

const compressSystemPrompt = `You compress working-memory notes for an AI agent.
Rewrite the given text as a shorter note that preserves every fact, decision,
and identifier. Output only the compressed text, nothing else.`

// Compress asks the model for a summary under targetTokens. If the model
// fails or the result is not smaller, the original content and cost are
// returned so the caller falls through to plain eviction.
func (c *LLMCompressor) Compress(ctx context.Context, content string, targetTokens int) (string, int, error) {
	original := c.counter.Count(content)
	if targetTokens <= 0 || original <= targetTokens {
		return content, original, nil
	}

	out, err := c.gen.Generate(ctx, adapter.GenerateRequest{
		SystemPrompt: compressSystemPrompt,
		Prompt:       fmt.Sprintf("Compress to at most %d tokens:\n\n%s", targetTokens, content),
		MaxTokens:    targetTokens * 2,
	})
	if err != nil {
		return content, original, fmt.Errorf("session: compress: %w", err)
	}

	out = strings.TrimSpace(out)
	cost := c.counter.Count(out)
	if out == "" || cost >= original {
		return content, original, nil
	}

	// Model output can overshoot the target; truncate as a hard backstop.
	if cost > targetTokens {
		out = c.counter.Truncate(out, targetTokens)
		cost = c.counter.Count(out)
	}
	return out, cost, nil
}
