package adapter

import (
	"context"
	"fmt"
	"os"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// Anthropic implements Generator against the Anthropic Messages API.
// Anthropic does not offer an embeddings endpoint, so this adapter is a
// Generator only; pair it with the openai, ollama, or hash embedder.
type Anthropic struct {
	client *anthropic.Client
}

// NewAnthropic creates an Anthropic adapter. If apiKey is empty,
// ANTHROPIC_API_KEY is used.
func NewAnthropic(apiKey string) *Anthropic {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &Anthropic{client: anthropic.NewClient(apiKey)}
}

func (a *Anthropic) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		},
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic generate: empty response")
	}
	return resp.Content[0].GetText(), nil
}
