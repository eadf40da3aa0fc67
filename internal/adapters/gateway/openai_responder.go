package gateway

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"leadrelay/internal/core/ports"
)

var _ ports.Responder = (*OpenAIResponder)(nil)

// OpenAIResponder generates replies through the OpenAI chat completion API.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder creates a responder. model falls back to gpt-4o-mini.
func NewOpenAIResponder(apiKey, model string) *OpenAIResponder {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Reply sends the system prompt plus conversation history and returns the
// model's text. An empty completion is returned as an empty string; the
// caller decides the fallback.
func (c *OpenAIResponder) Reply(ctx context.Context, systemPrompt string, history []ports.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)

	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, t := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    t.Role,
			Content: t.Text,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		slog.Error("OpenAI completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices", "model", c.model)
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}
