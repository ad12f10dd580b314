package chat

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel completes prompts with any OpenAI-compatible chat endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIModel builds a client.  An empty baseURL uses api.openai.com.
func NewOpenAIModel(apiKey, baseURL, model string, temperature float32) *OpenAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model, temperature: temperature}
}

// Generate sends prompt as a single user message.
func (o *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
