package chat

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiModel completes prompts with a Google Gemini model.
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiModel connects to the Gemini API with apiKey.
func NewGeminiModel(ctx context.Context, apiKey, modelName string, temperature float32) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := client.GenerativeModel(modelName)
	m.SetTemperature(temperature)
	return &GeminiModel{client: client, model: m}, nil
}

// Generate sends prompt as a single user turn and concatenates the text
// parts of the first candidate.
func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (g *GeminiModel) Close() error { return g.client.Close() }
