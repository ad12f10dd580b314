package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/iliyamo/ambulance-dispatch/internal/config"
)

// errNoModel is what the chatbot reports when no provider key is set.
var errNoModel = errors.New("no language model configured")

// unconfiguredModel fails every call.  Small talk still works without it.
type unconfiguredModel struct{}

func (unconfiguredModel) Generate(context.Context, string) (string, error) {
	return "", errNoModel
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewModel returns the model selected by cfg.Provider and a closer for its
// client.  Without an API key it returns a model that always fails, so the
// rest of the service still starts.
func NewModel(ctx context.Context, cfg config.ChatConfig) (Model, io.Closer, error) {
	if cfg.APIKey == "" {
		return unconfiguredModel{}, nopCloser{}, nil
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIModel(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature), nopCloser{}, nil
	case "gemini":
		m, err := NewGeminiModel(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	}
	return nil, nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
}
