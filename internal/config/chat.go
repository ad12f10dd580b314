package config

import (
	"os"
	"strings"
	"time"
)

// ChatConfig configures the HealthMate chatbot.
type ChatConfig struct {
	Provider     string  // "gemini" or "openai"
	APIKey       string  // key for the selected provider
	BaseURL      string  // OpenAI-compatible endpoint override
	Model        string  // model name
	Temperature  float32 // sampling temperature
	KnowledgeDir string  // directory of *.txt knowledge files
	IndexPath    string  // on-disk index location; empty keeps it in memory
	TopK         int     // passages retrieved per question
	HistoryTurns int     // turns of history kept per conversation
	HistoryTTL   time.Duration
}

// LoadChatConfig reads CHAT_* variables.  GOOGLE_API_KEY and
// OPENAI_API_KEY are honoured when CHAT_API_KEY is unset.
func LoadChatConfig() ChatConfig {
	cfg := ChatConfig{
		Provider:     strings.ToLower(envStr("CHAT_PROVIDER", "gemini")),
		APIKey:       os.Getenv("CHAT_API_KEY"),
		BaseURL:      os.Getenv("CHAT_BASE_URL"),
		Temperature:  float32(envFloat("CHAT_TEMPERATURE", 0.8)),
		KnowledgeDir: envStr("CHAT_KNOWLEDGE_DIR", "knowledge_base"),
		IndexPath:    envStr("CHAT_INDEX_PATH", "./kb_index"),
		TopK:         envInt("CHAT_TOP_K", 4),
		HistoryTurns: envInt("CHAT_HISTORY_TURNS", 10),
		HistoryTTL:   envDur("CHAT_HISTORY_TTL", 24*time.Hour),
	}
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		cfg.Model = envStr("CHAT_MODEL", "gpt-4o-mini")
	default:
		cfg.Provider = "gemini"
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
		cfg.Model = envStr("CHAT_MODEL", "gemini-1.5-flash")
	}
	return cfg
}
