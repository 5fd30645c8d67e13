package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/procgraph/internal/config"
)

// NewClient builds the provider pair from config. An empty provider disables
// embeddings; callers get nil clients and must run alias-only.
func NewClient(ctx context.Context, cfg config.EmbedderConfig) (Client, Generator, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "":
		return nil, nil, nil

	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return WithRetries(c, cfg.MaxRetries), c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return WithRetries(c, cfg.MaxRetries), c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported embedder provider: %s", provider)
	}
}
