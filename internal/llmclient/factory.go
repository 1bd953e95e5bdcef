// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/config"
)

// ResolveModel returns the configuration of the named model. A name with no
// entry in cfg.Models is taken to be a Gemini model name.
func ResolveModel(cfg config.LLMRouterConfig, name string) config.LLMModelConfig {
	m, ok := cfg.Models[name]
	if !ok {
		m = config.LLMModelConfig{Provider: config.ProviderGemini, Model: name}
	}
	if m.Model == "" {
		m.Model = name
	}
	if m.Provider == "" {
		m.Provider = config.ProviderGemini
	}
	if m.APITimeout <= 0 {
		m.APITimeout = 2 * time.Minute
	}
	if m.APIKey == "" && m.Provider == config.ProviderGemini {
		m.APIKey = os.Getenv(config.GeminiAPIKeyEnv)
	}
	return m
}

// NewModelClient creates the client for a single model configuration.
func NewModelClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewClient builds the tier router described by cfg.LLM.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (*LLMRouter, error) {
	fast, err := NewModelClient(ctx, ResolveModel(cfg.LLM, cfg.LLM.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client: %w", err)
	}
	powerful, err := NewModelClient(ctx, ResolveModel(cfg.LLM, cfg.LLM.DefaultPowerfulModel), logger)
	if err != nil {
		fast.Close()
		return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
	}
	return NewLLMRouter(logger, fast, powerful, cfg.LLM.RequestsPerMinute)
}
