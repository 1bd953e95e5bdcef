// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "scalpel-agent", cfg.Logger().ServiceName)
	assert.Equal(t, 2048, cfg.Memory().MaxSize)
	assert.Equal(t, 0.8, cfg.Memory().TriggerThreshold)
	assert.Equal(t, 0.5, cfg.Memory().TargetThreshold)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 1366, cfg.Browser().Viewport.Width)
	assert.Equal(t, 1024, cfg.Browser().Viewport.Height)
	assert.Equal(t, 20*time.Second, cfg.Browser().PageLoadTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Terminal().PollWait)
	assert.Equal(t, 30, cfg.Agent().MaxSteps)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent().LLM.DefaultPowerfulModel)
	assert.False(t, cfg.Recall().Enabled)
	assert.Equal(t, "127.0.0.1:8089", cfg.Server().ListenAddr)
	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Memory thresholds", func(t *testing.T) {
		cases := []struct {
			name    string
			trigger float64
			target  float64
			wantErr bool
		}{
			{"valid", 0.8, 0.5, false},
			{"equal thresholds", 0.5, 0.5, true},
			{"target above trigger", 0.4, 0.6, true},
			{"zero target", 0.8, 0, true},
			{"negative target", 0.8, -0.1, true},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := NewDefaultConfig()
				cfg.MemoryCfg.TriggerThreshold = tc.trigger
				cfg.MemoryCfg.TargetThreshold = tc.target
				err := cfg.Validate()
				if tc.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), "memory configuration invalid")
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})

	t.Run("Non-positive max size", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MemoryCfg.MaxSize = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_size must be a positive integer")
	})

	t.Run("Non-positive max steps", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AgentCfg.MaxSteps = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_steps must be a positive integer")
	})

	t.Run("Unsupported provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AgentCfg.LLM.Models = map[string]LLMModelConfig{"local": {Provider: "ollama", Model: "llama3"}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported provider "ollama"`)
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("reads overrides and secrets", func(t *testing.T) {
		t.Setenv("SCALPEL_RECALL_PASSWORD", "s3cret")
		t.Setenv("SCALPEL_GEMINI_API_KEY", "test-key")

		v := viper.New()
		SetDefaults(v)
		v.Set("agent.max_steps", 5)
		v.Set("agent.llm.models", map[string]interface{}{
			"fast": map[string]interface{}{"provider": "gemini", "model": "gemini-2.5-flash"},
		})

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Agent().MaxSteps)
		assert.Equal(t, "s3cret", cfg.Recall().Postgres.Password)
		assert.Equal(t, "test-key", cfg.Agent().LLM.Models["fast"].APIKey)
	})

	t.Run("expands the home directory in paths", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/agent.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "agent.log"), cfg.Logger().LogFile)
	})

	t.Run("rejects invalid thresholds", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("memory.trigger_threshold", 0.3)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "recall", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/recall?sslmode=disable", p.DSN())
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(false)
	cfg.SetAgentMaxSteps(3)
	cfg.SetTerminalWorkDir("/tmp")
	cfg.SetServerListenAddr(":9000")

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Agent().MaxSteps)
	assert.Equal(t, "/tmp", cfg.Terminal().WorkDir)
	assert.Equal(t, ":9000", cfg.Server().ListenAddr)
}
