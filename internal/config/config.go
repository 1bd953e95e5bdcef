// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Memory() MemoryConfig
	Browser() BrowserConfig
	Terminal() TerminalConfig
	Agent() AgentConfig
	Recall() RecallConfig
	Server() ServerConfig
	Orchestrator() OrchestratorConfig

	// Setters used by CLI flags.
	SetBrowserHeadless(bool)
	SetAgentMaxSteps(int)
	SetTerminalWorkDir(string)
	SetServerListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	MemoryCfg       MemoryConfig       `mapstructure:"memory" yaml:"memory"`
	BrowserCfg      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	TerminalCfg     TerminalConfig     `mapstructure:"terminal" yaml:"terminal"`
	AgentCfg        AgentConfig        `mapstructure:"agent" yaml:"agent"`
	RecallCfg       RecallConfig       `mapstructure:"recall" yaml:"recall"`
	ServerCfg       ServerConfig       `mapstructure:"server" yaml:"server"`
	OrchestratorCfg OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Memory() MemoryConfig             { return c.MemoryCfg }
func (c *Config) Browser() BrowserConfig           { return c.BrowserCfg }
func (c *Config) Terminal() TerminalConfig         { return c.TerminalCfg }
func (c *Config) Agent() AgentConfig               { return c.AgentCfg }
func (c *Config) Recall() RecallConfig             { return c.RecallCfg }
func (c *Config) Server() ServerConfig             { return c.ServerCfg }
func (c *Config) Orchestrator() OrchestratorConfig { return c.OrchestratorCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetAgentMaxSteps(n int)        { c.AgentCfg.MaxSteps = n }
func (c *Config) SetTerminalWorkDir(dir string) { c.TerminalCfg.WorkDir = dir }
func (c *Config) SetServerListenAddr(a string)  { c.ServerCfg.ListenAddr = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// MemoryConfig sizes the agent's working memory.
type MemoryConfig struct {
	MaxSize          int     `mapstructure:"max_size" yaml:"max_size"`
	TriggerThreshold float64 `mapstructure:"trigger_threshold" yaml:"trigger_threshold"`
	TargetThreshold  float64 `mapstructure:"target_threshold" yaml:"target_threshold"`
}

// BrowserConfig holds settings for the headless browser environment.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	Viewport        Viewport      `mapstructure:"viewport" yaml:"viewport"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ScrollTimeout   time.Duration `mapstructure:"scroll_timeout" yaml:"scroll_timeout"`
	StartURL        string        `mapstructure:"start_url" yaml:"start_url"`
}

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// TerminalConfig holds settings for the shell environment.
type TerminalConfig struct {
	Shell    string        `mapstructure:"shell" yaml:"shell"`
	WorkDir  string        `mapstructure:"work_dir" yaml:"work_dir"`
	PollWait time.Duration `mapstructure:"poll_wait" yaml:"poll_wait"`
	MaxLines int           `mapstructure:"max_lines" yaml:"max_lines"`
	Prompt   string        `mapstructure:"prompt" yaml:"prompt"`
}

// AgentConfig holds settings related to the agent loop and its LLM.
type AgentConfig struct {
	MaxSteps    int             `mapstructure:"max_steps" yaml:"max_steps"`
	StepTimeout time.Duration   `mapstructure:"step_timeout" yaml:"step_timeout"`
	LLM         LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// RecallConfig configures the optional Postgres archive of every message the
// agent produces.
type RecallConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// ServerConfig configures the console server.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// OrchestratorConfig bounds the planner loop.
type OrchestratorConfig struct {
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// GeminiAPIKeyEnv supplies the API key to Gemini models that configure none.
const GeminiAPIKeyEnv = "SCALPEL_GEMINI_API_KEY"

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    int                       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only fails on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-agent")
	v.SetDefault("logger.log_file", "scalpel-agent.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Working memory --
	v.SetDefault("memory.max_size", 2048)
	v.SetDefault("memory.trigger_threshold", 0.8)
	v.SetDefault("memory.target_threshold", 0.5)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 1366)
	v.SetDefault("browser.viewport.height", 1024)
	v.SetDefault("browser.page_load_timeout", "20s")
	v.SetDefault("browser.scroll_timeout", "5s")
	v.SetDefault("browser.start_url", "https://www.google.com/")

	// -- Terminal --
	v.SetDefault("terminal.shell", "bash")
	v.SetDefault("terminal.work_dir", ".")
	v.SetDefault("terminal.poll_wait", "1500ms")
	v.SetDefault("terminal.max_lines", 200)
	v.SetDefault("terminal.prompt", `(sandbox) \u@\h:\w\$ `)

	// -- Agent --
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.step_timeout", "2m")
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.requests_per_minute", 60)

	// -- Recall --
	v.SetDefault("recall.enabled", false)
	v.SetDefault("recall.postgres.host", "localhost")
	v.SetDefault("recall.postgres.port", 5432)
	v.SetDefault("recall.postgres.user", "postgres")
	v.SetDefault("recall.postgres.password", "") // Should be set via env var
	v.SetDefault("recall.postgres.dbname", "scalpel_agent")
	v.SetDefault("recall.postgres.sslmode", "disable")

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:8089")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Orchestrator --
	v.SetDefault("orchestrator.max_rounds", 10)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("recall.postgres.password", "SCALPEL_RECALL_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Model API keys live in a map, which viper cannot bind per entry.
	if key := os.Getenv(GeminiAPIKeyEnv); key != "" {
		for name, m := range cfg.AgentCfg.LLM.Models {
			if m.Provider == ProviderGemini && m.APIKey == "" {
				m.APIKey = key
				cfg.AgentCfg.LLM.Models[name] = m
			}
		}
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("invalid logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}
	if cfg.TerminalCfg.WorkDir != "" {
		expanded, err := homedir.Expand(cfg.TerminalCfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("invalid terminal.work_dir: %w", err)
		}
		cfg.TerminalCfg.WorkDir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.MemoryCfg.Validate(); err != nil {
		return fmt.Errorf("memory configuration invalid: %w", err)
	}
	if c.AgentCfg.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.TerminalCfg.MaxLines <= 0 {
		return fmt.Errorf("terminal.max_lines must be a positive integer")
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must have a positive width and height")
	}
	if c.OrchestratorCfg.MaxRounds <= 0 {
		return fmt.Errorf("orchestrator.max_rounds must be a positive integer")
	}
	for name, m := range c.AgentCfg.LLM.Models {
		if m.Provider != ProviderGemini {
			return fmt.Errorf("agent.llm.models.%s: unsupported provider %q", name, m.Provider)
		}
	}
	return nil
}

// Validate enforces trigger > target > 0 and a positive capacity.
func (m *MemoryConfig) Validate() error {
	if m.MaxSize <= 0 {
		return fmt.Errorf("max_size must be a positive integer")
	}
	if !(m.TriggerThreshold > m.TargetThreshold && m.TargetThreshold > 0) {
		return fmt.Errorf("trigger_threshold (%v) must be greater than target_threshold (%v), which must be greater than 0",
			m.TriggerThreshold, m.TargetThreshold)
	}
	return nil
}
