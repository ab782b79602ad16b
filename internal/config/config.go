package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version     string                    `mapstructure:"version"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Models      map[string]ModelConfig    `mapstructure:"models"`
	Strategy    StrategyConfig            `mapstructure:"strategy"`
	Negotiation NegotiationConfig         `mapstructure:"negotiation"`
	CodeGen     CodeGenConfig             `mapstructure:"codegen"`
	Capability  CapabilityConfig          `mapstructure:"capability"`
	Identity    IdentityConfig            `mapstructure:"identity"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Server      ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, vllm, lmstudio, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
	Expensive   bool    `mapstructure:"expensive"`
}

// NegotiationConfig bounds the negotiation state machine.
type NegotiationConfig struct {
	MaxRounds      int           `mapstructure:"max_rounds"`
	RoundTimeout   time.Duration `mapstructure:"round_timeout"`
	LLMTimeout     time.Duration `mapstructure:"llm_timeout"`
	LLMRetries     int           `mapstructure:"llm_retries"`
	CodeGenTimeout time.Duration `mapstructure:"code_gen_timeout"`
	InboxCapacity  int           `mapstructure:"inbox_capacity"`
}

// CodeGenConfig controls handler code generation for agreed protocols.
type CodeGenConfig struct {
	OutputPath string `mapstructure:"output_path"`
	Language   string `mapstructure:"language"` // python or go
}

// CapabilityConfig points at the provider-side capability description.
type CapabilityConfig struct {
	DescriptionFile string `mapstructure:"description_file"`
	Description     string `mapstructure:"description"`
}

// IdentityConfig locates the local DID document.
type IdentityConfig struct {
	DIDPath string `mapstructure:"did_path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`   // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServerConfig describes provider daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	WSPath         string `mapstructure:"ws_path"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: AGENTMESH_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("negotiation.max_rounds", 10)
	v.SetDefault("negotiation.round_timeout", "60s")
	v.SetDefault("negotiation.llm_timeout", "120s")
	v.SetDefault("negotiation.llm_retries", 2)
	v.SetDefault("negotiation.code_gen_timeout", "60s")
	v.SetDefault("negotiation.inbox_capacity", 16)

	v.SetDefault("codegen.output_path", "protocol_code")
	v.SetDefault("codegen.language", "python")

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.designer_model", "")
	v.SetDefault("strategy.evaluator_model", "")
	v.SetDefault("strategy.codegen_model", "")
	v.SetDefault("strategy.overrides", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})
	v.SetDefault("strategy.max_expensive", 0)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.metrics_enabled", true)
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Negotiation.MaxRounds <= 0 {
		return errors.New("negotiation.max_rounds must be > 0")
	}
	if c.Negotiation.RoundTimeout <= 0 {
		return errors.New("negotiation.round_timeout must be > 0")
	}
	if c.Negotiation.LLMTimeout <= 0 {
		return errors.New("negotiation.llm_timeout must be > 0")
	}
	if c.Negotiation.LLMRetries < 0 {
		return errors.New("negotiation.llm_retries must be >= 0")
	}
	if c.Negotiation.CodeGenTimeout <= 0 {
		return errors.New("negotiation.code_gen_timeout must be > 0")
	}
	if c.Negotiation.InboxCapacity < 1 {
		return errors.New("negotiation.inbox_capacity must be >= 1")
	}

	if strings.TrimSpace(c.CodeGen.OutputPath) == "" {
		return errors.New("codegen.output_path must be set")
	}
	switch strings.ToLower(strings.TrimSpace(c.CodeGen.Language)) {
	case "python", "go":
	default:
		return fmt.Errorf("codegen.language must be one of python or go, got %q", c.CodeGen.Language)
	}

	for _, modelID := range []string{
		c.Strategy.DefaultModel, c.Strategy.DesignerModel, c.Strategy.EvaluatorModel, c.Strategy.CodeGenModel,
	} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Overrides {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy override references unknown model %q", modelID)
		}
	}
	if c.Strategy.MaxExpensive < 0 {
		return fmt.Errorf("strategy.max_expensive must be >= 0")
	}

	return nil
}
