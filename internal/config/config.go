// Package config loads and validates engine configuration from defaults,
// an optional YAML file and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	rlmerrors "rlm-translate/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Providers ProvidersConfig `json:"providers" yaml:"providers" mapstructure:"providers"`
	Engine    EngineConfig    `json:"engine" yaml:"engine" mapstructure:"engine"`
	Presets   PresetsConfig   `json:"presets" yaml:"presets" mapstructure:"presets"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// ProvidersConfig selects and configures the LLM backends
type ProvidersConfig struct {
	Default   string          `json:"default" yaml:"default" mapstructure:"default"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `json:"gemini" yaml:"gemini" mapstructure:"gemini"`
	LMStudio  LMStudioConfig  `json:"lmstudio" yaml:"lmstudio" mapstructure:"lmstudio"`
}

// OpenAIConfig represents OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string `json:"-" yaml:"-" mapstructure:"api_key"` // Never serialize API key
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// AnthropicConfig represents Anthropic API configuration
type AnthropicConfig struct {
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"` // Never serialize API key
}

// GeminiConfig represents Google Gemini API configuration
type GeminiConfig struct {
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"` // Never serialize API key
}

// LMStudioConfig represents a local LM Studio server
type LMStudioConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	ManagementURL  string `json:"management_url" yaml:"management_url" mapstructure:"management_url"`
	AutoLoadModels bool   `json:"auto_load_models" yaml:"auto_load_models" mapstructure:"auto_load_models"`
}

// EngineConfig tunes the orchestration loop
type EngineConfig struct {
	RootModel             string `json:"root_model" yaml:"root_model" mapstructure:"root_model"`
	SubModel              string `json:"sub_model" yaml:"sub_model" mapstructure:"sub_model"`
	VerifierModel         string `json:"verifier_model,omitempty" yaml:"verifier_model,omitempty" mapstructure:"verifier_model"`
	Strategy              string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	MaxRetries            int    `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	LLMVerification       bool   `json:"llm_verification" yaml:"llm_verification" mapstructure:"llm_verification"`
	SubtitleBatchSize     int    `json:"subtitle_batch_size" yaml:"subtitle_batch_size" mapstructure:"subtitle_batch_size"`
	ShortTextThreshold    int    `json:"short_text_threshold" yaml:"short_text_threshold" mapstructure:"short_text_threshold"`
}

// PresetsConfig locates user preset files
type PresetsConfig struct {
	Dir   string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Watch bool   `json:"watch" yaml:"watch" mapstructure:"watch"`
}

// CacheConfig controls the local chunk translation cache
type CacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Default: "openai",
			LMStudio: LMStudioConfig{
				BaseURL:        "http://localhost:1234/v1",
				ManagementURL:  "http://localhost:1234",
				AutoLoadModels: true,
			},
		},
		Engine: EngineConfig{
			RootModel:             "gpt-4o",
			SubModel:              "gpt-4o-mini",
			Strategy:              "sequential",
			MaxRetries:            2,
			RequestTimeoutSeconds: 120,
			LLMVerification:       false,
			SubtitleBatchSize:     10,
			ShortTextThreshold:    500,
		},
		Presets: PresetsConfig{
			Dir:   "./presets",
			Watch: false,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    "./data/translation_cache.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from environment variables and defaults
func LoadConfig() (*Config, error) {
	config, err := load("")
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigFile loads configuration from a YAML file, then applies
// environment overrides on top.
func LoadConfigFile(path string) (*Config, error) {
	config, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigLax loads configuration like LoadConfigFile but defers
// validation to the caller. Commands that never call a provider (preset
// listing, cache maintenance) use it so a missing API key does not block
// them; commands that apply flag overrides validate after applying them.
func LoadConfigLax(path string) (*Config, error) {
	return load(path)
}

// load builds the configuration: defaults, then the optional YAML file,
// then environment overrides.
func load(path string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Don't fail if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           config,
			WeaklyTypedInput: true,
			TagName:          "mapstructure",
		})
		if err != nil {
			return nil, fmt.Errorf("building config decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("decoding config file %s: %w", path, err)
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadProviderConfig(config)
	loadEngineConfig(config)
	loadPresetConfig(config)
	loadCacheConfig(config)
	loadLoggingConfig(config)
}

// loadProviderConfig loads provider configuration from environment
func loadProviderConfig(config *Config) {
	if provider := os.Getenv("RLM_PROVIDER"); provider != "" {
		config.Providers.Default = strings.ToLower(provider)
	}

	// API keys - check both prefixed and conventional env vars
	if apiKey := os.Getenv("RLM_OPENAI_API_KEY"); apiKey != "" {
		config.Providers.OpenAI.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Providers.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("RLM_OPENAI_BASE_URL"); baseURL != "" {
		config.Providers.OpenAI.BaseURL = baseURL
	}

	if apiKey := os.Getenv("RLM_ANTHROPIC_API_KEY"); apiKey != "" {
		config.Providers.Anthropic.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Providers.Anthropic.APIKey = apiKey
	}

	if apiKey := os.Getenv("RLM_GEMINI_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	}

	if baseURL := os.Getenv("RLM_LMSTUDIO_BASE_URL"); baseURL != "" {
		config.Providers.LMStudio.BaseURL = baseURL
	} else if baseURL := os.Getenv("LMSTUDIO_BASE_URL"); baseURL != "" {
		config.Providers.LMStudio.BaseURL = baseURL
	}
	if mgmtURL := os.Getenv("RLM_LMSTUDIO_MANAGEMENT_URL"); mgmtURL != "" {
		config.Providers.LMStudio.ManagementURL = mgmtURL
	}
	if autoLoad := os.Getenv("RLM_LMSTUDIO_AUTO_LOAD"); autoLoad != "" {
		if al, err := strconv.ParseBool(autoLoad); err == nil {
			config.Providers.LMStudio.AutoLoadModels = al
		}
	}
}

// loadEngineConfig loads engine configuration from environment
func loadEngineConfig(config *Config) {
	if model := os.Getenv("RLM_ROOT_MODEL"); model != "" {
		config.Engine.RootModel = model
	}
	if model := os.Getenv("RLM_SUB_MODEL"); model != "" {
		config.Engine.SubModel = model
	}
	if model := os.Getenv("RLM_VERIFIER_MODEL"); model != "" {
		config.Engine.VerifierModel = model
	}
	if strategy := os.Getenv("RLM_STRATEGY"); strategy != "" {
		config.Engine.Strategy = strings.ToLower(strategy)
	}
	if maxRetries := os.Getenv("RLM_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Engine.MaxRetries = mr
		}
	}
	if timeout := os.Getenv("RLM_REQUEST_TIMEOUT_SECONDS"); timeout != "" {
		if ts, err := strconv.Atoi(timeout); err == nil {
			config.Engine.RequestTimeoutSeconds = ts
		}
	}
	if verification := os.Getenv("RLM_LLM_VERIFICATION"); verification != "" {
		if v, err := strconv.ParseBool(verification); err == nil {
			config.Engine.LLMVerification = v
		}
	}
	if batch := os.Getenv("RLM_SUBTITLE_BATCH_SIZE"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil {
			config.Engine.SubtitleBatchSize = b
		}
	}
	if threshold := os.Getenv("RLM_SHORT_TEXT_THRESHOLD"); threshold != "" {
		if st, err := strconv.Atoi(threshold); err == nil {
			config.Engine.ShortTextThreshold = st
		}
	}
}

// loadPresetConfig loads preset configuration from environment
func loadPresetConfig(config *Config) {
	if dir := os.Getenv("RLM_PRESETS_DIR"); dir != "" {
		config.Presets.Dir = dir
	}
	if watch := os.Getenv("RLM_PRESETS_WATCH"); watch != "" {
		if w, err := strconv.ParseBool(watch); err == nil {
			config.Presets.Watch = w
		}
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig(config *Config) {
	if enabled := os.Getenv("RLM_CACHE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Cache.Enabled = e
		}
	}
	if path := os.Getenv("RLM_CACHE_PATH"); path != "" {
		config.Cache.Path = path
	}
}

// loadLoggingConfig loads logging configuration from environment
func loadLoggingConfig(config *Config) {
	if level := os.Getenv("RLM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("RLM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if file := os.Getenv("RLM_LOG_FILE"); file != "" {
		config.Logging.File = file
	}
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
	"lmstudio":  true,
}

var validStrategies = map[string]bool{
	"sequential": true,
	"adaptive":   true,
	"priority":   true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !validProviders[c.Providers.Default] {
		return rlmerrors.NewConfigurationError("providers.default",
			fmt.Sprintf("unknown provider %q", c.Providers.Default))
	}

	// The active provider needs its credentials
	switch c.Providers.Default {
	case "openai":
		if c.Providers.OpenAI.APIKey == "" {
			return rlmerrors.NewConfigurationError("providers.openai.api_key", "OpenAI API key is required")
		}
	case "anthropic":
		if c.Providers.Anthropic.APIKey == "" {
			return rlmerrors.NewConfigurationError("providers.anthropic.api_key", "Anthropic API key is required")
		}
	case "gemini":
		if c.Providers.Gemini.APIKey == "" {
			return rlmerrors.NewConfigurationError("providers.gemini.api_key", "Gemini API key is required")
		}
	case "lmstudio":
		if c.Providers.LMStudio.BaseURL == "" {
			return rlmerrors.NewConfigurationError("providers.lmstudio.base_url", "LM Studio base URL is required")
		}
	}

	if c.Engine.RootModel == "" {
		return rlmerrors.NewConfigurationError("engine.root_model", "root model cannot be empty")
	}
	if c.Engine.SubModel == "" {
		return rlmerrors.NewConfigurationError("engine.sub_model", "sub model cannot be empty")
	}
	if !validStrategies[c.Engine.Strategy] {
		return rlmerrors.NewConfigurationError("engine.strategy",
			fmt.Sprintf("unknown strategy %q", c.Engine.Strategy))
	}
	if c.Engine.MaxRetries < 0 {
		return rlmerrors.NewConfigurationError("engine.max_retries", "max retries cannot be negative")
	}
	if c.Engine.RequestTimeoutSeconds <= 0 {
		return rlmerrors.NewConfigurationError("engine.request_timeout_seconds", "request timeout must be positive")
	}
	if c.Engine.SubtitleBatchSize <= 0 {
		return rlmerrors.NewConfigurationError("engine.subtitle_batch_size", "subtitle batch size must be positive")
	}
	if c.Engine.ShortTextThreshold < 0 {
		return rlmerrors.NewConfigurationError("engine.short_text_threshold", "short text threshold cannot be negative")
	}

	if c.Presets.Dir == "" {
		return rlmerrors.NewConfigurationError("presets.dir", "presets directory cannot be empty")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return rlmerrors.NewConfigurationError("cache.path", "cache path cannot be empty when cache is enabled")
	}

	return nil
}

// GetPresetsDir returns the presets directory path, creating it if necessary
func (c *Config) GetPresetsDir() (string, error) {
	absPath, err := filepath.Abs(c.Presets.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for presets directory: %w", err)
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(absPath, 0750); err != nil {
		return "", fmt.Errorf("failed to create presets directory: %w", err)
	}

	return absPath, nil
}

// ActiveAPIKey returns the credential for the selected provider, empty for
// local providers.
func (c *Config) ActiveAPIKey() string {
	switch c.Providers.Default {
	case "openai":
		return c.Providers.OpenAI.APIKey
	case "anthropic":
		return c.Providers.Anthropic.APIKey
	case "gemini":
		return c.Providers.Gemini.APIKey
	default:
		return ""
	}
}
