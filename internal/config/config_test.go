package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rlmerrors "rlm-translate/internal/errors"
)

// Test constants
const (
	testAPIKey = "test-key"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Provider defaults
	assert.Equal(t, "openai", cfg.Providers.Default)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Providers.LMStudio.BaseURL)
	assert.Equal(t, "http://localhost:1234", cfg.Providers.LMStudio.ManagementURL)
	assert.True(t, cfg.Providers.LMStudio.AutoLoadModels)

	// Engine defaults
	assert.Equal(t, "gpt-4o", cfg.Engine.RootModel)
	assert.Equal(t, "gpt-4o-mini", cfg.Engine.SubModel)
	assert.Equal(t, "sequential", cfg.Engine.Strategy)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 120, cfg.Engine.RequestTimeoutSeconds)
	assert.False(t, cfg.Engine.LLMVerification)
	assert.Equal(t, 10, cfg.Engine.SubtitleBatchSize)
	assert.Equal(t, 500, cfg.Engine.ShortTextThreshold)

	// Preset defaults
	assert.Equal(t, "./presets", cfg.Presets.Dir)
	assert.False(t, cfg.Presets.Watch)

	// Cache defaults
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "./data/translation_cache.db", cfg.Cache.Path)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				return cfg
			},
			wantErr: false,
		},
		{
			name: "unknown provider",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.Default = "watson"
				return cfg
			},
			wantErr: true,
			errMsg:  "unknown provider",
		},
		{
			name: "missing OpenAI API key",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "OpenAI API key is required",
		},
		{
			name: "missing Anthropic API key",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.Default = "anthropic"
				return cfg
			},
			wantErr: true,
			errMsg:  "Anthropic API key is required",
		},
		{
			name: "lmstudio needs no key",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.Default = "lmstudio"
				return cfg
			},
			wantErr: false,
		},
		{
			name: "lmstudio without base URL",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.Default = "lmstudio"
				cfg.Providers.LMStudio.BaseURL = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "LM Studio base URL is required",
		},
		{
			name: "empty root model",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Engine.RootModel = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "root model cannot be empty",
		},
		{
			name: "unknown strategy",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Engine.Strategy = "random"
				return cfg
			},
			wantErr: true,
			errMsg:  "unknown strategy",
		},
		{
			name: "negative max retries",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Engine.MaxRetries = -1
				return cfg
			},
			wantErr: true,
			errMsg:  "max retries cannot be negative",
		},
		{
			name: "zero request timeout",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Engine.RequestTimeoutSeconds = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "request timeout must be positive",
		},
		{
			name: "zero subtitle batch",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Engine.SubtitleBatchSize = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "subtitle batch size must be positive",
		},
		{
			name: "empty presets dir",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Presets.Dir = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "presets directory cannot be empty",
		},
		{
			name: "cache enabled without path",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Providers.OpenAI.APIKey = testAPIKey
				cfg.Cache.Enabled = true
				cfg.Cache.Path = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "cache path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, rlmerrors.IsConfiguration(err))
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_WithEnvVars(t *testing.T) {
	envVars := map[string]string{
		"RLM_PROVIDER":                "lmstudio",
		"RLM_LMSTUDIO_BASE_URL":       "http://10.0.0.5:1234/v1",
		"RLM_LMSTUDIO_MANAGEMENT_URL": "http://10.0.0.5:1234",
		"RLM_ROOT_MODEL":              "qwen2.5-32b",
		"RLM_SUB_MODEL":               "qwen2.5-7b",
		"RLM_STRATEGY":                "adaptive",
		"RLM_MAX_RETRIES":             "4",
		"RLM_REQUEST_TIMEOUT_SECONDS": "300",
		"RLM_LLM_VERIFICATION":        "true",
		"RLM_SUBTITLE_BATCH_SIZE":     "5",
		"RLM_PRESETS_DIR":             "/tmp/presets",
		"RLM_CACHE_ENABLED":           "true",
		"RLM_CACHE_PATH":              "/tmp/cache.db",
		"RLM_LOG_LEVEL":               "debug",
		"RLM_LOG_FORMAT":              "json",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "lmstudio", cfg.Providers.Default)
	assert.Equal(t, "http://10.0.0.5:1234/v1", cfg.Providers.LMStudio.BaseURL)
	assert.Equal(t, "http://10.0.0.5:1234", cfg.Providers.LMStudio.ManagementURL)
	assert.Equal(t, "qwen2.5-32b", cfg.Engine.RootModel)
	assert.Equal(t, "qwen2.5-7b", cfg.Engine.SubModel)
	assert.Equal(t, "adaptive", cfg.Engine.Strategy)
	assert.Equal(t, 4, cfg.Engine.MaxRetries)
	assert.Equal(t, 300, cfg.Engine.RequestTimeoutSeconds)
	assert.True(t, cfg.Engine.LLMVerification)
	assert.Equal(t, 5, cfg.Engine.SubtitleBatchSize)
	assert.Equal(t, "/tmp/presets", cfg.Presets.Dir)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_ConventionalKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "conventional-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "conventional-key", cfg.Providers.OpenAI.APIKey)

	// The prefixed variable wins over the conventional one
	t.Setenv("RLM_OPENAI_API_KEY", "prefixed-key")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "prefixed-key", cfg.Providers.OpenAI.APIKey)
}

func TestLoadConfig_WithInvalidEnvVars(t *testing.T) {
	t.Setenv("RLM_MAX_RETRIES", "invalid")
	t.Setenv("OPENAI_API_KEY", testAPIKey)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// Should use default when unparseable
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `
providers:
  default: lmstudio
  lmstudio:
    base_url: http://127.0.0.1:9999/v1
    management_url: http://127.0.0.1:9999
engine:
  root_model: file-root
  sub_model: file-sub
  strategy: priority
  max_retries: 1
presets:
  dir: ./file-presets
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "lmstudio", cfg.Providers.Default)
	assert.Equal(t, "http://127.0.0.1:9999/v1", cfg.Providers.LMStudio.BaseURL)
	assert.Equal(t, "file-root", cfg.Engine.RootModel)
	assert.Equal(t, "file-sub", cfg.Engine.SubModel)
	assert.Equal(t, "priority", cfg.Engine.Strategy)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
	assert.Equal(t, "./file-presets", cfg.Presets.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Untouched sections keep defaults
	assert.Equal(t, 10, cfg.Engine.SubtitleBatchSize)
}

func TestLoadConfigFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `
providers:
  default: lmstudio
engine:
  root_model: file-root
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	t.Setenv("RLM_ROOT_MODEL", "env-root")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-root", cfg.Engine.RootModel)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RLM_OPENAI_API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_GetPresetsDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Presets.Dir = filepath.Join(t.TempDir(), "presets")

	dir, err := cfg.GetPresetsDir()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_ActiveAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "oa"
	cfg.Providers.Anthropic.APIKey = "an"
	cfg.Providers.Gemini.APIKey = "ge"

	cfg.Providers.Default = "openai"
	assert.Equal(t, "oa", cfg.ActiveAPIKey())
	cfg.Providers.Default = "anthropic"
	assert.Equal(t, "an", cfg.ActiveAPIKey())
	cfg.Providers.Default = "gemini"
	assert.Equal(t, "ge", cfg.ActiveAPIKey())
	cfg.Providers.Default = "lmstudio"
	assert.Empty(t, cfg.ActiveAPIKey())
}
