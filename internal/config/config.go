// Package config handles configuration loading for drover.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for drover.
type Config struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Models      ModelsConfig      `mapstructure:"models"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	Supervision SupervisionConfig `mapstructure:"supervision"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Channel     ChannelConfig     `mapstructure:"channel"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AnthropicConfig holds inference backend settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// MaxRetries bounds retry attempts on transient inference failures.
	MaxRetries int `mapstructure:"max_retries"`
}

// ModelsConfig maps request complexity to model IDs.
type ModelsConfig struct {
	Simple   string `mapstructure:"simple"`
	Moderate string `mapstructure:"moderate"`
	Complex  string `mapstructure:"complex"`
}

// WorkersConfig bounds worker concurrency and per-task behavior.
type WorkersConfig struct {
	// MaxConcurrent is the regulator capacity.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// AcquireTimeout is how long a dispatch waits for a free slot.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	// TaskTimeout bounds a single worker run.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxIterations caps reasoning/tool round trips per task.
	MaxIterations int `mapstructure:"max_iterations"`
}

// SupervisionConfig bounds failure-repair attempts per plan.
type SupervisionConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

// AuthConfig holds the server-side credential settings.
type AuthConfig struct {
	// APIKeys is the allowlist of long-lived client keys.
	APIKeys []string `mapstructure:"api_keys"`
	// SigningSecret signs access tokens. Generated per process when empty.
	SigningSecret   string        `mapstructure:"signing_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// ChannelConfig holds remote tool channel settings.
type ChannelConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// InvokeTimeout bounds a single remote tool round trip.
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout"`
	// LocalOnlyTools extends the built-in set of tools that must run
	// on the requester's machine.
	LocalOnlyTools []string `mapstructure:"local_only_tools"`
	// SessionIdleTimeout is how long a session may sit without history
	// activity before the server destroys it.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
}

// MemoryConfig holds long-term memory store settings.
type MemoryConfig struct {
	// Path overrides the default database location.
	Path string `mapstructure:"path"`
}

// TranscriptsConfig controls session transcript persistence.
type TranscriptsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (DROVER_*, ANTHROPIC_API_KEY)
// 2. Project config (.drover.yaml in current directory or parent)
// 3. User config (~/.config/drover/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DROVER")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")
	v.BindEnv("auth.signing_secret", "DROVER_SIGNING_SECRET")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Auth.SigningSecret = os.ExpandEnv(cfg.Auth.SigningSecret)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// DataDir returns the per-user data directory for databases and transcripts.
func DataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "drover")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".drover")
	}
	return filepath.Join(home, ".local", "share", "drover")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.max_retries", 3)

	v.SetDefault("models.simple", "claude-3-5-haiku-latest")
	v.SetDefault("models.moderate", "claude-sonnet-4-5")
	v.SetDefault("models.complex", "claude-opus-4-1")

	v.SetDefault("workers.max_concurrent", 4)
	v.SetDefault("workers.acquire_timeout", "30s")
	v.SetDefault("workers.task_timeout", "10m")
	v.SetDefault("workers.max_iterations", 20)

	v.SetDefault("supervision.max_rounds", 3)

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")

	v.SetDefault("channel.listen_addr", "127.0.0.1:8750")
	v.SetDefault("channel.invoke_timeout", "2m")
	v.SetDefault("channel.session_idle_timeout", "30m")

	v.SetDefault("transcripts.enabled", true)
	v.SetDefault("transcripts.dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// getUserConfigDir returns the XDG config directory for drover.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "drover")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "drover")
	}
	return filepath.Join(home, ".config", "drover")
}

// findProjectConfig searches for .drover.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".drover.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{MaxRetries: 3},
		Models: ModelsConfig{
			Simple:   "claude-3-5-haiku-latest",
			Moderate: "claude-sonnet-4-5",
			Complex:  "claude-opus-4-1",
		},
		Workers: WorkersConfig{
			MaxConcurrent:  4,
			AcquireTimeout: 30 * time.Second,
			TaskTimeout:    10 * time.Minute,
			MaxIterations:  20,
		},
		Supervision: SupervisionConfig{MaxRounds: 3},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 168 * time.Hour,
		},
		Channel: ChannelConfig{
			ListenAddr:         "127.0.0.1:8750",
			InvokeTimeout:      2 * time.Minute,
			SessionIdleTimeout: 30 * time.Minute,
		},
		Transcripts: TranscriptsConfig{Enabled: true},
		Logging:     LoggingConfig{Level: "info"},
	}
}

// ModelFor returns the model ID configured for a complexity name.
// Unknown names fall back to the moderate model.
func (c *Config) ModelFor(complexity string) string {
	switch complexity {
	case "simple":
		return c.Models.Simple
	case "complex":
		return c.Models.Complex
	default:
		return c.Models.Moderate
	}
}
