package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	LLM      LLMConfig      `mapstructure:"llm"`
	History  HistoryConfig  `mapstructure:"history"`
	Chunk    ChunkConfig    `mapstructure:"chunk"`
	Log      LogConfig      `mapstructure:"log"`
}

// TelegramConfig holds the Telegram transport configuration
type TelegramConfig struct {
	Token              string `mapstructure:"token"`
	APIBase            string `mapstructure:"api_base"`
	PollTimeoutSeconds int    `mapstructure:"poll_timeout_seconds"`
}

// LLMConfig holds the completion service configuration
type LLMConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	APIKey                string `mapstructure:"api_key"`
	Model                 string `mapstructure:"model"`
	SystemPrompt          string `mapstructure:"system_prompt"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	MaxMessageChars       int    `mapstructure:"max_message_chars"`
}

// HistoryConfig holds the history store configuration. Pairs is the
// number of user+assistant exchanges retained per user (2×Pairs rows).
type HistoryConfig struct {
	Pairs  int    `mapstructure:"pairs"`
	DBPath string `mapstructure:"db_path"`
}

// ChunkConfig holds the transport chunking configuration
type ChunkConfig struct {
	MaxLen int `mapstructure:"max_len"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the working directory (or the file named
// by CONFIG_PATH) and applies MEMBOT_-prefixed environment overrides.
// A missing config file is fine; everything can come from environment
// and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout_seconds", 30)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.system_prompt", "You are a helpful assistant. Reply concisely.")
	v.SetDefault("llm.request_timeout_seconds", 60)
	v.SetDefault("llm.max_message_chars", 4000)
	v.SetDefault("history.pairs", 5)
	v.SetDefault("history.db_path", "data/memory.db")
	// Telegram caps messages at 4096 characters; leave headroom for notices.
	v.SetDefault("chunk.max_len", 3996)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("MEMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.History.Pairs < 1 {
		cfg.History.Pairs = 1
	}
	return &cfg, nil
}

// Validate reports every missing required setting in one error so a
// misconfigured deployment fails fast with the full list.
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "telegram.token")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
