// Package config loads the miniprompt YAML configuration, overlaying the
// file onto built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ProviderSettings holds explicit settings for one provider. Empty values
// fall back to the provider's environment variables and defaults.
type ProviderSettings struct {
	APIKey       string `yaml:"api_key,omitempty"`      // API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Organization string `yaml:"organization,omitempty"` // Organization ID (OpenAI only)
}

// CallConfig holds the defaults applied to every model call.
type CallConfig struct {
	System      string   `yaml:"system,omitempty"`      // Persona text sent as the system prompt
	Temperature *float64 `yaml:"temperature,omitempty"` // Omitted when unset
	MaxTokens   int64    `yaml:"max_tokens,omitempty"`  // 0 = llm.DefaultMaxTokens
}

// Config is the miniprompt configuration.
type Config struct {
	// Provider and Model select the caller. An empty provider picks the
	// first enabled provider with credentials; an empty model picks the
	// provider default.
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	// Providers lists the enabled providers.
	Providers []string `yaml:"providers,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`

	OpenAI     ProviderSettings `yaml:"openai,omitempty"`
	OpenRouter ProviderSettings `yaml:"openrouter,omitempty"`
	Anthropic  ProviderSettings `yaml:"anthropic,omitempty"`

	Call CallConfig `yaml:"call,omitempty"`
	// Retries is the number of retries for rate-limited or failed requests.
	// 0 disables retrying.
	Retries uint64 `yaml:"retries,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Providers: []string{
			string(llm.ProviderOpenRouter),
			string(llm.ProviderOpenAI),
			string(llm.ProviderAnthropic),
		},
		LogLevel: "warn",
	}
}

// DefaultPath returns the default config file path.
// Can be overridden via MINIPROMPT_CONFIG environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("MINIPROMPT_CONFIG"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.miniprompt/config.yaml"
	}
	return filepath.Join(homeDir, ".miniprompt", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path and merges it onto Defaults.
// Returns defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	defaults := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		// File doesn't exist, return defaults
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(configYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Merge loaded config onto defaults
	if err := mergo.Merge(&defaults, cfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", expandedPath, err)
	}
	return &defaults, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks provider names and call parameters.
func (c *Config) Validate() error {
	if c.Provider != "" {
		if _, err := llm.ParseProviderKind(c.Provider); err != nil {
			return err
		}
	}
	if _, err := c.EnabledProviders(); err != nil {
		return err
	}
	if t := c.Call.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("call.temperature must be between 0 and 2, got %v", *t)
	}
	if c.Call.MaxTokens < 0 {
		return fmt.Errorf("call.max_tokens must not be negative, got %d", c.Call.MaxTokens)
	}
	return nil
}

// EnabledProviders parses Providers.
func (c *Config) EnabledProviders() ([]llm.ProviderKind, error) {
	kinds := make([]llm.ProviderKind, 0, len(c.Providers))
	for _, name := range lo.Uniq(c.Providers) {
		kind, err := llm.ParseProviderKind(name)
		if err != nil {
			return nil, fmt.Errorf("providers: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Preferences returns the explicit provider/model choice, if any. With no
// explicit provider the registry falls back to the enabled providers.
func (c *Config) Preferences() []llm.Preference {
	if c.Provider == "" {
		return nil
	}
	return []llm.Preference{{Provider: llm.ProviderKind(c.Provider), Model: c.Model}}
}

// ProviderConfig converts the provider sections for llm.NewProviderRegistry.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	toSettings := func(s ProviderSettings) llm.ProviderSettings {
		return llm.ProviderSettings{APIKey: s.APIKey, BaseURL: s.BaseURL, Organization: s.Organization}
	}
	return &llm.ProviderConfig{
		OpenAI:     toSettings(c.OpenAI),
		OpenRouter: toSettings(c.OpenRouter),
		Anthropic:  toSettings(c.Anthropic),
	}
}

// CallBase returns the call defaults with instructions set.
func (c *Config) CallBase(instructions string) llm.CallBase {
	return llm.CallBase{
		System:       c.Call.System,
		Instructions: instructions,
		Temperature:  c.Call.Temperature,
		MaxTokens:    c.Call.MaxTokens,
	}
}

// RetryPolicy returns the retry policy for Retries.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxRetries:      c.Retries,
		InitialInterval: llm.DefaultRetryInitialInterval,
		MaxInterval:     llm.DefaultRetryMaxInterval,
	}
}
