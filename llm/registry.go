package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/samber/lo"
)

// Default endpoints. An empty OpenAI base URL leaves the SDK default in place.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultAnthropicBaseURL  = "https://api.anthropic.com"
)

// credentialEnvVars lists, per provider, the environment variables consulted
// in order when no explicit API key is configured.
var credentialEnvVars = map[ProviderKind][]string{
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderOpenRouter: {"OPENROUTER_API_KEY", "OR_KEY"},
	ProviderAnthropic:  {"ANTHROPIC_API_KEY"},
}

// Preference is a single provider/model choice, tried in order.
type Preference struct {
	Provider ProviderKind
	Model    string
}

// ClientKey uniquely identifies a resolved client configuration.
type ClientKey struct {
	Provider     ProviderKind
	Model        Model
	APIKey       string
	BaseURL      string
	Organization string // OpenAI only
}

// ProviderSettings holds the explicit settings for one provider. Empty fields
// fall back to environment variables and defaults.
type ProviderSettings struct {
	APIKey       string
	BaseURL      string
	Organization string
}

// ProviderConfig holds the configuration needed by the provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	OpenAI     ProviderSettings
	OpenRouter ProviderSettings
	Anthropic  ProviderSettings
}

func (c *ProviderConfig) settings(provider ProviderKind) ProviderSettings {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderOpenRouter:
		return c.OpenRouter
	case ProviderAnthropic:
		return c.Anthropic
	default:
		return ProviderSettings{}
	}
}

// ProviderRegistry manages provider selection and credential resolution.
// Client creation is handled by the client package to avoid import cycles.
type ProviderRegistry struct {
	enabledProviders map[ProviderKind]bool
	mu               sync.RWMutex
	config           *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and
// enabled providers. A nil config is treated as empty.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []ProviderKind) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	return &ProviderRegistry{
		enabledProviders: lo.SliceToMap(enabledProviders, func(p ProviderKind) (ProviderKind, bool) {
			return p, true
		}),
		config: providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider ProviderKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledProviders[provider]
}

// IsProviderConfigured checks if a provider has a usable API key.
func (r *ProviderRegistry) IsProviderConfigured(provider ProviderKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apiKeyUnlocked(provider) != ""
}

// Resolve returns a ClientKey for a single provider and model name. The
// provider need not be in the enabled list.
func (r *ProviderRegistry) Resolve(provider ProviderKind, model string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveProviderConfig(provider, model)
}

// ResolvePreferences returns a ClientKey for the first preference whose
// provider is enabled and configured. With no preferences, the first enabled
// and configured provider is used with its default model.
func (r *ProviderRegistry) ResolvePreferences(prefs []Preference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) == 0 {
		for _, p := range r.getEnabledProvidersList() {
			if r.apiKeyUnlocked(p) == "" {
				continue
			}
			return r.resolveProviderConfig(p, "")
		}
		return nil, fmt.Errorf("no configured provider among enabled providers %v", r.getEnabledProvidersList())
	}

	var attempted []ProviderKind
	for _, pref := range prefs {
		attempted = append(attempted, pref.Provider)
		if !r.enabledProviders[pref.Provider] {
			continue
		}
		key, err := r.resolveProviderConfig(pref.Provider, pref.Model)
		if err != nil {
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", attempted, r.getEnabledProvidersList())
}

// apiKeyUnlocked returns the explicit API key, or the first set credential
// environment variable. Must be called with r.mu held.
func (r *ProviderRegistry) apiKeyUnlocked(provider ProviderKind) string {
	if key := r.config.settings(provider).APIKey; key != "" {
		return key
	}
	for _, name := range credentialEnvVars[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider ProviderKind, modelName string) (*ClientKey, error) {
	model, err := LookupModel(provider, modelName)
	if err != nil {
		return nil, err
	}

	key := &ClientKey{
		Provider: provider,
		Model:    model,
		APIKey:   r.apiKeyUnlocked(provider),
	}
	if key.APIKey == "" {
		return nil, fmt.Errorf("%s API key not configured (set one of %v)", provider, credentialEnvVars[provider])
	}

	settings := r.config.settings(provider)
	key.BaseURL = settings.BaseURL

	switch provider {
	case ProviderOpenAI:
		if key.BaseURL == "" {
			key.BaseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.Organization = settings.Organization
		if key.Organization == "" {
			key.Organization = os.Getenv("OPENAI_ORG_ID")
		}
	case ProviderOpenRouter:
		if key.BaseURL == "" {
			key.BaseURL = DefaultOpenRouterBaseURL
		}
	case ProviderAnthropic:
		if key.BaseURL == "" {
			key.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
		}
		if key.BaseURL == "" {
			key.BaseURL = DefaultAnthropicBaseURL
		}
	}

	return key, nil
}

// getEnabledProvidersList returns the enabled providers in a stable order.
func (r *ProviderRegistry) getEnabledProvidersList() []ProviderKind {
	return lo.Filter([]ProviderKind{ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic}, func(p ProviderKind, _ int) bool {
		return r.enabledProviders[p]
	})
}
