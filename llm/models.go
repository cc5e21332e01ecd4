package llm

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// ProviderKind identifies the wire protocol family and endpoint of a model.
type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderOpenRouter ProviderKind = "openrouter"
	ProviderAnthropic  ProviderKind = "anthropic"
)

// ParseProviderKind validates a provider name.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch p := ProviderKind(s); p {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", s)
	}
}

// Model describes one model as reached through one provider.
type Model struct {
	Provider ProviderKind `json:"provider" yaml:"provider"`
	// ID is the literal model id sent on the wire.
	ID string `json:"id" yaml:"id"`
	// NoSystemPrompt marks models that reject the system role; the system
	// prompt is sent as a user message instead.
	NoSystemPrompt bool `json:"no_system_prompt,omitempty" yaml:"no_system_prompt,omitempty"`
}

func (m Model) String() string {
	return string(m.Provider) + "/" + m.ID
}

var modelCatalog = map[ProviderKind]map[string]Model{
	ProviderOpenRouter: {
		"gemma-3-27b":      {Provider: ProviderOpenRouter, ID: "google/gemma-3-27b-it"},
		"qwen3-235b":       {Provider: ProviderOpenRouter, ID: "qwen/qwen3-235b-a22b"},
		"phi-4":            {Provider: ProviderOpenRouter, ID: "microsoft/phi-4", NoSystemPrompt: true},
		"gemini-2.0-flash": {Provider: ProviderOpenRouter, ID: "google/gemini-2.0-flash-001"},
		"gemini-2.5-flash": {Provider: ProviderOpenRouter, ID: "google/gemini-2.5-flash-preview-05-20"},
		"devstral-small":   {Provider: ProviderOpenRouter, ID: "mistralai/devstral-small"},
		"gpt-4o-mini":      {Provider: ProviderOpenRouter, ID: "openai/gpt-4o-mini"},
		"deepseek-v3":      {Provider: ProviderOpenRouter, ID: "deepseek/deepseek-chat-v3-0324"},
		"claude-sonnet-4":  {Provider: ProviderOpenRouter, ID: "anthropic/claude-sonnet-4"},
	},
	ProviderOpenAI: {
		"gpt-4o-mini": {Provider: ProviderOpenAI, ID: "gpt-4o-mini"},
		"gpt-4o":      {Provider: ProviderOpenAI, ID: "gpt-4o"},
	},
	ProviderAnthropic: {
		"claude-sonnet-4":  {Provider: ProviderAnthropic, ID: "claude-sonnet-4-20250514"},
		"claude-3.5-haiku": {Provider: ProviderAnthropic, ID: "claude-3-5-haiku-latest"},
	},
}

// defaultModels is the catalog entry used when no model is configured.
var defaultModels = map[ProviderKind]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "gemini-2.0-flash",
	ProviderAnthropic:  "claude-sonnet-4",
}

// LookupModel resolves a model name for a provider. Catalog names map to
// their descriptor; any other name is used verbatim as the wire id. An empty
// name selects the provider's default model.
func LookupModel(provider ProviderKind, name string) (Model, error) {
	models, ok := modelCatalog[provider]
	if !ok {
		return Model{}, fmt.Errorf("unknown provider: %s", provider)
	}
	if name == "" {
		name = defaultModels[provider]
	}
	if m, ok := models[name]; ok {
		return m, nil
	}
	return Model{Provider: provider, ID: name}, nil
}

// CatalogNames lists the catalog model names for a provider, sorted.
func CatalogNames(provider ProviderKind) []string {
	names := lo.Keys(modelCatalog[provider])
	slices.Sort(names)
	return names
}
