// Package client turns resolved provider configuration into bound llm.Caller values.
package client

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	llmanthropic "github.com/aschepis/backscratcher/miniprompt/llm/anthropic"
	llmopenai "github.com/aschepis/backscratcher/miniprompt/llm/openai"
	"github.com/rs/zerolog"
)

// Factory creates callers for resolved client keys. Base callers are cached by
// key and are safe to share; each returned Caller is wrapped with logging.
type Factory struct {
	logger     zerolog.Logger
	httpClient *http.Client
	mu         sync.RWMutex
	cache      map[string]llm.Caller
}

// NewFactory creates a new Factory. If httpClient is nil, each provider SDK
// uses its default transport.
func NewFactory(httpClient *http.Client, logger zerolog.Logger) *Factory {
	return &Factory{
		logger:     logger.With().Str("component", "clientFactory").Logger(),
		httpClient: httpClient,
		cache:      make(map[string]llm.Caller),
	}
}

// NewCaller creates a single caller for key without caching.
func NewCaller(key *llm.ClientKey, logger zerolog.Logger) (llm.Caller, error) {
	return NewFactory(nil, logger).Caller(key)
}

// Caller gets or creates the caller for key.
func (f *Factory) Caller(key *llm.ClientKey) (llm.Caller, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}
	keyStr := fmt.Sprintf("%s:%s:%s:%s:%s", key.Provider, key.Model.ID, key.APIKey, key.BaseURL, key.Organization)

	f.mu.RLock()
	if c, ok := f.cache[keyStr]; ok {
		f.mu.RUnlock()
		return f.wrap(c), nil
	}
	f.mu.RUnlock()

	// Not in cache - create new base caller (no lock held during creation)
	base, err := f.create(key)
	if err != nil {
		return nil, err
	}
	f.logger.Debug().
		Str("provider", string(key.Provider)).
		Str("model", key.Model.ID).
		Msg("Created caller")

	f.mu.Lock()
	if existing, ok := f.cache[keyStr]; ok {
		f.mu.Unlock()
		return f.wrap(existing), nil
	}
	f.cache[keyStr] = base
	f.mu.Unlock()

	return f.wrap(base), nil
}

func (f *Factory) create(key *llm.ClientKey) (llm.Caller, error) {
	switch key.Provider {
	case llm.ProviderOpenAI, llm.ProviderOpenRouter:
		c, err := llmopenai.NewClient(key.APIKey, key.BaseURL, key.Organization, key.Model, f.httpClient, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
		}
		return c, nil

	case llm.ProviderAnthropic:
		c, err := llmanthropic.NewClient(key.APIKey, key.BaseURL, key.Model, f.httpClient, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

func (f *Factory) wrap(base llm.Caller) llm.Caller {
	return llm.WrapWithMiddleware(base, llm.NewLoggingMiddleware(f.logger))
}
