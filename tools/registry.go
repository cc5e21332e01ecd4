// Package tools holds the named tool handlers a tool-dispatch session can
// advertise to the model and invoke on its behalf.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// maxLoggedResult bounds how much of a tool result is written to the log.
const maxLoggedResult = 500

// Handler runs one tool call. arguments is the model-supplied argument
// string, usually JSON. A non-nil error is reported as a tool failure.
type Handler func(ctx context.Context, arguments string) (string, error)

type entry struct {
	info    llm.ToolInfo
	handler Handler
}

// Registry maps tool names to their declarations and handlers. Tools are
// advertised in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		index:  make(map[string]int),
		logger: logger.With().Str("component", "toolRegistry").Logger(),
	}
}

// Register adds a tool. The name must be valid and not already registered.
func (r *Registry) Register(info llm.ToolInfo, h Handler) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("tool %q: handler is required", info.Name)
	}
	if info.Parameters == nil {
		info.Parameters = llm.EmptyObjectSchema()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[info.Name]; ok {
		return fmt.Errorf("tool %q is already registered", info.Name)
	}
	r.index[info.Name] = len(r.entries)
	r.entries = append(r.entries, entry{info: info, handler: h})
	r.logger.Debug().Str("tool", info.Name).Msg("Registered tool")
	return nil
}

// Lookup returns the handler registered under exactly name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].handler, true
}

// Infos returns the tool declarations in registration order.
func (r *Registry) Infos() []llm.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.entries, func(e entry, _ int) llm.ToolInfo { return e.info })
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.entries, func(e entry, _ int) string { return e.info.Name })
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Handle dispatches call to its handler. An unknown tool or a handler error
// is returned as an llm ToolFailed error naming the tool.
func (r *Registry) Handle(ctx context.Context, call llm.ToolCall) (string, error) {
	h, ok := r.Lookup(call.Name)
	if !ok {
		r.logger.Warn().Str("tool", call.Name).Msg("Unknown tool requested")
		return "", llm.NewToolFailedError(call.Name, fmt.Errorf("unknown tool: %s", call.Name))
	}

	r.logger.Debug().
		Str("tool", call.Name).
		Str("id", call.ID).
		Str("args", call.Arguments).
		Msg("Executing tool")

	result, err := h(ctx, call.Arguments)
	if err != nil {
		r.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool returned error")
		return "", llm.NewToolFailedError(call.Name, err)
	}

	r.logger.Debug().Str("tool", call.Name).Str("result", truncate(result, maxLoggedResult)).Msg("Tool returned result")
	return result, nil
}

// JSONHandler adapts fn into a Handler that decodes the arguments into T and
// encodes the result as JSON. Empty arguments decode as the zero T; a string
// result is returned as-is.
func JSONHandler[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, arguments string) (string, error) {
		var payload T
		if strings.TrimSpace(arguments) != "" {
			if err := json.Unmarshal([]byte(arguments), &payload); err != nil {
				return "", fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}

		result, err := fn(ctx, payload)
		if err != nil {
			return "", err
		}
		if s, ok := result.(string); ok {
			return s, nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
		return string(data), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
