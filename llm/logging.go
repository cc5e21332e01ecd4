package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggingMiddleware logs each call's size and outcome.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmCalls").Logger(),
	}
}

// BeforeCall implements Middleware.BeforeCall.
func (m *LoggingMiddleware) BeforeCall(ctx context.Context, params *CallBase, turns []Turn) error {
	m.logger.Debug().
		Int("turns", len(turns)).
		Int("tools", len(params.Tools)).
		Int64("max_tokens", params.EffectiveMaxTokens()).
		Msg("Calling model")
	return nil
}

// AfterResponse implements Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, params *CallBase, resp *CallResp) (*CallResp, error) {
	m.logger.Info().
		Str("id", resp.ID).
		Str("model", resp.Model).
		Str("finish_reason", string(resp.FinishReason)).
		Int("messages", len(resp.Content.Content)).
		Msg("Model call completed")
	return resp, nil
}

// OnError implements Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, params *CallBase, err error) error {
	event := m.logger.Warn().Err(err)
	if llmErr, ok := AsError(err); ok {
		event = event.Str("error_type", string(llmErr.Type))
		if llmErr.StatusCode != 0 {
			event = event.Int("status", llmErr.StatusCode)
		}
	}
	event.Msg("Model call failed")
	return err
}

var _ Middleware = (*LoggingMiddleware)(nil)
