// Package agent runs the bounded tool-dispatch loop: call the model, run the
// tools it asks for, feed the results back, and stop when it answers.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/rs/zerolog"
)

// MaxToolIterations caps the number of model calls in one Run.
const MaxToolIterations = 12

// ErrMaxIterations is wrapped by the error returned when a Run reaches
// MaxToolIterations without the model stopping.
var ErrMaxIterations = errors.New("tool loop exceeded maximum iterations")

// ToolExecutor advertises a fixed tool set and runs individual calls.
// *tools.Registry implements it.
type ToolExecutor interface {
	Infos() []llm.ToolInfo
	Handle(ctx context.Context, call llm.ToolCall) (string, error)
}

// Result is the outcome of a successful Run.
type Result struct {
	// Response is the final response: the Stop response, or the last
	// ToolCalls response when the model returned no completions after it.
	Response *llm.CallResp
	// Turns is the full transcript: the input turns followed by every
	// assistant and tool turn produced by the loop.
	Turns []llm.Turn
	// Iterations is the number of model calls made.
	Iterations int
}

// Session runs the tool-dispatch loop against one caller and tool set. A
// Session holds no per-run state and may be shared; tool handlers are
// responsible for synchronizing any state they share.
type Session struct {
	caller llm.Caller
	tools  ToolExecutor
	logger zerolog.Logger
}

// NewSession creates a new Session.
func NewSession(caller llm.Caller, tools ToolExecutor, logger zerolog.Logger) (*Session, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required for Session")
	}
	if tools == nil {
		return nil, fmt.Errorf("tools are required for Session")
	}
	return &Session{
		caller: caller,
		tools:  tools,
		logger: logger.With().Str("component", "toolSession").Str("model", caller.Model().ID).Logger(),
	}, nil
}

// Model implements llm.Caller.Model.
func (s *Session) Model() llm.Model {
	return s.caller.Model()
}

// Call implements llm.Caller.Call by running the loop and returning its
// final response.
func (s *Session) Call(ctx context.Context, params llm.CallBase, turns []llm.Turn) (*llm.CallResp, error) {
	res, err := s.Run(ctx, params, turns)
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}

// Run alternates model calls and tool dispatch until the model stops.
// params.Tools is replaced by the session's tool set. turns is not modified.
func (s *Session) Run(ctx context.Context, params llm.CallBase, turns []llm.Turn) (*Result, error) {
	params.Tools = s.tools.Infos()

	transcript := make([]llm.Turn, 0, len(turns)+2)
	for _, t := range turns {
		transcript = append(transcript, t.Clone())
	}

	var last *llm.CallResp
	for iteration := 1; iteration <= MaxToolIterations; iteration++ {
		s.logger.Debug().Int("iteration", iteration).Int("turns", len(transcript)).Msg("Awaiting model")

		resp, err := s.caller.Call(ctx, params, transcript)
		if err != nil {
			if llm.IsNoCompletions(err) && last != nil {
				s.logger.Debug().Int("iteration", iteration).Msg("No completions, returning last response")
				return &Result{Response: last, Turns: transcript, Iterations: iteration}, nil
			}
			return nil, err
		}

		switch resp.FinishReason {
		case llm.FinishReasonStop:
			transcript = append(transcript, resp.Content)
			s.logger.Debug().Int("iteration", iteration).Msg("Model stopped")
			return &Result{Response: resp, Turns: transcript, Iterations: iteration}, nil

		case llm.FinishReasonToolCalls:
			transcript = append(transcript, resp.Content)
			calls := resp.Content.ToolCalls()
			if len(calls) > 0 {
				results, err := s.dispatch(ctx, calls)
				if err != nil {
					return nil, err
				}
				transcript = append(transcript, llm.NewToolResultTurn(results...))
			}
			last = resp

		default:
			return nil, llm.Otherf("unexpected finish reason %q", resp.FinishReason)
		}
	}

	return nil, llm.NewOtherError(fmt.Sprintf("no answer after %d calls", MaxToolIterations), ErrMaxIterations)
}

// dispatch runs calls one at a time, in order. The first failure aborts the
// remaining calls.
func (s *Session) dispatch(ctx context.Context, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		s.logger.Debug().Str("tool", call.Name).Str("id", call.ID).Msg("Dispatching tool")
		out, err := s.tools.Handle(ctx, call)
		if err != nil {
			s.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool failed, aborting session")
			if !llm.IsToolFailed(err) {
				err = llm.NewToolFailedError(call.Name, err)
			}
			return nil, err
		}
		results = append(results, llm.ToolResult{ID: call.ID, Result: out})
	}
	return results, nil
}

var _ llm.Caller = (*Session)(nil)
