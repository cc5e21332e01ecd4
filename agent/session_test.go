package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/aschepis/backscratcher/miniprompt/tools"
	"github.com/rs/zerolog"
)

var stubModel = llm.Model{Provider: llm.ProviderOpenRouter, ID: "stub"}

// scriptedCaller answers each call with the result of script(n), n starting at 1.
type scriptedCaller struct {
	script func(n int) (*llm.CallResp, error)
	calls  int
	params []llm.CallBase
}

func (c *scriptedCaller) Model() llm.Model { return stubModel }

func (c *scriptedCaller) Call(_ context.Context, params llm.CallBase, _ []llm.Turn) (*llm.CallResp, error) {
	c.calls++
	c.params = append(c.params, params)
	return c.script(c.calls)
}

func stopResp(text string) *llm.CallResp {
	return &llm.CallResp{
		ID:           "stop",
		Model:        stubModel.ID,
		FinishReason: llm.FinishReasonStop,
		Content:      llm.NewTextTurn(llm.RoleAssistant, text),
	}
}

func toolResp(id string, calls ...llm.ToolCall) *llm.CallResp {
	content := make([]llm.Message, len(calls))
	for i, c := range calls {
		content[i] = llm.ToolCallMessage(c.ID, c.Name, c.Arguments)
	}
	return &llm.CallResp{
		ID:           id,
		Model:        stubModel.ID,
		FinishReason: llm.FinishReasonToolCalls,
		Content:      llm.Turn{Role: llm.RoleAssistant, Content: content},
	}
}

// countingRegistry registers the named tools; each returns "<name>ed" and
// records its invocation order.
func countingRegistry(t *testing.T, names ...string) (*tools.Registry, *[]string) {
	t.Helper()
	var order []string
	reg := tools.NewRegistry(zerolog.Nop())
	for _, name := range names {
		err := reg.Register(llm.NewToolInfo(name, "test tool", nil), func(context.Context, string) (string, error) {
			order = append(order, name)
			return name + "ed", nil
		})
		if err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}
	return reg, &order
}

func newTestSession(t *testing.T, caller llm.Caller, reg ToolExecutor) *Session {
	t.Helper()
	s, err := NewSession(caller, reg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestSession_ToolOnceThenStop(t *testing.T) {
	reg, order := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		if n == 1 {
			return toolResp("r1", llm.ToolCall{ID: "call_1", Name: "flubb"}), nil
		}
		return stopResp("Done"), nil
	}}
	s := newTestSession(t, caller, reg)

	ignored := llm.CallBase{Tools: []llm.ToolInfo{llm.NewToolInfo("ignored", "", nil)}}
	res, err := s.Run(context.Background(), ignored, []llm.Turn{llm.NewTextTurn(llm.RoleUser, "flubb please")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(*order) != 1 {
		t.Errorf("Expected flubb to run exactly once, ran %d times", len(*order))
	}
	if res.Iterations != 2 || caller.calls != 2 {
		t.Errorf("Expected 2 iterations, got %d (calls %d)", res.Iterations, caller.calls)
	}
	if res.Response.FinishReason != llm.FinishReasonStop {
		t.Errorf("Expected Stop, got %q", res.Response.FinishReason)
	}

	want := []llm.Turn{
		llm.NewTextTurn(llm.RoleUser, "flubb please"),
		{Role: llm.RoleAssistant, Content: []llm.Message{llm.ToolCallMessage("call_1", "flubb", "")}},
		llm.NewToolResultTurn(llm.ToolResult{ID: "call_1", Result: "flubbed"}),
		llm.NewTextTurn(llm.RoleAssistant, "Done"),
	}
	if len(res.Turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d: %+v", len(want), len(res.Turns), res.Turns)
	}
	for i := range want {
		if !res.Turns[i].Equal(want[i]) {
			t.Errorf("Turn %d: expected %+v, got %+v", i, want[i], res.Turns[i])
		}
	}
	if err := llm.ValidateConversation(res.Turns); err != nil {
		t.Errorf("Transcript should be a valid conversation: %v", err)
	}

	for i, p := range caller.params {
		if len(p.Tools) != 1 || p.Tools[0].Name != "flubb" {
			t.Errorf("Call %d: expected the session's tools only, got %+v", i+1, p.Tools)
		}
	}
}

func TestSession_IterationCap(t *testing.T) {
	reg, order := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		return toolResp(fmt.Sprintf("r%d", n), llm.ToolCall{ID: fmt.Sprintf("call_%d", n), Name: "flubb"}), nil
	}}
	s := newTestSession(t, caller, reg)

	_, err := s.Run(context.Background(), llm.CallBase{Instructions: "loop forever"}, nil)
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("Expected ErrMaxIterations, got %v", err)
	}
	if llmErr, ok := llm.AsError(err); !ok || llmErr.Type != llm.ErrorTypeOther {
		t.Errorf("Expected an Other error, got %v", err)
	}
	if caller.calls != MaxToolIterations {
		t.Errorf("Expected exactly %d calls, got %d", MaxToolIterations, caller.calls)
	}
	if len(*order) != MaxToolIterations {
		t.Errorf("Expected %d tool runs, got %d", MaxToolIterations, len(*order))
	}
}

func TestSession_UnknownTool(t *testing.T) {
	reg, order := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
		return toolResp("r1",
			llm.ToolCall{ID: "call_1", Name: "blarg"},
			llm.ToolCall{ID: "call_2", Name: "flubb"},
		), nil
	}}
	s := newTestSession(t, caller, reg)

	_, err := s.Run(context.Background(), llm.CallBase{}, nil)
	llmErr, ok := llm.AsError(err)
	if !ok || llmErr.Type != llm.ErrorTypeToolFailed || llmErr.ToolName != "blarg" {
		t.Fatalf("Expected ToolFailed naming blarg, got %v", err)
	}
	if len(*order) != 0 {
		t.Errorf("Expected no tools to run, ran %v", *order)
	}
	if caller.calls != 1 {
		t.Errorf("Expected the loop to stop after one call, got %d", caller.calls)
	}
}

func TestSession_HandlerFailure(t *testing.T) {
	boom := errors.New("boom")
	reg := tools.NewRegistry(zerolog.Nop())
	_ = reg.Register(llm.NewToolInfo("explode", "", nil), func(context.Context, string) (string, error) {
		return "", boom
	})
	caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
		return toolResp("r1", llm.ToolCall{ID: "call_1", Name: "explode"}), nil
	}}
	s := newTestSession(t, caller, reg)

	_, err := s.Run(context.Background(), llm.CallBase{}, nil)
	if !llm.IsToolFailed(err) || !errors.Is(err, boom) {
		t.Errorf("Expected ToolFailed wrapping boom, got %v", err)
	}
}

// plainExecutor returns bare errors, not llm errors.
type plainExecutor struct{}

func (plainExecutor) Infos() []llm.ToolInfo { return nil }

func (plainExecutor) Handle(context.Context, llm.ToolCall) (string, error) {
	return "", errors.New("plain failure")
}

func TestSession_WrapsExecutorErrors(t *testing.T) {
	caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
		return toolResp("r1", llm.ToolCall{ID: "call_1", Name: "anything"}), nil
	}}
	s := newTestSession(t, caller, plainExecutor{})

	_, err := s.Run(context.Background(), llm.CallBase{}, nil)
	llmErr, ok := llm.AsError(err)
	if !ok || llmErr.Type != llm.ErrorTypeToolFailed || llmErr.ToolName != "anything" {
		t.Errorf("Expected ToolFailed naming anything, got %v", err)
	}
}

func TestSession_SequentialOrder(t *testing.T) {
	reg, order := countingRegistry(t, "alpha", "beta")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		if n == 1 {
			return toolResp("r1",
				llm.ToolCall{ID: "b", Name: "beta"},
				llm.ToolCall{ID: "a", Name: "alpha"},
				llm.ToolCall{ID: "b2", Name: "beta"},
			), nil
		}
		return stopResp("ok"), nil
	}}
	s := newTestSession(t, caller, reg)

	res, err := s.Run(context.Background(), llm.CallBase{}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := fmt.Sprint(*order); got != "[beta alpha beta]" {
		t.Errorf("Expected emission order, got %s", got)
	}
	toolTurn := res.Turns[1]
	if toolTurn.Role != llm.RoleTool || len(toolTurn.Content) != 3 {
		t.Fatalf("Unexpected tool turn: %+v", toolTurn)
	}
	for i, id := range []string{"b", "a", "b2"} {
		if toolTurn.Content[i].ToolResult.ID != id {
			t.Errorf("Result %d: expected id %s, got %s", i, id, toolTurn.Content[i].ToolResult.ID)
		}
	}
}

func TestSession_NoCompletions(t *testing.T) {
	t.Run("without prior response", func(t *testing.T) {
		reg, _ := countingRegistry(t, "flubb")
		caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
			return nil, llm.NewNoCompletionsError()
		}}
		s := newTestSession(t, caller, reg)

		if _, err := s.Run(context.Background(), llm.CallBase{}, nil); !llm.IsNoCompletions(err) {
			t.Errorf("Expected NoCompletions, got %v", err)
		}
	})

	t.Run("falls back to last response", func(t *testing.T) {
		reg, order := countingRegistry(t, "flubb")
		first := toolResp("r1", llm.ToolCall{ID: "call_1", Name: "flubb"})
		caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
			if n == 1 {
				return first, nil
			}
			return nil, llm.NewNoCompletionsError()
		}}
		s := newTestSession(t, caller, reg)

		res, err := s.Run(context.Background(), llm.CallBase{}, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.Response != first {
			t.Errorf("Expected the last ToolCalls response, got %+v", res.Response)
		}
		if res.Iterations != 2 || len(*order) != 1 {
			t.Errorf("Unexpected iterations %d / tool runs %d", res.Iterations, len(*order))
		}
	})
}

func TestSession_PropagatesCallErrors(t *testing.T) {
	failed := llm.NewRequestFailedError(500, "oops", nil)
	reg, _ := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		if n == 1 {
			return toolResp("r1", llm.ToolCall{ID: "call_1", Name: "flubb"}), nil
		}
		return nil, failed
	}}
	s := newTestSession(t, caller, reg)

	_, err := s.Run(context.Background(), llm.CallBase{}, nil)
	if err != failed {
		t.Errorf("Expected the call error verbatim, got %v", err)
	}
}

func TestSession_UnexpectedFinishReason(t *testing.T) {
	reg, _ := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
		resp := stopResp("truncat")
		resp.FinishReason = llm.FinishReasonLength
		return resp, nil
	}}
	s := newTestSession(t, caller, reg)

	_, err := s.Run(context.Background(), llm.CallBase{}, nil)
	if llmErr, ok := llm.AsError(err); !ok || llmErr.Type != llm.ErrorTypeOther {
		t.Errorf("Expected an Other error, got %v", err)
	}
}

func TestSession_EmptyToolCallsTurn(t *testing.T) {
	reg, _ := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		if n == 1 {
			resp := stopResp("thinking")
			resp.FinishReason = llm.FinishReasonToolCalls
			return resp, nil
		}
		return stopResp("done"), nil
	}}
	s := newTestSession(t, caller, reg)

	res, err := s.Run(context.Background(), llm.CallBase{}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Turns) != 2 {
		t.Fatalf("Expected two assistant turns and no tool turn, got %+v", res.Turns)
	}
	for _, turn := range res.Turns {
		if turn.Role != llm.RoleAssistant {
			t.Errorf("Unexpected %s turn", turn.Role)
		}
	}
}

func TestSession_DoesNotMutateInput(t *testing.T) {
	reg, _ := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(n int) (*llm.CallResp, error) {
		if n == 1 {
			return toolResp("r1", llm.ToolCall{ID: "call_1", Name: "flubb"}), nil
		}
		return stopResp("done"), nil
	}}
	s := newTestSession(t, caller, reg)

	input := make([]llm.Turn, 1, 8)
	input[0] = llm.NewTextTurn(llm.RoleUser, "hi")
	if _, err := s.Run(context.Background(), llm.CallBase{}, input); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if spare := input[:2][1]; spare.Role != "" || spare.Content != nil {
		t.Errorf("Run wrote into the caller's backing array: %+v", spare)
	}
}

func TestSession_Caller(t *testing.T) {
	reg, _ := countingRegistry(t, "flubb")
	caller := &scriptedCaller{script: func(int) (*llm.CallResp, error) {
		return stopResp("Paris"), nil
	}}
	s := newTestSession(t, caller, reg)

	answer, err := llm.SimpleCall(context.Background(), s, "capital of France?")
	if err != nil || answer != "Paris" {
		t.Errorf("SimpleCall = %q, %v", answer, err)
	}
	if s.Model() != stubModel {
		t.Errorf("Expected model to be delegated, got %+v", s.Model())
	}
}

func TestNewSession_Validation(t *testing.T) {
	reg, _ := countingRegistry(t)
	if _, err := NewSession(nil, reg, zerolog.Nop()); err == nil {
		t.Error("Expected error without caller")
	}
	if _, err := NewSession(&scriptedCaller{}, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error without tools")
	}
}
