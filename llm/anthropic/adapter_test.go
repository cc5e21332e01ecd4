package anthropic

import (
	"encoding/json"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/miniprompt/llm"
)

var testModel = llm.Model{Provider: llm.ProviderAnthropic, ID: "claude-3-5-haiku-latest"}

func TestBuildParams_SystemAndInstructions(t *testing.T) {
	turns := []llm.Turn{
		llm.NewTextTurn(llm.RoleSystem, "leading system"),
		llm.NewTextTurn(llm.RoleUser, "question"),
		llm.NewTextTurn(llm.RoleSystem, "late system"),
	}
	req, err := BuildParams(testModel, llm.CallBase{System: "persona", Instructions: "task"}, turns)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(req.System) != 1 || req.System[0].Text != "persona\n\nleading system" {
		t.Errorf("Unexpected system field: %+v", req.System)
	}
	// instructions, question and late system text all coalesce into one user message
	if len(req.Messages) != 1 {
		t.Fatalf("Expected 1 coalesced message, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("Expected user role, got %q", req.Messages[0].Role)
	}
	texts := []string{"task", "question", "late system"}
	if len(req.Messages[0].Content) != len(texts) {
		t.Fatalf("Expected %d blocks, got %d", len(texts), len(req.Messages[0].Content))
	}
	for i, want := range texts {
		if got := req.Messages[0].Content[i].OfText.Text; got != want {
			t.Errorf("Block %d: expected %q, got %q", i, want, got)
		}
	}
	if req.MaxTokens != 8192 {
		t.Errorf("Expected default max tokens, got %d", req.MaxTokens)
	}
	if req.Model != anthropic.Model("claude-3-5-haiku-latest") {
		t.Errorf("Unexpected model %q", req.Model)
	}
}

func TestBuildParams_NoSystem(t *testing.T) {
	req, err := BuildParams(testModel, llm.CallBase{Instructions: "task"}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.System != nil {
		t.Errorf("Expected no system field, got %+v", req.System)
	}
	if req.Tools != nil || req.ToolChoice.OfAuto != nil {
		t.Error("Expected tools and tool choice to be omitted")
	}
	if req.Temperature.Valid() {
		t.Error("Expected temperature to be omitted")
	}
}

func TestBuildParams_Tools(t *testing.T) {
	temp := 0.2
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required":             []any{"city"},
		"additionalProperties": false,
	}
	params := llm.CallBase{
		Instructions: "weather?",
		Temperature:  &temp,
		Tools:        []llm.ToolInfo{llm.NewToolInfo("weather", "gets weather", schema)},
	}

	req, err := BuildParams(testModel, params, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.ToolChoice.OfAuto == nil {
		t.Error("Expected tool choice auto")
	}
	if !req.Temperature.Valid() || req.Temperature.Value != 0.2 {
		t.Errorf("Expected temperature 0.2, got %+v", req.Temperature)
	}
	if len(req.Tools) != 1 || req.Tools[0].OfTool == nil {
		t.Fatalf("Unexpected tools: %+v", req.Tools)
	}

	data, err := json.Marshal(req.Tools[0])
	if err != nil {
		t.Fatalf("Failed to marshal tool: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode tool: %v", err)
	}
	if decoded["name"] != "weather" || decoded["description"] != "gets weather" {
		t.Errorf("Unexpected tool declaration: %s", data)
	}
	inputSchema := decoded["input_schema"].(map[string]any)
	if inputSchema["type"] != "object" || inputSchema["additionalProperties"] != false {
		t.Errorf("Unexpected input schema: %v", inputSchema)
	}
	if req, ok := inputSchema["required"].([]any); !ok || len(req) != 1 || req[0] != "city" {
		t.Errorf("Unexpected required fields: %v", inputSchema["required"])
	}
}

func TestToMessageParams_ToolRoundTrip(t *testing.T) {
	turns := []llm.Turn{
		llm.NewTextTurn(llm.RoleUser, "go"),
		{Role: llm.RoleAssistant, Content: []llm.Message{
			llm.TextMessage("calling"),
			llm.ToolCallMessage("toolu_1", "flubb", ""),
			llm.ToolCallMessage("toolu_2", "blarg", `{"n": 2}`),
		}},
		llm.NewToolResultTurn(llm.ToolResult{ID: "toolu_1", Result: "a"}, llm.ToolResult{ID: "toolu_2", Result: "b"}),
	}

	msgs, err := ToMessageParams(turns)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	assistant := msgs[1]
	if assistant.Role != anthropic.MessageParamRoleAssistant || len(assistant.Content) != 3 {
		t.Fatalf("Unexpected assistant message: %+v", assistant)
	}
	first := assistant.Content[1].OfToolUse
	if first == nil || first.ID != "toolu_1" || first.Name != "flubb" {
		t.Fatalf("Unexpected tool use block: %+v", first)
	}
	if raw, _ := first.Input.(json.RawMessage); string(raw) != "{}" {
		t.Errorf("Expected empty arguments to become {}, got %v", first.Input)
	}

	results := msgs[2]
	if results.Role != anthropic.MessageParamRoleUser || len(results.Content) != 2 {
		t.Fatalf("Unexpected tool result message: %+v", results)
	}
	if results.Content[1].OfToolResult == nil || results.Content[1].OfToolResult.ToolUseID != "toolu_2" {
		t.Errorf("Unexpected tool result block: %+v", results.Content[1])
	}
}

func TestToMessageParams_InvalidArguments(t *testing.T) {
	turns := []llm.Turn{{Role: llm.RoleAssistant, Content: []llm.Message{
		llm.ToolCallMessage("toolu_1", "flubb", "not json"),
	}}}
	if _, err := ToMessageParams(turns); err == nil {
		t.Error("Expected error for invalid JSON arguments")
	}
}

func TestFromMessage(t *testing.T) {
	var msg anthropic.Message
	body := `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "toolu_1", "name": "flubb", "input": {"n": 1}}
		],
		"stop_reason": "tool_use"
	}`
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}

	resp, err := FromMessage(&msg, "requested")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.ID != "msg_1" || resp.Model != "requested" {
		t.Errorf("Unexpected envelope: %+v", resp)
	}
	if resp.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("Expected tool_calls, got %q", resp.FinishReason)
	}
	calls := resp.Content.ToolCalls()
	if len(calls) != 1 || calls[0].Arguments != `{"n": 1}` {
		t.Errorf("Unexpected tool calls: %+v", calls)
	}
	if text, _ := resp.Content.Text(); text != "Let me check." {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestFromMessage_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{"bad type", `{"type":"completion","role":"assistant","content":[{"type":"text","text":"x"}],"stop_reason":"end_turn"}`, isOther},
		{"bad role", `{"type":"message","role":"user","content":[{"type":"text","text":"x"}],"stop_reason":"end_turn"}`, isOther},
		{"empty content", `{"type":"message","role":"assistant","content":[],"stop_reason":"end_turn"}`, llm.IsNoCompletions},
		{"max tokens", `{"type":"message","role":"assistant","content":[{"type":"text","text":"x"}],"stop_reason":"max_tokens"}`, isOther},
		{"stop sequence", `{"type":"message","role":"assistant","content":[{"type":"text","text":"x"}],"stop_reason":"stop_sequence"}`, isOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg anthropic.Message
			if err := json.Unmarshal([]byte(tt.body), &msg); err != nil {
				t.Fatalf("Failed to decode message: %v", err)
			}
			_, err := FromMessage(&msg, "m")
			if !tt.check(err) {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestFromMessage_OmittedEnvelope(t *testing.T) {
	var msg anthropic.Message
	body := `{"id":"msg_2","model":"claude","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn"}`
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	resp, err := FromMessage(&msg, "m")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Model != "claude" || resp.FinishReason != llm.FinishReasonStop {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestFinishReasonRoundTrip(t *testing.T) {
	for _, fr := range []llm.FinishReason{
		llm.FinishReasonStop,
		llm.FinishReasonToolCalls,
		llm.FinishReasonLength,
		llm.FinishReasonContentFilter,
	} {
		wire, ok := fromFinishReason(fr)
		if !ok {
			t.Fatalf("No wire term for %q", fr)
		}
		back, ok := toFinishReason(wire)
		if !ok || back != fr {
			t.Errorf("Round trip of %q via %q gave %q", fr, wire, back)
		}
		if parsed, ok := llm.ParseFinishReason(string(wire)); !ok || parsed != fr {
			t.Errorf("ParseFinishReason(%q) = %q, expected %q", wire, parsed, fr)
		}
	}
	if _, ok := toFinishReason(anthropic.StopReasonPauseTurn); ok {
		t.Error("Expected pause_turn to be unmapped")
	}
}

func isOther(err error) bool {
	llmErr, ok := llm.AsError(err)
	return ok && llmErr.Type == llm.ErrorTypeOther
}
