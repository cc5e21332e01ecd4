package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/samber/lo"
)

const (
	messageObject = "message"
	assistantRole = "assistant"
)

// BuildParams assembles a messages request for model. The system persona and
// the text of a leading System turn form the top-level system field;
// instructions become the first user message.
func BuildParams(model llm.Model, params llm.CallBase, turns []llm.Turn) (anthropic.MessageNewParams, error) {
	system := make([]string, 0, 2)
	if params.System != "" {
		system = append(system, params.System)
	}
	if len(turns) > 0 && turns[0].Role == llm.RoleSystem {
		for _, m := range turns[0].Content {
			if m.Text != "" {
				system = append(system, m.Text)
			}
		}
		turns = turns[1:]
	}

	msgs := make([]anthropic.MessageParam, 0, 1+len(turns))
	if params.Instructions != "" {
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(params.Instructions)))
	}
	converted, err := ToMessageParams(turns)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	msgs = appendCoalesced(msgs, converted...)

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ID),
		MaxTokens: params.EffectiveMaxTokens(),
		Messages:  msgs,
	}
	if len(system) > 0 {
		req.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Float(*params.Temperature)
	}
	if len(params.Tools) > 0 {
		req.Tools = ToToolUnionParams(params.Tools)
		req.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
	return req, nil
}

// ToMessageParams converts turns to messages, one block per llm.Message, with
// consecutive same-role messages merged into one multi-block message. Tool
// results travel as user-role blocks; System turns not hoisted into the
// system field are sent as user text.
func ToMessageParams(turns []llm.Turn) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for i, turn := range turns {
		for _, msg := range turn.Content {
			block, role, err := toContentBlock(turn.Role, msg)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			if role == "" {
				continue
			}
			result = appendCoalesced(result, anthropic.MessageParam{
				Role:    role,
				Content: []anthropic.ContentBlockParamUnion{block},
			})
		}
	}
	return result, nil
}

// toContentBlock returns an empty role for messages that produce no block.
func toContentBlock(role llm.Role, msg llm.Message) (anthropic.ContentBlockParamUnion, anthropic.MessageParamRole, error) {
	switch msg.Type {
	case llm.MessageTypeText:
		// The API rejects empty text blocks.
		if msg.Text == "" {
			return anthropic.ContentBlockParamUnion{}, "", nil
		}
		switch role {
		case llm.RoleUser, llm.RoleSystem:
			return anthropic.NewTextBlock(msg.Text), anthropic.MessageParamRoleUser, nil
		case llm.RoleAssistant:
			return anthropic.NewTextBlock(msg.Text), anthropic.MessageParamRoleAssistant, nil
		default:
			return anthropic.ContentBlockParamUnion{}, "", fmt.Errorf("text message in %s turn", role)
		}

	case llm.MessageTypeToolCall:
		args := strings.TrimSpace(msg.ToolCall.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return anthropic.ContentBlockParamUnion{}, "", fmt.Errorf("tool call %q: arguments are not valid JSON", msg.ToolCall.ID)
		}
		block := anthropic.NewToolUseBlock(msg.ToolCall.ID, json.RawMessage(args), msg.ToolCall.Name)
		return block, anthropic.MessageParamRoleAssistant, nil

	case llm.MessageTypeToolResult:
		block := anthropic.NewToolResultBlock(msg.ToolResult.ID, msg.ToolResult.Result, false)
		return block, anthropic.MessageParamRoleUser, nil

	default:
		return anthropic.ContentBlockParamUnion{}, "", fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func appendCoalesced(msgs []anthropic.MessageParam, more ...anthropic.MessageParam) []anthropic.MessageParam {
	for _, m := range more {
		if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
			msgs[n-1].Content = append(msgs[n-1].Content, m.Content...)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// ToToolUnionParam converts an llm.ToolInfo to an Anthropic ToolUnionParam.
func ToToolUnionParam(info llm.ToolInfo) anthropic.ToolUnionParam {
	schema := info.Schema()

	extra := lo.OmitByKeys(schema, []string{"type", "properties", "required"})
	if len(extra) == 0 {
		extra = nil
	}

	toolParam := anthropic.ToolParam{
		Name: info.Name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties:  schema["properties"],
			Required:    requiredFields(schema["required"]),
			ExtraFields: extra,
		},
	}
	if info.Description != "" {
		toolParam.Description = anthropic.String(info.Description)
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolInfo to Anthropic ToolUnionParams.
func ToToolUnionParams(infos []llm.ToolInfo) []anthropic.ToolUnionParam {
	return lo.Map(infos, func(info llm.ToolInfo, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(info)
	})
}

// requiredFields accepts the []string and []any shapes a decoded schema may use.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		return lo.FilterMap(req, func(item any, _ int) (string, bool) {
			s, ok := item.(string)
			return s, ok
		})
	default:
		return nil
	}
}

// FromMessage validates a messages response and converts it into a CallResp.
// An empty response model is replaced by requestedModel.
func FromMessage(msg *anthropic.Message, requestedModel string) (*llm.CallResp, error) {
	if v, ok := rawString(msg.JSON.Type.Raw()); ok && v != messageObject {
		return nil, llm.Otherf("unexpected value for 'object': %s", v)
	}
	if v, ok := rawString(msg.JSON.Role.Raw()); ok && v != assistantRole {
		return nil, llm.Otherf("unexpected value for 'role': %s", v)
	}
	if len(msg.Content) == 0 {
		return nil, llm.NewNoCompletionsError()
	}

	finish, ok := toFinishReason(msg.StopReason)
	if !ok {
		return nil, llm.Otherf("unexpected finish reason: %q", msg.StopReason)
	}
	if finish != llm.FinishReasonStop && finish != llm.FinishReasonToolCalls {
		return nil, llm.Otherf("unexpected finish reason: %s", finish)
	}

	content := make([]llm.Message, 0, len(msg.Content))
	for _, blockUnion := range msg.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.TextMessage(block.Text))
		case anthropic.ToolUseBlock:
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			content = append(content, llm.ToolCallMessage(block.ID, block.Name, args))
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = requestedModel
	}

	return &llm.CallResp{
		ID:           msg.ID,
		Model:        model,
		FinishReason: finish,
		Content:      llm.Turn{Role: llm.RoleAssistant, Content: content},
	}, nil
}

// rawString decodes a raw JSON string field. It reports false when the field
// was omitted or null.
func rawString(raw string) (string, bool) {
	if raw == "" || raw == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return raw, true
	}
	return s, true
}

var finishReasons = map[anthropic.StopReason]llm.FinishReason{
	anthropic.StopReasonEndTurn:   llm.FinishReasonStop,
	anthropic.StopReasonToolUse:   llm.FinishReasonToolCalls,
	anthropic.StopReasonMaxTokens: llm.FinishReasonLength,
	anthropic.StopReasonRefusal:   llm.FinishReasonContentFilter,
}

func toFinishReason(r anthropic.StopReason) (llm.FinishReason, bool) {
	fr, ok := finishReasons[r]
	return fr, ok
}

func fromFinishReason(r llm.FinishReason) (anthropic.StopReason, bool) {
	return lo.FindKey(finishReasons, r)
}
