package llm

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// DefaultMaxTokens is used when CallBase.MaxTokens is left at zero.
const DefaultMaxTokens int64 = 8192

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageType discriminates the variants of Message.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeToolCall   MessageType = "tool_call"
	MessageTypeToolResult MessageType = "tool_result"
)

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is an opaque, usually JSON, string.
	Arguments string `json:"arguments"`
}

// ToolResult answers an earlier ToolCall with the same ID.
type ToolResult struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

// Message is one unit of turn content: text, a tool call, or a tool result.
// Exactly one of Text, ToolCall or ToolResult is meaningful, selected by Type.
type Message struct {
	Type       MessageType `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextMessage creates a Text message.
func TextMessage(text string) Message {
	return Message{Type: MessageTypeText, Text: text}
}

// ToolCallMessage creates a ToolCall message.
func ToolCallMessage(id, name, arguments string) Message {
	return Message{
		Type:     MessageTypeToolCall,
		ToolCall: &ToolCall{ID: id, Name: name, Arguments: arguments},
	}
}

// ToolResultMessage creates a ToolResult message.
func ToolResultMessage(id, result string) Message {
	return Message{
		Type:       MessageTypeToolResult,
		ToolResult: &ToolResult{ID: id, Result: result},
	}
}

// Equal reports whether two messages carry the same variant and payload.
func (m Message) Equal(o Message) bool {
	if m.Type != o.Type {
		return false
	}
	switch m.Type {
	case MessageTypeText:
		return m.Text == o.Text
	case MessageTypeToolCall:
		return m.ToolCall != nil && o.ToolCall != nil && *m.ToolCall == *o.ToolCall
	case MessageTypeToolResult:
		return m.ToolResult != nil && o.ToolResult != nil && *m.ToolResult == *o.ToolResult
	default:
		return false
	}
}

func (m Message) clone() Message {
	c := Message{Type: m.Type, Text: m.Text}
	if m.ToolCall != nil {
		tc := *m.ToolCall
		c.ToolCall = &tc
	}
	if m.ToolResult != nil {
		tr := *m.ToolResult
		c.ToolResult = &tr
	}
	return c
}

// Turn is one role-tagged, ordered group of messages. Treat a Turn as
// immutable once built; use Clone before modifying a copy.
type Turn struct {
	Role    Role      `json:"role"`
	Content []Message `json:"content"`
}

// NewTextTurn creates a turn holding a single Text message.
func NewTextTurn(role Role, text string) Turn {
	return Turn{Role: role, Content: []Message{TextMessage(text)}}
}

// NewToolResultTurn creates a Tool turn from results, preserving their order.
func NewToolResultTurn(results ...ToolResult) Turn {
	content := make([]Message, len(results))
	for i, r := range results {
		content[i] = ToolResultMessage(r.ID, r.Result)
	}
	return Turn{Role: RoleTool, Content: content}
}

// Text returns the text of the first Text message in the turn.
func (t Turn) Text() (string, bool) {
	for _, m := range t.Content {
		if m.Type == MessageTypeText {
			return m.Text, true
		}
	}
	return "", false
}

// ToolCalls returns the tool calls in the turn, in emission order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, m := range t.Content {
		if m.Type == MessageTypeToolCall && m.ToolCall != nil {
			calls = append(calls, *m.ToolCall)
		}
	}
	return calls
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	content := make([]Message, len(t.Content))
	for i, m := range t.Content {
		content[i] = m.clone()
	}
	return Turn{Role: t.Role, Content: content}
}

// Equal reports whether two turns have the same role and messages.
func (t Turn) Equal(o Turn) bool {
	return t.Role == o.Role && slices.EqualFunc(t.Content, o.Content, Message.Equal)
}

// Validate checks the per-turn content rules for the turn's role.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleSystem:
		for i, m := range t.Content {
			if m.Type != MessageTypeText {
				return fmt.Errorf("%s turn: message %d is %s, only text is allowed", t.Role, i, m.Type)
			}
		}
	case RoleAssistant:
		seenCall := false
		ids := make(map[string]bool)
		for i, m := range t.Content {
			switch m.Type {
			case MessageTypeText:
				if seenCall {
					return fmt.Errorf("assistant turn: text message %d follows a tool call", i)
				}
			case MessageTypeToolCall:
				if m.ToolCall == nil {
					return fmt.Errorf("assistant turn: message %d has no tool call payload", i)
				}
				if ids[m.ToolCall.ID] {
					return fmt.Errorf("assistant turn: duplicate tool call id %q", m.ToolCall.ID)
				}
				ids[m.ToolCall.ID] = true
				seenCall = true
			default:
				return fmt.Errorf("assistant turn: message %d is %s", i, m.Type)
			}
		}
	case RoleTool:
		for i, m := range t.Content {
			if m.Type != MessageTypeToolResult || m.ToolResult == nil {
				return fmt.Errorf("tool turn: message %d is %s, only tool results are allowed", i, m.Type)
			}
		}
	default:
		return fmt.Errorf("unknown role %q", t.Role)
	}
	return nil
}

// ValidateConversation checks every turn and that each Tool turn answers the
// tool calls of the immediately preceding Assistant turn, one result per call,
// in call order.
func ValidateConversation(turns []Turn) error {
	for i, t := range turns {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
		if t.Role != RoleTool {
			continue
		}
		if i == 0 || turns[i-1].Role != RoleAssistant {
			return fmt.Errorf("turn %d: tool turn does not follow an assistant turn", i)
		}
		calls := turns[i-1].ToolCalls()
		if len(calls) != len(t.Content) {
			return fmt.Errorf("turn %d: %d tool results for %d tool calls", i, len(t.Content), len(calls))
		}
		for j, m := range t.Content {
			if m.ToolResult.ID != calls[j].ID {
				return fmt.Errorf("turn %d: tool result %d has id %q, expected %q", i, j, m.ToolResult.ID, calls[j].ID)
			}
		}
	}
	return nil
}

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ToolInfo describes a tool made available to the model.
type ToolInfo struct {
	// Name must match ^[a-zA-Z0-9_-]{1,64}$.
	Name        string `json:"name"`
	Description string `json:"description"`
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any `json:"parameters"`
}

// NewToolInfo creates a ToolInfo, defaulting parameters to an empty object schema.
func NewToolInfo(name, description string, parameters map[string]any) ToolInfo {
	if parameters == nil {
		parameters = EmptyObjectSchema()
	}
	return ToolInfo{Name: name, Description: description, Parameters: parameters}
}

// EmptyObjectSchema is the schema of a tool that accepts no parameters.
func EmptyObjectSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Validate checks the tool name charset and length.
func (ti ToolInfo) Validate() error {
	if !toolNamePattern.MatchString(ti.Name) {
		return fmt.Errorf("invalid tool name %q: must match %s", ti.Name, toolNamePattern)
	}
	return nil
}

// Schema returns the parameters schema, or the empty object schema when unset.
func (ti ToolInfo) Schema() map[string]any {
	if ti.Parameters == nil {
		return EmptyObjectSchema()
	}
	return ti.Parameters
}

// CallBase holds the parameters for a (possibly multi-turn) model call.
type CallBase struct {
	// System is short-form persona text, e.g. "You are an expert software developer".
	System string `json:"system,omitempty"`
	// Instructions holds the task-specific instructions.
	Instructions string     `json:"instructions,omitempty"`
	Tools        []ToolInfo `json:"tools,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`
	MaxTokens    int64      `json:"max_tokens,omitempty"`
}

// EffectiveMaxTokens returns MaxTokens, or DefaultMaxTokens when unset.
func (p CallBase) EffectiveMaxTokens() int64 {
	if p.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return p.MaxTokens
}

// SystemPrompt merges System and Instructions into one text stanza, joined
// by a blank line when both are present.
func (p CallBase) SystemPrompt() string {
	parts := make([]string, 0, 2)
	if p.System != "" {
		parts = append(parts, p.System)
	}
	if p.Instructions != "" {
		parts = append(parts, p.Instructions)
	}
	return strings.Join(parts, "\n\n")
}

// FinishReason is the provider-independent reason a model stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// ParseFinishReason accepts the canonical terms and the Anthropic aliases.
func ParseFinishReason(s string) (FinishReason, bool) {
	switch s {
	case "stop", "end_turn":
		return FinishReasonStop, true
	case "tool_calls", "tool_use":
		return FinishReasonToolCalls, true
	case "length", "max_tokens":
		return FinishReasonLength, true
	case "content_filter", "refusal":
		return FinishReasonContentFilter, true
	default:
		return "", false
	}
}

// CallResp is the response from the model for generating a single turn.
type CallResp struct {
	// ID is the provider-specific identifier for this call.
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	FinishReason FinishReason `json:"finish_reason"`
	// Content is always an Assistant turn.
	Content Turn `json:"content"`
}
