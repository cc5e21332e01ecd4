package openai

import (
	"fmt"
	"math"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// chatCompletionObject is the expected value of the response "object" field.
const chatCompletionObject = "chat.completion"

// ToOpenAIMessages flattens the prompt and turns into chat messages. System
// and instructions become one leading prompt message, sent with the user role
// when the model does not accept a system role.
func ToOpenAIMessages(params llm.CallBase, turns []llm.Turn, noSystemPrompt bool) ([]openai.ChatCompletionMessage, error) {
	systemRole := openai.ChatMessageRoleSystem
	if noSystemPrompt {
		systemRole = openai.ChatMessageRoleUser
	}

	result := make([]openai.ChatCompletionMessage, 0, 1+len(turns))
	if prompt := params.SystemPrompt(); prompt != "" {
		result = append(result, openai.ChatCompletionMessage{Role: systemRole, Content: prompt})
	}

	for i, turn := range turns {
		turnStart := len(result)
		for _, msg := range turn.Content {
			switch msg.Type {
			case llm.MessageTypeText:
				role, err := toOpenAIRole(turn.Role, systemRole)
				if err != nil {
					return nil, fmt.Errorf("turn %d: %w", i, err)
				}
				result = append(result, openai.ChatCompletionMessage{Role: role, Content: msg.Text})

			case llm.MessageTypeToolCall:
				call := openai.ToolCall{
					ID:   msg.ToolCall.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      msg.ToolCall.Name,
						Arguments: msg.ToolCall.Arguments,
					},
				}
				// Tool calls ride on the preceding assistant message of the same turn.
				if n := len(result); n > turnStart && result[n-1].Role == openai.ChatMessageRoleAssistant {
					result[n-1].ToolCalls = append(result[n-1].ToolCalls, call)
					continue
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{call},
				})

			case llm.MessageTypeToolResult:
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    msg.ToolResult.Result,
					ToolCallID: msg.ToolResult.ID,
				})

			default:
				return nil, fmt.Errorf("turn %d: unknown message type %q", i, msg.Type)
			}
		}
	}
	return result, nil
}

func toOpenAIRole(role llm.Role, systemRole string) (string, error) {
	switch role {
	case llm.RoleUser:
		return openai.ChatMessageRoleUser, nil
	case llm.RoleSystem:
		return systemRole, nil
	case llm.RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("text message in %s turn", role)
	}
}

// ToOpenAITools converts tool declarations to function-type tools.
func ToOpenAITools(infos []llm.ToolInfo) []openai.Tool {
	return lo.Map(infos, func(info llm.ToolInfo, _ int) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.Schema(),
			},
		}
	})
}

// BuildRequest assembles a chat completion request for model.
func BuildRequest(model llm.Model, params llm.CallBase, turns []llm.Turn) (openai.ChatCompletionRequest, error) {
	msgs, err := ToOpenAIMessages(params, turns, model.NoSystemPrompt)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:     model.ID,
		Messages:  msgs,
		MaxTokens: int(params.EffectiveMaxTokens()),
	}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
		if req.Temperature == 0 {
			// go-openai omits a zero temperature.
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if len(params.Tools) > 0 {
		req.Tools = ToOpenAITools(params.Tools)
		req.ToolChoice = "auto"
	}
	return req, nil
}

// FromOpenAIResponse validates a chat completion response and converts its
// first choice into a CallResp. An empty response model is replaced by
// requestedModel.
func FromOpenAIResponse(resp openai.ChatCompletionResponse, requestedModel string) (*llm.CallResp, error) {
	if resp.Object != "" && resp.Object != chatCompletionObject {
		return nil, llm.Otherf("unexpected value for 'object': %s", resp.Object)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewNoCompletionsError()
	}

	choice := resp.Choices[0]
	if role := choice.Message.Role; role != "" && role != openai.ChatMessageRoleAssistant {
		return nil, llm.Otherf("unexpected value for 'role': %s", role)
	}

	finish, ok := toFinishReason(choice.FinishReason)
	if !ok {
		return nil, llm.Otherf("unexpected finish reason: %q", choice.FinishReason)
	}
	if finish != llm.FinishReasonStop && finish != llm.FinishReasonToolCalls {
		return nil, llm.Otherf("unexpected finish reason: %s", finish)
	}

	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	return &llm.CallResp{
		ID:           resp.ID,
		Model:        model,
		FinishReason: finish,
		Content:      fromOpenAIMessage(choice.Message),
	}, nil
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) llm.Turn {
	content := make([]llm.Message, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		content = append(content, llm.TextMessage(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		content = append(content, llm.ToolCallMessage(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return llm.Turn{Role: llm.RoleAssistant, Content: content}
}

var finishReasons = map[openai.FinishReason]llm.FinishReason{
	openai.FinishReasonStop:          llm.FinishReasonStop,
	openai.FinishReasonToolCalls:     llm.FinishReasonToolCalls,
	openai.FinishReasonLength:        llm.FinishReasonLength,
	openai.FinishReasonContentFilter: llm.FinishReasonContentFilter,
}

func toFinishReason(r openai.FinishReason) (llm.FinishReason, bool) {
	fr, ok := finishReasons[r]
	return fr, ok
}

func fromFinishReason(r llm.FinishReason) (openai.FinishReason, bool) {
	return lo.FindKey(finishReasons, r)
}
