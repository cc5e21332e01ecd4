package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Client implements llm.Caller for OpenAI-compatible chat completion APIs
// (OpenAI, OpenRouter, a local Ollama /v1 endpoint, ...).
type Client struct {
	client *openai.Client
	model  llm.Model
	logger zerolog.Logger
}

// NewClient creates a new Client bound to model.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
// If httpClient is nil, http.DefaultClient is used.
func NewClient(apiKey, baseURL, organization string, model llm.Model, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model.ID == "" {
		return nil, fmt.Errorf("model is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	config.HTTPClient = &recordingDoer{next: httpClient}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.With().Str("component", "openaiCaller").Str("model", model.ID).Logger(),
	}, nil
}

// Model implements llm.Caller.Model.
func (c *Client) Model() llm.Model {
	return c.model
}

// Call implements llm.Caller.Call.
func (c *Client) Call(ctx context.Context, params llm.CallBase, turns []llm.Turn) (*llm.CallResp, error) {
	if err := llm.ValidateConversation(turns); err != nil {
		return nil, llm.NewOtherError("invalid conversation", err)
	}

	req, err := BuildRequest(c.model, params, turns)
	if err != nil {
		return nil, llm.NewOtherError("failed to convert turns", err)
	}

	c.logger.Debug().
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("Sending chat completion request")

	rec := &failedBody{}
	resp, err := c.client.CreateChatCompletion(context.WithValue(ctx, failedBodyKey{}, rec), req)
	if err != nil {
		return nil, convertOpenAIError(err, rec.body)
	}

	callResp, err := FromOpenAIResponse(resp, c.model.ID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("id", callResp.ID).
		Str("finish_reason", string(callResp.FinishReason)).
		Int("tool_calls", len(callResp.Content.ToolCalls())).
		Msg("Received chat completion")
	return callResp, nil
}

// failedBody receives the raw body of a non-2xx response.
type failedBody struct {
	body []byte
}

type failedBodyKey struct{}

// recordingDoer keeps a copy of error response bodies so RequestFailed errors
// can carry the provider's raw text.
type recordingDoer struct {
	next openai.HTTPDoer
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil {
		return nil, err
	}
	rec, ok := req.Context().Value(failedBodyKey{}).(*failedBody)
	if !ok || (resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest) {
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	rec.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// convertOpenAIError converts go-openai errors to llm.Error types.
func convertOpenAIError(err error, body []byte) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		if body == nil {
			body, _ = json.Marshal(apiErr)
		}
		return llm.NewRequestFailedError(apiErr.HTTPStatusCode, string(body), err)
	case errors.As(err, &reqErr):
		if body == nil {
			body = reqErr.Body
		}
		return llm.NewRequestFailedError(reqErr.HTTPStatusCode, string(body), err)
	default:
		return llm.NewAPIError("OpenAI API call failed", err)
	}
}
