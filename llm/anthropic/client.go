package anthropic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/miniprompt/llm"
	"github.com/rs/zerolog"
)

// Client implements llm.Caller for Anthropic's messages API.
type Client struct {
	client *anthropic.Client
	model  llm.Model
	logger zerolog.Logger
}

// NewClient creates a new Client bound to model. SDK retries are disabled;
// use llm.WithRetry to opt in. If httpClient is nil, the SDK default is used.
func NewClient(apiKey, baseURL string, model llm.Model, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model.ID == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithMiddleware(recordFailedResponse),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client := anthropic.NewClient(opts...)
	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropicCaller").Str("model", model.ID).Logger(),
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

	req, err := BuildParams(c.model, params, turns)
	if err != nil {
		return nil, llm.NewOtherError("failed to convert turns", err)
	}

	c.logger.Debug().
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("Sending messages request")

	rec := &failedResponse{}
	message, err := c.client.Messages.New(context.WithValue(ctx, failedResponseKey{}, rec), req)
	if err != nil {
		return nil, convertAnthropicError(err, rec)
	}

	callResp, err := FromMessage(message, c.model.ID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("id", callResp.ID).
		Str("finish_reason", string(callResp.FinishReason)).
		Int("tool_calls", len(callResp.Content.ToolCalls())).
		Msg("Received message")
	return callResp, nil
}

// failedResponse receives the status and raw body of a non-2xx response.
type failedResponse struct {
	status int
	body   []byte
}

type failedResponseKey struct{}

// recordFailedResponse is SDK middleware that copies error responses into the
// request's failedResponse, if any. The SDK only surfaces the body when it
// decodes as JSON.
func recordFailedResponse(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}
	rec, ok := req.Context().Value(failedResponseKey{}).(*failedResponse)
	if !ok {
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	rec.status = resp.StatusCode
	rec.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// convertAnthropicError converts SDK errors to llm.Error types.
func convertAnthropicError(err error, rec *failedResponse) error {
	if rec.status != 0 {
		return llm.NewRequestFailedError(rec.status, string(rec.body), err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewRequestFailedError(apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return llm.NewAPIError("Anthropic API call failed", err)
}
