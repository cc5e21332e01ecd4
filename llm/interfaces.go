package llm

import (
	"context"
)

// Caller performs model calls against one bound provider and model.
// Implementations handle provider-specific details internally.
type Caller interface {
	// Model returns the descriptor of the model this caller is wired to.
	Model() Model

	// Call performs exactly one request/response cycle and returns the
	// resulting Assistant turn. It does not retry.
	Call(ctx context.Context, params CallBase, turns []Turn) (*CallResp, error)
}

// SimpleCall prompts a model with a single instruction and returns the text
// of the response.
func SimpleCall(ctx context.Context, c Caller, prompt string) (string, error) {
	return CallText(ctx, c, CallBase{Instructions: prompt}, nil)
}

// CallText performs one call and returns the text of the response. The first
// message of the resulting turn must be text.
func CallText(ctx context.Context, c Caller, params CallBase, turns []Turn) (string, error) {
	resp, err := c.Call(ctx, params, turns)
	if err != nil {
		return "", err
	}
	if len(resp.Content.Content) == 0 || resp.Content.Content[0].Type != MessageTypeText {
		return "", NewOtherError("unexpected: no message content", nil)
	}
	return resp.Content.Content[0].Text, nil
}

// Middleware provides hooks for decorating Caller calls.
type Middleware interface {
	// BeforeCall is called before the call is made. It can replace the
	// parameters or return an error to abort the call.
	BeforeCall(ctx context.Context, params *CallBase, turns []Turn) error

	// AfterResponse is called after a successful response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, params *CallBase, resp *CallResp) (*CallResp, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to use the original error.
	OnError(ctx context.Context, params *CallBase, err error) error
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeCallFunc    func(ctx context.Context, params *CallBase, turns []Turn) error
	AfterResponseFunc func(ctx context.Context, params *CallBase, resp *CallResp) (*CallResp, error)
	OnErrorFunc       func(ctx context.Context, params *CallBase, err error) error
}

// BeforeCall calls the BeforeCallFunc if set.
func (f MiddlewareFunc) BeforeCall(ctx context.Context, params *CallBase, turns []Turn) error {
	if f.BeforeCallFunc != nil {
		return f.BeforeCallFunc(ctx, params, turns)
	}
	return nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, params *CallBase, resp *CallResp) (*CallResp, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, params, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, params *CallBase, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, params, err)
	}
	return err
}

// WrapWithMiddleware wraps a Caller with middleware and returns a new Caller.
func WrapWithMiddleware(caller Caller, middleware ...Middleware) Caller {
	if len(middleware) == 0 {
		return caller
	}
	return &callerWithMiddleware{
		caller:     caller,
		middleware: middleware,
	}
}

// callerWithMiddleware wraps a Caller with middleware.
type callerWithMiddleware struct {
	caller     Caller
	middleware []Middleware
}

// Model implements Caller.Model.
func (c *callerWithMiddleware) Model() Model {
	return c.caller.Model()
}

// Call implements Caller.Call with middleware support.
func (c *callerWithMiddleware) Call(ctx context.Context, params CallBase, turns []Turn) (*CallResp, error) {
	for _, mw := range c.middleware {
		if err := mw.BeforeCall(ctx, &params, turns); err != nil {
			return nil, err
		}
	}

	resp, err := c.caller.Call(ctx, params, turns)
	if err != nil {
		for _, mw := range c.middleware {
			if handled := mw.OnError(ctx, &params, err); handled != nil {
				err = handled
			}
		}
		return nil, err
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		resp, err = c.middleware[i].AfterResponse(ctx, &params, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Ensure callerWithMiddleware implements Caller
var _ Caller = (*callerWithMiddleware)(nil)
