// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines the conversation model, the single-call contract and shared
// utilities that allow the rest of the module to work with several completion
// providers (OpenAI, OpenRouter, Anthropic) without being coupled to any provider SDK.
//
// # Core Concepts
//
//  1. Turns: a Turn is a Role (user, system, assistant, tool) plus an ordered list of
//     Messages. A Message is text, a tool call requested by the model, or the result
//     of a tool call. Turn.Validate and ValidateConversation enforce the ordering rules.
//
//  2. Tools: ToolInfo describes a tool (name, description, JSON-Schema parameters)
//     advertised to the model.
//
//  3. Caller: the Caller interface performs exactly one request/response cycle for a
//     bound Model. SimpleCall is the one-prompt, one-answer convenience wrapper.
//     Implementations live in the openai and anthropic subpackages.
//
//  4. Middleware: Middleware adds cross-cutting concerns such as logging without
//     modifying provider implementations. WithRetry is an opt-in decorator; no
//     Caller retries on its own.
//
//  5. Errors: every failure is an *Error with a type (NoCompletions, RequestFailed,
//     API, ToolFailed, Other) and helpers such as IsNoCompletions.
//
//  6. Providers: Model describes a model as reached through one provider, and
//     ProviderRegistry resolves credentials and endpoints into a ClientKey.
//
// Usage Example
//
//	caller, err := client.NewCaller(key, logger)
//	if err != nil {
//	    return err
//	}
//	caller = llm.WrapWithMiddleware(caller, llm.NewLoggingMiddleware(logger))
//
//	answer, err := llm.SimpleCall(ctx, caller, "What is the capital of France?")
//
// # Extension Points
//
// To add a new provider:
//  1. Implement the Caller interface
//  2. Translate between provider wire types and llm package types
//  3. Normalize the provider's finish reasons into FinishReason
//  4. Translate provider errors into *Error values
package llm
