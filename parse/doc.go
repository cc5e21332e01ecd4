// Package parse extracts structured answers from model prose.
//
// Three extractors are provided, all stateless and safe for concurrent use:
//
//   - MarkdownCodeBlock returns the body of a fenced code block, chosen by
//     language tag and scanning direction.
//   - Multiclass returns a class label from an "answer: <label>" style line,
//     preferring the last such line.
//   - Tagged and TaggedAll return the text between <key> and </key> tags.
//
// Each reports whether anything was found rather than returning an error:
// a model that did not follow the requested format is an expected outcome.
//
//	resp, _ := llm.SimpleCall(ctx, caller, "Output the result as JSON in a markdown code block.")
//	if body, ok := parse.MarkdownCodeBlock(resp, parse.JSON()); ok {
//		_ = json.Unmarshal([]byte(body), &out)
//	}
package parse
