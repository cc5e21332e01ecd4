package parse

import (
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// MarkdownOptions selects a code block.
type MarkdownOptions struct {
	// FromBack scans blocks from the end of the document.
	FromBack bool
	// Lang is the required language tag. Empty selects untagged blocks only.
	Lang string
}

// JSON selects the last block tagged json.
func JSON() MarkdownOptions {
	return MarkdownOptions{FromBack: true, Lang: "json"}
}

// Python selects the last block tagged python.
func Python() MarkdownOptions {
	return MarkdownOptions{FromBack: true, Lang: "python"}
}

// Untagged selects the last block without a language tag.
func Untagged() MarkdownOptions {
	return MarkdownOptions{FromBack: true}
}

// Leading returns a copy of o that scans from the start of the document.
func (o MarkdownOptions) Leading() MarkdownOptions {
	o.FromBack = false
	return o
}

type codeBlock struct {
	lang string
	body string
}

// MarkdownCodeBlock returns the body of the first code block matching opts,
// without its trailing newline. A block tagged with a different language
// never matches, even when opts.Lang is empty.
func MarkdownCodeBlock(s string, opts MarkdownOptions) (string, bool) {
	blocks := codeBlocks([]byte(s))
	if opts.FromBack {
		slices.Reverse(blocks)
	}
	block, ok := lo.Find(blocks, func(b codeBlock) bool { return b.lang == opts.Lang })
	return block.body, ok
}

// codeBlocks returns every fenced and indented code block in document order.
// Indented blocks carry no language.
func codeBlocks(src []byte) []codeBlock {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []codeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch b := n.(type) {
		case *ast.FencedCodeBlock:
			blocks = append(blocks, codeBlock{lang: string(b.Language(src)), body: blockBody(b.Lines(), src)})
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			blocks = append(blocks, codeBlock{body: blockBody(b.Lines(), src)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

func blockBody(lines *text.Segments, src []byte) string {
	return strings.TrimSuffix(string(lines.Value(src)), "\n")
}
