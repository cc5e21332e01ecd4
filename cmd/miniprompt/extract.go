package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aschepis/backscratcher/miniprompt/parse"
	"github.com/samber/lo"
)

// extractor turns the model's answer into the lines printed on stdout.
type extractor func(answer string) ([]string, error)

func newExtractor(kind, key, classes string, leading bool) (extractor, error) {
	switch kind {
	case "":
		return func(answer string) ([]string, error) {
			return []string{answer}, nil
		}, nil
	case "json":
		return codeBlock(withDirection(parse.JSON(), leading)), nil
	case "python":
		return codeBlock(withDirection(parse.Python(), leading)), nil
	case "code":
		opts := parse.Untagged()
		opts.Lang = key
		return codeBlock(withDirection(opts, leading)), nil
	case "tag":
		opts := parse.TagOptions{Key: key}
		return func(answer string) ([]string, error) {
			spans := slices.Collect(parse.TaggedAll(answer, opts))
			if len(spans) == 0 {
				return nil, errNoMatch
			}
			return spans, nil
		}, nil
	case "class":
		labels := splitClasses(classes)
		if len(labels) == 0 {
			return nil, fmt.Errorf("-extract class requires -classes")
		}
		opts := parse.MulticlassOptions{Key: key, Classes: labels}
		return func(answer string) ([]string, error) {
			label, ok := parse.Multiclass(answer, opts)
			if !ok {
				return nil, errNoMatch
			}
			return []string{label}, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown -extract %q (want json, python, code, tag or class)", kind)
	}
}

func withDirection(opts parse.MarkdownOptions, leading bool) parse.MarkdownOptions {
	if leading {
		return opts.Leading()
	}
	return opts
}

func codeBlock(opts parse.MarkdownOptions) extractor {
	return func(answer string) ([]string, error) {
		block, ok := parse.MarkdownCodeBlock(answer, opts)
		if !ok {
			return nil, errNoMatch
		}
		return []string{block}, nil
	}
}

func splitClasses(classes string) []string {
	return lo.Compact(lo.Map(strings.Split(classes, ","), func(c string, _ int) string {
		return strings.TrimSpace(c)
	}))
}
