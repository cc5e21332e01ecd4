package parse

import (
	"iter"
	"strings"

	"github.com/samber/lo"
)

// TagOptions configures Tagged and TaggedAll.
type TagOptions struct {
	// Key is the tag name, as in <key>...</key>. Defaults to DefaultKey.
	Key string
}

func (o TagOptions) tags() (open, closing string) {
	key := lo.CoalesceOrEmpty(o.Key, DefaultKey)
	return "<" + key + ">", "</" + key + ">"
}

// Tagged returns the body of the first <key>...</key> span in s and the text
// after its closing tag. An opening bracket that does not start an exact
// <key> tag with a later </key> is skipped one byte at a time.
func Tagged(s string, opts TagOptions) (body, rest string, ok bool) {
	open, closing := opts.tags()
	for {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			return "", "", false
		}
		s = s[i:]
		if after, found := strings.CutPrefix(s, open); found {
			if inner, tail, found := strings.Cut(after, closing); found {
				return inner, tail, true
			}
		}
		s = s[1:]
	}
}

// TaggedAll yields the body of every <key>...</key> span in s, in order.
func TaggedAll(s string, opts TagOptions) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := s
		for {
			body, next, ok := Tagged(rest, opts)
			if !ok || !yield(body) {
				return
			}
			rest = next
		}
	}
}
