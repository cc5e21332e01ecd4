package parse

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultKey is the line prefix and tag name used when none is configured.
const DefaultKey = "answer"

// MulticlassOptions configures Multiclass.
type MulticlassOptions struct {
	// Key prefixes a candidate line, as in "answer: label". Defaults to DefaultKey.
	Key string
	// Classes is the closed set of allowed labels.
	Classes []string
}

// Multiclass scans lines from last to first for "<key>:<label>" and returns
// the first label it finds, spelled as configured in opts.Classes. Key and
// label compare case-insensitively and ignore surrounding whitespace.
func Multiclass(s string, opts MulticlassOptions) (string, bool) {
	prefix := strings.ToLower(strings.TrimSpace(lo.CoalesceOrEmpty(opts.Key, DefaultKey))) + ":"

	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.ToLower(strings.TrimSpace(lines[i]))
		value, ok := strings.CutPrefix(line, prefix)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if label, found := lo.Find(opts.Classes, func(c string) bool {
			return strings.EqualFold(strings.TrimSpace(c), value)
		}); found {
			return label, true
		}
	}
	return "", false
}
