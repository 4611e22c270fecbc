package xref

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output is not trusted to be clean JSON. These patterns strip
// the usual decorations before a parse attempt.
var (
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	objectRegex    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// parseJSON attempts to parse model output with fallback strategies:
// direct parse, code-fence removal, then extraction of the first
// object or array embedded in surrounding prose. It returns false when
// every strategy fails; callers fail closed on that.
func parseJSON[T any](text string) (T, bool) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, false
	}

	if v, err := tryParse[T](trimmed); err == nil {
		return v, true
	}

	withoutFences := strings.TrimSpace(codeFenceRegex.ReplaceAllString(trimmed, "$1"))
	if withoutFences != trimmed {
		if v, err := tryParse[T](withoutFences); err == nil {
			return v, true
		}
	}

	for _, re := range []*regexp.Regexp{objectRegex, arrayRegex} {
		if match := re.FindString(withoutFences); match != "" {
			if v, err := tryParse[T](match); err == nil {
				return v, true
			}
		}
	}

	return zero, false
}

func tryParse[T any](text string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(text), &v)
	return v, err
}
