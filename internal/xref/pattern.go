package xref

import (
	"context"
	"fmt"
	"regexp"
)

// PatternMatcher confirms fixes with the project's fix-detection
// regex. It is purely local and deterministic: the same message and
// relevant set always yield the same result.
type PatternMatcher struct {
	re *regexp.Regexp
}

// NewPatternMatcher compiles the project's fix pattern.
func NewPatternMatcher(fixPattern string) (*PatternMatcher, error) {
	re, err := regexp.Compile(fixPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid fix pattern %q: %w", fixPattern, err)
	}
	return &PatternMatcher{re: re}, nil
}

// Name implements Matcher.
func (p *PatternMatcher) Name() string { return "pattern" }

// Pattern returns the compiled fix regex, which doubles as the
// reference pattern for candidate extraction.
func (p *PatternMatcher) Pattern() *regexp.Regexp { return p.re }

// ConfirmFixed applies the fix pattern to the message and accepts
// every capture value that is in the relevant set.
func (p *PatternMatcher) ConfirmFixed(_ context.Context, message string, relevantIDs []string) ([]string, error) {
	allowed := make(map[string]bool, len(relevantIDs))
	for _, id := range relevantIDs {
		allowed[id] = true
	}

	var fixed []string
	seen := make(map[string]bool)
	for _, m := range p.re.FindAllStringSubmatch(message, -1) {
		for _, token := range captureValues(m) {
			if token != "" && allowed[token] && !seen[token] {
				seen[token] = true
				fixed = append(fixed, token)
			}
		}
	}
	return fixed, nil
}
