package xref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		message  string
		relevant []string
		want     []string
	}{
		{
			name:     "jira key in message",
			pattern:  `(LANG-\d+)`,
			message:  "LANG-1234: fix StringUtils overflow",
			relevant: []string{"LANG-1234"},
			want:     []string{"LANG-1234"},
		},
		{
			name:     "capture not in relevant set is dropped",
			pattern:  `(LANG-\d+)`,
			message:  "LANG-1234 and LANG-9999",
			relevant: []string{"LANG-1234"},
			want:     []string{"LANG-1234"},
		},
		{
			name:     "no matches",
			pattern:  `(LANG-\d+)`,
			message:  "Refactor build scripts",
			relevant: []string{"LANG-1234"},
			want:     nil,
		},
		{
			name:     "multiple distinct ids, duplicates collapsed",
			pattern:  `(LANG-\d+)`,
			message:  "LANG-1 LANG-2 LANG-1",
			relevant: []string{"LANG-1", "LANG-2"},
			want:     []string{"LANG-1", "LANG-2"},
		},
		{
			name:     "pattern without groups uses whole match",
			pattern:  `BUG\d+`,
			message:  "fixed BUG77 today",
			relevant: []string{"BUG77"},
			want:     []string{"BUG77"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewPatternMatcher(tt.pattern)
			require.NoError(t, err)

			got, err := pm.ConfirmFixed(context.Background(), tt.message, tt.relevant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternMatcherIsDeterministic(t *testing.T) {
	pm, err := NewPatternMatcher(`(LANG-\d+)`)
	require.NoError(t, err)

	msg := "LANG-3 then LANG-1 then LANG-2"
	relevant := []string{"LANG-1", "LANG-2", "LANG-3"}

	first, err := pm.ConfirmFixed(context.Background(), msg, relevant)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := pm.ConfirmFixed(context.Background(), msg, relevant)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNewPatternMatcherInvalidRegex(t *testing.T) {
	_, err := NewPatternMatcher(`(unclosed`)
	assert.Error(t, err)
}
