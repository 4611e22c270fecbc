package gitcli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `commit aaaa1111aaaa1111aaaa1111aaaa1111aaaa1111
Author: Dev One <one@example.com>
Date:   Mon Jan 6 10:00:00 2025 +0000

    Initial import

commit bbbb2222bbbb2222bbbb2222bbbb2222bbbb2222
Author: Dev Two <two@example.com>
Date:   Tue Jan 7 10:00:00 2025 +0000

    Fix NPE in parser

    Closes #42 and mentions #43

commit cccc3333cccc3333cccc3333cccc3333cccc3333
Merge: aaaa111 bbbb222
Author: Dev One <one@example.com>
Date:   Wed Jan 8 10:00:00 2025 +0000

    Merge branch 'fix'
`

func TestParseLog(t *testing.T) {
	commits, err := ParseLog(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, "aaaa1111aaaa1111aaaa1111aaaa1111aaaa1111", commits[0].Hash)
	assert.Equal(t, "Initial import", commits[0].Message)

	assert.Equal(t, "bbbb2222bbbb2222bbbb2222bbbb2222bbbb2222", commits[1].Hash)
	assert.Contains(t, commits[1].Message, "Fix NPE in parser")
	assert.Contains(t, commits[1].Message, "Closes #42")

	// Merge headers are not message lines.
	assert.Equal(t, "Merge branch 'fix'", commits[2].Message)
}

func TestParseLogEmpty(t *testing.T) {
	commits, err := ParseLog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, commits)
}
