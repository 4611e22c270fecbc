package gitcli

import (
	"bufio"
	"io"
	"strings"
)

// Commit is one commit parsed from a log snapshot: hash plus the full
// message text. Commits are recomputed from the cached log file and
// never persisted on their own.
type Commit struct {
	Hash    string
	Message string
}

// ParseLog parses default-format `git log` output into commits, in the
// order they appear. Message lines are the four-space indented lines;
// headers (Author, Date, Merge) are skipped.
func ParseLog(r io.Reader) ([]Commit, error) {
	var commits []Commit
	var current string
	var messageLines []string

	flush := func() {
		if current != "" {
			commits = append(commits, Commit{
				Hash:    current,
				Message: strings.Join(messageLines, "\n"),
			})
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "commit "):
			flush()
			fields := strings.Fields(line)
			current = fields[1]
			messageLines = messageLines[:0]
		case current != "" && strings.HasPrefix(line, "    "):
			messageLines = append(messageLines, strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	flush()
	return commits, nil
}
