package store

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// IssueIndex maps issue id to its canonical URL for one
// (tracker kind, tracker project id) pair.
type IssueIndex map[string]string

// Has reports whether id is a known issue.
func (ix IssueIndex) Has(id string) bool {
	_, ok := ix[id]
	return ok
}

// URL returns the canonical URL for id, or "NA" when unknown.
func (ix IssueIndex) URL(id string) string {
	if url, ok := ix[id]; ok {
		return url
	}
	return "NA"
}

// LoadIssueIndex reads a newline-delimited "issue_id,issue_url" file.
// Lines without a comma are skipped.
func LoadIssueIndex(path string) (IssueIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open issue index %s: %w", path, err)
	}
	defer f.Close()

	index := make(IssueIndex)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		id, url, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		index[id] = strings.TrimSpace(url)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading issue index %s: %w", path, err)
	}
	return index, nil
}

// IndexCache is a read-through cache of shared issue indexes. The
// batch is mined sequentially, so one index load per shared key per
// run suffices and no locking is needed.
type IndexCache struct {
	loaded map[string]IssueIndex
}

// NewIndexCache creates an empty index cache.
func NewIndexCache() *IndexCache {
	return &IndexCache{loaded: make(map[string]IssueIndex)}
}

// Get returns the index stored at path, loading it from disk at most
// once per key.
func (c *IndexCache) Get(key, path string) (IssueIndex, error) {
	if ix, ok := c.loaded[key]; ok {
		return ix, nil
	}
	ix, err := LoadIssueIndex(path)
	if err != nil {
		return nil, err
	}
	c.loaded[key] = ix
	return ix, nil
}
