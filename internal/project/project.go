// Package project defines the static project descriptors the miner
// consumes and the batch-file format they are loaded from.
package project

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// TrackerKind identifies which issue-tracking system a project reports to.
type TrackerKind string

const (
	// TrackerJira is an Atlassian Jira tracker (Apache-hosted or cloud).
	TrackerJira TrackerKind = "jira"

	// TrackerGitHub is the GitHub issue tracker.
	TrackerGitHub TrackerKind = "github"

	// TrackerBugzilla is a Bugzilla instance.
	TrackerBugzilla TrackerKind = "bugzilla"

	// TrackerGoogle is the Google Code archive.
	TrackerGoogle TrackerKind = "google"
)

// Valid reports whether the kind is one of the supported trackers.
func (k TrackerKind) Valid() bool {
	switch k {
	case TrackerJira, TrackerGitHub, TrackerBugzilla, TrackerGoogle:
		return true
	}
	return false
}

// Spec is the immutable per-project descriptor supplied in the batch file.
type Spec struct {
	// ID is the short identifier used for cache and output directories.
	ID string

	// Name is the display name; the bare mirror is cached as <Name>.git.
	Name string

	// RepoURL is the clone URL of the repository.
	RepoURL string

	// Tracker is the issue-tracker kind.
	Tracker TrackerKind

	// TrackerProjectID is the tracker-side project identifier
	// (Jira project key, "owner/repo" for GitHub, Bugzilla product).
	TrackerProjectID string

	// FixPattern is the tracker-dependent fix-detection regex.
	FixPattern string

	// SubPath restricts history and diffs to a subdirectory ("." = whole tree).
	SubPath string

	// TrackerBaseURL overrides the default tracker base URL, if set.
	TrackerBaseURL string
}

// IndexKey returns the shared issue-index cache key for the spec.
// Issue ids are tracker-scoped, so every project pointing at the same
// (tracker, tracker project) pair shares one index.
func (s Spec) IndexKey() string {
	return fmt.Sprintf("%s_%s", s.Tracker, s.TrackerProjectID)
}

// ParseBatchFile reads a tab-separated batch file of project specs.
// Blank lines and lines starting with '#' are ignored. Each record is:
//
//	id  name  repo_url  tracker  tracker_project_id  fix_pattern  [sub_path]  [tracker_base_url]
//
// A missing batch file is a fatal input error for the run.
func ParseBatchFile(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open batch file %s: %w", path, err)
	}
	defer f.Close()
	return ParseBatch(f)
}

// ParseBatch parses batch records from r. Malformed lines are skipped
// with a warning rather than failing the whole batch, matching the
// per-project isolation the miner provides everywhere else.
func ParseBatch(r io.Reader) ([]Spec, error) {
	var specs []Spec
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 6 {
			fmt.Fprintf(os.Stderr, "Skipping malformed batch line %d (expected at least 6 tab-separated fields)\n", lineNo)
			continue
		}

		spec := Spec{
			ID:               strings.TrimSpace(parts[0]),
			Name:             strings.TrimSpace(parts[1]),
			RepoURL:          strings.TrimSpace(parts[2]),
			Tracker:          TrackerKind(strings.TrimSpace(parts[3])),
			TrackerProjectID: strings.TrimSpace(parts[4]),
			FixPattern:       strings.TrimSpace(parts[5]),
			SubPath:          ".",
		}

		if !spec.Tracker.Valid() {
			fmt.Fprintf(os.Stderr, "Skipping batch line %d: unknown tracker kind %q\n", lineNo, parts[3])
			continue
		}

		if len(parts) > 6 {
			if sub := strings.TrimSpace(parts[6]); sub != "" && sub != "." {
				spec.SubPath = sub
			}
		}
		if len(parts) > 7 {
			if base := strings.TrimSpace(parts[7]); base != "" && base != "NA" {
				spec.TrackerBaseURL = base
			}
		}

		specs = append(specs, spec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return specs, nil
}
