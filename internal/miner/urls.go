package miner

import "strings"

// CommitURL builds a browsable URL for a commit. Only GitHub-hosted
// repositories have a known URL scheme; everything else is "NA".
func CommitURL(repoURL, hash string) string {
	if repoURL == "" || hash == "" {
		return "NA"
	}
	if !strings.Contains(repoURL, "github.com") {
		return "NA"
	}
	return strings.TrimSuffix(repoURL, ".git") + "/tree/" + hash
}

// CompareURL builds a browsable two-revision comparison URL.
func CompareURL(repoURL, buggy, fixed string) string {
	if repoURL == "" || buggy == "" || fixed == "" {
		return "NA"
	}
	if !strings.Contains(repoURL, "github.com") {
		return "NA"
	}
	return strings.TrimSuffix(repoURL, ".git") + "/compare/" + buggy + "..." + fixed
}
