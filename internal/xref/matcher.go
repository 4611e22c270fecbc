// Package xref decides which issues a commit actually fixes, as
// opposed to merely mentions. Two interchangeable strategies implement
// the same contract: a deterministic pattern matcher for trackers with
// a structured cross-link convention, and a model-assisted matcher for
// trackers without one.
package xref

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/bugcorpus/bugminer/internal/gitcli"
	"github.com/bugcorpus/bugminer/internal/store"
	"golang.org/x/sync/semaphore"
)

// Candidate is a commit paired with the known issue ids its message
// mentions. Candidates exist only during cross-referencing.
type Candidate struct {
	Hash        string
	Message     string
	RelevantIDs []string
}

// Matcher confirms which of the relevant ids a commit message asserts
// are fixed. The returned set is always a subset of relevantIDs.
type Matcher interface {
	Name() string
	ConfirmFixed(ctx context.Context, message string, relevantIDs []string) ([]string, error)
}

// ExtractCandidates scans commits for issue references using refPattern
// and keeps those whose mentioned ids intersect the issue index. The
// reference token is capture group 1 when the pattern has one, the
// whole match otherwise. Commits mentioning nothing known are dropped
// here, before any matcher runs.
func ExtractCandidates(commits []gitcli.Commit, index store.IssueIndex, refPattern *regexp.Regexp) []Candidate {
	var candidates []Candidate
	for _, c := range commits {
		ids := matchedIDs(refPattern, c.Message, index)
		if len(ids) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Hash:        c.Hash,
			Message:     c.Message,
			RelevantIDs: ids,
		})
	}
	return candidates
}

// matchedIDs returns the sorted, de-duplicated pattern matches of
// message that are known issue ids.
func matchedIDs(re *regexp.Regexp, message string, index store.IssueIndex) []string {
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(message, -1) {
		for _, token := range captureValues(m) {
			if token != "" && index.Has(token) {
				seen[token] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// captureValues returns the capture group values of a submatch, or the
// whole match when the pattern has no groups.
func captureValues(m []string) []string {
	if len(m) > 1 {
		return m[1:]
	}
	return m
}

// Result pairs a candidate with its confirmed fixed ids.
type Result struct {
	Candidate Candidate
	FixedIDs  []string
}

// AdjudicateAll runs the matcher over all candidates on a bounded
// worker pool and returns results in candidate order, independent of
// completion order. A matcher failure for one candidate fails closed
// to an empty fixed-id set for that candidate only.
func AdjudicateAll(ctx context.Context, m Matcher, candidates []Candidate, workers int64) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(candidates))
	sem := semaphore.NewWeighted(workers)

	for i, cand := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("cross-referencing canceled: %w", err)
		}
		go func(i int, cand Candidate) {
			defer sem.Release(1)
			fixed, err := m.ConfirmFixed(ctx, cand.Message, cand.RelevantIDs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  -> %s adjudication failed for %s, treating as no fix: %v\n",
					m.Name(), cand.Hash, err)
				fixed = nil
			}
			results[i] = Result{Candidate: cand, FixedIDs: containment(fixed, cand.RelevantIDs)}
		}(i, cand)
	}

	// Wait for all workers by draining the semaphore.
	if err := sem.Acquire(ctx, workers); err != nil {
		return nil, fmt.Errorf("cross-referencing canceled: %w", err)
	}
	sem.Release(workers)

	return results, nil
}

// containment intersects claimed ids with the relevant set. Anything
// outside the relevant set is discarded, whatever the matcher said.
func containment(claimed, relevant []string) []string {
	allowed := make(map[string]bool, len(relevant))
	for _, id := range relevant {
		allowed[id] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, id := range claimed {
		if allowed[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
