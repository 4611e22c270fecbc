package miner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bugcorpus/bugminer/internal/gitcli"
	"github.com/bugcorpus/bugminer/internal/project"
	"github.com/bugcorpus/bugminer/internal/store"
	"github.com/bugcorpus/bugminer/internal/xref"
)

// looseRefPattern pre-filters commits for the semantic matcher: any
// hash-prefixed number is a potential issue reference. Most commits
// reference nothing and are dropped before any model call.
var looseRefPattern = regexp.MustCompile(`#(\d+)`)

func (m *Miner) stageCloneRepo(ctx context.Context, spec project.Spec, _ *store.StateDB) error {
	repoDir := m.layout.RepoDir(spec)
	if store.FileExists(repoDir) {
		fmt.Printf("Repository %s.git already cached.\n", spec.Name)
		return nil
	}
	return m.git.CloneBare(ctx, spec.RepoURL, repoDir, "Cloning "+spec.Name)
}

func (m *Miner) stageFetchIssueIndex(ctx context.Context, spec project.Spec, _ *store.StateDB) error {
	issueFile := m.layout.IssueFile(spec)
	if store.FileNonEmpty(issueFile) {
		fmt.Printf("Shared issues for %s already cached. Skipping download.\n", spec.IndexKey())
		return nil
	}

	if m.lister == "" {
		return fmt.Errorf("issue index %s missing and no lister command configured", issueFile)
	}

	fmt.Printf("Shared issues for %s not found. Downloading...\n", spec.IndexKey())
	args := []string{
		"-g", string(spec.Tracker),
		"-t", spec.TrackerProjectID,
		"-o", m.layout.IssueDir(spec),
		"-f", issueFile,
	}
	if spec.TrackerBaseURL != "" {
		args = append(args, "-u", spec.TrackerBaseURL)
	}
	_, err := m.runner.Run(ctx, "Downloading issues for "+spec.IndexKey(), m.lister, args...)
	return err
}

func (m *Miner) stageCollectLog(ctx context.Context, spec project.Spec, state *store.StateDB) error {
	logFile := m.layout.GitLogFile(spec)
	if state.Complete(logFile) {
		fmt.Printf("Git log for %s already cached.\n", spec.Name)
		return nil
	}

	if err := m.git.WriteLog(ctx, m.layout.RepoDir(spec), spec.SubPath, logFile, "Collecting git log for "+spec.Name); err != nil {
		return err
	}
	return state.Record(logFile)
}

func (m *Miner) stageCrossReference(ctx context.Context, spec project.Spec, state *store.StateDB) error {
	ledger := store.NewLedger(m.layout.LedgerFile(spec))
	if state.Complete(ledger.Path()) {
		fmt.Printf("Ledger %s already exists.\n", ledger.Path())
		return nil
	}

	index, err := m.indexes.Get(spec.IndexKey(), m.layout.IssueFile(spec))
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d known issue ids for pre-filtering.\n", len(index))

	var matcher xref.Matcher
	refPattern := looseRefPattern
	if spec.Tracker == project.TrackerGitHub {
		sm, err := m.semanticMatcher()
		if err != nil {
			return err
		}
		matcher = sm
		fmt.Printf("Using semantic cross-referencing for %s...\n", spec.ID)
	} else {
		pm, err := xref.NewPatternMatcher(spec.FixPattern)
		if err != nil {
			return err
		}
		matcher = pm
		refPattern = pm.Pattern()
		fmt.Printf("Using pattern cross-referencing for %s (%s)...\n", spec.ID, spec.FixPattern)
	}

	logF, err := os.Open(m.layout.GitLogFile(spec))
	if err != nil {
		return fmt.Errorf("cannot open log snapshot: %w", err)
	}
	commits, err := gitcli.ParseLog(logF)
	logF.Close()
	if err != nil {
		return fmt.Errorf("parsing log snapshot: %w", err)
	}

	candidates := xref.ExtractCandidates(commits, index, refPattern)
	fmt.Printf("Found %d candidate commits for %s matching.\n", len(candidates), matcher.Name())

	results, err := xref.AdjudicateAll(ctx, matcher, candidates, m.workers)
	if err != nil {
		return err
	}

	entries := m.collectEntries(ctx, spec, index, results)
	fmt.Printf("Found %d validated bug-fix entries.\n", len(entries))

	if err := ledger.Append(entries); err != nil {
		return err
	}
	// Nothing matched still writes the header, so the stage is
	// memoized and a rerun does not repeat the matching work.
	if err := ledger.EnsureHeader(); err != nil {
		return err
	}
	return state.Record(ledger.Path())
}

// collectEntries turns adjudication results into ledger entries. The
// results arrive in deterministic candidate order, so the appended
// block is stable across runs. Commits without a unique parent are
// dropped: merges and root commits are not usable as fix points.
func (m *Miner) collectEntries(ctx context.Context, spec project.Spec, index store.IssueIndex, results []xref.Result) []store.Entry {
	var entries []store.Entry
	for _, res := range results {
		if len(res.FixedIDs) == 0 {
			continue
		}

		parent, ok, err := m.git.UniqueParent(ctx, m.layout.RepoDir(spec), res.Candidate.Hash)
		if err != nil {
			fmt.Fprintf(m.errOut, "  -> cannot resolve parent of %s, skipping: %v\n", res.Candidate.Hash, err)
			continue
		}
		if !ok {
			continue
		}

		for _, issueID := range res.FixedIDs {
			entries = append(entries, store.Entry{
				ProjectID:     spec.ID,
				BuggyRevision: parent,
				FixedRevision: res.Candidate.Hash,
				IssueID:       issueID,
				IssueURL:      index.URL(issueID),
				BuggyURL:      CommitURL(spec.RepoURL, parent),
				FixedURL:      CommitURL(spec.RepoURL, res.Candidate.Hash),
				CompareURL:    CompareURL(spec.RepoURL, parent, res.Candidate.Hash),
			})
		}
	}
	return entries
}

func (m *Miner) stageMaterializeArtifacts(ctx context.Context, spec project.Spec, state *store.StateDB) error {
	ledger := store.NewLedger(m.layout.LedgerFile(spec))
	entries, err := ledger.Entries()
	if err != nil {
		return err
	}

	fmt.Printf("Generating patches and downloading reports for %d ledger row(s)...\n", len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.materializeReport(ctx, spec, e)
		m.materializePatch(ctx, spec, e, state)
	}
	return nil
}

// materializeReport downloads the raw issue report, and for GitHub API
// payloads the paginated discussion timeline. Download failures are
// logged and skipped: a single unreachable report should not roll back
// the project.
func (m *Miner) materializeReport(ctx context.Context, spec project.Spec, e store.Entry) {
	if e.IssueURL == "" || e.IssueURL == "NA" {
		fmt.Printf("  -> Skipping report for issue %s (missing URL).\n", e.IssueID)
		return
	}

	ext := reportExt(spec.Tracker)
	reportFile := m.layout.ReportFile(spec, e.IssueID, ext)
	if !store.FileExists(reportFile) {
		fmt.Printf("  -> Downloading report for issue %s...\n", e.IssueID)
		if err := m.client.DownloadFile(ctx, e.IssueURL, reportFile, spec.TrackerBaseURL); err != nil {
			fmt.Fprintf(m.errOut, "  -> report download failed for issue %s: %v\n", e.IssueID, err)
			return
		}
	}

	if ext != ".json" {
		return
	}
	timelineFile := m.layout.TimelineFile(spec, e.IssueID)
	if store.FileExists(timelineFile) {
		return
	}
	timelineURL := timelineURLFromReport(reportFile)
	if timelineURL == "" {
		return
	}
	fmt.Printf("  -> Downloading timeline for issue %s...\n", e.IssueID)
	if err := m.client.DownloadFile(ctx, timelineURL, timelineFile, spec.TrackerBaseURL); err != nil {
		fmt.Fprintf(m.errOut, "  -> timeline download failed for issue %s: %v\n", e.IssueID, err)
	}
}

func (m *Miner) materializePatch(ctx context.Context, spec project.Spec, e store.Entry, state *store.StateDB) {
	if e.BuggyRevision == "" || e.FixedRevision == "" {
		fmt.Printf("  -> Skipping patch for issue %s (missing commit hash).\n", e.IssueID)
		return
	}

	patchFile := m.layout.PatchFile(spec, e.IssueID)
	if state.Complete(patchFile) {
		return
	}

	fmt.Printf("  -> Generating patch for issue %s\n", e.IssueID)
	err := m.git.DiffToFile(ctx, m.layout.RepoDir(spec),
		e.BuggyRevision, e.FixedRevision, spec.SubPath, patchFile,
		"Diffing for issue "+e.IssueID)
	if err != nil {
		fmt.Fprintf(m.errOut, "  -> patch generation failed for issue %s: %v\n", e.IssueID, err)
		return
	}

	if !store.FileNonEmpty(patchFile) {
		fmt.Fprintf(m.errOut, "  -> generated patch for issue %s is empty\n", e.IssueID)
		return
	}
	if err := state.Record(patchFile); err != nil {
		fmt.Fprintf(m.errOut, "  -> could not record patch state for issue %s: %v\n", e.IssueID, err)
	}
}

// reportExt chooses the report artifact extension by tracker payload
// type: Jira and Bugzilla serve XML views, the rest serve JSON.
func reportExt(kind project.TrackerKind) string {
	switch kind {
	case project.TrackerJira, project.TrackerBugzilla:
		return ".xml"
	default:
		return ".json"
	}
}

// timelineURLFromReport extracts timeline_url from a GitHub API issue
// payload. Non-GitHub payloads and unparseable files yield "".
func timelineURLFromReport(reportFile string) string {
	data, err := os.ReadFile(reportFile)
	if err != nil {
		return ""
	}
	var payload struct {
		URL         string `json:"url"`
		TimelineURL string `json:"timeline_url"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if !strings.Contains(payload.URL, "api.github.com") {
		return ""
	}
	return payload.TimelineURL
}
