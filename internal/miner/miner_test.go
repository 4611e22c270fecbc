package miner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bugcorpus/bugminer/internal/project"
	"github.com/bugcorpus/bugminer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runGit runs a git command inside dir, failing the test on error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test User", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test User", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// buildFixtureRepo creates a repository whose history exercises the
// whole pipeline: a plain root commit, a fix commit referencing
// TEST-1, an unrelated side commit, and a merge commit referencing
// TEST-2 that must be excluded for lacking a unique parent.
func buildFixtureRepo(t *testing.T) (repo, root, fix string) {
	t.Helper()
	repo = t.TempDir()
	runGit(t, repo, "init", "-b", "main")

	writeFile := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(repo, name), []byte(content), 0o644))
	}

	writeFile("a.txt", "one\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-m", "Initial import")
	root = runGit(t, repo, "rev-parse", "HEAD")

	writeFile("a.txt", "two\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-m", "TEST-1: fix parser crash")
	fix = runGit(t, repo, "rev-parse", "HEAD")

	runGit(t, repo, "checkout", "-b", "side")
	writeFile("b.txt", "side\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-m", "Side work")
	runGit(t, repo, "checkout", "main")
	runGit(t, repo, "merge", "--no-ff", "-m", "TEST-2: merge side fix", "side")

	return repo, root, fix
}

func testLayout(t *testing.T) store.Layout {
	t.Helper()
	base := t.TempDir()
	return store.Layout{
		CacheRoot:  filepath.Join(base, "cache"),
		OutputRoot: filepath.Join(base, "output"),
	}
}

// seedIssueIndex writes the shared issue index a spec expects, as the
// issue-lister collaborator would have left it.
func seedIssueIndex(t *testing.T, layout store.Layout, spec project.Spec, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(layout.IssueDir(spec), 0o755))
	require.NoError(t, os.WriteFile(layout.IssueFile(spec), []byte(content), 0o644))
}

func newTestMiner(t *testing.T, layout store.Layout, errOut *bytes.Buffer) *Miner {
	t.Helper()
	m, err := New(context.Background(), Config{
		Layout:     layout,
		GitTimeout: time.Minute,
		ErrOut:     errOut,
		Quiet:      true,
	})
	require.NoError(t, err)
	return m
}

func TestMineProjectEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo, root, fix := buildFixtureRepo(t)
	layout := testLayout(t)

	spec := project.Spec{
		ID:               "fixture-1",
		Name:             "fixture",
		RepoURL:          repo,
		Tracker:          project.TrackerJira,
		TrackerProjectID: "TEST",
		FixPattern:       `(TEST-\d+)`,
		SubPath:          ".",
	}
	// Issue URLs are "NA" so no report downloads are attempted.
	seedIssueIndex(t, layout, spec, "TEST-1,NA\nTEST-2,NA\n")

	var errOut bytes.Buffer
	m := newTestMiner(t, layout, &errOut)
	require.NoError(t, m.MineProject(ctx, spec))

	entries, err := store.NewLedger(layout.LedgerFile(spec)).Entries()
	require.NoError(t, err)

	// TEST-1 comes from the fix commit. TEST-2 only appears in the
	// merge commit, which has two parents and is excluded.
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, 1, e.VID)
	assert.Equal(t, "fixture-1", e.ProjectID)
	assert.Equal(t, "TEST-1", e.IssueID)
	assert.Equal(t, root, e.BuggyRevision)
	assert.Equal(t, fix, e.FixedRevision)
	assert.Equal(t, "NA", e.BuggyURL)

	patch, err := os.ReadFile(layout.PatchFile(spec, "TEST-1"))
	require.NoError(t, err)
	assert.Contains(t, string(patch), "-one")
	assert.Contains(t, string(patch), "+two")

	// No report artifact for an "NA" issue URL.
	assert.NoFileExists(t, layout.ReportFile(spec, "TEST-1", ".xml"))
}

func TestMineProjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := buildFixtureRepo(t)
	layout := testLayout(t)

	spec := project.Spec{
		ID:               "fixture-1",
		Name:             "fixture",
		RepoURL:          repo,
		Tracker:          project.TrackerJira,
		TrackerProjectID: "TEST",
		FixPattern:       `(TEST-\d+)`,
		SubPath:          ".",
	}
	seedIssueIndex(t, layout, spec, "TEST-1,NA\n")

	var errOut bytes.Buffer
	m := newTestMiner(t, layout, &errOut)
	require.NoError(t, m.MineProject(ctx, spec))
	require.NoError(t, m.MineProject(ctx, spec))

	entries, err := store.NewLedger(layout.LedgerFile(spec)).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].VID)
}

func TestMineProjectEmptyLedgerIsMemoized(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := buildFixtureRepo(t)
	layout := testLayout(t)

	spec := project.Spec{
		ID:               "fixture-quiet",
		Name:             "fixture",
		RepoURL:          repo,
		Tracker:          project.TrackerJira,
		TrackerProjectID: "QUIET",
		FixPattern:       `(QUIET-\d+)`,
		SubPath:          ".",
	}
	seedIssueIndex(t, layout, spec, "QUIET-1,NA\n")

	var errOut bytes.Buffer
	m := newTestMiner(t, layout, &errOut)
	require.NoError(t, m.MineProject(ctx, spec))

	// Nothing matched, but the ledger header exists so a rerun skips
	// the matching work instead of redoing it.
	assert.True(t, store.FileNonEmpty(layout.LedgerFile(spec)))
	entries, err := store.NewLedger(layout.LedgerFile(spec)).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, m.MineProject(ctx, spec))
}

func TestRunRollsBackFailedProjectAndContinues(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := buildFixtureRepo(t)
	layout := testLayout(t)

	bad := project.Spec{
		ID:               "broken",
		Name:             "broken",
		RepoURL:          filepath.Join(t.TempDir(), "does-not-exist"),
		Tracker:          project.TrackerJira,
		TrackerProjectID: "TEST",
		FixPattern:       `(TEST-\d+)`,
		SubPath:          ".",
	}
	good := project.Spec{
		ID:               "fixture-1",
		Name:             "fixture",
		RepoURL:          repo,
		Tracker:          project.TrackerJira,
		TrackerProjectID: "TEST",
		FixPattern:       `(TEST-\d+)`,
		SubPath:          ".",
	}
	seedIssueIndex(t, layout, good, "TEST-1,NA\n")

	var errOut bytes.Buffer
	m := newTestMiner(t, layout, &errOut)
	require.NoError(t, m.Run(ctx, []project.Spec{bad, good}))

	// The failed project's output tree is gone, its cache dir stays.
	assert.NoDirExists(t, layout.OutputDir(bad))
	assert.DirExists(t, filepath.Join(layout.CacheRoot, bad.ID))
	assert.Contains(t, errOut.String(), "FAILED")
	assert.Contains(t, errOut.String(), "CLONE_REPO")

	// The batch continued past the failure.
	entries, err := store.NewLedger(layout.LedgerFile(good)).Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunStopsOnCancellation(t *testing.T) {
	layout := testLayout(t)
	var errOut bytes.Buffer
	m := newTestMiner(t, layout, &errOut)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx, []project.Spec{{ID: "p", Name: "p", RepoURL: "x",
		Tracker: project.TrackerJira, TrackerProjectID: "T", FixPattern: `(T-\d+)`, SubPath: "."}})
	assert.ErrorIs(t, err, context.Canceled)
}
