// Package store is the filesystem-backed cache and ledger layer.
//
// Three cache tiers live under the cache root: the bare repository
// mirror and commit-log snapshot are keyed by project id, and the
// issue index is keyed by (tracker kind, tracker project id) so that
// every project reporting to the same tracker project shares one
// index. Project outputs (ledger, patches, reports) live under the
// output root and are rolled back wholesale when a project fails;
// cache tiers never are.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bugcorpus/bugminer/internal/project"
)

// LedgerFileName is the per-project ledger file.
const LedgerFileName = "active-bugs.csv"

// Layout computes the on-disk location of every cache tier and output
// artifact from the two roots.
type Layout struct {
	CacheRoot  string
	OutputRoot string
}

// RepoDir returns the bare mirror path for a project.
func (l Layout) RepoDir(s project.Spec) string {
	return filepath.Join(l.CacheRoot, s.ID, s.Name+".git")
}

// GitLogFile returns the commit-log snapshot path for a project.
func (l Layout) GitLogFile(s project.Spec) string {
	return filepath.Join(l.CacheRoot, s.ID, "gitlog.txt")
}

// IssueDir returns the shared issue-index directory for a tracker pair.
func (l Layout) IssueDir(s project.Spec) string {
	return filepath.Join(l.CacheRoot, "issues", s.IndexKey())
}

// IssueFile returns the shared issue-index file for a tracker pair.
func (l Layout) IssueFile(s project.Spec) string {
	return filepath.Join(l.IssueDir(s), "issues.txt")
}

// OutputDir returns the per-project output tree root.
func (l Layout) OutputDir(s project.Spec) string {
	return filepath.Join(l.OutputRoot, s.ID)
}

// LedgerFile returns the per-project ledger path.
func (l Layout) LedgerFile(s project.Spec) string {
	return filepath.Join(l.OutputDir(s), LedgerFileName)
}

// PatchesDir returns the per-project patch artifact directory.
func (l Layout) PatchesDir(s project.Spec) string {
	return filepath.Join(l.OutputDir(s), "patches")
}

// PatchFile returns the patch artifact path for one ledger entry.
func (l Layout) PatchFile(s project.Spec, issueID string) string {
	return filepath.Join(l.PatchesDir(s), issueID+".src.patch")
}

// ReportsDir returns the per-project report artifact directory.
func (l Layout) ReportsDir(s project.Spec) string {
	return filepath.Join(l.OutputDir(s), "reports")
}

// ReportFile returns the report artifact path for an issue. ext
// includes the dot (".json" or ".xml").
func (l Layout) ReportFile(s project.Spec, issueID, ext string) string {
	return filepath.Join(l.ReportsDir(s), issueID+ext)
}

// TimelineFile returns the discussion-timeline artifact path.
func (l Layout) TimelineFile(s project.Spec, issueID string) string {
	return filepath.Join(l.ReportsDir(s), issueID+".timeline.json")
}

// StateFile returns the per-project artifact-state database path. It
// lives in the cache tier so output rollback does not erase it.
func (l Layout) StateFile(s project.Spec) string {
	return filepath.Join(l.CacheRoot, s.ID, "state.db")
}

// EnsureProjectDirs creates the cache and output directories a project
// needs before any stage runs.
func (l Layout) EnsureProjectDirs(s project.Spec) error {
	for _, dir := range []string{
		filepath.Join(l.CacheRoot, s.ID),
		l.IssueDir(s),
		l.PatchesDir(s),
		l.ReportsDir(s),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// FileNonEmpty reports whether path exists with non-zero size. A
// zero-byte file is treated as absent so truncated artifacts are
// regenerated instead of silently accepted.
func FileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
