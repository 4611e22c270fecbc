// Package gitcli drives the git CLI for the mining pipeline: bare
// mirror clones, chronological log snapshots, parent resolution, and
// sub-path restricted diffs.
package gitcli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bugcorpus/bugminer/internal/transport"
)

// Git runs repository operations through the git CLI.
type Git struct {
	gitPath string
	runner  *transport.Runner
}

// New creates a Git instance and verifies git is available.
func New(ctx context.Context, runner *transport.Runner) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	if runner == nil {
		runner = transport.NewRunner()
	}
	return &Git{gitPath: gitPath, runner: runner}, nil
}

// Version returns the version reported by the git binary, e.g. "2.39.2".
func (g *Git) Version(ctx context.Context) (string, error) {
	out, err := g.runner.Run(ctx, "Checking git version", g.gitPath, "version")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected git version output: %q", out)
	}
	return fields[2], nil
}

// CloneBare clones repoURL as a bare mirror into dest.
func (g *Git) CloneBare(ctx context.Context, repoURL, dest, desc string) error {
	_, err := g.runner.Run(ctx, desc, g.gitPath, "clone", "--bare", repoURL, dest)
	return err
}

// WriteLog writes the chronological (oldest-first) commit log of the
// bare repository at gitDir, restricted to subPath, into dest.
func (g *Git) WriteLog(ctx context.Context, gitDir, subPath, dest, desc string) error {
	args := []string{"--git-dir=" + gitDir, "log", "--reverse"}
	args = append(args, pathspec(subPath)...)
	return g.runner.RunToFile(ctx, desc, dest, g.gitPath, args...)
}

// UniqueParent resolves the single parent of a commit. The second
// return value is false for root commits and merges, which cannot
// serve as fix points.
func (g *Git) UniqueParent(ctx context.Context, gitDir, hash string) (string, bool, error) {
	out, err := g.runner.Run(ctx, "Resolving parent of "+shortHash(hash),
		g.gitPath, "--git-dir="+gitDir, "rev-list", "--parents", "-n", "1", hash)
	if err != nil {
		return "", false, err
	}

	parts := strings.Fields(out)
	// rev-list prints "<hash> <parent>..." on one line.
	if len(parts) != 2 {
		return "", false, nil
	}
	return parts[1], true, nil
}

// DiffToFile writes the unified diff between two revisions, restricted
// to subPath, into dest. The partial file is removed on failure.
func (g *Git) DiffToFile(ctx context.Context, gitDir, buggy, fixed, subPath, dest, desc string) error {
	args := []string{"--git-dir=" + gitDir, "diff", buggy, fixed}
	args = append(args, pathspec(subPath)...)
	return g.runner.RunToFile(ctx, desc, dest, g.gitPath, args...)
}

// pathspec translates a project sub-path into git pathspec arguments.
// The repository root means no restriction at all; bare repositories
// have no working tree to resolve "." against.
func pathspec(subPath string) []string {
	if subPath == "" || subPath == "." {
		return nil
	}
	return []string{"--", subPath}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
