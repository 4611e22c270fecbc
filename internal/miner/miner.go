// Package miner is the per-project orchestration state machine. Each
// project runs a fixed sequence of idempotent stages; every stage
// checks for its completed output artifact first, so an interrupted
// run resumes cleanly. A failed project's output tree is rolled back
// and the batch moves on; shared caches are never rolled back.
package miner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bugcorpus/bugminer/internal/gitcli"
	"github.com/bugcorpus/bugminer/internal/project"
	"github.com/bugcorpus/bugminer/internal/store"
	"github.com/bugcorpus/bugminer/internal/transport"
	"github.com/bugcorpus/bugminer/internal/xref"
	"github.com/google/uuid"
)

// Stage identifies a step of the per-project pipeline.
type Stage int

const (
	StageCloneRepo Stage = iota
	StageFetchIssueIndex
	StageCollectLog
	StageCrossReference
	StageMaterializeArtifacts
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageCloneRepo:
		return "CLONE_REPO"
	case StageFetchIssueIndex:
		return "FETCH_ISSUE_INDEX"
	case StageCollectLog:
		return "COLLECT_LOG"
	case StageCrossReference:
		return "CROSS_REFERENCE"
	case StageMaterializeArtifacts:
		return "MATERIALIZE_ARTIFACTS"
	case StageDone:
		return "DONE"
	case StageFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config holds miner construction options.
type Config struct {
	Layout store.Layout

	// Workers bounds concurrent adjudication calls (default: 5).
	Workers int64

	// Model overrides the semantic matcher's model.
	Model string

	// RequestInterval paces adjudication calls.
	RequestInterval time.Duration

	// GitTimeout bounds a single git invocation.
	GitTimeout time.Duration

	// ListerCommand is the issue-lister collaborator executable; empty
	// means a missing issue index fails the project.
	ListerCommand string

	// ErrOut receives per-project failure reports (default: stderr).
	// Wire an io.MultiWriter here to tee failures into a run log.
	ErrOut io.Writer

	// Retry overrides the download retry policy.
	Retry transport.RetryConfig

	// Quiet suppresses per-command progress lines (tests).
	Quiet bool
}

// Miner mines a batch of projects sequentially.
type Miner struct {
	layout   store.Layout
	git      *gitcli.Git
	client   *transport.Client
	runner   *transport.Runner
	indexes  *store.IndexCache
	workers  int64
	model    string
	interval time.Duration
	lister   string
	errOut   io.Writer
	runID    string

	// semantic is created lazily: a batch with no GitHub-tracked
	// project never needs a model credential.
	semantic *xref.SemanticMatcher
}

// New creates a miner and verifies git is available.
func New(ctx context.Context, cfg Config) (*Miner, error) {
	if cfg.Layout.CacheRoot == "" || cfg.Layout.OutputRoot == "" {
		return nil, fmt.Errorf("cache and output roots are required")
	}

	runner := transport.NewRunner()
	if cfg.GitTimeout > 0 {
		runner.Timeout = cfg.GitTimeout
	}
	runner.Quiet = cfg.Quiet

	git, err := gitcli.New(ctx, runner)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	errOut := cfg.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}

	return &Miner{
		layout:   cfg.Layout,
		git:      git,
		client:   transport.NewClient(cfg.Retry),
		runner:   runner,
		indexes:  store.NewIndexCache(),
		workers:  workers,
		model:    cfg.Model,
		interval: cfg.RequestInterval,
		lister:   cfg.ListerCommand,
		errOut:   errOut,
		runID:    uuid.NewString(),
	}, nil
}

// RunID identifies this run in logs, so resumed runs are
// distinguishable in a shared error log.
func (m *Miner) RunID() string { return m.runID }

// Run mines every project in the batch, strictly sequentially. A
// project failure rolls back that project's output tree and the batch
// continues; Run only returns an error on cancellation.
func (m *Miner) Run(ctx context.Context, specs []project.Spec) error {
	fmt.Fprintf(m.errOut, "Mining run %s: %d project(s)\n", m.runID, len(specs))

	for _, spec := range specs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := m.MineProject(ctx, spec); err != nil {
			fmt.Fprintf(m.errOut, "--- Project %s FAILED (%v). Rolling back output directory. ---\n", spec.ID, err)
			m.rollback(spec)
			continue
		}
		fmt.Printf("Finished processing project %s.\n\n", spec.ID)
	}

	fmt.Println("All projects processed.")
	return nil
}

// MineProject runs the stage sequence for one project.
func (m *Miner) MineProject(ctx context.Context, spec project.Spec) error {
	fmt.Println("############################################################")
	fmt.Printf("Processing project: %s (%s)\n", spec.ID, spec.Name)
	fmt.Println("############################################################")

	if err := m.layout.EnsureProjectDirs(spec); err != nil {
		return fmt.Errorf("%s: %w", StageFailed, err)
	}

	state, err := store.OpenStateDB(m.layout.StateFile(spec))
	if err != nil {
		return fmt.Errorf("%s: %w", StageFailed, err)
	}
	defer state.Close()

	stages := []struct {
		stage Stage
		run   func(context.Context, project.Spec, *store.StateDB) error
	}{
		{StageCloneRepo, m.stageCloneRepo},
		{StageFetchIssueIndex, m.stageFetchIssueIndex},
		{StageCollectLog, m.stageCollectLog},
		{StageCrossReference, m.stageCrossReference},
		{StageMaterializeArtifacts, m.stageMaterializeArtifacts},
	}

	for _, s := range stages {
		if err := s.run(ctx, spec, state); err != nil {
			return fmt.Errorf("%s: %w", s.stage, err)
		}
	}
	return nil
}

// rollback removes the project's output tree so a retried run starts
// clean. Cache tiers stay: they are cheap to reuse across retries.
func (m *Miner) rollback(spec project.Spec) {
	dir := m.layout.OutputDir(spec)
	if !store.FileExists(dir) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		fmt.Fprintf(m.errOut, "  -> could not remove %s: %v\n", dir, err)
		return
	}
	fmt.Fprintf(m.errOut, "  -> removed %s\n", dir)
}

// semanticMatcher lazily constructs the model-assisted matcher. The
// missing-credential error surfaces as a project failure for the
// first project that needs it.
func (m *Miner) semanticMatcher() (*xref.SemanticMatcher, error) {
	if m.semantic != nil {
		return m.semantic, nil
	}
	sm, err := xref.NewSemanticMatcher(xref.SemanticConfig{
		Model:           m.model,
		RequestInterval: m.interval,
	})
	if err != nil {
		return nil, err
	}
	m.semantic = sm
	return sm, nil
}
