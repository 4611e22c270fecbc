package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single external command. Clones and
// log walks of large histories are slow but not unbounded.
const DefaultCommandTimeout = 90 * time.Minute

// Runner executes external version-control commands synchronously.
// Non-zero exits are surfaced immediately and not retried: retrying a
// deterministic command is unlikely to help.
type Runner struct {
	Timeout time.Duration
	Quiet   bool // suppress per-command progress lines (tests)
}

// NewRunner creates a command runner with the default timeout.
func NewRunner() *Runner {
	return &Runner{Timeout: DefaultCommandTimeout}
}

// Run executes the command and returns its combined output. desc is a
// short human-readable label for the progress line.
func (r *Runner) Run(ctx context.Context, desc string, name string, args ...string) (string, error) {
	return r.run(ctx, desc, "", name, args...)
}

// RunToFile executes the command with stdout redirected to outputFile.
// On any failure the partially written file is removed so a rerun
// never mistakes it for a completed artifact.
func (r *Runner) RunToFile(ctx context.Context, desc, outputFile string, name string, args ...string) error {
	_, err := r.run(ctx, desc, outputFile, name, args...)
	return err
}

func (r *Runner) run(ctx context.Context, desc, outputFile, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !r.Quiet {
		fmt.Fprintf(os.Stderr, "%-60s ", desc+"...")
	}

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			r.report(false)
			return "", fmt.Errorf("cannot open output file %s: %w", outputFile, err)
		}
		cmd.Stdout = f
		err = cmd.Run()
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			r.report(false)
			removeIfExists(outputFile)
			return "", commandError(desc, err, stderr.String())
		}
		r.report(true)
		return "", nil
	}

	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		r.report(false)
		return "", commandError(desc, err, stdout.String()+stderr.String())
	}
	r.report(true)
	return stdout.String(), nil
}

func (r *Runner) report(ok bool) {
	if r.Quiet {
		return
	}
	if ok {
		fmt.Fprintln(os.Stderr, "OK")
	} else {
		fmt.Fprintln(os.Stderr, "FAIL")
	}
}

func commandError(desc string, err error, output string) error {
	output = strings.TrimSpace(output)
	if output != "" {
		return fmt.Errorf("%s failed: %w: %s", desc, err, output)
	}
	return fmt.Errorf("%s failed: %w", desc, err)
}
