package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ledgerHeader is the fixed column set of the ledger file.
var ledgerHeader = []string{
	"vid", "project_id", "buggy_revision", "fixed_revision",
	"issue_id", "issue_url", "buggy_commit_url", "fixed_commit_url", "compare_url",
}

// ErrLedgerHeader reports a ledger file whose header does not match
// the expected column set.
var ErrLedgerHeader = errors.New("malformed ledger header")

// Entry is one confirmed bug-fix row of the ledger.
type Entry struct {
	VID           int
	ProjectID     string
	BuggyRevision string
	FixedRevision string
	IssueID       string
	IssueURL      string
	BuggyURL      string
	FixedURL      string
	CompareURL    string
}

// Ledger is the append-only per-project table of bug-fix entries.
// Existing rows are never rewritten; appends assign strictly
// increasing vids continuing from the last row.
type Ledger struct {
	path string
}

// NewLedger returns a ledger handle for path. Nothing is created
// until the first append.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Entries reads every row of the ledger. A missing file yields an
// empty slice. Rows that fail to parse are skipped, not fatal: one bad
// row should not lose the rest of the ledger.
func (l *Ledger) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger header: %w", err)
	}
	if len(header) < len(ledgerHeader) || header[0] != ledgerHeader[0] {
		return nil, fmt.Errorf("%w in %s", ErrLedgerHeader, l.path)
	}

	var entries []Entry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger row: %w", err)
		}
		if len(row) < len(ledgerHeader) {
			continue
		}
		vid, convErr := strconv.Atoi(row[0])
		if convErr != nil {
			continue
		}
		entries = append(entries, Entry{
			VID:           vid,
			ProjectID:     row[1],
			BuggyRevision: row[2],
			FixedRevision: row[3],
			IssueID:       row[4],
			IssueURL:      row[5],
			BuggyURL:      row[6],
			FixedURL:      row[7],
			CompareURL:    row[8],
		})
	}
	return entries, nil
}

// NextVID computes the vid the next appended row will receive: one
// past the last row, or 1 for an absent or header-only ledger.
func (l *Ledger) NextVID() (int, error) {
	entries, err := l.Entries()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 1, nil
	}
	return entries[len(entries)-1].VID + 1, nil
}

// EnsureHeader creates the ledger file with its header row when the
// file is absent or empty. Existing content is left untouched.
func (l *Ledger) EnsureHeader() error {
	if FileNonEmpty(l.path) {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create ledger %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ledgerHeader); err != nil {
		return fmt.Errorf("writing ledger header: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Append writes a contiguous block of entries, assigning vids starting
// at NextVID. The header is written first when the file is new or
// empty. VID fields on the input are ignored.
func (l *Ledger) Append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	nextVID, err := l.NextVID()
	if err != nil {
		return err
	}
	writeHeader := !FileNonEmpty(l.path)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open ledger %s for append: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(ledgerHeader); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
	}

	for i, e := range entries {
		row := []string{
			strconv.Itoa(nextVID + i),
			e.ProjectID, e.BuggyRevision, e.FixedRevision,
			e.IssueID, e.IssueURL, e.BuggyURL, e.FixedURL, e.CompareURL,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing ledger row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing ledger: %w", err)
	}
	return nil
}
