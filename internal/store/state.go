package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// StateDB records completed artifacts so a pre-existing file is only
// trusted when its size still matches what was recorded at completion
// time. Bare path existence is not enough: a crash can leave a
// zero-byte or truncated file behind.
type StateDB struct {
	db *sql.DB
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	path        TEXT PRIMARY KEY,
	size        INTEGER NOT NULL,
	sha256      TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
`

// OpenStateDB opens (creating if needed) the artifact-state database.
func OpenStateDB(path string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}
	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close releases the database handle.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// Record stores the current size and content hash of path, marking the
// artifact complete.
func (s *StateDB) Record(path string) error {
	size, sum, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("hashing artifact %s: %w", path, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO artifacts (path, size, sha256, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			sha256 = excluded.sha256,
			recorded_at = excluded.recorded_at`,
		path, size, sum, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording artifact %s: %w", path, err)
	}
	return nil
}

// Complete reports whether path is a trusted, completed artifact:
// it must exist non-empty, and when a state record exists its size
// must still match. An unrecorded non-empty file is accepted (caches
// populated by earlier tool versions stay valid) and recorded.
func (s *StateDB) Complete(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}

	var recorded int64
	err = s.db.QueryRow(`SELECT size FROM artifacts WHERE path = ?`, path).Scan(&recorded)
	switch {
	case err == sql.ErrNoRows:
		// Adopt the pre-existing artifact.
		_ = s.Record(path)
		return true
	case err != nil:
		// State lookup failure degrades to the size check above.
		return true
	}
	return recorded == info.Size()
}

// Forget drops the record for path, typically after the artifact was
// deleted for regeneration.
func (s *StateDB) Forget(path string) error {
	_, err := s.db.Exec(`DELETE FROM artifacts WHERE path = ?`, path)
	return err
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}
