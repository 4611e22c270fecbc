package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestState(t *testing.T) *StateDB {
	t.Helper()
	db, err := OpenStateDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateRecordAndComplete(t *testing.T) {
	db := openTestState(t)
	artifact := filepath.Join(t.TempDir(), "gitlog.txt")
	require.NoError(t, os.WriteFile(artifact, []byte("commit abc\n"), 0o644))

	require.NoError(t, db.Record(artifact))
	assert.True(t, db.Complete(artifact))
}

func TestStateCompleteRejectsMissingAndEmpty(t *testing.T) {
	db := openTestState(t)
	dir := t.TempDir()

	assert.False(t, db.Complete(filepath.Join(dir, "absent.txt")))

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, db.Complete(empty))
}

func TestStateCompleteRejectsSizeMismatch(t *testing.T) {
	db := openTestState(t)
	artifact := filepath.Join(t.TempDir(), "patch.txt")
	require.NoError(t, os.WriteFile(artifact, []byte("full patch contents\n"), 0o644))
	require.NoError(t, db.Record(artifact))

	// Truncate after recording, as a crash mid-rewrite would.
	require.NoError(t, os.WriteFile(artifact, []byte("x"), 0o644))
	assert.False(t, db.Complete(artifact))
}

func TestStateAdoptsUnrecordedArtifact(t *testing.T) {
	db := openTestState(t)
	artifact := filepath.Join(t.TempDir(), "legacy.txt")
	require.NoError(t, os.WriteFile(artifact, []byte("cached by an older run\n"), 0o644))

	// Non-empty but unrecorded artifacts stay valid.
	assert.True(t, db.Complete(artifact))

	// And are recorded on adoption, so later truncation is caught.
	require.NoError(t, os.WriteFile(artifact, []byte("y"), 0o644))
	assert.False(t, db.Complete(artifact))
}

func TestStateForget(t *testing.T) {
	db := openTestState(t)
	artifact := filepath.Join(t.TempDir(), "gitlog.txt")
	require.NoError(t, os.WriteFile(artifact, []byte("data\n"), 0o644))
	require.NoError(t, db.Record(artifact))

	require.NoError(t, db.Forget(artifact))

	// Forgotten but still non-empty: adopted again.
	assert.True(t, db.Complete(artifact))
}
