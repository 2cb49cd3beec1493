package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, files map[string]string) *Manager {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return &Manager{Dir: filepath.Join(root, ".refcast", "backups"), Root: root}
}

func TestSnapshotAndRollbackExactness(t *testing.T) {
	m := newTestManager(t, map[string]string{
		"config.yaml":    "model: model-old\n",
		"docs/readme.md": "uses model-old\n",
	})

	id, err := m.Snapshot([]string{"config.yaml", "docs/readme.md"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Mutate both files
	require.NoError(t, os.WriteFile(filepath.Join(m.Root, "config.yaml"), []byte("model: model-new\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.Root, "docs/readme.md"), []byte("uses model-new\n"), 0o644))

	require.NoError(t, m.Rollback(id))

	got, err := os.ReadFile(filepath.Join(m.Root, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "model: model-old\n", string(got))
	got, err = os.ReadFile(filepath.Join(m.Root, "docs/readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "uses model-old\n", string(got))
}

func TestRollbackIdempotent(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "original\n"})

	id, err := m.Snapshot([]string{"a.txt"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(m.Root, "a.txt"), []byte("mutated\n"), 0o644))

	require.NoError(t, m.Rollback(id))
	// Second rollback is a no-op, not an error
	require.NoError(t, m.Rollback(id))

	got, err := os.ReadFile(filepath.Join(m.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(got))
}

func TestRollbackRestoresDeletedFile(t *testing.T) {
	m := newTestManager(t, map[string]string{"gone.txt": "bring me back\n"})

	id, err := m.Snapshot([]string{"gone.txt"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(m.Root, "gone.txt")))

	require.NoError(t, m.Rollback(id))
	got, err := os.ReadFile(filepath.Join(m.Root, "gone.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bring me back\n", string(got))
}

func TestRollbackPartialRestore(t *testing.T) {
	m := newTestManager(t, map[string]string{
		"ok.txt":      "fine\n",
		"blocked.txt": "cannot restore\n",
	})

	id, err := m.Snapshot([]string{"blocked.txt", "ok.txt"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(m.Root, "ok.txt"), []byte("changed\n"), 0o644))
	// blocked.txt becomes a directory: type change, unrestorable
	require.NoError(t, os.Remove(filepath.Join(m.Root, "blocked.txt")))
	require.NoError(t, os.Mkdir(filepath.Join(m.Root, "blocked.txt"), 0o755))

	err = m.Rollback(id)
	var partial *PartialRestoreError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"blocked.txt"}, partial.Failed)
	assert.Equal(t, id, partial.BackupID)

	// Everything restorable was restored
	got, readErr := os.ReadFile(filepath.Join(m.Root, "ok.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "fine\n", string(got))
}

func TestRollbackUnknownID(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})
	require.ErrorIs(t, m.Rollback("20200101-000000-001"), ErrBackupNotFound)
	require.ErrorIs(t, m.Rollback("../escape"), ErrBackupNotFound)
}

func TestSnapshotIDsNeverCollide(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := m.Snapshot([]string{"a.txt"})
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate backup id %s", id)
		seen[id] = true
	}
}

func TestSnapshotFailsClosedOnMissingFile(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})

	_, err := m.Snapshot([]string{"a.txt", "missing.txt"})
	require.Error(t, err)

	// Nothing half-written remains in the store
	summaries, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})

	first, err := m.Snapshot([]string{"a.txt"})
	require.NoError(t, err)
	second, err := m.Snapshot([]string{"a.txt"})
	require.NoError(t, err)

	summaries, err := m.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, second, summaries[0].ID)
	assert.Equal(t, first, summaries[1].ID)
	assert.Equal(t, 1, summaries[0].Files)
}

func TestPrune(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := m.Snapshot([]string{"a.txt"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	removed, err := m.Prune(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:2], removed)

	summaries, err := m.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestVerifyFlagsBrokenManifest(t *testing.T) {
	m := newTestManager(t, map[string]string{"a.txt": "x"})
	id, err := m.Snapshot([]string{"a.txt"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(m.Dir, id, manifestName)))
	bad := m.Verify()
	assert.Equal(t, []string{id}, bad)
}

func TestPreservesFileMode(t *testing.T) {
	m := newTestManager(t, nil)
	path := filepath.Join(m.Root, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	id, err := m.Snapshot([]string{"run.sh"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.NoError(t, m.Rollback(id))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode()&0o777)
}

func TestErrorsAreErrorsIs(t *testing.T) {
	err := &PartialRestoreError{BackupID: "b", Failed: []string{"x"}}
	var target *PartialRestoreError
	require.True(t, errors.As(error(err), &target))
}
