package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, lockName))
	require.NoError(t, err)

	require.NoError(t, l.Release())
	_, err = os.Stat(filepath.Join(dir, lockName))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()

	// Current test process holds the lock and is definitely alive
	l, err := Acquire(dir)
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	_, err = Acquire(dir)
	require.ErrorIs(t, err, ErrLocked)
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	dir := t.TempDir()

	// A pid that cannot belong to a live process
	stale := fmt.Sprintf("%d now\n", 1<<22+12345)
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockName), []byte(stale), 0o644))

	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquireReplacesGarbageLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockName), []byte("not-a-pid\n"), 0o644))

	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".refcast")
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
