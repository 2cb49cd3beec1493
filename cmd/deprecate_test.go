package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcast/internal/registry"
	"refcast/pkg/exitcode"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	registerSubcommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDeprecateCommand(t *testing.T) {
	root := t.TempDir()
	stateDir := seedRegistry(t, root, map[string]registry.Kind{"model-old": ""})

	out, err := runCommand(t, "deprecate", "model-old", "--corpus", root)
	require.NoError(t, err)
	assert.Contains(t, out, "model-old marked deprecated")

	after, err := registry.Open(filepath.Join(stateDir, "registry.yaml"))
	require.NoError(t, err)
	res, err := after.Lookup("model-old")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusDeprecated, res.Status)
}

func TestDeprecateUnknownResource(t *testing.T) {
	root := t.TempDir()
	seedRegistry(t, root, map[string]registry.Kind{"model-old": ""})

	_, err := runCommand(t, "deprecate", "no-such-id", "--corpus", root)
	var coded *exitcode.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, exitcode.UserError, coded.Code)
}

func TestDeprecateReleasesLock(t *testing.T) {
	root := t.TempDir()
	seedRegistry(t, root, map[string]registry.Kind{"model-old": ""})

	_, err := runCommand(t, "deprecate", "model-old", "--corpus", root)
	require.NoError(t, err)

	// A second mutating run acquires the lock cleanly
	_, err = runCommand(t, "deprecate", "model-old", "--corpus", root)
	require.NoError(t, err)
}
