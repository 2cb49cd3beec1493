package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "registry.yaml")
}

func TestOpenMissingFileYieldsEmptyRegistry(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)
	assert.Empty(t, reg.Resources())
	assert.True(t, reg.LastSynced().IsZero())
}

func TestOpenCorruptStore(t *testing.T) {
	path := tempStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{invalid yaml: ["), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorruptRegistry)
}

func TestOpenRejectsDuplicateIDs(t *testing.T) {
	path := tempStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
resources:
  - id: model-old
    kind: model
    status: active
  - id: model-old
    kind: model
    status: removed
`), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorruptRegistry)
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	path := tempStore(t)
	require.NoError(t, os.WriteFile(path, []byte("version: 99\nresources: []\n"), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorruptRegistry)
}

func TestSyncAddsRemovesAndKeepsHistory(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)

	result := reg.Sync(map[string]Kind{"model-old": KindModel, "model-new": KindModel})
	assert.ElementsMatch(t, []string{"model-new", "model-old"}, result.Added)
	assert.Empty(t, result.Removed)

	// model-old vanishes from ground truth
	result = reg.Sync(map[string]Kind{"model-new": KindModel})
	assert.Equal(t, []string{"model-old"}, result.Removed)
	assert.Equal(t, []string{"model-new"}, result.Unchanged)

	// Removed, not deleted
	res, err := reg.Lookup("model-old")
	require.NoError(t, err)
	assert.Equal(t, StatusRemoved, res.Status)

	// Coming back reactivates the same record
	result = reg.Sync(map[string]Kind{"model-old": "", "model-new": KindModel})
	assert.Equal(t, []string{"model-old"}, result.Added)
	res, err = reg.Lookup("model-old")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, KindModel, res.Kind)
}

func TestSyncDefaultsKindToModel(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)
	reg.Sync(map[string]Kind{"thing": ""})

	res, err := reg.Lookup("thing")
	require.NoError(t, err)
	assert.Equal(t, KindModel, res.Kind)
}

func TestLookupNotFound(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)

	_, err = reg.Lookup("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndReload(t *testing.T) {
	path := tempStore(t)
	reg, err := Open(path)
	require.NoError(t, err)

	reg.Sync(map[string]Kind{"model-old": KindModel})
	reg.SetSites("model-old", []ReferenceSite{
		{ResourceID: "model-old", File: "config.yaml", Line: 3, Context: "model: model-old", Pattern: "key:model", Severity: SeverityCritical},
	})
	require.NoError(t, reg.Save())

	reloaded, err := Open(path)
	require.NoError(t, err)

	res, err := reloaded.Lookup("model-old")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	assert.False(t, reloaded.LastSynced().IsZero())

	sites := reloaded.Sites("model-old")
	require.Len(t, sites, 1)
	assert.Equal(t, "config.yaml", sites[0].File)
	assert.Equal(t, SeverityCritical, sites[0].Severity)
}

func TestSetSitesReplacesOnlyOwnResource(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)

	reg.SetSites("a", []ReferenceSite{{ResourceID: "a", File: "x", Line: 1}})
	reg.SetSites("b", []ReferenceSite{{ResourceID: "b", File: "y", Line: 1}})
	reg.SetSites("a", []ReferenceSite{{ResourceID: "a", File: "z", Line: 2}})

	assert.Len(t, reg.Sites("b"), 1)
	sites := reg.Sites("a")
	require.Len(t, sites, 1)
	assert.Equal(t, "z", sites[0].File)
}

func TestDeprecate(t *testing.T) {
	reg, err := Open(tempStore(t))
	require.NoError(t, err)
	reg.Sync(map[string]Kind{"model-old": KindModel})

	require.NoError(t, reg.Deprecate("model-old"))
	res, err := reg.Lookup("model-old")
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, res.Status)

	require.ErrorIs(t, reg.Deprecate("ghost"), ErrNotFound)
}

func TestSeverityRankOrdering(t *testing.T) {
	ranked := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
	for i := 0; i < len(ranked)-1; i++ {
		assert.Greater(t, ranked[i].Rank(), ranked[i+1].Rank())
	}
}
