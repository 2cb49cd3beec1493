// Package registry keeps the durable mapping of resource ids to metadata and
// cached reference sites, reconciled against a ground-truth enumerator.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"refcast/pkg/logger"
)

var (
	// ErrCorruptRegistry means the persisted store is unreadable or malformed.
	ErrCorruptRegistry = errors.New("registry store is corrupt")
	// ErrNotFound means no resource with the requested id is registered.
	ErrNotFound = errors.New("resource not found")
)

// storeFile is the on-disk YAML representation.
type storeFile struct {
	Version    int             `yaml:"version"`
	LastSynced string          `yaml:"last_synced,omitempty"`
	Resources  []Resource      `yaml:"resources"`
	Sites      []ReferenceSite `yaml:"sites,omitempty"`
}

const storeVersion = 1

// Registry is the in-memory view of the store, created by Open and written
// back explicitly via Save.
type Registry struct {
	path       string
	resources  map[string]Resource
	sites      []ReferenceSite
	lastSynced time.Time
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// Open loads the registry at path. A missing file yields an empty registry;
// a present but malformed file fails with ErrCorruptRegistry.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:      path,
		resources: make(map[string]Resource),
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path derives from the state dir
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptRegistry, err)
	}

	var sf storeFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRegistry, err)
	}
	if sf.Version != storeVersion {
		return nil, fmt.Errorf("%w: unsupported store version %d", ErrCorruptRegistry, sf.Version)
	}
	for _, res := range sf.Resources {
		if res.ID == "" {
			return nil, fmt.Errorf("%w: resource with empty id", ErrCorruptRegistry)
		}
		if _, dup := r.resources[res.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate resource id %q", ErrCorruptRegistry, res.ID)
		}
		r.resources[res.ID] = res
	}
	r.sites = sf.Sites
	if sf.LastSynced != "" {
		t, err := time.Parse(time.RFC3339, sf.LastSynced)
		if err != nil {
			return nil, fmt.Errorf("%w: bad last_synced timestamp", ErrCorruptRegistry)
		}
		r.lastSynced = t
	}
	return r, nil
}

// Save writes the registry back to disk atomically (temp file + rename).
func (r *Registry) Save() error {
	sf := storeFile{Version: storeVersion, Resources: r.sortedResources(), Sites: r.sites}
	if !r.lastSynced.IsZero() {
		sf.LastSynced = r.lastSynced.UTC().Format(time.RFC3339)
	}
	data, err := yaml.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { // #nosec G306 -- registry is not secret
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}

// Lookup returns the resource registered under id.
func (r *Registry) Lookup(id string) (Resource, error) {
	res, ok := r.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return res, nil
}

// Resources returns every registered resource sorted by id.
func (r *Registry) Resources() []Resource {
	return r.sortedResources()
}

// Sync reconciles the registry against ground truth. Ids absent from ground
// truth are marked removed, never deleted; unseen ids are added as active.
// Ground-truth entries may carry a kind; empty defaults to model.
func (r *Registry) Sync(groundTruth map[string]Kind) SyncResult {
	now := time.Now().UTC().Format(time.RFC3339)
	var result SyncResult

	for id, kind := range groundTruth {
		if existing, ok := r.resources[id]; ok {
			if existing.Status == StatusRemoved {
				// Resource came back; reactivate rather than duplicate
				existing.Status = StatusActive
				existing.UpdatedAt = now
				r.resources[id] = existing
				result.Added = append(result.Added, id)
			} else {
				result.Unchanged = append(result.Unchanged, id)
			}
			continue
		}
		if kind == "" {
			kind = KindModel
		}
		r.resources[id] = Resource{
			ID:        id,
			Kind:      kind,
			Status:    StatusActive,
			FirstSeen: now,
			UpdatedAt: now,
		}
		result.Added = append(result.Added, id)
	}

	for id, res := range r.resources {
		if _, present := groundTruth[id]; present {
			continue
		}
		if res.Status != StatusRemoved {
			res.Status = StatusRemoved
			res.UpdatedAt = now
			r.resources[id] = res
			result.Removed = append(result.Removed, id)
			logger.Debug("resource absent from ground truth, marked removed", logger.String("id", id))
		}
	}

	r.lastSynced = time.Now().UTC()
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Unchanged)
	return result
}

// Deprecate marks a resource deprecated without waiting for a sync.
func (r *Registry) Deprecate(id string) error {
	res, ok := r.resources[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	res.Status = StatusDeprecated
	res.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	r.resources[id] = res
	return nil
}

// SetSites replaces the cached reference sites for one resource with the
// results of a fresh scan.
func (r *Registry) SetSites(resourceID string, sites []ReferenceSite) {
	kept := r.sites[:0]
	for _, s := range r.sites {
		if s.ResourceID != resourceID {
			kept = append(kept, s)
		}
	}
	r.sites = append(kept, sites...)
}

// Sites returns the cached reference sites for resourceID.
func (r *Registry) Sites(resourceID string) []ReferenceSite {
	var out []ReferenceSite
	for _, s := range r.sites {
		if s.ResourceID == resourceID {
			out = append(out, s)
		}
	}
	return out
}

// LastSynced reports when the registry was last reconciled; zero means never.
func (r *Registry) LastSynced() time.Time {
	return r.lastSynced
}

func (r *Registry) sortedResources() []Resource {
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
