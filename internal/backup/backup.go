// Package backup snapshots files before mutation and restores them exactly.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"refcast/pkg/logger"
	"refcast/pkg/safeio"
)

// ErrBackupNotFound means no snapshot exists under the requested id.
var ErrBackupNotFound = errors.New("backup not found")

// PartialRestoreError reports a rollback that restored what it could but
// failed for some captured files.
type PartialRestoreError struct {
	BackupID string
	Failed   []string
}

func (e *PartialRestoreError) Error() string {
	return fmt.Sprintf("partial restore of backup %s: could not restore %s",
		e.BackupID, strings.Join(e.Failed, ", "))
}

// Summary describes one snapshot for listing.
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
}

type manifest struct {
	ID        string         `yaml:"id"`
	CreatedAt string         `yaml:"created_at"`
	Files     []manifestFile `yaml:"files"`
}

type manifestFile struct {
	Path string `yaml:"path"`
	Blob string `yaml:"blob"`
	Mode uint32 `yaml:"mode"`
}

const manifestName = "manifest.yaml"

// Manager stores snapshots under Dir, one directory per backup id, each
// holding numbered content blobs plus a manifest. The manifest is written
// last so its presence marks a complete snapshot.
type Manager struct {
	// Dir is the backup store, normally <state>/backups
	Dir string
	// Root is the corpus root all captured paths are relative to
	Root string
}

// Snapshot captures the current content of files (relative slash paths)
// before any mutation. Ids are timestamp-derived and disambiguated with a
// sequence suffix, so snapshots within the same second never collide.
func (m *Manager) Snapshot(files []string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("nothing to snapshot")
	}
	id, err := m.nextID(time.Now().UTC())
	if err != nil {
		return "", err
	}
	dir := filepath.Join(m.Dir, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	man := manifest{ID: id, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	for i, rel := range files {
		abs := filepath.Join(m.Root, filepath.FromSlash(rel))
		content, err := safeio.ReadFileContained(m.Root, abs)
		if err != nil {
			// Fail closed: a backup that misses a targeted file is no backup
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("capturing %s: %w", rel, err)
		}
		var mode uint32 = 0o644
		if st, err := os.Stat(abs); err == nil {
			mode = uint32(st.Mode() & 0o777)
		}
		blob := fmt.Sprintf("%04d.blob", i)
		if err := os.WriteFile(filepath.Join(dir, blob), content, 0o600); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("writing blob for %s: %w", rel, err)
		}
		man.Files = append(man.Files, manifestFile{Path: rel, Blob: blob, Mode: mode})
	}

	data, err := yaml.Marshal(&man)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	logger.Info("snapshot created", logger.String("backup", id), logger.Int("files", len(files)))
	return id, nil
}

// Rollback restores every captured file to its snapshot content. Idempotent:
// files already at their snapshot content are no-ops. Files that can no
// longer be restored (path became a directory, write denied) are reported
// via PartialRestoreError after everything else has been restored.
func (m *Manager) Rollback(id string) error {
	man, err := m.readManifest(id)
	if err != nil {
		return err
	}

	var failed []string
	for _, f := range man.Files {
		blob, err := os.ReadFile(filepath.Join(m.Dir, id, f.Blob)) // #nosec G304 -- blob path from manifest inside store
		if err != nil {
			failed = append(failed, f.Path)
			continue
		}
		abs := filepath.Join(m.Root, filepath.FromSlash(f.Path))

		if st, err := os.Stat(abs); err == nil {
			if !st.Mode().IsRegular() {
				// Changed type since the snapshot; cannot restore
				failed = append(failed, f.Path)
				continue
			}
			if current, err := os.ReadFile(abs); err == nil && bytes.Equal(current, blob) { // #nosec G304 -- path contained in corpus root
				// Already at snapshot content; second rollback is a no-op
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			failed = append(failed, f.Path)
			continue
		}
		if err := os.WriteFile(abs, blob, os.FileMode(f.Mode)); err != nil { // #nosec G306 -- original mode from manifest
			failed = append(failed, f.Path)
			continue
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return &PartialRestoreError{BackupID: id, Failed: failed}
	}
	logger.Info("rollback complete", logger.String("backup", id), logger.Int("files", len(man.Files)))
	return nil
}

// List returns backup summaries, newest first.
func (m *Manager) List() ([]Summary, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup store: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		man, err := m.readManifest(e.Name())
		if err != nil {
			logger.Warn("skipping unreadable backup", logger.String("backup", e.Name()))
			continue
		}
		created, _ := time.Parse(time.RFC3339, man.CreatedAt)
		out = append(out, Summary{ID: man.ID, CreatedAt: created, Files: len(man.Files)})
	}
	// Ids are timestamp-derived, so lexical descending is newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Prune removes all but the newest keep snapshots and returns the removed ids.
func (m *Manager) Prune(keep int) ([]string, error) {
	if keep < 0 {
		return nil, errors.New("keep must be non-negative")
	}
	summaries, err := m.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := keep; i < len(summaries); i++ {
		id := summaries[i].ID
		if err := os.RemoveAll(filepath.Join(m.Dir, id)); err != nil {
			return removed, fmt.Errorf("pruning backup %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// Verify checks every snapshot's manifest is readable, for health scans.
func (m *Manager) Verify() []string {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return nil
	}
	var bad []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := m.readManifest(e.Name()); err != nil {
			bad = append(bad, e.Name())
		}
	}
	sort.Strings(bad)
	return bad
}

func (m *Manager) readManifest(id string) (*manifest, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(m.Dir, id, manifestName)) // #nosec G304 -- id constrained to store dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return nil, fmt.Errorf("reading manifest for %s: %w", id, err)
	}
	var man manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", id, err)
	}
	return &man, nil
}

// nextID derives a collision-resistant id from the timestamp plus a
// monotonically increasing sequence suffix within the same second.
func (m *Manager) nextID(now time.Time) (string, error) {
	prefix := now.Format("20060102-150405")
	seq := 1
	entries, err := os.ReadDir(m.Dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading backup store: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") {
			var n int
			if _, err := fmt.Sscanf(name[len(prefix)+1:], "%d", &n); err == nil && n >= seq {
				seq = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%03d", prefix, seq), nil
}
