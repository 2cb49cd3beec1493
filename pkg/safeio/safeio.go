// Package safeio contains containment-checked file helpers used by the
// scanner, fix engine, and backup manager.
package safeio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// CleanUserPath cleans a user-provided path and rejects traversal attempts.
func CleanUserPath(p string) (string, error) {
	c := filepath.Clean(p)
	if strings.Contains(c, "..") {
		return "", errors.New("path traversal detected")
	}
	return filepath.ToSlash(c), nil
}

// ReadFileContained reads a file only if it resolves inside baseDir.
// Keeps a hostile registry or backup manifest from reaching outside the corpus.
func ReadFileContained(baseDir, filePath string) ([]byte, error) {
	abs, err := resolveContained(baseDir, filePath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs) // #nosec G304 -- containment verified above
}

// WriteFileContained writes data to filePath only if it resolves inside
// baseDir, preserving the existing file mode when the file already exists.
func WriteFileContained(baseDir, filePath string, data []byte) error {
	abs, err := resolveContained(baseDir, filePath)
	if err != nil {
		return err
	}
	return WriteFilePreservePerms(abs, data)
}

// WriteFilePreservePerms writes data to path preserving the existing file mode
// when possible, defaulting to 0644 for new files.
func WriteFilePreservePerms(path string, data []byte) error {
	var mode os.FileMode = 0o644
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode() & 0o777
		if mode == 0 {
			mode = 0o644
		}
	}
	return os.WriteFile(path, data, mode)
}

func resolveContained(baseDir, filePath string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", errors.New("failed to resolve base directory")
	}
	fileAbs, err := filepath.Abs(filePath)
	if err != nil {
		return "", errors.New("failed to resolve file path")
	}
	rel, err := filepath.Rel(baseAbs, fileAbs)
	if err != nil {
		return "", errors.New("failed to compute relative path")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("file path is outside base directory")
	}
	return fileAbs, nil
}
