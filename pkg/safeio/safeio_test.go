package safeio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanUserPath(t *testing.T) {
	if _, err := CleanUserPath("../etc/passwd"); err == nil {
		t.Error("traversal should be rejected")
	}
	got, err := CleanUserPath("docs/./guide.md")
	if err != nil {
		t.Fatalf("CleanUserPath: %v", err)
	}
	if got != "docs/guide.md" {
		t.Errorf("got %q", got)
	}
}

func TestReadFileContained(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileContained(dir, path)
	if err != nil {
		t.Fatalf("ReadFileContained: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	outside := filepath.Join(dir, "..", "escape.txt")
	if _, err := ReadFileContained(dir, outside); err == nil {
		t.Error("read outside base dir should fail")
	}
}

func TestWriteFilePreservePerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exec.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := WriteFilePreservePerms(path, []byte("#!/bin/sh\necho hi\n")); err != nil {
		t.Fatalf("WriteFilePreservePerms: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode()&0o777 != 0o755 {
		t.Errorf("mode = %o, want 755", st.Mode()&0o777)
	}
}

func TestWriteFileContained(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileContained(dir, filepath.Join(dir, "new.txt"), []byte("x")); err != nil {
		t.Fatalf("WriteFileContained: %v", err)
	}
	if err := WriteFileContained(dir, filepath.Join(dir, "..", "bad.txt"), []byte("x")); err == nil {
		t.Error("write outside base dir should fail")
	}
}
