// Package oplog appends one structured entry per analyze/fix/rollback
// invocation to a JSON-lines file.
package oplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SiteOutcome is the per-site record carried on a fix entry.
type SiteOutcome struct {
	File       string  `json:"file"`
	Line       int     `json:"line"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
	Outcome    string  `json:"outcome"`
	Detail     string  `json:"detail,omitempty"`
}

// Entry is one logged invocation.
type Entry struct {
	ID          string        `json:"id"`
	Time        time.Time     `json:"time"`
	Op          string        `json:"op"` // analyze | fix | rollback | sync
	Resource    string        `json:"resource,omitempty"`
	Replacement string        `json:"replacement,omitempty"`
	DryRun      bool          `json:"dry_run,omitempty"`
	State       string        `json:"state,omitempty"`
	BackupID    string        `json:"backup_id,omitempty"`
	Sites       []SiteOutcome `json:"sites,omitempty"`
	Warnings    int           `json:"warnings,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// Log is an append-only operation log.
type Log struct {
	Path string
}

// Append writes one entry, assigning an id and timestamp when unset.
// Log failures must never block the operation itself; callers treat the
// returned error as advisory.
func (l *Log) Append(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding oplog entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o750); err != nil {
		return fmt.Errorf("creating oplog dir: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302 G304 -- oplog lives in the state dir
	if err != nil {
		return fmt.Errorf("opening oplog: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending oplog entry: %w", err)
	}
	return nil
}

// ReadAll returns every logged entry in append order. Unparseable lines are
// skipped so one bad record never hides the rest of the history.
func (l *Log) ReadAll() ([]Entry, error) {
	f, err := os.Open(l.Path) // #nosec G304 -- oplog lives in the state dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening oplog: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading oplog: %w", err)
	}
	return entries, nil
}
