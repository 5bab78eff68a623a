// Package cache reads and writes the per-source YAML cache files.
//
// Each source owns one file, <slug>.cache, holding a sync-metadata
// envelope plus the source's entity records. The file is the
// human-editable surface of the sync engine: people edit it directly and
// the staleness detector decides, from timestamps alone, whether those
// edits must win over a re-scrape.
//
// Saving is atomic with respect to crashes: the serialized envelope goes
// to a temp file in the same directory followed by a rename, so a reader
// never observes a half-written cache and a failed save leaves the prior
// file untouched.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitae-dev/vitae/internal/record"
)

// CorruptError reports an unreadable cache file. The caller aborts that
// source's reconciliation rather than guessing at content.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt cache file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Path returns the cache file path for a source slug inside dir.
func Path(dir, slug string) string {
	return filepath.Join(dir, slug+".cache")
}

// Load reads the envelope at path. A missing file is not an error: it
// returns an empty envelope, which is how a source looks before its
// first successful fetch. A file that exists but cannot be parsed
// returns a *CorruptError.
func Load(path string) (*record.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &record.Envelope{}, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	var env record.Envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return &env, nil
}

// Save writes the envelope to path atomically and stamps LastSynced.
//
// The write order matters: temp file in the target directory first, then
// fsync via file close, then rename over the target. Rename is the
// commit point; everything before it is invisible to readers.
func Save(path string, env *record.Envelope) error {
	env.LastSynced = time.Now().UTC()

	data, err := yaml.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope for %s: %w", env.Source, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file %s: %w", path, err)
	}

	// Pin the file mtime to the stamped timestamp. The rename lands a
	// few milliseconds after LastSynced, which would read as a manual
	// edit on the very next pass; an exact tie resolves to unchanged.
	if err := os.Chtimes(path, env.LastSynced, env.LastSynced); err != nil {
		return fmt.Errorf("failed to set cache file mtime %s: %w", path, err)
	}
	return nil
}

// ModTime returns the on-disk modification time of path, or the zero
// time if the file does not exist.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}
