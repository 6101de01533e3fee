// Package baseline persists named benchmark baselines, one JSON file
// per version label under <state>/baselines/. Records are immutable for
// a given version except by whole-record atomic replacement.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HendryAvila/perfscope/internal/investigation"
)

// BaselinesDir is the subdirectory of the state directory where
// baseline records live.
const BaselinesDir = "baselines"

// Record is one labeled baseline measurement.
type Record struct {
	Version    string             `json:"version"`
	Command    string             `json:"command"`
	Metrics    map[string]float64 `json:"metrics"`
	RecordedAt string             `json:"recordedAt"`
}

// Store reads and writes baseline records for one state directory.
type Store struct {
	dir string
}

// NewStore creates a baseline store rooted at the given state directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the absolute file path for a version label, rejecting
// labels that would escape the baselines directory.
func (s *Store) Path(version string) (string, error) {
	if err := investigation.ValidateID(version); err != nil {
		return "", fmt.Errorf("invalid baseline version: %w", err)
	}
	return investigation.SecureJoin(s.dir, BaselinesDir, version+".json")
}

// Write persists rec under its version label. An existing record for
// the same version is fully replaced in one atomic rename.
func (s *Store) Write(version string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cannot write nil baseline record")
	}
	if rec.Command == "" {
		return fmt.Errorf("baseline record for %q has no command", version)
	}
	if len(rec.Metrics) == 0 {
		return fmt.Errorf("baseline record for %q has no metrics", version)
	}

	path, err := s.Path(version)
	if err != nil {
		return err
	}

	stamped := *rec
	stamped.Version = version
	if stamped.RecordedAt == "" {
		stamped.RecordedAt = timeNow().UTC().Format(timeLayout)
	}

	data, err := json.MarshalIndent(&stamped, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling baseline %q: %w", version, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating baselines directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+version+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing baseline %q: %w", version, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing baseline %q: %w", version, err)
	}

	*rec = stamped
	return nil
}

// Read loads the record for a version label, or nil if none exists.
// Unlike the investigation document, a corrupt baseline is an error:
// baselines are the comparison anchor for every later phase, and a
// silently dropped one would let an experiment diff against nothing.
func (s *Store) Read(version string) (*Record, error) {
	path, err := s.Path(version)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading baseline %q: %w", version, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing baseline %q: %w", version, err)
	}
	return &rec, nil
}
