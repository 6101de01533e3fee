package investigation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DocumentFile is the filename of the active investigation document.
	DocumentFile = "investigation.json"

	// maxUpdateAttempts bounds the optimistic-concurrency retry loop.
	maxUpdateAttempts = 5
)

// ErrUpdateConflict is returned by Update after the retry budget is
// exhausted by concurrent writers. The caller must treat the whole
// operation as failed, not as a no-op.
var ErrUpdateConflict = errors.New("investigation update conflict: retries exhausted")

// Store persists the single investigation document of a state directory.
//
// Reads tolerate corruption (a CRITICAL diagnostic, then nil — never a
// panic or error, so a crashed writer cannot brick the engine). Writes
// are validate-then-atomic-rename. Update is the optimistic-concurrency
// read-transform-write-verify loop; it is the only safe way to mutate a
// document that another process might be racing on.
type Store struct {
	dir  string
	logw io.Writer
}

// NewStore creates a store rooted at the given state directory
// (typically <project>/perf). Diagnostics go to stderr.
func NewStore(dir string) *Store {
	return &Store{dir: dir, logw: os.Stderr}
}

// SetDiagnostics redirects CRITICAL/ERROR diagnostics, for tests.
func (s *Store) SetDiagnostics(w io.Writer) {
	s.logw = w
}

// Dir returns the state directory this store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// SecureJoin joins elem onto base and verifies the result stays inside
// base. Any traversal attempt (.., absolute override, NUL) is an error
// before any filesystem access.
func SecureJoin(base string, elem ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving base directory: %w", err)
	}
	for _, e := range elem {
		if strings.ContainsRune(e, 0) {
			return "", fmt.Errorf("path element contains NUL byte")
		}
	}
	joined := filepath.Join(append([]string{absBase}, elem...)...)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if abs != absBase && !strings.HasPrefix(abs, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes state directory %q", strings.Join(elem, "/"), base)
	}
	return abs, nil
}

// docPath returns the absolute path of the investigation document.
func (s *Store) docPath() (string, error) {
	return SecureJoin(s.dir, DocumentFile)
}

// Read loads the current investigation, or nil if none exists.
//
// A document that exists but fails to parse or fails schema validation
// is reported with exactly one CRITICAL diagnostic and treated as
// absent. Callers accept the data loss in exchange for never crashing
// on corrupted state.
func (s *Store) Read() (*Investigation, error) {
	path, err := s.docPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", DocumentFile, err)
	}

	if err := ValidateDocument(data); err != nil {
		fmt.Fprintf(s.logw, "CRITICAL: corrupted investigation at %s: %v\n", path, err)
		return nil, nil
	}

	var doc Investigation
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(s.logw, "CRITICAL: corrupted investigation at %s: %v\n", path, err)
		return nil, nil
	}
	return &doc, nil
}

// Write validates and persists doc. On success the document's _version
// is incremented by exactly one and updatedAt is stamped; on validation
// failure no filesystem I/O happens and doc is left untouched.
//
// The write is atomic (temp file + rename), so a concurrent reader
// never observes a half-written document.
func (s *Store) Write(doc *Investigation) error {
	if doc == nil {
		return fmt.Errorf("cannot write nil investigation")
	}
	if err := ValidateID(doc.ID); err != nil {
		return err
	}

	// Stamp a copy first: validation must see the final bytes, and a
	// failed validation must not leave the caller's doc half-stamped.
	stamped := *doc
	stamped.DocVersion = doc.DocVersion + 1
	stamped.UpdatedAt = timeNow().UTC().Format(timeLayout)
	if stamped.SchemaVersion == 0 {
		stamped.SchemaVersion = SchemaVersion
	}

	data, err := marshalValidated(&stamped)
	if err != nil {
		return err
	}

	path, err := s.docPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return err
	}

	*doc = stamped
	return nil
}

// Update runs the optimistic-concurrency cycle: read the current
// document (a missing one is passed to transform as a fresh skeleton),
// apply transform, write, then re-read and verify the write survived.
// If a concurrent writer won the race, the whole cycle retries with
// randomized 10-60ms backoff, up to 5 attempts.
//
// A transform or validation error aborts immediately without retrying —
// retries are reserved for write races.
func (s *Store) Update(transform func(*Investigation) error) (*Investigation, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		cur, err := s.Read()
		if err != nil {
			return nil, err
		}
		if cur == nil {
			cur = &Investigation{SchemaVersion: SchemaVersion}
		}

		if err := transform(cur); err != nil {
			return nil, err
		}

		if err := s.Write(cur); err != nil {
			return nil, err
		}
		afterWrite()
		want, err := json.Marshal(cur)
		if err != nil {
			return nil, fmt.Errorf("marshaling written document: %w", err)
		}

		got, err := s.Read()
		if err != nil {
			return nil, err
		}
		if got != nil && got.DocVersion >= cur.DocVersion {
			gotData, err := json.Marshal(got)
			if err != nil {
				return nil, fmt.Errorf("marshaling re-read document: %w", err)
			}
			if bytes.Equal(gotData, want) {
				return got, nil
			}
		}

		// A concurrent writer overwrote us between write and verify.
		if attempt < maxUpdateAttempts {
			time.Sleep(updateBackoff())
		}
	}

	fmt.Fprintf(s.logw, "ERROR: investigation update failed after %d attempts (concurrent writers)\n", maxUpdateAttempts)
	return nil, ErrUpdateConflict
}

// afterWrite is a test hook invoked between an Update attempt's write
// and its verify re-read, where a concurrent writer can interleave.
var afterWrite = func() {}

// updateBackoff returns a randomized 10-60ms delay between retries, so
// two racing processes do not stay in lockstep.
func updateBackoff() time.Duration {
	return 10*time.Millisecond + time.Duration(rand.Int64N(int64(50*time.Millisecond)))
}

// atomicWrite writes data to a temp file in the target directory, then
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
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
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
