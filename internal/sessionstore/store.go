// Package sessionstore persists session aggregates to disk under
// authenticated encryption. Each session is one <id>.enc file: a 2-byte
// format version, then the AEAD output (random nonce followed by the
// ciphertext of the canonical-JSON snapshot), with the session id bound
// in as associated data so a file renamed to another id fails to open.
//
// Writes are atomic (temp file, fsync, rename); a corrupted or
// wrong-key file fails Load with the codec's auth error and is left on
// disk for the operator to inspect.
package sessionstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rice/internal/digest"
	"rice/internal/eventbus"
	"rice/internal/logging"
	"rice/internal/session"
)

// FormatVersion is the on-disk format written by this package.
const FormatVersion uint16 = 1

const (
	fileSuffix   = ".enc"
	headerLength = 2 // big-endian format version
)

// ErrUnsupportedFormat is returned by Load for a file whose version
// header names a format this build does not understand.
var ErrUnsupportedFormat = errors.New("sessionstore: unsupported format version")

// Store owns the session directory. All methods are safe for concurrent
// use; per-file writes are serialized by the store lock while reads of
// distinct sessions proceed in parallel.
type Store struct {
	mu    sync.RWMutex
	dir   string
	codec *digest.Codec
	bus   *eventbus.Bus
	log   *logging.Logger
}

// New opens (creating if needed) a store rooted at dir, encrypting with
// codec. bus may be nil to disable event publication.
func New(dir string, codec *digest.Codec, bus *eventbus.Bus) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("sessionstore: create directory: %w", err)
	}
	return &Store{
		dir:   dir,
		codec: codec,
		bus:   bus,
		log:   logging.Get(logging.CategoryStore),
	}, nil
}

// Dir returns the directory this store persists into.
func (s *Store) Dir() string { return s.dir }

// Save persists the session's current snapshot, replacing any prior
// file for the same id. A stored version at or past the snapshot's is a
// VersionConflictError: the caller raced another writer and must reload.
func (s *Store) Save(sess *session.Session) error {
	snap := sess.Snapshot()
	if snap.ID == "" {
		return fmt.Errorf("sessionstore: session id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, err := s.readVersion(snap.ID); err == nil && stored >= snap.Version {
		return &session.VersionConflictError{SessionID: snap.ID, Expected: snap.Version, Actual: stored}
	}

	data, err := s.encode(snap)
	if err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(s.dir, snap.ID+fileSuffix), data); err != nil {
		return err
	}
	s.log.Debug("saved session %s at version %d", snap.ID, snap.Version)
	return nil
}

// Load reads and decrypts the session with the given id. A missing file
// returns (nil, nil); a tampered or wrong-key file returns the codec's
// ErrAuthFailure and the file is left untouched.
func (s *Store) Load(id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.loadSnapshot(id)
	if err != nil || snap == nil {
		return nil, err
	}
	return session.Reconstitute(*snap), nil
}

// List returns the ids of every persisted session, sorted by filename.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileSuffix))
	}
	return ids, nil
}

// Delete removes the session file for id, reporting whether it existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, id+fileSuffix))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sessionstore: delete session %s: %w", id, err)
	}
	return true, nil
}

// GarbageCollect deletes every session whose updated_at is older than
// the retention window, returning the deleted ids. Files that fail to
// decrypt are skipped, never deleted: age cannot be established for
// them and silently discarding a possibly-recoverable session is worse
// than keeping it.
func (s *Store) GarbageCollect(retentionDays int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listLocked()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var deleted []string
	for _, id := range ids {
		snap, err := s.loadSnapshot(id)
		if err != nil || snap == nil {
			s.log.Warn("gc skipping session %s: %v", id, err)
			continue
		}
		if !snap.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, id+fileSuffix)); err != nil {
			return deleted, fmt.Errorf("sessionstore: gc delete %s: %w", id, err)
		}
		deleted = append(deleted, id)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type:        EventSessionDeleted,
				AggregateID: id,
				Payload:     DeletedPayload{SessionID: id, UpdatedAt: snap.UpdatedAt},
			})
		}
	}
	if len(deleted) > 0 {
		s.log.Info("gc removed %d sessions older than %d days", len(deleted), retentionDays)
	}
	return deleted, nil
}

// loadSnapshot reads, authenticates, and decodes one session file.
// Callers hold at least the read lock.
func (s *Store) loadSnapshot(id string) (*session.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+fileSuffix))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read session %s: %w", id, err)
	}
	return s.decode(id, data)
}

// readVersion decrypts just enough of an existing file to learn its
// stored version. Unreadable files report as absent; Save will then
// overwrite, which is the correct recovery for a truncated write.
func (s *Store) readVersion(id string) (uint64, error) {
	snap, err := s.loadSnapshot(id)
	if err != nil || snap == nil {
		return 0, fmt.Errorf("sessionstore: no readable version for %s", id)
	}
	return snap.Version, nil
}

func (s *Store) encode(snap session.Snapshot) ([]byte, error) {
	plaintext, err := digest.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: marshal session %s: %w", snap.ID, err)
	}
	sealed, err := s.codec.Seal(plaintext, []byte(snap.ID))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: seal session %s: %w", snap.ID, err)
	}

	out := make([]byte, headerLength+len(sealed))
	binary.BigEndian.PutUint16(out[:headerLength], FormatVersion)
	copy(out[headerLength:], sealed)
	return out, nil
}

func (s *Store) decode(id string, data []byte) (*session.Snapshot, error) {
	if len(data) < headerLength {
		return nil, fmt.Errorf("sessionstore: session %s: truncated header", id)
	}
	if v := binary.BigEndian.Uint16(data[:headerLength]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, v)
	}

	plaintext, err := s.codec.Open(data[headerLength:], []byte(id))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: session %s: %w", id, err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, fmt.Errorf("sessionstore: session %s: decode: %w", id, err)
	}
	return &snap, nil
}

// atomicWrite lands data at path via a fsynced sibling temp file and a
// rename, then fsyncs the directory so the rename itself is durable.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("sessionstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: rename temp file: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("sessionstore: open directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sessionstore: sync directory: %w", err)
	}
	return nil
}
