package sessionstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"rice/internal/eventbus"
)

// BackupTo copies every session file into dir, which is created if
// needed. Files are copied as-is: a backup is ciphertext and stays
// readable only with the store's key.
func (s *Store) BackupTo(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listLocked()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("sessionstore: create backup directory: %w", err)
	}

	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(s.dir, id+fileSuffix))
		if err != nil {
			return fmt.Errorf("sessionstore: backup read %s: %w", id, err)
		}
		if err := atomicWrite(filepath.Join(dir, id+fileSuffix), data); err != nil {
			return fmt.Errorf("sessionstore: backup %s: %w", id, err)
		}
	}
	s.log.Info("backed up %d sessions to %s", len(ids), dir)
	return nil
}

// RestoreFrom copies every session file in dir into the store. All
// files land in a staging directory first and are renamed into place
// only after every copy succeeded, so a failure while reading or staging
// leaves the store unchanged; a failure during the final renames can
// leave some of the files installed. A failed staging directory is left
// behind for inspection.
func (s *Store) RestoreFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("sessionstore: read backup directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == fileSuffix {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staging := filepath.Join(s.dir, ".staging-"+randomSuffix())
	if err := os.MkdirAll(staging, 0700); err != nil {
		return fmt.Errorf("sessionstore: create staging directory: %w", err)
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.log.Warn("restore failed, staging left at %s: %v", staging, err)
			return fmt.Errorf("sessionstore: restore read %s: %w", name, err)
		}
		if err := atomicWrite(filepath.Join(staging, name), data); err != nil {
			s.log.Warn("restore failed, staging left at %s: %v", staging, err)
			return fmt.Errorf("sessionstore: restore stage %s: %w", name, err)
		}
	}

	// Every file staged; move them into place.
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(s.dir, name)); err != nil {
			s.log.Warn("restore partially applied, staging left at %s: %v", staging, err)
			return fmt.Errorf("sessionstore: restore install %s: %w", name, err)
		}
	}
	if err := syncDir(s.dir); err != nil {
		return err
	}
	if err := os.Remove(staging); err != nil {
		s.log.Warn("could not remove empty staging directory %s: %v", staging, err)
	}

	if s.bus != nil {
		for _, name := range names {
			id := name[:len(name)-len(fileSuffix)]
			s.bus.Publish(eventbus.Event{
				Type:        EventSessionRestored,
				AggregateID: id,
				Payload:     RestoredPayload{SessionID: id, FromDir: dir},
			})
		}
	}
	s.log.Info("restored %d sessions from %s", len(names), dir)
	return nil
}

func randomSuffix() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable elsewhere too (Seal
		// needs it); a fixed suffix keeps restore usable.
		return "0"
	}
	return hex.EncodeToString(b[:])
}
