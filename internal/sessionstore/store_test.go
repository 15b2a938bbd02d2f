package sessionstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"rice/internal/digest"
	"rice/internal/eventbus"
	"rice/internal/session"
)

func testCodec(t *testing.T, fill byte) *digest.Codec {
	t.Helper()
	key := make([]byte, digest.KeySize)
	for i := range key {
		key[i] = fill
	}
	codec, err := digest.NewCodec(key)
	require.NoError(t, err)
	return codec
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), testCodec(t, 0x41), nil)
	require.NoError(t, err)
	return store
}

func newSavedSession(t *testing.T, store *Store) *session.Session {
	t.Helper()
	sess, _ := session.New("proj-1", 100)
	_, err := sess.AddMessage("hello", session.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Save(sess))
	return sess
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	loaded, err := store.Load(sess.ID())
	require.NoError(t, err)
	require.NotNil(t, loaded)

	if diff := cmp.Diff(sess.Snapshot(), loaded.Snapshot()); diff != "" {
		t.Errorf("loaded session differs (-saved +loaded):\n%s", diff)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := testStore(t)

	loaded, err := store.Load("no-such-session")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadWithWrongKeyFailsAndKeepsFile(t *testing.T) {
	dir := t.TempDir()
	store1, err := New(dir, testCodec(t, 0x41), nil)
	require.NoError(t, err)
	sess := newSavedSession(t, store1)

	store2, err := New(dir, testCodec(t, 0x42), nil)
	require.NoError(t, err)

	_, err = store2.Load(sess.ID())
	require.ErrorIs(t, err, digest.ErrAuthFailure)

	// The undecryptable file must survive for inspection.
	_, statErr := os.Stat(filepath.Join(dir, sess.ID()+".enc"))
	require.NoError(t, statErr)
}

func TestLoadTamperedFileFails(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	path := filepath.Join(store.Dir(), sess.ID()+".enc")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Load(sess.ID())
	require.ErrorIs(t, err, digest.ErrAuthFailure)
}

func TestLoadRenamedFileFailsAssociatedData(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	// Copying the ciphertext under another id breaks the id binding.
	src := filepath.Join(store.Dir(), sess.ID()+".enc")
	dst := filepath.Join(store.Dir(), "stolen-id.enc")
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0600))

	_, err = store.Load("stolen-id")
	require.ErrorIs(t, err, digest.ErrAuthFailure)
}

func TestLoadUnsupportedFormatVersion(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	path := filepath.Join(store.Dir(), sess.ID()+".enc")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0], data[1] = 0xff, 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Load(sess.ID())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSaveDetectsVersionConflict(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	// A second writer loads the same session and advances it first.
	other, err := store.Load(sess.ID())
	require.NoError(t, err)
	_, err = other.AddMessage("raced ahead", session.RoleAssistant)
	require.NoError(t, err)
	require.NoError(t, store.Save(other))

	// Saving the now-stale aggregate must fail.
	err = store.Save(sess)
	var conflict *session.VersionConflictError
	require.True(t, errors.As(err, &conflict), "expected VersionConflictError, got %v", err)
	require.Equal(t, sess.ID(), conflict.SessionID)
}

func TestSaveSameAggregateTwiceRequiresNewVersion(t *testing.T) {
	store := testStore(t)
	sess := newSavedSession(t, store)

	// No command ran since the last save, so the version is unchanged.
	err := store.Save(sess)
	var conflict *session.VersionConflictError
	require.True(t, errors.As(err, &conflict))

	_, err = sess.AddMessage("new content", session.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Save(sess))
}

func TestListAndDelete(t *testing.T) {
	store := testStore(t)
	a := newSavedSession(t, store)
	b := newSavedSession(t, store)

	ids, err := store.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)

	existed, err := store.Delete(a.ID())
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.Delete(a.ID())
	require.NoError(t, err)
	require.False(t, existed)

	ids, err = store.List()
	require.NoError(t, err)
	require.Equal(t, []string{b.ID()}, ids)
}

func TestGarbageCollectDeletesOnlyStale(t *testing.T) {
	store := testStore(t)
	fresh := newSavedSession(t, store)

	// Build a session whose updated_at is far in the past by
	// reconstituting an aged snapshot.
	stale, _ := session.New("proj-old", 10)
	snap := stale.Snapshot()
	snap.UpdatedAt = snap.UpdatedAt.AddDate(0, 0, -90)
	require.NoError(t, store.Save(session.Reconstitute(snap)))

	bus := eventbus.New()
	store.bus = bus
	sub := bus.Subscribe(nil, 8)
	defer sub.Unsubscribe()

	deleted, err := store.GarbageCollect(30)
	require.NoError(t, err)
	require.Equal(t, []string{snap.ID}, deleted)

	loaded, err := store.Load(snap.ID)
	require.NoError(t, err)
	require.Nil(t, loaded)

	survivor, err := store.Load(fresh.ID())
	require.NoError(t, err)
	require.NotNil(t, survivor)

	event := <-sub.Events()
	require.Equal(t, EventSessionDeleted, event.Type)
	require.Equal(t, snap.ID, event.AggregateID)
}

func TestBackupAndRestore(t *testing.T) {
	store := testStore(t)
	a := newSavedSession(t, store)
	b := newSavedSession(t, store)

	backupDir := t.TempDir()
	require.NoError(t, store.BackupTo(backupDir))

	_, err := store.Delete(a.ID())
	require.NoError(t, err)
	_, err = store.Delete(b.ID())
	require.NoError(t, err)

	require.NoError(t, store.RestoreFrom(backupDir))

	ids, err := store.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)

	restored, err := store.Load(a.ID())
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, a.Version(), restored.Version())
}

func TestRestoreLeavesNoStagingOnSuccess(t *testing.T) {
	store := testStore(t)
	newSavedSession(t, store)

	backupDir := t.TempDir()
	require.NoError(t, store.BackupTo(backupDir))
	require.NoError(t, store.RestoreFrom(backupDir))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, entry.IsDir(), "staging directory %s left behind", entry.Name())
	}
}

func TestBackupFilesStayEncrypted(t *testing.T) {
	store := testStore(t)
	sess, _ := session.New("proj-1", 100)
	_, err := sess.AddMessage("super secret API key", session.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Save(sess))

	backupDir := t.TempDir()
	require.NoError(t, store.BackupTo(backupDir))

	data, err := os.ReadFile(filepath.Join(backupDir, sess.ID()+".enc"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "super secret")
}
