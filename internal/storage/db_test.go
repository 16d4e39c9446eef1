package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	root := t.TempDir()
	dbDir := filepath.Join(root, "db")
	deletedDir := filepath.Join(dbDir, ".removed")
	require.NoError(t, os.MkdirAll(deletedDir, 0755))

	db := &DB{
		FSName:     "scratch",
		Dir:        dbDir,
		DeletedDir: deletedDir,
		DBUID:      os.Getuid(),
		DBGID:      os.Getgid(),
		Broker:     privilege.NewNoop(),
	}
	require.NoError(t, db.WriteMagic())
	return db
}

func TestCheckMagicMissing(t *testing.T) {
	db := &DB{FSName: "scratch", Dir: t.TempDir()}
	err := db.CheckMagic()
	assert.ErrorIs(t, err, wserrors.MagicMismatch)
}

func TestCreateReadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	e := &Entry{
		ID:          "alice-proj",
		Workspace:   "/mnt/a/alice-proj",
		Creation:    1000,
		Expiration:  2000,
		Extensions:  2,
		Reminder:    500,
		MailAddress: "alice@example.com",
		Comment:     "test",
	}
	require.NoError(t, db.CreateEntry(e))

	got, err := db.ReadEntry("alice-proj", false)
	require.NoError(t, err)
	assert.Equal(t, e.Workspace, got.Workspace)
	assert.Equal(t, e.Creation, got.Creation)
	assert.Equal(t, e.Expiration, got.Expiration)
	assert.Equal(t, e.Extensions, got.Extensions)
	assert.Equal(t, e.MailAddress, got.MailAddress)
}

func TestCreateEntryDuplicateFails(t *testing.T) {
	db := newTestDB(t)
	e := &Entry{ID: "alice-proj", Workspace: "/mnt/a/alice-proj"}
	require.NoError(t, db.CreateEntry(e))
	err := db.CreateEntry(&Entry{ID: "alice-proj", Workspace: "/mnt/a/alice-proj"})
	assert.Error(t, err)
}

func TestReadEntryMalformedScalar(t *testing.T) {
	db := newTestDB(t)
	path := filepath.Join(db.Dir, "alice-bad")
	require.NoError(t, os.WriteFile(path, []byte("justascalar\n"), 0644))

	_, err := db.ReadEntry("alice-bad", false)
	assert.Error(t, err)
}

func TestReadEntryNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.ReadEntry("nobody-here", false)
	assert.Error(t, err)
}

func TestMatchPatternEmptyDB(t *testing.T) {
	db := newTestDB(t)
	matches, err := db.MatchPattern("*", "*", nil, false, false)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchPatternByOwner(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateEntry(&Entry{ID: "alice-proj1", Workspace: "/mnt/a/alice-proj1"}))
	require.NoError(t, db.CreateEntry(&Entry{ID: "alice-proj2", Workspace: "/mnt/a/alice-proj2"}))
	require.NoError(t, db.CreateEntry(&Entry{ID: "bob-proj1", Workspace: "/mnt/a/bob-proj1"}))

	matches, err := db.MatchPattern("*", "alice", nil, false, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice-proj1", "alice-proj2"}, matches)
}

func TestMatchPatternGroupWorkspaces(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateEntry(&Entry{ID: "alice-shared", Workspace: "/mnt/a/alice-shared", Group: "devs"}))
	require.NoError(t, db.CreateEntry(&Entry{ID: "bob-private", Workspace: "/mnt/a/bob-private"}))

	matches, err := db.MatchPattern("*", "*", []string{"devs"}, false, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice-shared"}, matches)
}

func TestMoveEntryToGraceAndDelete(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateEntry(&Entry{ID: "alice-proj", Workspace: "/mnt/a/alice-proj"}))

	graceID, err := db.MoveEntryToGrace("alice-proj", 12345)
	require.NoError(t, err)
	assert.Equal(t, "alice-proj-12345", graceID)

	_, err = db.ReadEntry("alice-proj", false)
	assert.Error(t, err)

	got, err := db.ReadEntry(graceID, true)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/a/alice-proj", got.Workspace)

	require.NoError(t, db.DeleteEntry(graceID, true))
	_, err = db.ReadEntry(graceID, true)
	assert.Error(t, err)
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "alice-proj", true},
		{"proj*", "project1", true},
		{"proj?", "proj1", true},
		{"proj?", "proj12", false},
		{"[ab]lice", "alice", true},
		{"[ab]lice", "clice", false},
		{"[!a]lice", "blice", true},
		{"[!a]lice", "alice", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, globMatch(c.pattern, c.name), "pattern=%s name=%s", c.pattern, c.name)
	}
}
