package expirer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(t *testing.T) (*Sweeper, string, *storage.DB, *config.Filesystem) {
	t.Helper()
	root := t.TempDir()
	space := filepath.Join(root, "space")
	dbDir := filepath.Join(root, "db")
	deletedDir := filepath.Join(dbDir, ".removed")
	require.NoError(t, os.MkdirAll(space, 0755))
	require.NoError(t, os.MkdirAll(deletedDir, 0755))

	db := &storage.DB{
		FSName:     "ws1",
		Dir:        dbDir,
		DeletedDir: deletedDir,
		DBUID:      os.Getuid(),
		DBGID:      os.Getgid(),
		Broker:     privilege.NewNoop(),
	}
	require.NoError(t, db.WriteMagic())

	fsCfg := &config.Filesystem{
		Name:         "ws1",
		Spaces:       []string{space},
		DeletedPath:  ".removed",
		Database:     dbDir,
		KeepTimeDays: 30,
	}
	cfg := &config.Config{Filesystems: map[string]*config.Filesystem{"ws1": fsCfg}}

	s := &Sweeper{
		Config: cfg,
		DBs: func(fsName string) (*storage.DB, error) {
			if fsName != "ws1" {
				return nil, os.ErrNotExist
			}
			return db, nil
		},
		Dir: &wsdir.Manager{Broker: privilege.NewNoop()},
	}
	return s, space, db, fsCfg
}

func TestPhaseAStrayDirectoryDryRun(t *testing.T) {
	s, space, _, _ := newTestSweeper(t)
	require.NoError(t, os.MkdirAll(filepath.Join(space, "alice-orphan"), 0700))

	report := s.SweepFilesystem("ws1", Options{Cleaner: false, Now: 1000})
	assert.Equal(t, []string{filepath.Join(space, "alice-orphan")}, report.StrayWorkspaces)

	// Dry run must not mutate anything.
	_, err := os.Stat(filepath.Join(space, "alice-orphan"))
	assert.NoError(t, err)
}

func TestPhaseAStrayDirectoryCleanerMoves(t *testing.T) {
	s, space, _, fsCfg := newTestSweeper(t)
	require.NoError(t, os.MkdirAll(filepath.Join(space, "alice-orphan"), 0700))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: 1000})
	assert.Equal(t, []string{filepath.Join(space, "alice-orphan")}, report.StrayWorkspaces)

	_, err := os.Stat(filepath.Join(space, "alice-orphan"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(space, fsCfg.DeletedPath, "alice-orphan-1000"))
	assert.NoError(t, err)
}

func TestMagicMismatchSkipsSweep(t *testing.T) {
	s, space, db, _ := newTestSweeper(t)
	require.NoError(t, os.Remove(filepath.Join(db.Dir, storage.MagicFile)))
	require.NoError(t, os.MkdirAll(filepath.Join(space, "alice-orphan"), 0700))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: 1000})
	assert.True(t, report.MagicMismatch)
	assert.Empty(t, report.StrayWorkspaces)

	_, err := os.Stat(filepath.Join(space, "alice-orphan"))
	assert.NoError(t, err, "cleaner must not touch a filesystem with a missing magic sentinel")
}

func TestPhaseBExpiresOverdueEntry(t *testing.T) {
	s, space, db, fsCfg := newTestSweeper(t)
	wsPath := filepath.Join(space, "alice-proj")
	require.NoError(t, os.MkdirAll(wsPath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj", Workspace: wsPath, Expiration: 500}))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: 1000})
	assert.Equal(t, []string{"alice-proj"}, report.Expired)

	_, err := db.ReadEntry("alice-proj", false)
	assert.Error(t, err)
	got, err := db.ReadEntry("alice-proj-1000", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Released)
	assert.Equal(t, filepath.Join(space, fsCfg.DeletedPath, "alice-proj-1000"), got.Workspace)

	_, err = os.Stat(filepath.Join(space, fsCfg.DeletedPath, "alice-proj-1000"))
	assert.NoError(t, err)
}

// TestExpireThenPurgeRemovesGraceTree exercises phase B end to end: the
// grace entry expireEntry writes is the same one purgeEntry later reads, so
// a regression where the grace entry's Workspace is left pointing at the
// stale live path (and purge silently no-ops on a nonexistent directory)
// would leave the grace tree on disk forever.
func TestExpireThenPurgeRemovesGraceTree(t *testing.T) {
	s, space, db, fsCfg := newTestSweeper(t)
	wsPath := filepath.Join(space, "alice-proj")
	require.NoError(t, os.MkdirAll(wsPath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj", Workspace: wsPath, Expiration: 500}))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: 1000})
	require.Equal(t, []string{"alice-proj"}, report.Expired)

	gracePath := filepath.Join(space, fsCfg.DeletedPath, "alice-proj-1000")
	_, err := os.Stat(gracePath)
	require.NoError(t, err, "expired workspace must be on disk at its grace path")

	purgeTime := int64(1000) + int64(fsCfg.KeepTimeDays)*86400 + 1
	report = s.SweepFilesystem("ws1", Options{Cleaner: true, Now: purgeTime})
	assert.Equal(t, []string{"alice-proj-1000"}, report.Purged)

	_, err = os.Stat(gracePath)
	assert.True(t, os.IsNotExist(err), "purge must remove the grace tree at the path expireEntry recorded")
	_, err = db.ReadEntry("alice-proj-1000", true)
	assert.Error(t, err)
}

func TestPhaseBPurgesOverdueGraceEntry(t *testing.T) {
	s, space, db, fsCfg := newTestSweeper(t)
	gracePath := filepath.Join(space, fsCfg.DeletedPath, "alice-proj-100")
	require.NoError(t, os.MkdirAll(gracePath, 0700))
	const released = int64(1_700_000_000) // a real post-2001 release time
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj-100", Workspace: gracePath, Expiration: released, Released: released}))
	require.NoError(t, os.Rename(filepath.Join(db.Dir, "alice-proj-100"), filepath.Join(db.DeletedDir, "alice-proj-100")))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: released + 3700})
	assert.Equal(t, []string{"alice-proj-100"}, report.Purged)

	_, err := os.Stat(gracePath)
	assert.True(t, os.IsNotExist(err))
	_, err = db.ReadEntry("alice-proj-100", true)
	assert.Error(t, err)
}

func TestPhaseBSkipsCorruptExpiration(t *testing.T) {
	s, space, db, _ := newTestSweeper(t)
	wsPath := filepath.Join(space, "alice-proj")
	require.NoError(t, os.MkdirAll(wsPath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj", Workspace: wsPath, Expiration: 0}))

	report := s.SweepFilesystem("ws1", Options{Cleaner: true, Now: 1000})
	assert.Empty(t, report.Expired)
}

func TestReminderDue(t *testing.T) {
	e := &storage.Entry{Expiration: 1000, Reminder: 100}
	assert.False(t, ReminderDue(e, 800))
	assert.True(t, ReminderDue(e, 950))
	assert.False(t, ReminderDue(e, 1000))

	released := &storage.Entry{Expiration: 1000, Reminder: 100, Released: 500}
	assert.False(t, ReminderDue(released, 950))
}
