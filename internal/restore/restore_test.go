package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, string, *storage.DB) {
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

	cfg := &config.Config{
		Filesystems: map[string]*config.Filesystem{
			"ws1": {Name: "ws1", Spaces: []string{space}, Restorable: true},
		},
	}

	e := &Engine{
		Config: cfg,
		DBs: func(fsName string) (*storage.DB, error) {
			if fsName != "ws1" {
				return nil, os.ErrNotExist
			}
			return db, nil
		},
		Dir: &wsdir.Manager{Broker: privilege.NewNoop()},
	}
	return e, space, db
}

func TestRestoreMovesGraceIntoTarget(t *testing.T) {
	e, space, db := newTestEngine(t)

	gracePath := filepath.Join(space, "alice-proj-1000")
	require.NoError(t, os.MkdirAll(gracePath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj-1000", Workspace: gracePath}))
	require.NoError(t, os.Rename(filepath.Join(db.Dir, "alice-proj-1000"), filepath.Join(db.DeletedDir, "alice-proj-1000")))

	targetPath := filepath.Join(space, "alice-bucket")
	require.NoError(t, os.MkdirAll(targetPath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-bucket", Workspace: targetPath}))

	err := e.Restore(Request{
		GraceID:      "alice-proj-1000",
		TargetName:   "bucket",
		CallerUser:   "alice",
		CallerGroups: []string{},
	})
	require.NoError(t, err)

	_, err = os.Stat(gracePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(targetPath, "alice-proj-1000"))
	assert.NoError(t, err)

	_, err = db.ReadEntry("alice-proj-1000", true)
	assert.ErrorIs(t, err, wserrors.NotFound)
}

func TestRestoreRejectsOtherUsersGrace(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Restore(Request{
		GraceID:      "alice-proj-1000",
		TargetName:   "bucket",
		CallerUser:   "bob",
		CallerGroups: []string{},
	})
	assert.ErrorIs(t, err, wserrors.AccessDenied)
}

func TestRestoreRejectsMalformedGraceID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Restore(Request{GraceID: "not/valid", TargetName: "bucket", CallerUser: "alice"})
	assert.ErrorIs(t, err, wserrors.NameIllegal)
}

func TestRestoreDeclinedVerification(t *testing.T) {
	e, space, db := newTestEngine(t)

	gracePath := filepath.Join(space, "alice-proj-1000")
	require.NoError(t, os.MkdirAll(gracePath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-proj-1000", Workspace: gracePath}))
	require.NoError(t, os.Rename(filepath.Join(db.Dir, "alice-proj-1000"), filepath.Join(db.DeletedDir, "alice-proj-1000")))

	targetPath := filepath.Join(space, "alice-bucket")
	require.NoError(t, os.MkdirAll(targetPath, 0700))
	require.NoError(t, db.CreateEntry(&storage.Entry{ID: "alice-bucket", Workspace: targetPath}))

	err := e.Restore(Request{
		GraceID:    "alice-proj-1000",
		TargetName: "bucket",
		CallerUser: "alice",
		Verify:     func() (bool, error) { return false, nil },
	})
	assert.ErrorIs(t, err, wserrors.AccessDenied)

	_, err = os.Stat(gracePath)
	assert.NoError(t, err, "grace directory must survive a declined verification")
}
