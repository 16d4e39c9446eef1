package allocate

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

func newTestEngine(t *testing.T) (*Engine, string) {
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
		DBUID: os.Getuid(),
		DBGID: os.Getgid(),
		Filesystems: map[string]*config.Filesystem{
			"ws1": {
				Name:            "ws1",
				Spaces:          []string{space},
				SpaceSelection:  config.SelectRandom,
				MaxDurationDays: 10,
				MaxExtensions:   1,
				Allocatable:     true,
				Extendable:      true,
			},
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
	return e, space
}

func TestAllocateThenExtend(t *testing.T) {
	e, _ := newTestEngine(t)
	orig := nowFunc
	nowFunc = func() int64 { return 1_000_000 }
	defer func() { nowFunc = orig }()

	five := 5
	res, err := e.Allocate(Request{
		Name:         "proj",
		DurationDays: &five,
		CallerUser:   "alice",
		CallerUID:    os.Getuid(),
		CallerGID:    os.Getgid(),
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	firstExpiration := res.Entry.Expiration

	seven := 7
	res2, err := e.Allocate(Request{
		Name:         "proj",
		DurationDays: &seven,
		Extend:       true,
		CallerUser:   "alice",
		CallerUID:    os.Getuid(),
		CallerGID:    os.Getgid(),
	})
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, 0, res2.Entry.Extensions)
	assert.Equal(t, firstExpiration+int64(2)*secondsPerDay, res2.Entry.Expiration)
}

func TestExtensionExhaustion(t *testing.T) {
	e, _ := newTestEngine(t)

	one := 1
	_, err := e.Allocate(Request{Name: "proj", DurationDays: &one, CallerUser: "alice", CallerUID: os.Getuid(), CallerGID: os.Getgid()})
	require.NoError(t, err)

	_, err = e.Allocate(Request{Name: "proj", DurationDays: &one, Extend: true, CallerUser: "alice", CallerUID: os.Getuid(), CallerGID: os.Getgid()})
	require.NoError(t, err)

	_, err = e.Allocate(Request{Name: "proj", DurationDays: &one, Extend: true, CallerUser: "alice", CallerUID: os.Getuid(), CallerGID: os.Getgid()})
	assert.Error(t, err)
}

func TestAllocateRejectsIllegalName(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Allocate(Request{Name: "abc/def", CallerUser: "alice", CallerUID: os.Getuid(), CallerGID: os.Getgid()})
	assert.Error(t, err)
}
