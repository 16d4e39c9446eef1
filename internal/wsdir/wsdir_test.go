package wsdir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWorkspaceAndRemove(t *testing.T) {
	space := t.TempDir()
	m := &Manager{Broker: privilege.NewNoop()}

	path, err := m.CreateWorkspace(CreateOptions{
		Space:          space,
		Name:           "proj",
		EffectiveOwner: "alice",
		OwnerUID:       os.Getuid(),
		OwnerGID:       os.Getgid(),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(space, "alice-proj"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, m.RemoveTree(path, 5*time.Second))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateWorkspaceDuplicateFails(t *testing.T) {
	space := t.TempDir()
	m := &Manager{Broker: privilege.NewNoop()}
	opts := CreateOptions{Space: space, Name: "proj", EffectiveOwner: "alice", OwnerUID: os.Getuid(), OwnerGID: os.Getgid()}

	_, err := m.CreateWorkspace(opts)
	require.NoError(t, err)

	// A second creation of the same <owner>-<name> loses the race: it fails
	// with Exists and must leave the first directory in place.
	_, err = m.CreateWorkspace(opts)
	assert.ErrorIs(t, err, wserrors.Exists)
	_, statErr := os.Stat(filepath.Join(space, "alice-proj"))
	assert.NoError(t, statErr)
}

func TestMoveToGrace(t *testing.T) {
	space := t.TempDir()
	m := &Manager{Broker: privilege.NewNoop()}
	path, err := m.CreateWorkspace(CreateOptions{Space: space, Name: "proj", EffectiveOwner: "alice", OwnerUID: os.Getuid(), OwnerGID: os.Getgid()})
	require.NoError(t, err)

	deletedRoot := filepath.Join(space, ".removed")
	dst, err := m.MoveToGrace(path, deletedRoot, 12345)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(deletedRoot, "alice-proj-12345"), dst)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRestoreIntoMergesAsChild(t *testing.T) {
	space := t.TempDir()
	m := &Manager{Broker: privilege.NewNoop()}

	gracePath, err := m.CreateWorkspace(CreateOptions{Space: space, Name: "old", EffectiveOwner: "alice", OwnerUID: os.Getuid(), OwnerGID: os.Getgid()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(gracePath, "data.txt"), []byte("hi"), 0644))

	target, err := m.CreateWorkspace(CreateOptions{Space: space, Name: "bucket", EffectiveOwner: "alice", OwnerUID: os.Getuid(), OwnerGID: os.Getgid()})
	require.NoError(t, err)

	require.NoError(t, m.RestoreInto(gracePath, target))

	_, err = os.Stat(gracePath)
	assert.True(t, os.IsNotExist(err))

	merged := filepath.Join(target, filepath.Base(gracePath))
	got, err := os.ReadFile(filepath.Join(merged, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestSelectSpaceUIDAndGID(t *testing.T) {
	fs := &config.Filesystem{Spaces: []string{"/a", "/b", "/c"}, SpaceSelection: config.SelectUID}
	got, err := SelectSpace(fs, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, "/b", got) // 4 % 3 == 1

	fs.SpaceSelection = config.SelectGID
	got, err = SelectSpace(fs, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "/c", got) // 5 % 3 == 2
}

func TestSelectSpaceSingleCandidate(t *testing.T) {
	fs := &config.Filesystem{Spaces: []string{"/only"}, SpaceSelection: config.SelectRandom}
	got, err := SelectSpace(fs, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "/only", got)
}

func TestSelectSpaceMostSpace(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	fs := &config.Filesystem{Spaces: []string{a, b}, SpaceSelection: config.SelectMostSpace}
	got, err := SelectSpace(fs, 0, 0)
	require.NoError(t, err)
	assert.Contains(t, fs.Spaces, got)
}
