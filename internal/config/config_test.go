package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
clustername: hpc-1
dbuid: 4711
dbgid: 4711
default: scratch
admins: [root, ops]
workspaces:
  scratch:
    spaces: [/mnt/a, /mnt/b]
    spaceselection: mostspace
    deleted: .removed
    database: /var/lib/ws/scratch
    keeptime: 30
    maxduration: 60
    maxextensions: 3
    user_acl: [+alice, -bob:create]
    allocatable: true
    extendable: true
    restorable: true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ws.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesSample(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "hpc-1", cfg.ClusterName)
	assert.Equal(t, "scratch", cfg.DefaultWorkspace)
	assert.Equal(t, []string{"root", "ops"}, cfg.Admins)

	fs, ok := cfg.Filesystems["scratch"]
	require.True(t, ok)
	assert.Equal(t, SelectMostSpace, fs.SpaceSelection)
	assert.Equal(t, 3, fs.MaxExtensions)
	assert.True(t, fs.Allocatable)
}

func TestLoadFirstSourceWins(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.conf")
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load([]string{missing, path})
	require.NoError(t, err)
	assert.Equal(t, "hpc-1", cfg.ClusterName)
}

func TestLoadRejectsMissingRequiredKeys(t *testing.T) {
	path := writeTempConfig(t, "clustername: nope\n")
	_, err := Load([]string{path})
	assert.Error(t, err)
}

func TestHasAccessGroupGrantUserRevoke(t *testing.T) {
	raw := `
dbuid: 1
dbgid: 1
workspaces:
  fs1:
    spaces: [/mnt/a]
    deleted: .removed
    database: /var/lib/ws/fs1
    user_acl: [-bob]
    group_acl: [+devs]
`
	path := writeTempConfig(t, raw)
	cfg, err := Load([]string{path})
	require.NoError(t, err)

	assert.False(t, cfg.HasAccess("bob", []string{"devs"}, "fs1", IntentUse))

	valid := cfg.ValidFilesystems("bob", []string{"devs"})
	assert.NotContains(t, valid, "fs1")
}

func TestHasAccessAdminOverride(t *testing.T) {
	raw := `
dbuid: 1
dbgid: 1
admins: [root]
workspaces:
  fs1:
    spaces: [/mnt/a]
    deleted: .removed
    database: /var/lib/ws/fs1
    user_acl: [-root]
`
	path := writeTempConfig(t, raw)
	cfg, err := Load([]string{path})
	require.NoError(t, err)
	assert.True(t, cfg.HasAccess("root", nil, "fs1", IntentUse))
}

func TestHasAccessMonotonicInAdmins(t *testing.T) {
	raw := `
dbuid: 1
dbgid: 1
workspaces:
  fs1:
    spaces: [/mnt/a]
    deleted: .removed
    database: /var/lib/ws/fs1
    user_acl: [-carol]
`
	path := writeTempConfig(t, raw)
	cfg, err := Load([]string{path})
	require.NoError(t, err)

	before := cfg.HasAccess("carol", nil, "fs1", IntentUse)
	cfg.Admins = append(cfg.Admins, "carol")
	after := cfg.HasAccess("carol", nil, "fs1", IntentUse)

	assert.False(t, before)
	assert.True(t, after)
}

func TestValidFilesystemsIsPermutationOfAccessible(t *testing.T) {
	raw := `
dbuid: 1
dbgid: 1
workspaces:
  a:
    spaces: [/mnt/a]
    deleted: .removed
    database: /var/lib/ws/a
  b:
    spaces: [/mnt/b]
    deleted: .removed
    database: /var/lib/ws/b
    user_acl: [-dave]
`
	path := writeTempConfig(t, raw)
	cfg, err := Load([]string{path})
	require.NoError(t, err)

	valid := cfg.ValidFilesystems("dave", nil)
	assert.ElementsMatch(t, []string{"a"}, valid)
}

func TestAliasMergeWorkspacesAndFilesystems(t *testing.T) {
	raw := `
dbuid: 1
dbgid: 1
workspaces:
  a:
    spaces: [/mnt/a]
    deleted: .removed
    database: /var/lib/ws/a
filesystems:
  a:
    spaces: [/mnt/a2]
    deleted: .removed2
    database: /var/lib/ws/a2
`
	path := writeTempConfig(t, raw)
	cfg, err := Load([]string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/a2"}, cfg.Filesystems["a"].Spaces)
}
