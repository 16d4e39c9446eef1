// Package wsdir implements the Workspace Directory Manager (C6): space
// selection, privileged directory creation, ownership/mode assignment, and
// the move/delete operations backing release, restore, and expiry.
package wsdir

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/hpcws/ws/internal/config"
	"golang.org/x/sys/unix"
)

// DeletedRoot derives a workspace's grace-area root from its live path:
// <space>/<deletedPath>, where <space> is the live path's parent directory.
func DeletedRoot(workspacePath, deletedPath string) string {
	return filepath.Join(filepath.Dir(workspacePath), deletedPath)
}

// SelectSpace implements §4.6 step 1: choose one of fs.Spaces according to
// fs.SpaceSelection.
func SelectSpace(fs *config.Filesystem, uid, gid int) (string, error) {
	if len(fs.Spaces) == 0 {
		return "", fmt.Errorf("wsdir: filesystem %q has no spaces", fs.Name)
	}
	if len(fs.Spaces) == 1 {
		return fs.Spaces[0], nil
	}

	switch fs.SpaceSelection {
	case config.SelectUID:
		return fs.Spaces[uid%len(fs.Spaces)], nil
	case config.SelectGID:
		return fs.Spaces[gid%len(fs.Spaces)], nil
	case config.SelectMostSpace:
		return selectMostSpace(fs.Spaces)
	default: // config.SelectRandom and any unrecognized value
		return fs.Spaces[rand.Intn(len(fs.Spaces))], nil
	}
}

// selectMostSpace picks the candidate with the most free bytes
// (f_bsize * f_bfree); ties go to the lowest index.
func selectMostSpace(spaces []string) (string, error) {
	bestIdx := -1
	var bestFree uint64
	for i, s := range spaces {
		var st unix.Statfs_t
		if err := unix.Statfs(s, &st); err != nil {
			continue
		}
		free := uint64(st.Bsize) * st.Bfree
		if bestIdx == -1 || free > bestFree {
			bestIdx = i
			bestFree = free
		}
	}
	if bestIdx == -1 {
		return "", fmt.Errorf("wsdir: no candidate space was statable among %v", spaces)
	}
	return spaces[bestIdx], nil
}
