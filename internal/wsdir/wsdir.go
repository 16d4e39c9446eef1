package wsdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/wserrors"
	"golang.org/x/sys/unix"
)

// Manager performs privileged filesystem operations on workspace
// directories. Every method brackets its mutation with a Broker raise and
// release (see privilege.Guard).
type Manager struct {
	Broker privilege.Broker
}

// CreateOptions carries the inputs to CreateWorkspace (§4.6).
type CreateOptions struct {
	Space          string // chosen root, from SelectSpace
	Name           string
	EffectiveOwner string // target username
	OwnerUID       int
	OwnerGID       int // primary group gid, used when GroupName == ""
	GroupFlag      bool
	GroupName      string
	GroupGID       int // resolved gid for GroupName, when non-empty
}

// CreateWorkspace creates <space>/<effectiveOwner>-<name>, sets its
// owner/group and mode per spec invariant 6, and returns the resulting
// path. If the directory already exists it fails with Exists and leaves
// that directory untouched. Any failure after the directory is created
// causes it to be unlinked before returning.
func (m *Manager) CreateWorkspace(opts CreateOptions) (string, error) {
	path := filepath.Join(opts.Space, opts.EffectiveOwner+"-"+opts.Name)

	guard, err := m.Broker.Raise(privilege.Override)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	oldUmask := unix.Umask(0077)
	mkErr := os.MkdirAll(opts.Space, 0700)
	if mkErr == nil {
		mkErr = os.Mkdir(path, 0700)
	}
	unix.Umask(oldUmask)
	if relErr := guard.Release(); relErr != nil && mkErr == nil {
		mkErr = relErr
	}
	if errors.Is(mkErr, os.ErrExist) {
		return "", fmt.Errorf("%w: %s", wserrors.Exists, path)
	}
	if mkErr != nil {
		return "", fmt.Errorf("%w: creating %s: %v", wserrors.IOFailed, path, mkErr)
	}

	if err := m.finishCreate(path, opts); err != nil {
		m.removeBestEffort(path)
		return "", err
	}
	return path, nil
}

func (m *Manager) finishCreate(path string, opts CreateOptions) error {
	chownGuard, err := m.Broker.Raise(privilege.Chown)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	gid := opts.OwnerGID
	if opts.GroupName != "" {
		gid = opts.GroupGID
	}
	chownErr := os.Chown(path, opts.OwnerUID, gid)
	if relErr := chownGuard.Release(); relErr != nil && chownErr == nil {
		chownErr = relErr
	}
	if chownErr != nil {
		return fmt.Errorf("%w: chown %s: %v", wserrors.IOFailed, path, chownErr)
	}

	mode := os.FileMode(0700)
	if opts.GroupFlag {
		mode |= 0050
	}
	if opts.GroupName != "" {
		mode |= 0020 | os.ModeSetgid
	}
	chmodGuard, err := m.Broker.Raise(privilege.Chown)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	chmodErr := os.Chmod(path, mode)
	if relErr := chmodGuard.Release(); relErr != nil && chmodErr == nil {
		chmodErr = relErr
	}
	if chmodErr != nil {
		return fmt.Errorf("%w: chmod %s: %v", wserrors.IOFailed, path, chmodErr)
	}
	return nil
}

func (m *Manager) removeBestEffort(path string) {
	guard, err := m.Broker.Raise(privilege.Override)
	if err != nil {
		return
	}
	defer guard.Release()
	_ = os.RemoveAll(path)
}

// MoveToGrace renames a workspace directory to its grace path
// (<space>/<deletedPath>/<basename>-<timestamp>), impersonating the
// database owner on setuid installs so the rename succeeds even on a
// root-squashed network filesystem.
func (m *Manager) MoveToGrace(path, deletedRoot string, timestamp int64) (string, error) {
	base := filepath.Base(path)
	dst := filepath.Join(deletedRoot, fmt.Sprintf("%s-%d", base, timestamp))

	guard, err := m.Broker.RaiseAsDB(privilege.Override)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	if err := os.MkdirAll(deletedRoot, 0700); err != nil {
		return "", fmt.Errorf("%w: creating grace area %s: %v", wserrors.IOFailed, deletedRoot, err)
	}
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("%w: moving %s to grace: %v", wserrors.IOFailed, path, err)
	}
	return dst, nil
}

// RestoreInto performs the filesystem-level rename at the heart of the
// Restore Engine (§4.9 step 5): the grace directory becomes a child of the
// target live workspace, merging its contents in. The rename must be
// atomic within one filesystem; a cross-device attempt fails with
// CrossDevice rather than falling back to a non-atomic copy.
func (m *Manager) RestoreInto(gracePath, targetWorkspace string) error {
	dst := filepath.Join(targetWorkspace, filepath.Base(gracePath))

	guard, err := m.Broker.RaiseAsDB(privilege.Override)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	if err := os.Rename(gracePath, dst); err != nil {
		if errors.Is(err, unix.EXDEV) {
			return fmt.Errorf("%w: restoring %s into %s", wserrors.CrossDevice, gracePath, targetWorkspace)
		}
		return fmt.Errorf("%w: restoring %s into %s: %v", wserrors.IOFailed, gracePath, targetWorkspace, err)
	}
	return nil
}

// RemoveTree deletes a directory tree entirely, returning an IOFailed
// error once timeout elapses (spec §5's deldirtimeout). The removal
// already started is not cancelled on timeout; it keeps running in the
// background. On timeout the caller should continue with the next tree
// rather than retry immediately.
func (m *Manager) RemoveTree(path string, timeout time.Duration) error {
	guard, err := m.Broker.RaiseAsDB(privilege.Override)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	done := make(chan error, 1)
	go func() { done <- os.RemoveAll(path) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: removing %s: %v", wserrors.IOFailed, path, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: removing %s exceeded %s", wserrors.IOFailed, path, timeout)
	}
}
