// Package release implements the Release Engine (C8): transitioning a live
// workspace to the grace state on user request.
package release

import (
	"fmt"
	"time"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/hpcws/ws/internal/wsdir"
)

// nowFunc is overridden in tests to make grace-suffix math deterministic.
var nowFunc = func() int64 { return time.Now().Unix() }

// Request carries every input to Release (§4.8).
type Request struct {
	Name       string
	Filesystem string // "" means search the caller's ordered list
	DeleteData bool

	CallerUser   string
	CallerGroups []string
	CallerIsRoot bool
	OwnerOverride string // target username; only honored for root
}

// DBProvider resolves a filesystem name to its open Database handle.
type DBProvider func(fsName string) (*storage.DB, error)

// Engine releases workspaces across the configured filesystems.
type Engine struct {
	Config *config.Config
	DBs    DBProvider
	Dir    *wsdir.Manager
}

// delDirTimeout converts the configured deldirtimeout (seconds) to a
// time.Duration, defaulting to 60s when unset.
func (e *Engine) delDirTimeout() time.Duration {
	if e.Config.DelDirTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(e.Config.DelDirTimeout) * time.Second
}

func (req Request) effectiveOwner() string {
	if req.CallerIsRoot && req.OwnerOverride != "" {
		return req.OwnerOverride
	}
	return req.CallerUser
}

// Release implements §4.8 end to end: mark released, rewrite the entry,
// move the entry file to grace, move the workspace directory to grace, and
// optionally delete the directory tree immediately.
func (e *Engine) Release(req Request) error {
	owner := req.effectiveOwner()
	id := storage.MakeID(owner, req.Name)

	var candidates []string
	if req.Filesystem != "" {
		candidates = []string{req.Filesystem}
	} else {
		candidates = e.Config.ValidFilesystems(req.CallerUser, req.CallerGroups)
	}

	var db *storage.DB
	var entry *storage.Entry
	var foundFs string
	for _, fsName := range candidates {
		candidate, err := e.DBs(fsName)
		if err != nil {
			continue
		}
		e2, err := candidate.ReadEntry(id, false)
		if err == nil {
			db = candidate
			entry = e2
			foundFs = fsName
			break
		}
		if !wserrors.Is(err, wserrors.NotFound) {
			return err
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: %s", wserrors.NotFound, id)
	}

	if entry.ID != storage.MakeID(req.CallerUser, req.Name) && !req.CallerIsRoot {
		return fmt.Errorf("%w: %s is not owned by %s", wserrors.AccessDenied, id, req.CallerUser)
	}

	now := nowFunc()
	entry.Released = now

	if err := db.WriteEntry(entry, false); err != nil {
		return err
	}

	graceID, err := db.MoveEntryToGrace(id, now)
	if err != nil {
		return err
	}

	fsCfg := e.Config.Filesystems[foundFs]
	deletedRoot := wsdir.DeletedRoot(entry.Workspace, fsCfg.DeletedPath)
	gracePath, err := e.Dir.MoveToGrace(entry.Workspace, deletedRoot, now)
	if err != nil {
		return err
	}

	entry.ID = graceID
	entry.Workspace = gracePath
	if err := db.WriteEntry(entry, true); err != nil {
		return err
	}

	if req.DeleteData {
		if err := e.Dir.RemoveTree(gracePath, e.delDirTimeout()); err != nil {
			return err
		}
		if err := db.DeleteEntry(graceID, true); err != nil {
			return err
		}
	}

	return nil
}
