// Package restore implements the Restore Engine (C9): moving a grace-state
// workspace's contents into an existing live workspace and removing the
// grace entry (spec §4.9).
package restore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/hpcws/ws/internal/wsdir"
)

// graceIDPattern matches a full grace id <owner>-<name>-<timestamp>.
var graceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*-\d+$`)

// Request carries every input to Restore (§4.9).
type Request struct {
	GraceID    string // <owner>-<name>-<ts>
	TargetName string // live workspace name owned by the caller
	Filesystem string // "" means search the caller's ordered list

	CallerUser   string
	CallerGroups []string
	CallerIsRoot bool

	// Verify is the interactive verification challenge (§4.9, final
	// paragraph): it must return true before the rename is attempted.
	// A nil Verify always passes, for non-interactive callers (tests,
	// and `ws restore --yes`).
	Verify func() (bool, error)
}

// DBProvider resolves a filesystem name to its open Database handle.
type DBProvider func(fsName string) (*storage.DB, error)

// Engine restores grace-state workspaces across the configured
// filesystems.
type Engine struct {
	Config *config.Config
	DBs    DBProvider
	Dir    *wsdir.Manager
}

type graceMatch struct {
	fsName string
	db     *storage.DB
	entry  *storage.Entry
}

// Restore implements §4.9 end to end.
func (e *Engine) Restore(req Request) error {
	if !graceIDPattern.MatchString(req.GraceID) {
		return fmt.Errorf("%w: %q is not a valid grace id", wserrors.NameIllegal, req.GraceID)
	}
	ownerPrefix := ownerOf(req.GraceID)
	if !req.CallerIsRoot && ownerPrefix != req.CallerUser {
		return fmt.Errorf("%w: %s may not restore %s", wserrors.AccessDenied, req.CallerUser, req.GraceID)
	}

	var candidates []string
	if req.Filesystem != "" {
		candidates = []string{req.Filesystem}
	} else {
		candidates = e.Config.ValidFilesystems(req.CallerUser, req.CallerGroups)
	}

	matches, err := e.findGrace(candidates, req.GraceID)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: grace entry %s", wserrors.NotFound, req.GraceID)
	}
	if len(matches) > 1 {
		return fmt.Errorf("%w: grace entry %s is ambiguous across %d filesystems", wserrors.Exists, req.GraceID, len(matches))
	}
	src := matches[0]

	fsCfg := e.Config.Filesystems[src.fsName]
	if !fsCfg.Restorable {
		return fmt.Errorf("%w: filesystem %s is not restorable", wserrors.AccessDenied, src.fsName)
	}

	target, err := e.findLiveTarget(candidates, req.CallerUser, req.TargetName)
	if err != nil {
		return err
	}

	if req.Verify != nil {
		ok, err := req.Verify()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: restore verification declined for %s", wserrors.AccessDenied, req.GraceID)
		}
	}

	if err := e.Dir.RestoreInto(src.entry.Workspace, target.Workspace); err != nil {
		return err
	}

	return src.db.DeleteEntry(req.GraceID, true)
}

// findGrace searches grace entries named req.GraceID across candidates,
// returning every filesystem where it is present (callers require exactly
// one).
func (e *Engine) findGrace(candidates []string, graceID string) ([]graceMatch, error) {
	var out []graceMatch
	for _, fsName := range candidates {
		db, err := e.DBs(fsName)
		if err != nil {
			continue
		}
		entry, err := db.ReadEntry(graceID, true)
		if err == nil {
			out = append(out, graceMatch{fsName: fsName, db: db, entry: entry})
			continue
		}
		if !wserrors.Is(err, wserrors.NotFound) {
			return nil, err
		}
	}
	return out, nil
}

// findLiveTarget locates the caller's live workspace named name among
// candidates.
func (e *Engine) findLiveTarget(candidates []string, caller, name string) (*storage.Entry, error) {
	id := storage.MakeID(caller, name)
	for _, fsName := range candidates {
		db, err := e.DBs(fsName)
		if err != nil {
			continue
		}
		entry, err := db.ReadEntry(id, false)
		if err == nil {
			return entry, nil
		}
		if !wserrors.Is(err, wserrors.NotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: target workspace %s", wserrors.NotFound, id)
}

func ownerOf(graceID string) string {
	// <owner>-<name>-<ts>: the owner is everything before the first '-',
	// matching how MakeID/ValidName structure every id in this system.
	idx := strings.IndexByte(graceID, '-')
	if idx < 0 {
		return graceID
	}
	return graceID[:idx]
}
