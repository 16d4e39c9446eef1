// Package allocate implements the Allocation/Extension Engine (C7): the
// user-facing create-or-extend operation, probing the ordered filesystem
// list for an existing entry before deciding whether to extend or create.
package allocate

import (
	"fmt"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/hpcws/ws/internal/wsdir"
	"golang.org/x/sys/unix"
)

const secondsPerDay = 86400

// Request carries every input to Allocate (§4.7).
type Request struct {
	Name            string
	Filesystem      string // "" means search the caller's ordered list
	DurationDays    *int   // nil means use the global/filesystem default
	Extend          bool
	Reminder        *int
	MailAddress     *string
	Comment         *string
	OwnerOverride   string // target username; only honored for root, or when Extend
	GroupFlag       bool
	GroupName       string

	CallerUser   string
	CallerUID    int
	CallerGID    int
	CallerGroups []string
	CallerIsRoot bool
}

// Result is what Allocate returns: the (possibly unchanged) entry, whether
// it was newly created, and the remaining extension count.
type Result struct {
	Entry               *storage.Entry
	Created             bool
	RemainingExtensions int
}

// DBProvider resolves a filesystem name to its open Database handle.
type DBProvider func(fsName string) (*storage.DB, error)

// Engine orchestrates allocation/extension across the configured
// filesystems.
type Engine struct {
	Config  *config.Config
	DBs     DBProvider
	Dir     *wsdir.Manager
	ResolveGroupGID func(name string) (int, error)
}

func (e *Engine) effectiveOwner(req Request) string {
	if req.CallerIsRoot && req.OwnerOverride != "" {
		return req.OwnerOverride
	}
	if req.Extend && req.OwnerOverride != "" {
		return req.OwnerOverride
	}
	return req.CallerUser
}

// probeResult is the outcome of checking one candidate filesystem for an
// existing entry (design notes §9: replace exception-based "not found"
// probing with a total result variant).
type probeResult struct {
	fsName string
	db     *storage.DB
	entry  *storage.Entry
	found  bool
}

func (e *Engine) probe(candidates []string, id string) (probeResult, error) {
	for _, fsName := range candidates {
		db, err := e.DBs(fsName)
		if err != nil {
			continue
		}
		entry, err := db.ReadEntry(id, false)
		if err == nil {
			return probeResult{fsName: fsName, db: db, entry: entry, found: true}, nil
		}
		if !wserrors.Is(err, wserrors.NotFound) {
			return probeResult{}, err
		}
	}
	return probeResult{found: false}, nil
}

// Allocate implements §4.7 end to end.
func (e *Engine) Allocate(req Request) (*Result, error) {
	if !storage.ValidName(req.Name) {
		return nil, fmt.Errorf("%w: %q", wserrors.NameIllegal, req.Name)
	}

	var candidates []string
	if req.Filesystem != "" {
		if !e.Config.HasAccess(req.CallerUser, req.CallerGroups, req.Filesystem, config.IntentUse) {
			return nil, fmt.Errorf("%w: %s on %s", wserrors.AccessDenied, req.CallerUser, req.Filesystem)
		}
		candidates = []string{req.Filesystem}
	} else {
		candidates = e.Config.ValidFilesystems(req.CallerUser, req.CallerGroups)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no accessible filesystem", wserrors.AccessDenied)
	}

	owner := e.effectiveOwner(req)
	id := storage.MakeID(owner, req.Name)

	probe, err := e.probe(candidates, id)
	if err != nil {
		return nil, err
	}

	if probe.found {
		if req.Extend {
			return e.extend(req, probe)
		}
		return &Result{Entry: probe.entry, Created: false, RemainingExtensions: probe.entry.Extensions}, nil
	}

	if req.Extend {
		return nil, fmt.Errorf("%w: %s", wserrors.NotFound, id)
	}
	return e.create(req, candidates, id, owner)
}

func (e *Engine) extend(req Request, p probeResult) (*Result, error) {
	fs := e.Config.Filesystems[p.fsName]
	if !fs.Extendable {
		return nil, fmt.Errorf("%w: filesystem %s is not extendable", wserrors.AccessDenied, p.fsName)
	}

	if p.entry.ID != storage.MakeID(req.CallerUser, req.Name) && !req.CallerIsRoot {
		if err := requireRWX(p.entry.Workspace); err != nil {
			return nil, err
		}
	}

	maxExt := e.Config.EffectiveMaxExtensions(p.fsName)
	if !req.CallerIsRoot {
		if p.entry.Extensions <= 0 {
			return nil, fmt.Errorf("%w: %s", wserrors.NoExtensions, p.entry.ID)
		}
		p.entry.Extensions--
	}

	duration := fs.MaxDurationDays
	if req.DurationDays != nil && *req.DurationDays < duration {
		duration = *req.DurationDays
	}
	if duration <= 0 {
		duration = fs.MaxDurationDays
	}

	p.entry.Expiration = nowFunc() + int64(duration)*secondsPerDay
	if req.MailAddress != nil {
		p.entry.MailAddress = *req.MailAddress
	}
	if req.Reminder != nil {
		p.entry.Reminder = int64(*req.Reminder)
	}
	if req.Comment != nil {
		p.entry.Comment = *req.Comment
	}

	if err := p.db.WriteEntry(p.entry, false); err != nil {
		return nil, err
	}

	remaining := p.entry.Extensions
	if req.CallerIsRoot {
		remaining = maxExt
	}
	return &Result{Entry: p.entry, Created: false, RemainingExtensions: remaining}, nil
}

func (e *Engine) create(req Request, candidates []string, id, owner string) (*Result, error) {
	var targetFs string
	for _, fsName := range candidates {
		if e.Config.HasAccess(req.CallerUser, req.CallerGroups, fsName, config.IntentCreate) && e.Config.Filesystems[fsName].Allocatable {
			targetFs = fsName
			break
		}
	}
	if targetFs == "" {
		return nil, fmt.Errorf("%w: no allocatable, accessible filesystem", wserrors.AccessDenied)
	}

	fsCfg := e.Config.Filesystems[targetFs]
	db, err := e.DBs(targetFs)
	if err != nil {
		return nil, err
	}

	duration := req.durationOrDefault(fsCfg, e.Config)

	// When OwnerOverride names another user, the CLI layer resolves that
	// user's uid/gid and populates CallerUID/CallerGID before calling
	// Allocate; this engine trusts whatever identity it was given.
	ownerUID := req.CallerUID
	ownerGID := req.CallerGID

	space, err := wsdir.SelectSpace(fsCfg, ownerUID, ownerGID)
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	entry := &storage.Entry{
		ID:          id,
		Filesystem:  targetFs,
		Workspace:   space + "/" + owner + "-" + req.Name,
		Creation:    now,
		Expiration:  now + int64(duration)*secondsPerDay,
		Extensions:  e.Config.EffectiveMaxExtensions(targetFs),
		Group:       req.GroupName,
		DBVersion:   1,
	}
	if req.MailAddress != nil {
		entry.MailAddress = *req.MailAddress
	}
	if req.Reminder != nil {
		entry.Reminder = int64(*req.Reminder)
	}
	if req.Comment != nil {
		entry.Comment = *req.Comment
	}

	// Write-entry-first: a crash between here and the directory create
	// leaves a dangling entry that the expirer retires once it expires
	// (phase B), rather than an orphan directory that would look like
	// someone else's data (spec §3).
	if err := db.CreateEntry(entry); err != nil {
		return nil, err
	}

	groupGID := 0
	if req.GroupName != "" && e.ResolveGroupGID != nil {
		gid, err := e.ResolveGroupGID(req.GroupName)
		if err == nil {
			groupGID = gid
		}
	}

	path, err := e.Dir.CreateWorkspace(wsdir.CreateOptions{
		Space:          space,
		Name:           req.Name,
		EffectiveOwner: owner,
		OwnerUID:       ownerUID,
		OwnerGID:       ownerGID,
		GroupFlag:      req.GroupFlag,
		GroupName:      req.GroupName,
		GroupGID:       groupGID,
	})
	if err != nil {
		// The directory failed; leave the entry for the expirer to
		// reconcile rather than racing a delete against a concurrent
		// reader (spec §3 rationale).
		return nil, err
	}
	entry.Workspace = path

	return &Result{Entry: entry, Created: true, RemainingExtensions: entry.Extensions}, nil
}

func (r Request) durationOrDefault(fs *config.Filesystem, global *config.Config) int {
	d := global.DurationDays
	if fs.MaxDurationDays > 0 && (d == 0 || d > fs.MaxDurationDays) {
		d = fs.MaxDurationDays
	}
	if r.DurationDays != nil {
		d = *r.DurationDays
	}
	if fs.MaxDurationDays > 0 && d > fs.MaxDurationDays {
		d = fs.MaxDurationDays
	}
	if d <= 0 {
		d = 1
	}
	return d
}

func requireRWX(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%w: insufficient access to %s", wserrors.AccessDenied, path)
	}
	return nil
}
