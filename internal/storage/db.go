package storage

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/hpcws/ws/internal/wslog"
)

// MagicFile is the sentinel filename guarding a database directory
// against destructive sweeps on the wrong or unmounted filesystem.
const MagicFile = ".ws_db_magic"

// DB is the on-disk database for a single filesystem (§4.5).
type DB struct {
	FSName      string
	Dir         string // <database>
	DeletedDir  string // <database>/<deletedPath>
	DBUID       int
	DBGID       int
	Broker      privilege.Broker
}

// CheckMagic reads the database's sentinel file and verifies its first
// line equals FSName. Absence or mismatch returns MagicMismatch, never a
// bare I/O error, so callers can treat it as a guard failure specifically
// (spec invariant 5, edge case in §8).
func (db *DB) CheckMagic() error {
	data, err := os.ReadFile(filepath.Join(db.Dir, MagicFile))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", wserrors.MagicMismatch, db.FSName, err)
	}
	first, _, _ := strings.Cut(string(data), "\n")
	if strings.TrimSpace(first) != db.FSName {
		return fmt.Errorf("%w: %s: magic file contains %q", wserrors.MagicMismatch, db.FSName, first)
	}
	return nil
}

// WriteMagic creates/overwrites the sentinel file; used by database
// initialization tooling and tests, never by a sweep.
func (db *DB) WriteMagic() error {
	guard, err := db.Broker.Raise(privilege.Override, privilege.Chown)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	path := filepath.Join(db.Dir, MagicFile)
	if err := os.WriteFile(path, []byte(db.FSName+"\n"), 0644); err != nil {
		return fmt.Errorf("%w: writing magic: %v", wserrors.IOFailed, err)
	}
	_ = os.Chown(path, db.DBUID, db.DBGID)
	return nil
}

func (db *DB) dirFor(grace bool) string {
	if grace {
		return db.DeletedDir
	}
	return db.Dir
}

func entryMode(groupVisible bool) os.FileMode {
	if groupVisible {
		return 0744
	}
	return 0644
}

// writeAtomic serializes data to a temp file in dir and renames it onto
// path in one step, so concurrent readers never observe a partial write.
// SIGINT is masked for the duration so a user's Ctrl-C cannot interrupt it
// mid-write (spec §5).
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	// Mask SIGINT for the duration of the write: Notify reroutes the
	// signal to sigCh instead of the default terminate action, and Stop
	// restores default handling once the write (and rename) completes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp entry file: %v", wserrors.IOFailed, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp entry file: %v", wserrors.IOFailed, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod temp entry file: %v", wserrors.IOFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp entry file: %v", wserrors.IOFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename entry file into place: %v", wserrors.IOFailed, err)
	}
	return nil
}

// CreateEntry constructs a new entry at its target path and writes it with
// the owner/mode invariants (§3 invariant 7). The directory must already
// exist (the database directory itself, not the workspace directory).
func (db *DB) CreateEntry(e *Entry) error {
	path := filepath.Join(db.Dir, e.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: entry %s", wserrors.Exists, e.ID)
	}
	e.Filesystem = db.FSName

	guard, err := db.Broker.RaiseAsDB(privilege.Override, privilege.Chown)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	data, err := marshalEntry(e)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data, entryMode(e.Group != "")); err != nil {
		return err
	}
	if err := os.Chown(path, db.DBUID, db.DBGID); err != nil {
		wslog.WithFilesystem(db.FSName).Warn().Err(err).Str("id", e.ID).Msg("storage: chown entry failed")
	}
	return nil
}

// ReadEntry parses the entry file for id in the live or grace directory.
func (db *DB) ReadEntry(id string, grace bool) (*Entry, error) {
	path := filepath.Join(db.dirFor(grace), id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", wserrors.NotFound, id)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", wserrors.IOFailed, id, err)
	}
	return unmarshalEntry(id, db.FSName, data)
}

// WriteEntry rewrites an existing entry's file in place (used by extend,
// release, and expirer transitions) and reapplies owner/mode.
func (db *DB) WriteEntry(e *Entry, grace bool) error {
	path := filepath.Join(db.dirFor(grace), e.ID)

	guard, err := db.Broker.RaiseAsDB(privilege.Override, privilege.Chown)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	data, err := marshalEntry(e)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data, entryMode(e.Group != "")); err != nil {
		return err
	}
	if err := os.Chown(path, db.DBUID, db.DBGID); err != nil {
		wslog.WithFilesystem(db.FSName).Warn().Err(err).Str("id", e.ID).Msg("storage: chown entry failed")
	}
	return nil
}

// DeleteEntry unlinks the entry file for id.
func (db *DB) DeleteEntry(id string, grace bool) error {
	guard, err := db.Broker.RaiseAsDB(privilege.Override)
	if err != nil {
		return fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	path := filepath.Join(db.dirFor(grace), id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", wserrors.NotFound, id)
		}
		return fmt.Errorf("%w: deleting %s: %v", wserrors.IOFailed, id, err)
	}
	return nil
}

// MoveEntryToGrace renames a live entry file to its grace path
// (<id>-<timestamp>) under DeletedDir. The caller is responsible for
// having already set Released on the in-memory entry and rewriting it
// in place via WriteEntry before calling this.
func (db *DB) MoveEntryToGrace(id string, timestamp int64) (graceID string, err error) {
	graceID = fmt.Sprintf("%s-%d", id, timestamp)

	guard, err := db.Broker.RaiseAsDB(privilege.Override)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wserrors.PrivilegeFailed, err)
	}
	defer guard.Release()

	src := filepath.Join(db.Dir, id)
	dst := filepath.Join(db.DeletedDir, graceID)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("%w: moving entry %s to grace: %v", wserrors.IOFailed, id, err)
	}
	return graceID, nil
}

// ListIDs returns every entry id in the live or grace directory, skipping
// the magic sentinel and any dotfile. Used by the expirer's phase A/B
// sweeps, which need the full set rather than a single glob match.
func (db *DB) ListIDs(grace bool) ([]string, error) {
	dir := db.dirFor(grace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", wserrors.IOFailed, dir, err)
	}
	var ids []string
	for _, de := range entries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if name == MagicFile || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// MatchPattern implements §4.5's matchPattern: listing live or grace
// entries by shell-glob, optionally restricted by group membership for
// group-visible listing. Unreadable entries are skipped and logged, never
// abort the scan.
func (db *DB) MatchPattern(pattern, userPattern string, groups []string, grace, groupWorkspaces bool) ([]string, error) {
	dir := db.dirFor(grace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", wserrors.IOFailed, dir, err)
	}

	var full string
	if !groupWorkspaces {
		full = userPattern + "-" + pattern
	} else {
		full = "*-" + pattern
	}

	inGroups := func(name string) bool {
		for _, g := range groups {
			if g == name {
				return true
			}
		}
		return false
	}

	var matches []string
	for _, de := range entries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if name == MagicFile || strings.HasPrefix(name, ".") {
			continue
		}
		if !globMatch(full, name) {
			continue
		}
		if groupWorkspaces {
			entry, err := db.ReadEntry(name, grace)
			if err != nil {
				wslog.WithFilesystem(db.FSName).Warn().Err(err).Str("id", name).Msg("storage: skipping unreadable entry during group match")
				continue
			}
			if entry.Group == "" || !inGroups(entry.Group) {
				continue
			}
		}
		matches = append(matches, name)
	}
	sort.Strings(matches)
	return matches, nil
}
