// Package expirer implements the Expirer (C10): a two-phase sweep over a
// configured set of filesystems. Phase A reconciles stray directories
// against the database; Phase B expires overdue live entries and purges
// overdue grace entries. Phase A always completes for a filesystem before
// Phase B begins on it; filesystems are independent failure domains (§4.10).
package expirer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/hpcws/ws/internal/wslog"
	"github.com/hpcws/ws/internal/wsmetrics"
)

// year2001Epoch is the "far future" boundary spec §4.10 phase B step 2
// uses to decide whether a grace entry's Released field is a real
// timestamp or an unset/corrupt zero value.
const year2001Epoch = 978307200

// DBProvider resolves a filesystem name to its open Database handle.
type DBProvider func(fsName string) (*storage.DB, error)

// Options controls one sweep invocation.
type Options struct {
	// Cleaner, when false (the default), performs no mutation: every
	// action that would move or delete something is logged instead
	// (spec §4.10: "dry-run by default, mutates only... in cleaner mode").
	Cleaner bool
	// Now overrides the current time for deterministic tests; zero means
	// time.Now().Unix().
	Now int64
}

func (o Options) now() int64 {
	if o.Now != 0 {
		return o.Now
	}
	return time.Now().Unix()
}

// FSReport summarizes one filesystem's sweep outcome.
type FSReport struct {
	Filesystem      string
	MagicMismatch   bool
	StrayWorkspaces []string // live workspace dirs moved (or would be moved) to grace
	StrayGraceTrees []string // grace dirs removed (or would be removed) outright
	Expired         []string // entry ids transitioned live -> grace
	Purged          []string // grace ids purged
	Errors          []string // per-entry failures logged and skipped
}

// Sweeper runs the two-phase sweep against a configured set of filesystems.
type Sweeper struct {
	Config  *config.Config
	DBs     DBProvider
	Dir     *wsdir.Manager
	Metrics *wsmetrics.Registry // optional; nil disables instrumentation
}

// SweepAll runs SweepFilesystem for every name in fsNames, each
// independently: one filesystem's failure never aborts another's sweep
// (§4.10's ordering guarantee, §7's "expirer never aborts the whole run").
func (s *Sweeper) SweepAll(fsNames []string, opts Options) []FSReport {
	reports := make([]FSReport, 0, len(fsNames))
	for _, name := range fsNames {
		reports = append(reports, s.SweepFilesystem(name, opts))
	}
	return reports
}

// SweepFilesystem runs phase A then phase B for one filesystem.
func (s *Sweeper) SweepFilesystem(fsName string, opts Options) FSReport {
	report := FSReport{Filesystem: fsName}
	log := wslog.WithFilesystem(fsName)

	var timer wsmetrics.Timer
	if s.Metrics != nil {
		timer = wsmetrics.NewTimer()
		defer timer.ObserveDuration(s.Metrics.SweepDuration, fsName)
		defer s.Metrics.SweepCyclesTotal.WithLabelValues(fsName).Inc()
	}

	fsCfg, ok := s.Config.Filesystems[fsName]
	if !ok {
		report.Errors = append(report.Errors, fmt.Sprintf("unknown filesystem %q", fsName))
		return report
	}
	db, err := s.DBs(fsName)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	if err := db.CheckMagic(); err != nil {
		log.Error().Err(err).Msg("expirer: magic sentinel missing or mismatched, refusing to sweep this filesystem")
		report.MagicMismatch = true
		if s.Metrics != nil {
			s.Metrics.SweepErrorsTotal.WithLabelValues(fsName, "magic").Inc()
		}
		return report
	}

	now := opts.now()
	s.phaseA(fsCfg, db, opts, now, &report)
	s.phaseB(fsCfg, db, opts, now, &report)
	return report
}

// phaseA implements §4.10 phase A: stray-directory reconciliation.
func (s *Sweeper) phaseA(fsCfg *config.Filesystem, db *storage.DB, opts Options, now int64, report *FSReport) {
	liveIDs, err := db.ListIDs(false)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	liveSet := toSet(liveIDs)

	for _, space := range fsCfg.Spaces {
		entries, err := os.ReadDir(space)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("reading space %s: %v", space, err))
			continue
		}
		for _, de := range entries {
			if !de.IsDir() {
				continue
			}
			name := de.Name()
			if name == filepath.Base(fsCfg.DeletedPath) || !strings.Contains(name, "-") {
				continue
			}
			if liveSet[name] {
				continue
			}
			path := filepath.Join(space, name)
			report.StrayWorkspaces = append(report.StrayWorkspaces, path)
			if s.Metrics != nil {
				s.Metrics.StrayDirectoriesFound.WithLabelValues(fsCfg.Name, "live").Inc()
			}
			if !opts.Cleaner {
				wslog.WithFilesystem(fsCfg.Name).Info().Str("path", path).Msg("expirer: dry-run would move stray workspace to grace")
				continue
			}
			deletedRoot := wsdir.DeletedRoot(path, fsCfg.DeletedPath)
			if _, err := s.Dir.MoveToGrace(path, deletedRoot, now); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
		}
	}

	graceIDs, err := db.ListIDs(true)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	graceSet := toSet(graceIDs)

	for _, space := range fsCfg.Spaces {
		deletedRoot := filepath.Join(space, fsCfg.DeletedPath)
		entries, err := os.ReadDir(deletedRoot)
		if err != nil {
			continue // grace area may not exist yet; not an error
		}
		for _, de := range entries {
			if !de.IsDir() {
				continue
			}
			name := de.Name()
			if graceSet[name] {
				continue
			}
			path := filepath.Join(deletedRoot, name)
			report.StrayGraceTrees = append(report.StrayGraceTrees, path)
			if s.Metrics != nil {
				s.Metrics.StrayDirectoriesFound.WithLabelValues(fsCfg.Name, "grace").Inc()
			}
			if !opts.Cleaner {
				wslog.WithFilesystem(fsCfg.Name).Info().Str("path", path).Msg("expirer: dry-run would remove stray grace tree")
				continue
			}
			if err := s.Dir.RemoveTree(path, 60*time.Second); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
		}
	}
}

// phaseB implements §4.10 phase B: expiration and purge.
func (s *Sweeper) phaseB(fsCfg *config.Filesystem, db *storage.DB, opts Options, now int64, report *FSReport) {
	liveIDs, err := db.ListIDs(false)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, id := range liveIDs {
		entry, err := db.ReadEntry(id, false)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if entry.Expiration <= 0 {
			continue // corrupt entry; skip (spec §4.10 phase B step 1)
		}
		if now <= entry.Expiration {
			continue
		}
		if !opts.Cleaner {
			report.Expired = append(report.Expired, id)
			wslog.WithFilesystem(fsCfg.Name).Info().Str("id", id).Msg("expirer: dry-run would expire entry")
			continue
		}
		if err := s.expireEntry(fsCfg, db, entry, now); err != nil {
			report.Errors = append(report.Errors, err.Error())
			if s.Metrics != nil {
				s.Metrics.SweepErrorsTotal.WithLabelValues(fsCfg.Name, "expire").Inc()
			}
			continue
		}
		report.Expired = append(report.Expired, id)
		if s.Metrics != nil {
			s.Metrics.EntriesExpired.WithLabelValues(fsCfg.Name).Inc()
		}
	}

	graceIDs, err := db.ListIDs(true)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, graceID := range graceIDs {
		entry, err := db.ReadEntry(graceID, true)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if !purgeDue(graceID, entry, fsCfg.KeepTimeDays, now) {
			continue
		}
		if !opts.Cleaner {
			report.Purged = append(report.Purged, graceID)
			wslog.WithFilesystem(fsCfg.Name).Info().Str("id", graceID).Msg("expirer: dry-run would purge grace entry")
			continue
		}
		if err := s.purgeEntry(fsCfg, db, graceID, entry); err != nil {
			report.Errors = append(report.Errors, err.Error())
			if s.Metrics != nil {
				s.Metrics.SweepErrorsTotal.WithLabelValues(fsCfg.Name, "purge").Inc()
			}
			continue
		}
		report.Purged = append(report.Purged, graceID)
		if s.Metrics != nil {
			s.Metrics.EntriesPurged.WithLabelValues(fsCfg.Name).Inc()
		}
	}
}

// expireEntry transitions one overdue live entry to grace: rewrite with
// Released=now, then rename both the entry file and the workspace
// directory with the -<now> suffix.
func (s *Sweeper) expireEntry(fsCfg *config.Filesystem, db *storage.DB, entry *storage.Entry, now int64) error {
	entry.Released = now
	if err := db.WriteEntry(entry, false); err != nil {
		return err
	}
	graceID, err := db.MoveEntryToGrace(entry.ID, now)
	if err != nil {
		return err
	}
	deletedRoot := wsdir.DeletedRoot(entry.Workspace, fsCfg.DeletedPath)
	gracePath, err := s.Dir.MoveToGrace(entry.Workspace, deletedRoot, now)
	if err != nil {
		return err
	}
	entry.ID = graceID
	entry.Workspace = gracePath
	return db.WriteEntry(entry, true)
}

// purgeEntry removes a grace tree and then its database entry — tree
// first, so a tree-removal failure leaves the entry for the next sweep to
// retry (spec §4.10 purge order rationale).
func (s *Sweeper) purgeEntry(fsCfg *config.Filesystem, db *storage.DB, graceID string, entry *storage.Entry) error {
	if err := s.Dir.RemoveTree(entry.Workspace, 60*time.Second); err != nil {
		return err
	}
	return db.DeleteEntry(graceID, true)
}

// purgeDue implements §4.10 phase B step 2-3: purge when the grace period
// past expiration has elapsed, or (for entries with a real Released
// timestamp) one hour past release.
func purgeDue(graceID string, entry *storage.Entry, keepTimeDays int, now int64) bool {
	if now > entry.Expiration+int64(keepTimeDays)*86400 {
		return true
	}
	if entry.Released > year2001Epoch && now > entry.Released+3600 {
		return true
	}
	return false
}

// ReminderDue reports whether a reminder should fire now for entry,
// picking the next reminder instant from its Reminder-seconds-before-
// Expiration setting (supplementing ws_send_ical.cpp's scheduling logic;
// actual mail composition is an external collaborator's contract, §1).
func ReminderDue(entry *storage.Entry, now int64) bool {
	if entry.Reminder <= 0 || entry.Released != 0 {
		return false
	}
	return now >= entry.Expiration-entry.Reminder && now < entry.Expiration
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
