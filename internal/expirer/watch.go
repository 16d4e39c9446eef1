package expirer

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hpcws/ws/internal/wslog"
)

// RunOptions configures the periodic daemon loop.
type RunOptions struct {
	Filesystems []string
	Interval    time.Duration
	Cleaner     bool
	// Watch, when true, additionally watches each filesystem's database
	// directory and, after a short debounce, runs an out-of-band sweep
	// instead of waiting out the rest of Interval — a pure scheduling
	// optimization. Correctness never depends on an event arriving; a
	// missed or coalesced fsnotify event just means the regular ticker
	// (at most Interval later) does the same work.
	Watch bool
}

// watchDebounce coalesces a burst of database-directory events (e.g. many
// allocate/release calls in quick succession) into a single early sweep.
const watchDebounce = 2 * time.Second

// Run drives SweepAll on a ticker until stopCh is closed, logging each
// cycle's report. This mirrors the teacher's reconciler.run ticker loop:
// log errors, keep going, never exit on a single cycle's failure.
func (s *Sweeper) Run(opts RunOptions, stopCh <-chan struct{}) {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var watcher *fsnotify.Watcher
	if opts.Watch {
		watcher = s.startWatch(opts.Filesystems)
		if watcher != nil {
			defer watcher.Close()
		}
	}

	wslog.Logger.Info().Dur("interval", interval).Bool("cleaner", opts.Cleaner).Msg("expirer: starting sweep loop")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ticker.C:
			s.runOnce(opts)
		case event := <-watcherEvents(watcher):
			wslog.Logger.Debug().Str("event", event.String()).Msg("expirer: database activity observed, scheduling an early sweep")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(watchDebounce)
		case <-debounceC(debounce):
			debounce = nil
			s.runOnce(opts)
			ticker.Reset(interval)
		case <-stopCh:
			wslog.Logger.Info().Msg("expirer: sweep loop stopped")
			return
		}
	}
}

// debounceC returns t.C, or a nil channel (which blocks forever in a
// select) when no debounce timer is currently pending.
func debounceC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (s *Sweeper) runOnce(opts RunOptions) {
	reports := s.SweepAll(opts.Filesystems, Options{Cleaner: opts.Cleaner})
	for _, r := range reports {
		log := wslog.WithFilesystem(r.Filesystem)
		if r.MagicMismatch {
			log.Error().Msg("expirer: sweep skipped, magic sentinel mismatch")
			continue
		}
		log.Info().
			Int("stray_workspaces", len(r.StrayWorkspaces)).
			Int("stray_grace_trees", len(r.StrayGraceTrees)).
			Int("expired", len(r.Expired)).
			Int("purged", len(r.Purged)).
			Int("errors", len(r.Errors)).
			Msg("expirer: sweep cycle complete")
		for _, e := range r.Errors {
			log.Warn().Str("detail", e).Msg("expirer: per-entry failure during sweep")
		}
	}
}

// startWatch sets up an fsnotify watch on each filesystem's database
// directory, best-effort: a platform or permission failure here only
// disables the optimization, never the sweep itself.
func (s *Sweeper) startWatch(fsNames []string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		wslog.Logger.Warn().Err(err).Msg("expirer: fsnotify unavailable, falling back to ticker-only scheduling")
		return nil
	}
	for _, name := range fsNames {
		fsCfg, ok := s.Config.Filesystems[name]
		if !ok {
			continue
		}
		if err := watcher.Add(fsCfg.Database); err != nil {
			wslog.WithFilesystem(name).Debug().Err(err).Msg("expirer: could not watch database directory")
		}
	}
	return watcher
}

// watcherEvents returns w.Events, or a nil channel (which blocks forever
// in a select) when watching is disabled.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}
