// Command ws-expirer runs the periodic two-phase sweep (C10) that
// reconciles stray directories and expires/purges overdue workspaces
// across a configured set of filesystems.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/expirer"
	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/hpcws/ws/internal/wslog"
	"github.com/hpcws/ws/internal/wsmetrics"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var defaultConfigSources = []string{"/etc/ws.d", "/etc/ws.conf"}

var rootCmd = &cobra.Command{
	Use:           "ws-expirer",
	Short:         "Sweep configured filesystems, expiring and purging overdue workspaces",
	Version:       fmt.Sprintf("%s (%s)", Version, Commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringP("config", "C", "", "configuration source (file or directory)")
	f.StringSliceP("filesystem", "F", nil, "restrict the sweep to these filesystems (default: all configured)")
	f.Bool("cleaner", false, "actually mutate; without this flag every sweep is a dry run")
	f.Bool("daemon", false, "run the periodic sweep loop instead of a single pass")
	f.Duration("interval", time.Hour, "sweep interval when --daemon is set")
	f.Bool("watch", false, "additionally watch database directories with fsnotify as a scheduling hint (requires --daemon)")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.Bool("log-json", false, "emit structured logs as JSON")
	f.String("metrics-textfile", "", "write Prometheus metrics to this path after every sweep cycle (node_exporter textfile collector format)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		diag.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	level, _ := f.GetString("log-level")
	jsonOut, _ := f.GetBool("log-json")
	wslog.Init(wslog.Config{Level: wslog.Level(level), JSONOutput: jsonOut})

	configSource, _ := f.GetString("config")
	sources := defaultConfigSources
	if configSource != "" {
		sources = []string{configSource}
	}
	cfg, err := config.Load(sources)
	if err != nil {
		return err
	}

	broker := privilege.New(cfg.DBUID)
	dir := &wsdir.Manager{Broker: broker}
	metrics := wsmetrics.NewRegistry()

	dbFor := func(fsName string) (*storage.DB, error) {
		fsCfg, ok := cfg.Filesystems[fsName]
		if !ok {
			return nil, fmt.Errorf("ws-expirer: unknown filesystem %q", fsName)
		}
		return &storage.DB{
			FSName:     fsName,
			Dir:        fsCfg.Database,
			DeletedDir: filepath.Join(fsCfg.Database, fsCfg.DeletedPath),
			DBUID:      cfg.DBUID,
			DBGID:      cfg.DBGID,
			Broker:     broker,
		}, nil
	}

	sweeper := &expirer.Sweeper{Config: cfg, DBs: dbFor, Dir: dir, Metrics: metrics}

	fsNames, _ := f.GetStringSlice("filesystem")
	if len(fsNames) == 0 {
		for name := range cfg.Filesystems {
			fsNames = append(fsNames, name)
		}
	}
	cleaner, _ := f.GetBool("cleaner")
	metricsPath, _ := f.GetString("metrics-textfile")

	daemon, _ := f.GetBool("daemon")
	if !daemon {
		reports := sweeper.SweepAll(fsNames, expirer.Options{Cleaner: cleaner})
		writeTextfile(metrics, metricsPath)
		return summarize(reports)
	}

	interval, _ := f.GetDuration("interval")
	watch, _ := f.GetBool("watch")
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stopCh)
	}()
	sweeper.Run(expirer.RunOptions{Filesystems: fsNames, Interval: interval, Cleaner: cleaner, Watch: watch}, stopCh)
	writeTextfile(metrics, metricsPath)
	return nil
}

// summarize logs each filesystem's report and turns per-entry errors into a
// process failure. A magic-sentinel mismatch is reported and alerted on but
// is not itself a failure: it is the guard doing its job on a misconfigured
// or unmounted filesystem, and exits 0 (spec §8 scenario 5).
func summarize(reports []expirer.FSReport) error {
	var failed bool
	for _, r := range reports {
		if r.MagicMismatch {
			diag.Warnf("%s: magic sentinel missing or mismatched, sweep skipped", r.Filesystem)
			continue
		}
		diag.Infof("%s: stray=%d stray-grace=%d expired=%d purged=%d errors=%d",
			r.Filesystem, len(r.StrayWorkspaces), len(r.StrayGraceTrees), len(r.Expired), len(r.Purged), len(r.Errors))
		for _, e := range r.Errors {
			diag.Warnf("%s: %s", r.Filesystem, e)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("ws-expirer: one or more filesystems reported errors during the sweep")
	}
	return nil
}

func writeTextfile(reg *wsmetrics.Registry, path string) {
	if path == "" {
		return
	}
	if err := wsmetrics.WriteTextfile(reg, path); err != nil {
		diag.Warnf("writing metrics textfile %s: %v", path, err)
	}
}
