package main

import (
	"fmt"

	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/wserrors"
	"github.com/spf13/cobra"
)

var editdbCmd = &cobra.Command{
	Use:   "editdb [pattern]",
	Short: "Bulk-adjust matching entries' expiration (root/admin only)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEditdb,
}

func init() {
	f := editdbCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.Int("add-time", 0, "days to add to each matching entry's expiration")
	f.Bool("not-kidding", false, "actually write the change; without this flag editdb only reports what it would do")
}

func runEditdb(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	if !isAdmin(a) {
		return fmt.Errorf("%w: editdb is restricted to root and configured admins", wserrors.AccessDenied)
	}

	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	addDays, _ := f.GetInt("add-time")
	notKidding, _ := f.GetBool("not-kidding")

	pattern := "*"
	if len(args) == 1 {
		pattern = args[0]
	}
	if addDays == 0 {
		diag.Warnf("editdb: --add-time not given, nothing to do")
		return nil
	}

	delta := int64(addDays) * secondsPerDay
	changed := 0
	for _, fsName := range candidateFilesystems(a, filesystem) {
		db, err := a.db(fsName)
		if err != nil {
			continue
		}
		ids, err := db.MatchPattern(pattern, "*", nil, false, false)
		if err != nil {
			continue
		}
		for _, id := range ids {
			entry, err := db.ReadEntry(id, false)
			if err != nil {
				continue
			}
			newExpiration := entry.Expiration + delta
			if !notKidding {
				diag.Infof("would adjust %s/%s: expiration %d -> %d", fsName, id, entry.Expiration, newExpiration)
				changed++
				continue
			}
			entry.Expiration = newExpiration
			if err := db.WriteEntry(entry, false); err != nil {
				diag.Errorf("%s/%s: %v", fsName, id, err)
				continue
			}
			changed++
		}
	}

	if !notKidding {
		diag.Infof("dry run: %d entries would change; pass --not-kidding to apply", changed)
	} else {
		diag.Infof("updated %d entries", changed)
	}
	return nil
}

func isAdmin(a *app) bool {
	if a.Identity.IsRoot() {
		return true
	}
	for _, admin := range a.Config.Admins {
		if admin == a.Identity.Username {
			return true
		}
	}
	return false
}

const secondsPerDay = 86400
