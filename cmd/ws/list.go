package main

import (
	"fmt"
	"sort"

	"github.com/hpcws/ws/internal/expirer"
	"github.com/hpcws/ws/internal/storage"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List workspaces matching a glob pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	f := listCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.BoolP("group", "g", false, "also list workspaces shared with one of the caller's groups")
	f.BoolP("long", "l", false, "show expiration, extensions, and comment")
	f.BoolP("short", "s", false, "print only the workspace path, one per line")
	f.BoolP("expired", "e", false, "list grace (released) entries instead of live ones")
	f.Bool("by-name", false, "sort by workspace id (default)")
	f.BoolP("by-creation", "C", false, "sort by creation time")
	f.BoolP("by-remaining", "R", false, "sort by remaining time to expiration")
	f.BoolP("reminder", "r", false, "show only entries for which a reminder is currently due")
	f.BoolP("total", "t", false, "print only a count of matching entries")
	f.BoolP("verbose", "v", false, "equivalent to --long")
}

type listRow struct {
	id    string
	entry *storage.Entry
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	group, _ := f.GetBool("group")
	long, _ := f.GetBool("long")
	short, _ := f.GetBool("short")
	expired, _ := f.GetBool("expired")
	byCreation, _ := f.GetBool("by-creation")
	byRemaining, _ := f.GetBool("by-remaining")
	reminderOnly, _ := f.GetBool("reminder")
	total, _ := f.GetBool("total")
	verbose, _ := f.GetBool("verbose")
	long = long || verbose

	pattern := "*"
	if len(args) == 1 {
		pattern = args[0]
	}

	var rows []listRow
	for _, fsName := range candidateFilesystems(a, filesystem) {
		db, err := a.db(fsName)
		if err != nil {
			continue
		}
		ids, err := db.MatchPattern(pattern, a.EffectiveUser, a.EffectiveGroups, expired, group)
		if err != nil {
			continue
		}
		for _, id := range ids {
			entry, err := db.ReadEntry(id, expired)
			if err != nil {
				continue
			}
			if reminderOnly && !expirer.ReminderDue(entry, nowUnix()) {
				continue
			}
			rows = append(rows, listRow{id: id, entry: entry})
		}
	}

	switch {
	case byCreation:
		sort.Slice(rows, func(i, j int) bool { return rows[i].entry.Creation < rows[j].entry.Creation })
	case byRemaining:
		sort.Slice(rows, func(i, j int) bool { return rows[i].entry.Expiration < rows[j].entry.Expiration })
	default:
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	}

	if total {
		fmt.Println(len(rows))
		return nil
	}

	for _, r := range rows {
		switch {
		case short:
			fmt.Println(r.entry.Workspace)
		case long:
			fmt.Printf("%s\t%s\texpiration=%d\textensions=%d\tcomment=%q\n", r.id, r.entry.Workspace, r.entry.Expiration, r.entry.Extensions, r.entry.Comment)
		default:
			fmt.Printf("%s\t%s\n", r.id, r.entry.Workspace)
		}
	}
	return nil
}
