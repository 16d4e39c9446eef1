package main

import (
	"fmt"
	"time"

	"github.com/hpcws/ws/internal/diag"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat [pattern]",
	Short: "Print detailed information for matching workspaces",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStat,
}

func init() {
	f := statCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
}

func runStat(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	filesystem, _ := cmd.Flags().GetString("filesystem")

	pattern := "*"
	if len(args) == 1 {
		pattern = args[0]
	}

	found := false
	for _, fsName := range candidateFilesystems(a, filesystem) {
		db, err := a.db(fsName)
		if err != nil {
			continue
		}
		ids, err := db.MatchPattern(pattern, a.EffectiveUser, a.EffectiveGroups, false, false)
		if err != nil {
			continue
		}
		for _, id := range ids {
			entry, err := db.ReadEntry(id, false)
			if err != nil {
				continue
			}
			found = true
			fmt.Printf("id:         %s\n", id)
			fmt.Printf("filesystem: %s\n", fsName)
			fmt.Printf("workspace:  %s\n", entry.Workspace)
			fmt.Printf("created:    %s\n", time.Unix(entry.Creation, 0).Format(time.RFC3339))
			fmt.Printf("expires:    %s\n", time.Unix(entry.Expiration, 0).Format(time.RFC3339))
			fmt.Printf("extensions: %d\n", entry.Extensions)
			fmt.Printf("reminder:   %ds before expiration\n", entry.Reminder)
			fmt.Printf("mailaddress:%s\n", entry.MailAddress)
			fmt.Printf("comment:    %s\n", entry.Comment)
			fmt.Printf("group:      %s\n", entry.Group)
			fmt.Println()
		}
	}
	if !found {
		diag.Warnf("no workspace matched %q", pattern)
	}
	return nil
}
