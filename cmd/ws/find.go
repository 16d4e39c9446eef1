package main

import (
	"fmt"

	"github.com/hpcws/ws/internal/diag"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Locate a workspace by name and print its path",
	Args:  cobra.ExactArgs(1),
	RunE:  runFind,
}

func init() {
	f := findCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.BoolP("group", "g", false, "also search workspaces shared with one of the caller's groups")
	f.BoolP("long", "l", false, "print expiration and remaining extensions alongside the path")
}

func runFind(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	group, _ := f.GetBool("group")
	long, _ := f.GetBool("long")

	name := args[0]
	candidates := candidateFilesystems(a, filesystem)

	found := false
	for _, fsName := range candidates {
		db, err := a.db(fsName)
		if err != nil {
			continue
		}
		ids, err := db.MatchPattern(name, a.EffectiveUser, a.EffectiveGroups, false, group)
		if err != nil {
			continue
		}
		for _, id := range ids {
			entry, err := db.ReadEntry(id, false)
			if err != nil {
				continue
			}
			found = true
			if long {
				fmt.Printf("%s\texpiration=%d\textensions=%d\n", entry.Workspace, entry.Expiration, entry.Extensions)
			} else {
				fmt.Println(entry.Workspace)
			}
		}
	}
	if !found {
		diag.Warnf("no workspace named %q found", name)
	}
	return nil
}

// candidateFilesystems returns the single named filesystem, or the
// caller's full ordered accessible list when none was given.
func candidateFilesystems(a *app, filesystem string) []string {
	if filesystem != "" {
		return []string{filesystem}
	}
	return a.Config.ValidFilesystems(a.EffectiveUser, a.EffectiveGroups)
}
