package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/restore"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <graceId> <target>",
	Short: "Restore a released workspace into an existing live workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runRestore,
}

func init() {
	f := restoreCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.Bool("yes", false, "skip the interactive verification prompt (non-interactive use)")
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	skipPrompt, _ := f.GetBool("yes")

	graceID, target := args[0], args[1]

	req := restore.Request{
		GraceID:      graceID,
		TargetName:   target,
		Filesystem:   filesystem,
		CallerUser:   a.EffectiveUser,
		CallerGroups: a.EffectiveGroups,
		CallerIsRoot: a.Identity.IsRoot(),
	}
	if !skipPrompt {
		req.Verify = func() (bool, error) {
			return verifyInteractively(graceID, target)
		}
	}

	engine := &restore.Engine{
		Config: a.Config,
		DBs:    a.db,
		Dir:    &wsdir.Manager{Broker: a.Broker},
	}

	if err := engine.Restore(req); err != nil {
		return err
	}
	diag.Infof("restored %s into %s", graceID, target)
	return nil
}

// verifyInteractively implements the "user verification challenge" (spec
// §4.9): a short random token is printed and the caller must retype it,
// guarding against an accidental restore of the wrong grace id.
func verifyInteractively(graceID, target string) (bool, error) {
	token := uuid.New().String()[:6]
	fmt.Printf("About to restore %s into workspace %q.\n", graceID, target)
	fmt.Printf("Type %s to confirm: ", token)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(line) == token, nil
}
