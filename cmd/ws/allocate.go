package main

import (
	"fmt"
	"strconv"

	"github.com/hpcws/ws/internal/allocate"
	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/identity"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/spf13/cobra"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate <name> [days]",
	Short: "Create or extend a workspace",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAllocate,
}

func init() {
	f := allocateCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.IntP("reminder", "r", 0, "days before expiration to send a reminder")
	f.StringP("mail", "m", "", "mail address to notify")
	f.BoolP("extend", "x", false, "extend an existing workspace instead of creating one")
	f.BoolP("group", "g", false, "make the workspace group-readable/searchable")
	f.StringP("groupname", "G", "", "owning group for the workspace")
	f.StringP("comment", "c", "", "free-form comment stored with the entry")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	extend, _ := f.GetBool("extend")
	groupFlag, _ := f.GetBool("group")
	groupName, _ := f.GetString("groupname")

	req := allocate.Request{
		Name:          args[0],
		Filesystem:    filesystem,
		Extend:        extend,
		GroupFlag:     groupFlag,
		GroupName:     groupName,
		CallerUser:    a.EffectiveUser,
		CallerUID:     a.EffectiveUID,
		CallerGID:     a.EffectiveGID,
		CallerGroups:  a.EffectiveGroups,
		CallerIsRoot:  a.Identity.IsRoot(),
		OwnerOverride: ownerOverride(a),
	}

	if len(args) == 2 {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], err)
		}
		req.DurationDays = &days
	}
	if f.Changed("reminder") {
		days, _ := f.GetInt("reminder")
		v := days * secondsPerDay
		req.Reminder = &v
	} else if a.Prefs.Reminder != 0 {
		v := a.Prefs.Reminder
		req.Reminder = &v
	}
	if f.Changed("mail") {
		v, _ := f.GetString("mail")
		req.MailAddress = &v
	} else if a.Prefs.Mail != "" {
		v := a.Prefs.Mail
		req.MailAddress = &v
	}
	if f.Changed("comment") {
		v, _ := f.GetString("comment")
		req.Comment = &v
	}
	if req.GroupName == "" && a.Prefs.GroupName != "" {
		req.GroupName = a.Prefs.GroupName
	}

	engine := &allocate.Engine{
		Config:          a.Config,
		DBs:             a.db,
		Dir:             &wsdir.Manager{Broker: a.Broker},
		ResolveGroupGID: identity.LookupGroup,
	}

	result, err := engine.Allocate(req)
	if err != nil {
		return err
	}

	fmt.Println(result.Entry.Workspace)
	if result.Created {
		diag.Infof("created workspace, %d extension(s) remaining", result.RemainingExtensions)
	} else {
		diag.Infof("%d extension(s) remaining", result.RemainingExtensions)
	}
	return nil
}

// ownerOverride returns the effective user to impersonate, or "" when the
// caller is not acting on behalf of anyone else.
func ownerOverride(a *app) string {
	if a.EffectiveUser != a.Identity.Username {
		return a.EffectiveUser
	}
	return ""
}
