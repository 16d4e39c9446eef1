package main

import (
	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/release"
	"github.com/hpcws/ws/internal/wsdir"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release <name>",
	Short: "Release a workspace, moving it to the grace area",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

func init() {
	f := releaseCmd.Flags()
	f.StringP("filesystem", "F", "", "restrict to this filesystem")
	f.Bool("delete-data", false, "immediately delete the workspace tree instead of waiting out the grace period")
}

func runRelease(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	filesystem, _ := f.GetString("filesystem")
	deleteData, _ := f.GetBool("delete-data")

	req := release.Request{
		Name:          args[0],
		Filesystem:    filesystem,
		DeleteData:    deleteData,
		CallerUser:    a.EffectiveUser,
		CallerGroups:  a.EffectiveGroups,
		CallerIsRoot:  a.Identity.IsRoot(),
		OwnerOverride: ownerOverride(a),
	}

	engine := &release.Engine{
		Config: a.Config,
		DBs:    a.db,
		Dir:    &wsdir.Manager{Broker: a.Broker},
	}

	if err := engine.Release(req); err != nil {
		return err
	}
	diag.Infof("released %s-%s", a.EffectiveUser, req.Name)
	return nil
}
