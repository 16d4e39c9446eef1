package main

import (
	"os"
	"path/filepath"

	"github.com/hpcws/ws/internal/config"
	"github.com/hpcws/ws/internal/identity"
	"github.com/hpcws/ws/internal/privilege"
	"github.com/hpcws/ws/internal/storage"
	"github.com/hpcws/ws/internal/userprefs"
)

// defaultConfigSources mirrors the original tool's search order: a
// directory of fragments takes priority over the single legacy file
// (§4.3 "the first source containing at least one readable file").
var defaultConfigSources = []string{"/etc/ws.d", "/etc/ws.conf"}

// app bundles everything every ws subcommand needs once at startup: the
// validated configuration, the invoking user's identity, their
// preferences, and the privilege broker that brackets every mutating
// filesystem operation.
type app struct {
	Config   *config.Config
	Identity *identity.Identity
	Prefs    userprefs.Preferences
	Broker   privilege.Broker

	// EffectiveUser/EffectiveGroups are the identity access control and
	// allocation decisions are made against: the real caller, unless
	// root supplied -u/--user, in which case it is the named target user
	// (root may act on behalf of anyone; non-root may not, spec §6).
	EffectiveUser   string
	EffectiveUID    int
	EffectiveGID    int
	EffectiveGroups []string
}

func newApp(configSource string, userFlag string) (*app, error) {
	id, err := identity.Resolve()
	if err != nil {
		return nil, err
	}

	sources := defaultConfigSources
	if configSource != "" {
		sources = []string{configSource}
	}
	cfg, err := config.Load(sources)
	if err != nil {
		return nil, err
	}

	prefsPath := filepath.Join(id.HomeDir, ".ws_user.conf")
	prefs := userprefs.Load(prefsPath)

	broker := privilege.New(cfg.DBUID)

	a := &app{
		Config:          cfg,
		Identity:        id,
		Prefs:           prefs,
		Broker:          broker,
		EffectiveUser:   id.Username,
		EffectiveUID:    id.RealUID,
		EffectiveGID:    os.Getgid(),
		EffectiveGroups: id.Groups,
	}

	if userFlag != "" && userFlag != id.Username {
		if !id.IsRoot() {
			return nil, errAccessDeniedUserOverride(userFlag)
		}
		uid, gid, _, primaryGroup, err := identity.LookupUser(userFlag)
		if err != nil {
			return nil, err
		}
		a.EffectiveUser = userFlag
		a.EffectiveUID = uid
		a.EffectiveGID = gid
		a.EffectiveGroups = []string{primaryGroup}
	}

	return a, nil
}

// db opens (without caching beyond the process lifetime — each call is
// cheap, it only builds a struct) the Database handle for a configured
// filesystem.
func (a *app) db(fsName string) (*storage.DB, error) {
	fsCfg, ok := a.Config.Filesystems[fsName]
	if !ok {
		return nil, unknownFilesystem(fsName)
	}
	return &storage.DB{
		FSName:     fsName,
		Dir:        fsCfg.Database,
		DeletedDir: filepath.Join(fsCfg.Database, fsCfg.DeletedPath),
		DBUID:      a.Config.DBUID,
		DBGID:      a.Config.DBGID,
		Broker:     a.Broker,
	}, nil
}
