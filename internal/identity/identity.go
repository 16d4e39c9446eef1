// Package identity resolves the current real/effective user and group
// identities from the OS. It is a thin, side-effect-free wrapper — it makes
// no caching guarantees, so callers must re-query after any privilege
// transition that changes the effective uid.
package identity

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Identity snapshots the real and effective user/group context of the
// current process at the time it was resolved.
type Identity struct {
	RealUID      int
	EffectiveUID int
	Username     string
	HomeDir      string
	PrimaryGroup string
	Groups       []string
}

// Resolve queries the OS for the current process's identity.
func Resolve() (*Identity, error) {
	u, err := user.LookupId(strconv.Itoa(os.Getuid()))
	if err != nil {
		return nil, fmt.Errorf("identity: lookup uid %d: %w", os.Getuid(), err)
	}

	primaryGroup, err := user.LookupGroupId(u.Gid)
	var primaryGroupName string
	if err == nil {
		primaryGroupName = primaryGroup.Name
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("identity: supplementary groups for %s: %w", u.Username, err)
	}
	groupNames := make([]string, 0, len(groupIDs))
	for _, gid := range groupIDs {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		groupNames = append(groupNames, g.Name)
	}

	return &Identity{
		RealUID:      os.Getuid(),
		EffectiveUID: os.Geteuid(),
		Username:     u.Username,
		HomeDir:      u.HomeDir,
		PrimaryGroup: primaryGroupName,
		Groups:       groupNames,
	}, nil
}

// IsRoot reports whether the effective uid is 0.
func (id *Identity) IsRoot() bool { return id.EffectiveUID == 0 }

// IsSetuid reports whether the real and effective uids differ, i.e. the
// binary is running with elevated privilege relative to the invoking user.
func (id *Identity) IsSetuid() bool { return id.RealUID != id.EffectiveUID }

// InGroup reports whether name is the primary group or among the
// supplementary groups.
func (id *Identity) InGroup(name string) bool {
	if id.PrimaryGroup == name {
		return true
	}
	for _, g := range id.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// LookupUser resolves an arbitrary username to its home directory, primary
// group, and uid/gid — used by root-invoked commands acting on behalf of
// another user (-u flag).
func LookupUser(username string) (uid, gid int, home, primaryGroup string, err error) {
	u, err := user.Lookup(username)
	if err != nil {
		return 0, 0, "", "", fmt.Errorf("identity: lookup user %q: %w", username, err)
	}
	uidN, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, "", "", fmt.Errorf("identity: parse uid for %q: %w", username, err)
	}
	gidN, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, "", "", fmt.Errorf("identity: parse gid for %q: %w", username, err)
	}
	g, err := user.LookupGroupId(u.Gid)
	groupName := ""
	if err == nil {
		groupName = g.Name
	}
	return uidN, gidN, u.HomeDir, groupName, nil
}

// LookupGroup resolves a group name to its gid.
func LookupGroup(name string) (gid int, err error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("identity: lookup group %q: %w", name, err)
	}
	gidN, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("identity: parse gid for group %q: %w", name, err)
	}
	return gidN, nil
}
