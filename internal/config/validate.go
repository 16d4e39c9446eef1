package config

import (
	"fmt"

	"github.com/hpcws/ws/internal/wserrors"
)

// Validate checks the semantic requirements every command must be able to
// trust before it touches the filesystem: required global keys, and for
// every configured filesystem, at least one space, a deleted-path, and a
// database path, plus non-negative policy numbers (supplementing the
// upstream ws_validate_config.cpp checks; this never prints a report, it
// only returns an error — printing a human audit is explicitly out of
// scope).
func (c *Config) Validate() error {
	if c.DBUID == 0 || c.DBGID == 0 {
		return fmt.Errorf("%w: dbuid/dbgid must be set", wserrors.ConfigInvalid)
	}
	if len(c.Filesystems) == 0 {
		return fmt.Errorf("%w: no filesystem configured", wserrors.ConfigInvalid)
	}
	for name, fs := range c.Filesystems {
		if len(fs.Spaces) == 0 {
			return fmt.Errorf("%w: filesystem %q has no spaces", wserrors.ConfigInvalid, name)
		}
		if fs.DeletedPath == "" {
			return fmt.Errorf("%w: filesystem %q has no deleted path", wserrors.ConfigInvalid, name)
		}
		if fs.Database == "" {
			return fmt.Errorf("%w: filesystem %q has no database path", wserrors.ConfigInvalid, name)
		}
		if fs.KeepTimeDays < 0 {
			return fmt.Errorf("%w: filesystem %q has negative keeptime", wserrors.ConfigInvalid, name)
		}
		if fs.MaxExtensions < 0 {
			return fmt.Errorf("%w: filesystem %q has negative maxextensions", wserrors.ConfigInvalid, name)
		}
		if fs.MaxDurationDays < 0 {
			return fmt.Errorf("%w: filesystem %q has negative maxduration", wserrors.ConfigInvalid, name)
		}
	}
	if c.DefaultWorkspace != "" {
		if _, ok := c.Filesystems[c.DefaultWorkspace]; !ok {
			return fmt.Errorf("%w: default workspace %q is not a configured filesystem", wserrors.ConfigInvalid, c.DefaultWorkspace)
		}
	}
	return nil
}

// EffectiveMaxExtensions resolves a filesystem's maxextensions, falling
// back to the global default when the filesystem leaves it at zero while
// the global default is non-zero (spec §3: "≤ getFsConfig.maxextensions
// (or global default)").
func (c *Config) EffectiveMaxExtensions(fsName string) int {
	fs, ok := c.Filesystems[fsName]
	if !ok {
		return c.MaxExtensions
	}
	if fs.MaxExtensions > 0 {
		return fs.MaxExtensions
	}
	return c.MaxExtensions
}
