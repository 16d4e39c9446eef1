// Package config implements the Configuration Model (C3): parsing one or
// more YAML documents into a validated global + per-filesystem policy
// object, access-control evaluation, and filesystem selection ordering.
package config

import (
	"fmt"

	"github.com/hpcws/ws/internal/wserrors"
	"gopkg.in/yaml.v3"
)

// SpaceSelection names a strategy for choosing among a filesystem's spaces.
type SpaceSelection string

const (
	SelectRandom    SpaceSelection = "random"
	SelectUID       SpaceSelection = "uid"
	SelectGID       SpaceSelection = "gid"
	SelectMostSpace SpaceSelection = "mostspace"
)

// Intent names a user-facing operation an ACL entry may be scoped to.
type Intent string

const (
	IntentList    Intent = "list"
	IntentUse     Intent = "use"
	IntentCreate  Intent = "create"
	IntentExtend  Intent = "extend"
	IntentRelease Intent = "release"
	IntentRestore Intent = "restore"
)

// Filesystem is the validated policy object for one named filesystem.
type Filesystem struct {
	Name           string
	Spaces         []string
	SpaceSelection SpaceSelection
	DeletedPath    string
	Database       string
	UserACL        []ACLEntry
	GroupACL       []ACLEntry
	UserDefault    []string
	GroupDefault   []string
	KeepTimeDays   int
	MaxDurationDays int
	MaxExtensions  int
	Allocatable    bool
	Extendable     bool
	Restorable     bool
}

// Config is the fully parsed and validated global + per-filesystem policy.
type Config struct {
	ClusterName      string
	SMTPHost         string
	MailFrom         string
	DefaultWorkspace string
	Admins           []string
	AdminMail        string
	DurationDays     int
	ReminderDefault  int
	MaxExtensions    int
	DBUID            int
	DBGID            int
	DelDirTimeout    int
	Filesystems      map[string]*Filesystem
}

// rawFilesystem mirrors the on-disk YAML shape for one filesystem entry.
type rawFilesystem struct {
	Spaces         []string `yaml:"spaces"`
	SpaceSelection string   `yaml:"spaceselection"`
	Deleted        string   `yaml:"deleted"`
	Database       string   `yaml:"database"`
	UserACL        []string `yaml:"user_acl"`
	GroupACL       []string `yaml:"group_acl"`
	UserDefault    []string `yaml:"userdefault"`
	GroupDefault   []string `yaml:"groupdefault"`
	KeepTime       int      `yaml:"keeptime"`
	MaxDuration    int      `yaml:"maxduration"`
	MaxExtensions  int      `yaml:"maxextensions"`
	Allocatable    bool     `yaml:"allocatable"`
	Extendable     bool     `yaml:"extendable"`
	Restorable     bool     `yaml:"restorable"`
}

// rawDocument mirrors one top-level YAML config document. Multiple
// documents (one per source file) are merged by mergeRaw.
type rawDocument struct {
	ClusterName      string                   `yaml:"clustername"`
	SMTPHost         string                   `yaml:"smtphost"`
	MailFrom         string                   `yaml:"mail_from"`
	Default          string                   `yaml:"default"`
	DefaultWorkspace string                   `yaml:"default_workspace"`
	Admins           []string                 `yaml:"admins"`
	AdminMail        string                   `yaml:"adminmail"`
	Duration         int                      `yaml:"duration"`
	ReminderDefault  int                      `yaml:"reminderdefault"`
	MaxExtensions    int                      `yaml:"maxextensions"`
	DBUID            int                      `yaml:"dbuid"`
	DBGID            int                      `yaml:"dbgid"`
	DelDirTimeout    int                      `yaml:"deldirtimeout"`
	Workspaces       map[string]rawFilesystem `yaml:"workspaces"`
	Filesystems      map[string]rawFilesystem `yaml:"filesystems"`
}

func parseDocument(data []byte) (*rawDocument, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", wserrors.Malformed, err)
	}
	return &doc, nil
}

// mergeRaw folds src into dst, with src winning on scalar collisions and
// later filesystem-map entries winning on key collision (§4.3 alias rule).
func mergeRaw(dst, src *rawDocument) {
	if src.ClusterName != "" {
		dst.ClusterName = src.ClusterName
	}
	if src.SMTPHost != "" {
		dst.SMTPHost = src.SMTPHost
	}
	if src.MailFrom != "" {
		dst.MailFrom = src.MailFrom
	}
	if src.Default != "" {
		dst.Default = src.Default
	}
	if src.DefaultWorkspace != "" {
		dst.DefaultWorkspace = src.DefaultWorkspace
	}
	if len(src.Admins) > 0 {
		dst.Admins = src.Admins
	}
	if src.AdminMail != "" {
		dst.AdminMail = src.AdminMail
	}
	if src.Duration != 0 {
		dst.Duration = src.Duration
	}
	if src.ReminderDefault != 0 {
		dst.ReminderDefault = src.ReminderDefault
	}
	if src.MaxExtensions != 0 {
		dst.MaxExtensions = src.MaxExtensions
	}
	if src.DBUID != 0 {
		dst.DBUID = src.DBUID
	}
	if src.DBGID != 0 {
		dst.DBGID = src.DBGID
	}
	if src.DelDirTimeout != 0 {
		dst.DelDirTimeout = src.DelDirTimeout
	}
	if dst.Workspaces == nil {
		dst.Workspaces = map[string]rawFilesystem{}
	}
	for name, fs := range src.Workspaces {
		dst.Workspaces[name] = fs
	}
	for name, fs := range src.Filesystems {
		dst.Workspaces[name] = fs
	}
}

func (d *rawDocument) defaultWorkspaceName() string {
	if d.DefaultWorkspace != "" {
		return d.DefaultWorkspace
	}
	return d.Default
}

func toFilesystem(name string, raw rawFilesystem) *Filesystem {
	sel := SpaceSelection(raw.SpaceSelection)
	switch sel {
	case SelectRandom, SelectUID, SelectGID, SelectMostSpace:
	default:
		sel = SelectRandom
	}
	return &Filesystem{
		Name:            name,
		Spaces:          raw.Spaces,
		SpaceSelection:  sel,
		DeletedPath:     raw.Deleted,
		Database:        raw.Database,
		UserACL:         parseACLEntries(raw.UserACL),
		GroupACL:        parseACLEntries(raw.GroupACL),
		UserDefault:     raw.UserDefault,
		GroupDefault:    raw.GroupDefault,
		KeepTimeDays:    raw.KeepTime,
		MaxDurationDays: raw.MaxDuration,
		MaxExtensions:   raw.MaxExtensions,
		Allocatable:     raw.Allocatable,
		Extendable:      raw.Extendable,
		Restorable:      raw.Restorable,
	}
}
