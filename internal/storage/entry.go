// Package storage implements the Database V1 on-disk component (C5): a
// per-filesystem directory of YAML entry files, CRUD, glob-based matching,
// and deletion-archive (grace) management.
package storage

import (
	"fmt"
	"regexp"

	"github.com/hpcws/ws/internal/wserrors"
	"gopkg.in/yaml.v3"
)

// namePattern matches a workspace name, the <name> part of an
// <owner>-<name> entry id, following spec §3's character class.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Entry is one workspace database record (spec §3).
type Entry struct {
	ID          string
	Filesystem  string // derived from the database path, not stored on disk
	Workspace   string
	Creation    int64
	Expiration  int64
	Released    int64
	Reminder    int64
	Extensions  int
	Group       string
	MailAddress string
	Comment     string
	DBVersion   int
}

// onDiskEntry is the exact YAML shape written to disk (§4.5): field
// declaration order fixes the marshaled key order so WriteEntry(ReadEntry(e))
// round-trips byte-for-byte modulo the document's trailing structure.
type onDiskEntry struct {
	Workspace   string `yaml:"workspace"`
	Creation    int64  `yaml:"creation"`
	Expiration  int64  `yaml:"expiration"`
	Extensions  int    `yaml:"extensions"`
	Reminder    int64  `yaml:"reminder"`
	MailAddress string `yaml:"mailaddress"`
	Comment     string `yaml:"comment"`
	Group       string `yaml:"group,omitempty"`
	Released    int64  `yaml:"released,omitempty"`
	DBVersion   int    `yaml:"dbversion,omitempty"`
}

func (e *Entry) toDisk() onDiskEntry {
	return onDiskEntry{
		Workspace:   e.Workspace,
		Creation:    e.Creation,
		Expiration:  e.Expiration,
		Extensions:  e.Extensions,
		Reminder:    e.Reminder,
		MailAddress: e.MailAddress,
		Comment:     e.Comment,
		Group:       e.Group,
		Released:    e.Released,
		DBVersion:   e.DBVersion,
	}
}

func fromDisk(id, fs string, d onDiskEntry) *Entry {
	return &Entry{
		ID:          id,
		Filesystem:  fs,
		Workspace:   d.Workspace,
		Creation:    d.Creation,
		Expiration:  d.Expiration,
		Extensions:  d.Extensions,
		Reminder:    d.Reminder,
		MailAddress: d.MailAddress,
		Comment:     d.Comment,
		Group:       d.Group,
		Released:    d.Released,
		DBVersion:   d.DBVersion,
	}
}

func marshalEntry(e *Entry) ([]byte, error) {
	out, err := yaml.Marshal(e.toDisk())
	if err != nil {
		return nil, fmt.Errorf("%w: marshal entry %s: %v", wserrors.IOFailed, e.ID, err)
	}
	return out, nil
}

// unmarshalEntry parses data into an Entry, failing with Malformed if the
// document is not a YAML mapping (e.g. a bare scalar).
func unmarshalEntry(id, fsName string, data []byte) (*Entry, error) {
	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wserrors.Malformed, id, err)
	}
	if len(probe.Content) == 0 || probe.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: document is not a mapping", wserrors.Malformed, id)
	}
	var d onDiskEntry
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wserrors.Malformed, id, err)
	}
	return fromDisk(id, fsName, d), nil
}

// ValidName reports whether name matches spec §3's workspace-name grammar.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// MakeID builds the primary key <owner>-<name>.
func MakeID(owner, name string) string {
	return owner + "-" + name
}
