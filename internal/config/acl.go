package config

import "strings"

// ACLEntry is one left-to-right rule in a user_acl or group_acl list. A
// bare or "+name" entry grants; a "-name" entry revokes. An optional
// ":intent" suffix restricts the rule to a single operation; entries
// without it apply to every intent.
type ACLEntry struct {
	Grant  bool
	Name   string
	Intent Intent // empty means "all intents"
}

func parseACLEntries(raw []string) []ACLEntry {
	entries := make([]ACLEntry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, parseACLEntry(r))
	}
	return entries
}

func parseACLEntry(raw string) ACLEntry {
	grant := true
	name := raw
	switch {
	case strings.HasPrefix(raw, "+"):
		name = raw[1:]
	case strings.HasPrefix(raw, "-"):
		grant = false
		name = raw[1:]
	}
	intent := Intent("")
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		intent = Intent(name[idx+1:])
		name = name[:idx]
	}
	return ACLEntry{Grant: grant, Name: name, Intent: intent}
}

func (e ACLEntry) appliesTo(intent Intent) bool {
	return e.Intent == "" || e.Intent == intent
}

// HasAccess implements §4.3's access-control evaluation for fs and the
// calling user/groups, restricted to the given intent.
func (c *Config) HasAccess(user string, groups []string, fsName string, intent Intent) bool {
	fs, ok := c.Filesystems[fsName]
	if !ok {
		return false
	}
	allowed := len(fs.UserACL) == 0 && len(fs.GroupACL) == 0

	inGroups := func(name string) bool {
		for _, g := range groups {
			if g == name {
				return true
			}
		}
		return false
	}

	for _, e := range fs.GroupACL {
		if !e.appliesTo(intent) {
			continue
		}
		if inGroups(e.Name) {
			allowed = e.Grant
		}
	}
	for _, e := range fs.UserACL {
		if !e.appliesTo(intent) {
			continue
		}
		if e.Name == user {
			allowed = e.Grant
		}
	}

	for _, admin := range c.Admins {
		if admin == user {
			return true
		}
	}

	return allowed
}
