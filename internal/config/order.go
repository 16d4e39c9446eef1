package config

import "sort"

// sortedFilesystemNames returns filesystem names in a stable order. The
// upstream source iterates a map whose insertion order is the config
// file's textual order, which this module cannot reconstruct from a
// parsed map; lexicographic order is substituted as the deterministic
// stand-in so repeated calls are stable and testable.
func (c *Config) sortedFilesystemNames() []string {
	names := make([]string, 0, len(c.Filesystems))
	for name := range c.Filesystems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidFilesystems implements §4.3's validFilesystems: a deduplicated,
// priority-ordered list of filesystems the user may use at all (IntentUse).
func (c *Config) ValidFilesystems(user string, groups []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if seen[name] {
			return
		}
		if !c.HasAccess(user, groups, name, IntentUse) {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	if c.DefaultWorkspace != "" {
		add(c.DefaultWorkspace)
	}

	names := c.sortedFilesystemNames()

	for _, name := range names {
		for _, u := range c.Filesystems[name].UserDefault {
			if u == user {
				add(name)
				break
			}
		}
	}

	inGroups := func(name string) bool {
		for _, g := range groups {
			if g == name {
				return true
			}
		}
		return false
	}
	for _, name := range names {
		for _, g := range c.Filesystems[name].GroupDefault {
			if inGroups(g) {
				add(name)
				break
			}
		}
	}

	for _, name := range names {
		add(name)
	}

	return out
}
