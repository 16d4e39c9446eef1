// Package userprefs implements the User Preferences component (C4): a
// per-user document carrying mail address, default duration, reminder
// lead time, and group name.
package userprefs

import (
	"os"
	"strings"

	"github.com/hpcws/ws/internal/wslog"
	"gopkg.in/yaml.v3"
)

// Preferences is the parsed, validated content of ~/.ws_user.conf.
type Preferences struct {
	Mail      string
	GroupName string
	Duration  int
	Reminder  int
}

type rawPreferences struct {
	Mail      string `yaml:"mail"`
	GroupName string `yaml:"groupname"`
	Duration  int    `yaml:"duration"`
	Reminder  int    `yaml:"reminder"`
}

// Parse reads the raw contents of a user's preferences file. If content
// contains a colon it is parsed as YAML; otherwise the first line is
// treated as a bare legacy email address. An invalid mail address is
// cleared and a warning logged rather than failing the parse.
func Parse(content string) Preferences {
	var prefs Preferences
	if strings.Contains(content, ":") {
		var raw rawPreferences
		if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
			wslog.Logger.Warn().Err(err).Msg("userprefs: malformed preferences document, using defaults")
			return Preferences{}
		}
		prefs = Preferences{
			Mail:      raw.Mail,
			GroupName: raw.GroupName,
			Duration:  raw.Duration,
			Reminder:  raw.Reminder,
		}
	} else {
		line, _, _ := strings.Cut(content, "\n")
		prefs = Preferences{Mail: strings.TrimSpace(line)}
	}

	if prefs.Mail != "" && !isValidEmail(prefs.Mail) {
		wslog.Logger.Warn().Str("mail", prefs.Mail).Msg("userprefs: invalid mail address, clearing")
		prefs.Mail = ""
	}
	return prefs
}

// Load reads a user's preferences file from path. It fails silently
// (returns zero-value defaults) on a missing or unreadable file, and
// refuses outright to follow a symlink at path.
func Load(path string) Preferences {
	info, err := os.Lstat(path)
	if err != nil {
		return Preferences{}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		wslog.Logger.Warn().Str("path", path).Msg("userprefs: refusing to read symlinked preferences file")
		return Preferences{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Preferences{}
	}
	return Parse(string(data))
}
