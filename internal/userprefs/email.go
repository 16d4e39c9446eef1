package userprefs

import (
	"regexp"
	"strings"
)

// emailPattern is a permissive shape check; the stricter structural rules
// (consecutive dots, leading/trailing dots, label hyphens, overall length)
// are enforced separately below because no single regex expresses them
// cleanly while keeping the rule visible to a reviewer.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

const maxEmailLength = 254

// isValidEmail implements the literal constraints from spec §4.4 / the
// original UserConfig.cpp: length <= 254, shape matches emailPattern, no
// consecutive dots anywhere, local part has no leading/trailing dot,
// domain contains a dot and no label begins or ends with a hyphen.
func isValidEmail(addr string) bool {
	if len(addr) == 0 || len(addr) > maxEmailLength {
		return false
	}
	if !emailPattern.MatchString(addr) {
		return false
	}
	if strings.Contains(addr, "..") {
		return false
	}

	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}
