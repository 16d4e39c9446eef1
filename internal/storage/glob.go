package storage

// globMatch is a small finite matcher for shell-style patterns: '*' (any
// run of characters), '?' (any single character), '[...]' (character
// class, may start with '!' or '^' for negation), and '\' (escapes the
// next character). Matching is case-sensitive. This intentionally avoids
// pulling a general regex engine onto the expirer's hot path (design
// notes §9).
func globMatch(pattern, name string) bool {
	return matchHere([]rune(pattern), []rune(name))
}

func matchHere(pat, s []rune) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '\\':
			if len(pat) < 2 {
				return false
			}
			if len(s) == 0 || s[0] != pat[1] {
				return false
			}
			pat, s = pat[2:], s[1:]
		case '*':
			// Collapse consecutive '*' and try every possible split.
			for len(pat) > 0 && pat[0] == '*' {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchHere(pat, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pat, s = pat[1:], s[1:]
		case '[':
			end := classEnd(pat)
			if end < 0 {
				// Unterminated class: treat '[' as a literal.
				if len(s) == 0 || s[0] != '[' {
					return false
				}
				pat, s = pat[1:], s[1:]
				continue
			}
			if len(s) == 0 || !matchClass(pat[1:end], s[0]) {
				return false
			}
			pat, s = pat[end+1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0
}

// classEnd returns the index of the ']' closing the class starting at
// pat[0] == '[', or -1 if unterminated.
func classEnd(pat []rune) int {
	i := 1
	if i < len(pat) && (pat[i] == '!' || pat[i] == '^') {
		i++
	}
	if i < len(pat) && pat[i] == ']' {
		i++ // a ']' right after the (optional) negation is a literal member
	}
	for ; i < len(pat); i++ {
		if pat[i] == ']' {
			return i
		}
	}
	return -1
}

func matchClass(class []rune, c rune) bool {
	negate := false
	if len(class) > 0 && (class[0] == '!' || class[0] == '^') {
		negate = true
		class = class[1:]
	}
	found := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				found = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			found = true
		}
	}
	return found != negate
}
