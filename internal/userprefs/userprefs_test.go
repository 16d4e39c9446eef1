package userprefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML(t *testing.T) {
	p := Parse("mail: alice@example.com\ngroupname: users\nduration: 10\nreminder: 86400\n")
	assert.Equal(t, "alice@example.com", p.Mail)
	assert.Equal(t, "users", p.GroupName)
	assert.Equal(t, 10, p.Duration)
	assert.Equal(t, 86400, p.Reminder)
}

func TestParseLegacyBareEmail(t *testing.T) {
	p := Parse("alice@example.com\n")
	assert.Equal(t, "alice@example.com", p.Mail)
}

func TestParseInvalidEmailCleared(t *testing.T) {
	p := Parse("not-an-email\n")
	assert.Empty(t, p.Mail)
}

func TestIsValidEmailBoundary(t *testing.T) {
	localOK := strings.Repeat("a", 64)
	domain := strings.Repeat("b", 185) + ".com" // total = 64+1+189 = 254
	addr254 := localOK + "@" + domain
	require.Len(t, addr254, 254)
	assert.True(t, isValidEmail(addr254))

	addr255 := addr254 + "x"
	assert.False(t, isValidEmail(addr255))
}

func TestIsValidEmailRules(t *testing.T) {
	cases := map[string]bool{
		"alice@example.com":    true,
		"alice..b@example.com": false,
		".alice@example.com":   false,
		"alice.@example.com":   false,
		"alice@examplecom":     false,
		"alice@-example.com":   false,
		"alice@example-.com":   false,
	}
	for addr, want := range cases {
		assert.Equalf(t, want, isValidEmail(addr), "addr=%s", addr)
	}
}

func TestLoadRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.conf")
	require.NoError(t, os.WriteFile(real, []byte("alice@example.com\n"), 0644))
	link := filepath.Join(dir, "link.conf")
	require.NoError(t, os.Symlink(real, link))

	p := Load(link)
	assert.Empty(t, p.Mail)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p := Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Equal(t, Preferences{}, p)
}
