package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpcws/ws/internal/wserrors"
)

// Load reads the first source in sources that contains at least one
// readable file (§4.3: "the first source containing at least one readable
// file stops the search"), parses every regular file in it (lexicographic
// order when the source is a directory), merges the resulting documents,
// and validates the result.
func Load(sources []string) (*Config, error) {
	for _, src := range sources {
		files, err := filesForSource(src)
		if err != nil || len(files) == 0 {
			continue
		}
		doc, err := loadAndMerge(files)
		if err != nil {
			return nil, err
		}
		cfg := fromRaw(doc)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("%w: no readable configuration source among %v", wserrors.ConfigInvalid, sources)
}

// filesForSource resolves one configured source to the list of regular
// files it should contribute, or an empty list if the source is absent or
// contains nothing readable.
func filesForSource(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, nil
	}
	if !info.IsDir() {
		return []string{src}, nil
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", wserrors.IOFailed, src, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	files := make([]string, 0, len(names))
	for _, n := range names {
		files = append(files, filepath.Join(src, n))
	}
	return files, nil
}

func loadAndMerge(files []string) (*rawDocument, error) {
	merged := &rawDocument{Workspaces: map[string]rawFilesystem{}}
	any := false
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		doc, err := parseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, f)
		}
		mergeRaw(merged, doc)
		any = true
	}
	if !any {
		return nil, fmt.Errorf("%w: no file in source set was readable", wserrors.ConfigInvalid)
	}
	return merged, nil
}

func fromRaw(doc *rawDocument) *Config {
	cfg := &Config{
		ClusterName:      doc.ClusterName,
		SMTPHost:         doc.SMTPHost,
		MailFrom:         doc.MailFrom,
		DefaultWorkspace: doc.defaultWorkspaceName(),
		Admins:           doc.Admins,
		AdminMail:        doc.AdminMail,
		DurationDays:     doc.Duration,
		ReminderDefault:  doc.ReminderDefault,
		MaxExtensions:    doc.MaxExtensions,
		DBUID:            doc.DBUID,
		DBGID:            doc.DBGID,
		DelDirTimeout:    doc.DelDirTimeout,
		Filesystems:      map[string]*Filesystem{},
	}
	for name, raw := range doc.Workspaces {
		cfg.Filesystems[name] = toFilesystem(name, raw)
	}
	return cfg
}
