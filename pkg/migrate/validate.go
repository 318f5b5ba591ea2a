package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// ValidateMigrations runs static checks on the migration directory:
// naming convention, duplicate versions, and Up/Down annotation pairs.
func ValidateMigrations(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	var problems []string

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			problems = append(problems, fmt.Sprintf("%s: does not match <version>_<name>.sql", name))
			continue
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			problems = append(problems, fmt.Sprintf("%s: duplicate version with %s", name, prev))
		}
		seen[version] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		content := string(body)
		if !strings.Contains(content, "-- +goose Up") {
			problems = append(problems, fmt.Sprintf("%s: missing '-- +goose Up' annotation", name))
		}
		if !strings.Contains(content, "-- +goose Down") {
			problems = append(problems, fmt.Sprintf("%s: missing '-- +goose Down' annotation", name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("migration validation failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
