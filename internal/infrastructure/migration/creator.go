package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

// Templates for new migration file pairs. The hints mirror the conventions
// of the existing schema: uuid primary keys, TIMESTAMPTZ timestamps, and
// IF NOT EXISTS guards so a half-applied file can be re-run.
const upTemplate = `-- Migration: {{.Name}}
-- Created: {{.CreatedAt}}
-- Description: {{.Description}}

-- UP migration. Conventions: uuid primary keys, TIMESTAMPTZ timestamps,
-- IF NOT EXISTS guards on tables and indexes.

`

const downTemplate = `-- Migration: {{.Name}} (Rollback)
-- Created: {{.CreatedAt}}
-- Description: Rollback for {{.Description}}

-- DOWN migration. Drop in reverse dependency order (child tables first).

`

// FilePair describes one up/down migration pair on disk.
type FilePair struct {
	Version     string
	Name        string
	Description string
	CreatedAt   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair into the migrations
// directory, creating the directory when needed. The version prefix is the
// current timestamp so file order matches creation order.
func CreateMigration(dir, name, description string) (*FilePair, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("migration: failed to create migrations directory: %w", err)
	}

	now := time.Now()
	base := now.Format("20060102150405") + "_" + sanitizeName(name)

	pair := &FilePair{
		Version:     now.Format("20060102150405"),
		Name:        name,
		Description: description,
		CreatedAt:   now.Format(time.RFC3339),
		UpPath:      filepath.Join(dir, base+".up.sql"),
		DownPath:    filepath.Join(dir, base+".down.sql"),
	}

	if err := renderFile(pair.UpPath, upTemplate, pair); err != nil {
		return nil, fmt.Errorf("migration: failed to create up file: %w", err)
	}
	if err := renderFile(pair.DownPath, downTemplate, pair); err != nil {
		// Do not leave a lone up file behind
		_ = os.Remove(pair.UpPath)
		return nil, fmt.Errorf("migration: failed to create down file: %w", err)
	}
	return pair, nil
}

// renderFile writes one migration file from its template.
func renderFile(path, tmplText string, pair *FilePair) error {
	tmpl, err := template.New("migration").Parse(tmplText)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, pair)
}

// sanitizeName flattens a human migration name into a lower_snake file
// name: letters and digits kept, separators collapsed to one underscore,
// everything else dropped.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if s := b.String(); s != "" && !strings.HasSuffix(s, "_") {
				b.WriteByte('_')
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ListMigrations returns the migration base names found in a directory,
// sorted by version prefix. A missing directory lists as empty.
func ListMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("migration: failed to read migrations directory: %w", err)
	}

	names := make([]string, 0, len(entries)/2)
	seen := make(map[string]struct{}, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok || base == "" {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		names = append(names, base)
	}
	sort.Strings(names)
	return names, nil
}
