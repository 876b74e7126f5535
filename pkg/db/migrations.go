package db

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// LoadMigrations returns the SQL scripts in dir sorted by file name. An empty
// dir loads the migrations compiled into the binary.
func LoadMigrations(dir string) ([]string, error) {
	if dir == "" {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("%s - embedded migrations: %w", migrationsLogPrefix, err)
		}
		return loadSQL(sub, "embedded")
	}
	return loadSQL(os.DirFS(dir), dir)
}

func loadSQL(fsys fs.FS, source string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, source, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s/%s: %w", migrationsLogPrefix, source, name, err)
		}
		out = append(out, string(data))
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), source))
	return out, nil
}

func migrationSource(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}
