// Package migrate is a small ordered-filename migration runner shared by
// both storage back-ends (§4.4: "Migrations are ordered by a lexicographic
// filename key and each runs at most once, recorded in a system table").
// Neither back-end's SQL dialect differs enough in DDL to justify separate
// runner logic; only the embedded migration sources differ (sqlitemigrations
// vs postgresmigrations).
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Backend is the minimal surface a storage driver must provide to let Run
// apply migrations: create the version-tracking table if absent, list
// already-applied versions, and apply one migration's SQL plus record its
// version, atomically.
type Backend interface {
	EnsureVersionTable(ctx context.Context) error
	AppliedVersions(ctx context.Context) (map[string]bool, error)
	Apply(ctx context.Context, version, sqlText string) error
}

// Run applies every *.sql file in migrations not yet recorded in b's version
// table, in lexicographic filename order, and returns the versions it
// applied (nil if none were pending).
func Run(ctx context.Context, b Backend, migrations fs.FS) ([]string, error) {
	if err := b.EnsureVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("migrate: ensure version table: %w", err)
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	applied, err := b.AppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: load applied versions: %w", err)
	}

	var ran []string
	for _, name := range names {
		if applied[name] {
			continue
		}
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		if err := b.Apply(ctx, name, string(content)); err != nil {
			return nil, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		ran = append(ran, name)
	}
	return ran, nil
}
