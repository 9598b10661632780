package telemetry

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending ClickHouse migrations in name order. Applied
// names are tracked in _ch_migrations; re-running is a no-op.
func Migrate(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _ch_migrations (
			name String,
			executed_at DateTime64(3, 'UTC') DEFAULT now64(3)
		)
		ENGINE = MergeTree
		ORDER BY name`); err != nil {
		return fmt.Errorf("telemetry: init migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	names, err := migrationNames(migrationFS)
	if err != nil {
		return err
	}

	for _, name := range pendingMigrations(names, applied) {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("telemetry: read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(raw)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("telemetry: apply migration %s: %w", name, err)
			}
		}
		if err := conn.Exec(ctx, `INSERT INTO _ch_migrations (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("telemetry: record migration %s: %w", name, err)
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, conn driver.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT name FROM _ch_migrations`)
	if err != nil {
		return nil, fmt.Errorf("telemetry: list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("telemetry: scan migration name: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("telemetry: read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func pendingMigrations(names []string, applied map[string]bool) []string {
	var pending []string
	for _, name := range names {
		if !applied[name] {
			pending = append(pending, name)
		}
	}
	return pending
}

// splitStatements breaks a migration file into executable statements.
// ClickHouse's native protocol runs one statement per Exec.
func splitStatements(raw string) []string {
	var out []string
	for _, stmt := range strings.Split(raw, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
