package storage

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serialises concurrent bootstraps across instances.
const migrationLockKey int64 = 0x5E0A6E47

type migrationFile struct {
	version int
	name    string
}

func listMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var out []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migrationFile{version: version, name: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// Migrate applies pending migrations inside one transaction holding an
// advisory lock, and returns the versions it applied.
func (s *Store) Migrate(ctx context.Context) ([]int, error) {
	files, err := listMigrations()
	if err != nil {
		return nil, err
	}

	var applied []int
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
			return fmt.Errorf("creating schema_version table: %w", err)
		}

		done, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}

		for _, f := range files {
			if _, ok := done[f.version]; ok {
				continue
			}
			content, err := migrationsFS.ReadFile("migrations/" + f.name)
			if err != nil {
				return fmt.Errorf("reading migration %s: %w", f.name, err)
			}
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("applying migration %d: %w", f.version, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", f.version); err != nil {
				return fmt.Errorf("recording migration %d: %w", f.version, err)
			}
			applied = append(applied, f.version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func appliedVersions(ctx context.Context, q querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, "SELECT version, applied_at FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("reading schema_version: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// MigrationStatus lists every embedded migration with whether it has been
// applied. A database without schema_version reports nothing applied.
func (s *Store) MigrationStatus(ctx context.Context) ([]Migration, error) {
	files, err := listMigrations()
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT to_regclass('schema_version') IS NOT NULL").Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking schema_version: %w", err)
	}
	done := map[int]time.Time{}
	if exists {
		if done, err = appliedVersions(ctx, s.pool); err != nil {
			return nil, err
		}
	}

	out := make([]Migration, 0, len(files))
	for _, f := range files {
		m := Migration{Version: f.version, Name: f.name}
		if at, ok := done[f.version]; ok {
			m.Applied = true
			m.AppliedAt = &at
		}
		out = append(out, m)
	}
	return out, nil
}
