package postgres

import (
	"context"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTableDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)`

// Migrate brings the schema up to date on startup. Each pending .sql file
// under migrations/ runs in one transaction together with its bookkeeping
// row, so a failed migration leaves schema_migrations consistent.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, migrationsTableDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	versions, err := p.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	pending, err := pendingMigrations(applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Printf("database schema up to date (%d migrations)", len(versions))
		return nil
	}

	for _, name := range pending {
		if err := p.applyMigration(ctx, name); err != nil {
			return err
		}
		log.Printf("applied migration %s", name)
	}
	return nil
}

// pendingMigrations lists embedded .sql files not yet recorded, in lexical
// order so numeric prefixes decide the sequence.
func pendingMigrations(applied map[string]bool) ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var pending []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".sql") && !applied[name] {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

func (p *Pool) applyMigration(ctx context.Context, name string) error {
	ddl, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// MigrationsApplied returns the recorded migration versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
