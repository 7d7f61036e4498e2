// Package migrations exposes the embedded inventory schema per SQL dialect.
package migrations

import (
	"fmt"
	"io/fs"
	"strings"

	inventory "github.com/goliatone/go-inventory"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const migrationsDir = "data/sql/migrations"

// Dialects lists every dialect the schema ships for.
func Dialects() []string {
	return []string{DialectPostgres, DialectSQLite}
}

// FS returns the migration files for dialect. Postgres files live at the root
// of the migrations directory and the sqlite variants in its sqlite folder.
func FS(dialect string) (fs.FS, error) {
	dir := migrationsDir
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
	case DialectSQLite:
		dir += "/sqlite"
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(inventory.GetMigrationsFS(), dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	ups, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

// Register hands the migrations of dialect to register, typically a
// persistence client's RegisterSQLMigrations.
func Register(dialect string, register func(fsys fs.FS)) error {
	if register == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	fsys, err := FS(dialect)
	if err != nil {
		return err
	}
	register(fsys)
	return nil
}
