package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// Migration is one versioned schema change loaded from an embedded SQL file.
// Files are named NNNN_description.sql; the numeric prefix is the version.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// Migrator applies pending migrations in version order and records applied
// versions in a dedicated table, so multiple stores can share one database
// with independent migration tables.
type Migrator struct {
	db         *sql.DB
	tableName  string
	migrations []Migration
}

// New creates a migrator recording applied versions in tableName.
func New(db *sql.DB, tableName string) *Migrator {
	return &Migrator{db: db, tableName: tableName}
}

// LoadFromFS loads all *.sql files from dir inside the given filesystem.
func (m *Migrator) LoadFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseFilename(entry.Name())
		if err != nil {
			return err
		}

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		m.migrations = append(m.migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(content),
		})
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	return nil
}

// Up applies all migrations newer than the current version. Each migration
// runs in its own transaction together with the version bookkeeping.
func (m *Migrator) Up() error {
	if err := m.ensureMigrationTable(); err != nil {
		return err
	}

	current, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (version, name, applied_at) VALUES (?, ?, strftime('%%s','now'))`, m.tableName),
			migration.Version, migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// Version returns the highest applied migration version.
func (m *Migrator) Version() (int64, error) {
	if err := m.ensureMigrationTable(); err != nil {
		return 0, err
	}
	return m.getCurrentVersion()
}

func (m *Migrator) ensureMigrationTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

func (m *Migrator) getCurrentVersion() (int64, error) {
	var version sql.NullInt64
	err := m.db.QueryRow(fmt.Sprintf(`SELECT MAX(version) FROM %s`, m.tableName)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version.Int64, nil
}

func parseFilename(filename string) (int64, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", fmt.Errorf("invalid migration filename: %s", filename)
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid migration version in %s: %w", filename, err)
	}
	return version, name, nil
}
