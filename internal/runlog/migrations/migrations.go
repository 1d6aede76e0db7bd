// Package migrations owns the run history schema. Migration files are
// embedded and applied with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const dir = "files"

//go:embed files/*.sql
var files embed.FS

// ErrUnversioned is returned by Status.Err for a database that was never
// migrated.
var ErrUnversioned = errors.New("run history has no schema version")

// Status describes where a database stands relative to the embedded
// migrations.
type Status struct {
	Current   uint
	Latest    uint
	Versioned bool
	Dirty     bool
}

// Err is nil only for a clean database at the latest version.
func (s Status) Err() error {
	switch {
	case !s.Versioned:
		return ErrUnversioned
	case s.Dirty:
		return fmt.Errorf("run history schema is dirty at version %d", s.Current)
	case s.Current < s.Latest:
		return fmt.Errorf("run history schema at version %d, %d pending up to %d", s.Current, s.Latest-s.Current, s.Latest)
	case s.Current > s.Latest:
		return fmt.Errorf("run history schema version %d is newer than this build (%d)", s.Current, s.Latest)
	}
	return nil
}

// Latest returns the highest version among the embedded migrations.
func Latest() (uint, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		m, err := source.Parse(e.Name())
		if err != nil {
			return 0, fmt.Errorf("parsing migration name %q: %w", e.Name(), err)
		}
		latest = max(latest, m.Version)
	}
	return latest, nil
}

// Inspect reports the schema state of db without changing it.
func Inspect(db *sql.DB) (Status, error) {
	latest, err := Latest()
	if err != nil {
		return Status{}, err
	}
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}
	// Closing m would close db, which belongs to the caller.

	st := Status{Latest: latest}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return st, nil
	case err != nil:
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	st.Current, st.Dirty, st.Versioned = version, dirty, true
	return st, nil
}

// Verify returns an error unless db is migrated to the latest version.
func Verify(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// Apply runs every pending up migration.
func Apply(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("wrapping run history database: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("initializing migrations: %w", err)
	}
	return m, nil
}
