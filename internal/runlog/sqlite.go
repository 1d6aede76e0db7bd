package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sabot-go/internal/runlog/migrations"
	"sabot-go/internal/sabot"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const timeLayout = time.RFC3339Nano

// SQLiteRunLog records pipeline runs in a SQLite database.
type SQLiteRunLog struct {
	db   *sql.DB
	path string
}

var _ sabot.RunLog = (*SQLiteRunLog)(nil)

// NewSQLiteRunLog opens the database at path and applies pending
// migrations. path can be ":memory:".
func NewSQLiteRunLog(path string) (*SQLiteRunLog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating run history: %w", err)
	}
	return &SQLiteRunLog{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection limited to a single open
// connection, so an in-memory database keeps its contents and writes are
// serialized.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteRunLog) Begin(run *sabot.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, platform, account, trigger_by, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Platform), run.Account, string(run.Trigger), string(run.Status),
		run.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteRunLog) Finish(run *sabot.Run) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, finished_at = ?, delivered = ?, skipped = ?, failed = ?, error = ?
		WHERE id = ?`,
		string(run.Status), run.FinishedAt.UTC().Format(timeLayout),
		run.Delivered, run.Skipped, run.Failed, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: no such run", run.ID)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLiteRunLog) Recent(limit int) ([]*sabot.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, platform, account, trigger_by, status, started_at, finished_at,
		       delivered, skipped, failed, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*sabot.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (*sabot.Run, error) {
	var (
		run                       sabot.Run
		platform, trigger, status string
		startedAt                 string
		finishedAt                sql.NullString
	)
	if err := rows.Scan(&run.ID, &platform, &run.Account, &trigger, &status, &startedAt, &finishedAt,
		&run.Delivered, &run.Skipped, &run.Failed, &run.Error); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Platform = sabot.Platform(platform)
	run.Trigger = sabot.Trigger(trigger)
	run.Status = sabot.RunStatus(status)

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at of run %s: %w", run.ID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt.String); err != nil {
			return nil, fmt.Errorf("parsing finished_at of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// CheckMigrations verifies the schema is up-to-date.
func (s *SQLiteRunLog) CheckMigrations() error {
	return migrations.Verify(s.db)
}

// BackupTo writes a complete copy of the database to destPath using
// VACUUM INTO.
func (s *SQLiteRunLog) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up run history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteRunLog) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
