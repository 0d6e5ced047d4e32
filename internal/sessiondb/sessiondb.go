// Package sessiondb persists capture-session metadata and per-frame
// timing samples to a sqlite database. The store is an observability
// aid: failures here are reported to the caller but must never abort a
// capture run.
package sessiondb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sqlite session store.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the session database at path and
// applies any pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}
	wrapped := &DB{db}
	if err := wrapped.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// migrateUp applies all pending embedded migrations.
func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: m is not closed here because that would close the
	// underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Session is one capture run in the store. It implements the loop's
// FrameStats interface.
type Session struct {
	db *DB

	// ID is the run's unique identifier.
	ID string
}

// StartSession records the beginning of a capture run.
func (db *DB) StartSession(source, outputPath, profile string, framerate float64, convert, preview bool) (*Session, error) {
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, source, output_path, profile, framerate, convert, preview, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, outputPath, profile, framerate, convert, preview, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}
	return &Session{db: db, ID: id}, nil
}

// RecordFrame stores one per-frame timing sample.
func (s *Session) RecordFrame(seq int, capturedAt time.Time, convert, write, sleep time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO frames (session_id, seq, captured_at_ns, convert_ms, write_ms, sleep_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, seq, capturedAt.UnixNano(),
		float64(convert)/float64(time.Millisecond),
		float64(write)/float64(time.Millisecond),
		float64(sleep)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to record frame %d: %w", seq, err)
	}
	return nil
}

// Finish records the end of the run.
func (s *Session) Finish(totalFrames int, stopReason string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET ended_at = ?, total_frames = ?, stop_reason = ?
		WHERE session_id = ?`,
		time.Now().UTC(), totalFrames, stopReason, s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// SessionInfo summarises one stored capture run.
type SessionInfo struct {
	ID          string
	Source      string
	OutputPath  string
	Profile     string
	Framerate   float64
	Convert     bool
	Preview     bool
	StartedAt   time.Time
	TotalFrames int64
	StopReason  string
}

// Sessions lists stored runs, newest first.
func (db *DB) Sessions() ([]SessionInfo, error) {
	rows, err := db.Query(`
		SELECT session_id, source, output_path, profile, framerate, convert, preview,
		       started_at, COALESCE(total_frames, 0), COALESCE(stop_reason, '')
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var s SessionInfo
		if err := rows.Scan(&s.ID, &s.Source, &s.OutputPath, &s.Profile, &s.Framerate,
			&s.Convert, &s.Preview, &s.StartedAt, &s.TotalFrames, &s.StopReason); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FrameTimestamps returns the capture timestamps (unix nanos) of a
// session's frames in sequence order.
func (db *DB) FrameTimestamps(sessionID string) ([]int64, error) {
	rows, err := db.Query(`
		SELECT captured_at_ns FROM frames WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("failed to scan frame row: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// LatestSessionID returns the most recently started session.
func (db *DB) LatestSessionID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session database holds no sessions")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest session: %w", err)
	}
	return id, nil
}
