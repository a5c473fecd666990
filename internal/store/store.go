// Package store persists skill locks, workflow sessions, and step
// completions in SQLite. The database is shared across the application and
// is never the write surface for filesystem operations; cleanup and step
// writes are sequenced by the driver.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrLockConflict is returned when a different instance holds a skill lock.
var ErrLockConflict = errors.New("skill lock held by another instance")

// Store wraps the shared SQLite connection.
type Store struct {
	db *sql.DB
}

// Lock is one row of skill_locks.
type Lock struct {
	SkillName  string
	InstanceID string
	PID        int
	AcquiredAt time.Time
}

// Session is one row of workflow_sessions.
type Session struct {
	SessionID   string
	SkillName   string
	PID         int
	StartedAt   time.Time
	EndedAt     *time.Time
	ResetMarker bool
}

// Open opens (and initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// init creates the database schema.
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS skill_locks (
		skill_name TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		pid INTEGER NOT NULL,
		acquired_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workflow_sessions (
		session_id TEXT PRIMARY KEY,
		skill_name TEXT NOT NULL,
		pid INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		reset_marker INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_pid ON workflow_sessions(pid);

	CREATE TABLE IF NOT EXISTS step_completions (
		skill_name TEXT NOT NULL,
		step_id INTEGER NOT NULL,
		completed_at DATETIME NOT NULL,
		PRIMARY KEY (skill_name, step_id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// AcquireLock takes the skill lock for an instance. Re-acquisition by the
// holding instance is a no-op; a lock held by any other instance is a
// conflict, surfaced synchronously and never overridden.
func (s *Store) AcquireLock(skill, instanceID string, pid int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var holder string
	err = tx.QueryRow("SELECT instance_id FROM skill_locks WHERE skill_name = ?", skill).Scan(&holder)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO skill_locks (skill_name, instance_id, pid, acquired_at)
			VALUES (?, ?, ?, ?)
		`, skill, instanceID, pid, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		return tx.Commit()
	case err != nil:
		return fmt.Errorf("failed to read lock: %w", err)
	case holder == instanceID:
		return tx.Commit() // already held by us
	default:
		return fmt.Errorf("skill %q: %w", skill, ErrLockConflict)
	}
}

// ReleaseLock releases one skill lock if held by the given instance.
func (s *Store) ReleaseLock(skill, instanceID string) error {
	_, err := s.db.Exec(
		"DELETE FROM skill_locks WHERE skill_name = ? AND instance_id = ?",
		skill, instanceID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// ReleaseAllForInstance releases every lock held by the instance. Safe to
// call when the instance holds none.
func (s *Store) ReleaseAllForInstance(instanceID string) error {
	_, err := s.db.Exec("DELETE FROM skill_locks WHERE instance_id = ?", instanceID)
	if err != nil {
		return fmt.Errorf("failed to release locks: %w", err)
	}
	return nil
}

// LockHolder returns the current holder of a skill lock, if any.
func (s *Store) LockHolder(skill string) (*Lock, error) {
	lock := &Lock{SkillName: skill}
	err := s.db.QueryRow(
		"SELECT instance_id, pid, acquired_at FROM skill_locks WHERE skill_name = ?",
		skill).Scan(&lock.InstanceID, &lock.PID, &lock.AcquiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	return lock, nil
}

// StartSession records a new workflow session for this process.
func (s *Store) StartSession(sessionID, skill string, pid int) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_sessions (session_id, skill_name, pid, started_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, skill, pid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// EndSession marks one session ended, optionally flagging it as a reset.
func (s *Store) EndSession(sessionID string, reset bool) error {
	marker := 0
	if reset {
		marker = 1
	}
	_, err := s.db.Exec(`
		UPDATE workflow_sessions SET ended_at = ?, reset_marker = ?
		WHERE session_id = ? AND ended_at IS NULL
	`, time.Now().UTC(), marker, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// EndAllSessionsForPID ends every open session owned by the process id.
// Used for both graceful shutdown and crash recovery; safe when none exist.
func (s *Store) EndAllSessionsForPID(pid int) error {
	_, err := s.db.Exec(`
		UPDATE workflow_sessions SET ended_at = ?
		WHERE pid = ? AND ended_at IS NULL
	`, time.Now().UTC(), pid)
	if err != nil {
		return fmt.Errorf("failed to end sessions: %w", err)
	}
	return nil
}

// OpenSessions lists sessions with no recorded end, newest first. Startup
// recovery uses this to find sessions orphaned by a crashed instance.
func (s *Store) OpenSessions() ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT session_id, skill_name, pid, started_at, reset_marker
		FROM workflow_sessions WHERE ended_at IS NULL
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var marker int
		if err := rows.Scan(&sess.SessionID, &sess.SkillName, &sess.PID, &sess.StartedAt, &marker); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.ResetMarker = marker != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RecordStepComplete durably records one completed step for a skill.
func (s *Store) RecordStepComplete(skill string, stepID int) error {
	_, err := s.db.Exec(`
		INSERT INTO step_completions (skill_name, step_id, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(skill_name, step_id) DO UPDATE SET completed_at = excluded.completed_at
	`, skill, stepID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// LastConfirmedStep returns the highest durably recorded step id for a
// skill, or -1 when no step has completed.
func (s *Store) LastConfirmedStep(skill string) (int, error) {
	var step sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(step_id) FROM step_completions WHERE skill_name = ?",
		skill).Scan(&step)
	if err != nil {
		return -1, fmt.Errorf("failed to read step completions: %w", err)
	}
	if !step.Valid {
		return -1, nil
	}
	return int(step.Int64), nil
}

// ClearSteps removes every recorded completion for a skill. Invoked by the
// user-initiated reset alongside thorough deletion.
func (s *Store) ClearSteps(skill string) error {
	_, err := s.db.Exec("DELETE FROM step_completions WHERE skill_name = ?", skill)
	if err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	return nil
}

// ClearStepsFrom removes recorded completions for stepID and everything
// after it, so a rolled-back step no longer counts as confirmed.
func (s *Store) ClearStepsFrom(skill string, stepID int) error {
	_, err := s.db.Exec(
		"DELETE FROM step_completions WHERE skill_name = ? AND step_id >= ?",
		skill, stepID)
	if err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	return nil
}
