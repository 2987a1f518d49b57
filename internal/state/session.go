package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkade/foreman/pkg/models"
)

// SaveSession inserts or updates a session snapshot.
func (db *DB) SaveSession(s *models.Session) error {
	revisions, err := json.Marshal(s.Revisions)
	if err != nil {
		return fmt.Errorf("marshal revisions: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO sessions (id, status, requirement, plan_path, revisions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			requirement = excluded.requirement,
			plan_path = excluded.plan_path,
			revisions = excluded.revisions,
			updated_at = excluded.updated_at`,
		s.ID, string(s.Status), s.Requirement, s.PlanPath, string(revisions), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession loads one session snapshot. Returns sql.ErrNoRows via the
// wrapped error when the id is unknown.
func (db *DB) GetSession(id string) (*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, status, requirement, plan_path, revisions, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions loads every session snapshot, oldest first.
func (db *DB) ListSessions() ([]*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, status, requirement, plan_path, revisions, created_at, updated_at
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session snapshot along with its tasks and paused
// workflows.
func (db *DB) DeleteSession(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	for _, stmt := range []string{
		"DELETE FROM paused_workflows WHERE session_id = ?",
		"DELETE FROM tasks WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var status string
	var planPath, revisions sql.NullString
	if err := row.Scan(&s.ID, &status, &s.Requirement, &planPath, &revisions, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.PlanPath = planPath.String
	if revisions.Valid && revisions.String != "" {
		if err := json.Unmarshal([]byte(revisions.String), &s.Revisions); err != nil {
			return nil, fmt.Errorf("unmarshal revisions: %w", err)
		}
	}
	return &s, nil
}
