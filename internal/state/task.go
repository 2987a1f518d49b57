package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkade/foreman/pkg/models"
)

// SaveTask inserts or updates a task snapshot.
func (db *DB) SaveTask(t *models.Task) error {
	deps, err := json.Marshal(t.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}
	files, err := json.Marshal(t.ModifiedFiles)
	if err != nil {
		return fmt.Errorf("marshal modified files: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO tasks (id, session_id, local_id, description, status, task_type,
			dependencies, priority, assigned_agent, modified_files, workflow_id,
			summary, last_error, retry_count, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			status = excluded.status,
			task_type = excluded.task_type,
			dependencies = excluded.dependencies,
			priority = excluded.priority,
			assigned_agent = excluded.assigned_agent,
			modified_files = excluded.modified_files,
			workflow_id = excluded.workflow_id,
			summary = excluded.summary,
			last_error = excluded.last_error,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		t.ID, t.SessionID, t.LocalID, t.Description, string(t.Status), string(t.Type),
		string(deps), t.Priority, t.AssignedAgent, string(files), t.WorkflowID,
		t.Summary, t.LastError, t.RetryCount, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks loads the task snapshots for one session, creation order.
func (db *DB) ListTasks(sessionID string) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, session_id, local_id, description, status, task_type,
			dependencies, priority, assigned_agent, modified_files, workflow_id,
			summary, last_error, retry_count, created_at, updated_at, completed_at
		FROM tasks WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes one task snapshot.
func (db *DB) DeleteTask(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var status, taskType string
	var deps, agent, files, workflowID, summary, lastError sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.SessionID, &t.LocalID, &t.Description, &status, &taskType,
		&deps, &t.Priority, &agent, &files, &workflowID,
		&summary, &lastError, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Type = models.TaskType(taskType)
	t.AssignedAgent = agent.String
	t.WorkflowID = workflowID.String
	t.Summary = summary.String
	t.LastError = lastError.String
	if deps.Valid && deps.String != "" {
		if err := json.Unmarshal([]byte(deps.String), &t.Dependencies); err != nil {
			return nil, fmt.Errorf("unmarshal dependencies: %w", err)
		}
	}
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &t.ModifiedFiles); err != nil {
			return nil, fmt.Errorf("unmarshal modified files: %w", err)
		}
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	return &t, nil
}

// SavePausedWorkflow records a workflow suspended by pause or shutdown.
func (db *DB) SavePausedWorkflow(w *models.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO paused_workflows (id, session_id, data, paused_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			data = excluded.data,
			paused_at = excluded.paused_at`,
		w.ID, w.SessionID, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("save paused workflow %s: %w", w.ID, err)
	}
	return nil
}

// ListPausedWorkflows loads every suspended workflow, oldest pause first.
func (db *DB) ListPausedWorkflows() ([]*models.Workflow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT data FROM paused_workflows ORDER BY paused_at")
	if err != nil {
		return nil, fmt.Errorf("list paused workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan paused workflow: %w", err)
		}
		var w models.Workflow
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, fmt.Errorf("unmarshal paused workflow: %w", err)
		}
		workflows = append(workflows, &w)
	}
	return workflows, rows.Err()
}

// DeletePausedWorkflow removes one suspended workflow record.
func (db *DB) DeletePausedWorkflow(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec("DELETE FROM paused_workflows WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete paused workflow %s: %w", id, err)
	}
	return nil
}
