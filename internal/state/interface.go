// Package state provides SQLite-backed snapshots for restart recovery.
package state

import (
	"io"

	"github.com/mkade/foreman/pkg/models"
)

// SessionStore handles session snapshot persistence.
type SessionStore interface {
	SaveSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	ListSessions() ([]*models.Session, error)
	DeleteSession(id string) error
}

// TaskStore handles task snapshot persistence.
type TaskStore interface {
	SaveTask(t *models.Task) error
	ListTasks(sessionID string) ([]*models.Task, error)
	DeleteTask(id string) error
}

// WorkflowStore handles suspended-workflow persistence.
type WorkflowStore interface {
	SavePausedWorkflow(w *models.Workflow) error
	ListPausedWorkflows() ([]*models.Workflow, error)
	DeletePausedWorkflow(id string) error
}

// Migrator handles database schema migrations. Separating this lets clients
// depend only on migration functionality.
type Migrator interface {
	Migrate() error
}

// Store defines the interface for snapshot persistence. Composing focused
// sub-interfaces keeps the coordinator decoupled from the concrete SQLite
// implementation.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	TaskStore
	WorkflowStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store         = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ SessionStore  = (*DB)(nil)
	_ TaskStore     = (*DB)(nil)
	_ WorkflowStore = (*DB)(nil)
)
