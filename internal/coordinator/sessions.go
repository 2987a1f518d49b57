package coordinator

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/pkg/models"
)

// sessionTransitions is the legal status graph. A session never leaves
// completed or cancelled except through Restart.
var sessionTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionStatusDebating:      {models.SessionStatusReviewing, models.SessionStatusRevising, models.SessionStatusPendingReview, models.SessionStatusApproved, models.SessionStatusCancelled},
	models.SessionStatusReviewing:     {models.SessionStatusRevising, models.SessionStatusPendingReview, models.SessionStatusApproved, models.SessionStatusCancelled},
	models.SessionStatusRevising:      {models.SessionStatusReviewing, models.SessionStatusPendingReview, models.SessionStatusApproved, models.SessionStatusCancelled},
	models.SessionStatusPendingReview: {models.SessionStatusApproved, models.SessionStatusRevising, models.SessionStatusCancelled},
	models.SessionStatusApproved:      {models.SessionStatusExecuting, models.SessionStatusCancelled},
	models.SessionStatusExecuting:     {models.SessionStatusCompleted, models.SessionStatusCancelled},
	models.SessionStatusCancelled:     nil,
	models.SessionStatusCompleted:     nil,
}

// SessionManager owns the session registry: in-memory working set with
// write-through persistence so sessions survive a daemon restart.
type SessionManager struct {
	mu       sync.RWMutex
	store    state.SessionStore
	sessions map[string]*models.Session
}

// NewSessionManager creates a SessionManager backed by store.
func NewSessionManager(store state.SessionStore) *SessionManager {
	return &SessionManager{
		store:    store,
		sessions: make(map[string]*models.Session),
	}
}

// Load populates the registry from persisted sessions.
func (m *SessionManager) Load() error {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	log.Printf("[coordinator] loaded %d persisted sessions", len(sessions))
	return nil
}

// Create starts a new planning session in debating status.
func (m *SessionManager) Create(requirement string) (*models.Session, error) {
	now := time.Now()
	s := &models.Session{
		ID:          "s-" + uuid.NewString()[:8],
		Status:      models.SessionStatusDebating,
		Requirement: requirement,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveSession(s); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s.Clone(), nil
}

// Get returns a session by id. The registry hands out clones; writers keep
// mutating the stored session under the lock, so a shared pointer would race
// with callers marshalling or reading it outside.
func (m *SessionManager) Get(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, protocol.NotFoundf("session %s not found", id)
	}
	return s.Clone(), nil
}

// List returns clones of all sessions ordered by creation time.
func (m *SessionManager) List() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SetStatus applies a status transition, rejecting moves the status graph
// does not allow. Setting the current status again is a no-op.
func (m *SessionManager) SetStatus(id string, status models.SessionStatus) (*models.Session, error) {
	if !status.Valid() {
		return nil, protocol.InvalidStatef("unknown session status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, protocol.NotFoundf("session %s not found", id)
	}
	if s.Status == status {
		return s.Clone(), nil
	}
	if !transitionAllowed(s.Status, status) {
		return nil, protocol.InvalidStatef("session %s cannot move from %s to %s", id, s.Status, status)
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	if err := m.store.SaveSession(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Restart returns a cancelled or completed session to debating so planning
// can begin again against the same requirement.
func (m *SessionManager) Restart(id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, protocol.NotFoundf("session %s not found", id)
	}
	if s.Status != models.SessionStatusCancelled && s.Status != models.SessionStatusCompleted {
		return nil, protocol.InvalidStatef("session %s is %s; only cancelled or completed sessions restart", id, s.Status)
	}
	s.Status = models.SessionStatusDebating
	s.UpdatedAt = time.Now()
	if err := m.store.SaveSession(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// AttachRevision records a new plan revision on the session and points the
// current plan reference at it.
func (m *SessionManager) AttachRevision(id string, rev models.PlanRevision) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, protocol.NotFoundf("session %s not found", id)
	}
	s.Revisions = append(s.Revisions, rev)
	s.PlanPath = rev.Path
	s.UpdatedAt = time.Now()
	if err := m.store.SaveSession(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Remove deletes a session from the registry and the store. The caller is
// responsible for discarding the task graph subtree and runtime state.
func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return protocol.NotFoundf("session %s not found", id)
	}
	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

func transitionAllowed(from, to models.SessionStatus) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
