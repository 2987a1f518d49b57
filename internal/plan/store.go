// Package plan persists per-session plan documents and their revision
// history on disk, and watches the plan directory so external edits are
// surfaced as events.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

// Store owns the plan directory layout: one subdirectory per session,
// containing numbered plan documents and a revision index.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plan directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the plan root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.dir, sessionID)
}

func (s *Store) versionPath(sessionID string, version int) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("plan_v%d.md", version))
}

func (s *Store) indexPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), "revisions.json")
}

// Create writes the first plan document for a session and returns its
// revision record. Fails with Conflict if the session already has a plan.
func (s *Store) Create(sessionID, content string) (*models.PlanRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs, err := s.loadIndex(sessionID)
	if err != nil {
		return nil, err
	}
	if len(revs) > 0 {
		return nil, protocol.Conflictf("session %s already has a plan", sessionID)
	}
	return s.writeRevision(sessionID, 1, content, "")
}

// Revise writes the next plan version for a session, recording the feedback
// that prompted it. Fails with NotFound if no plan exists yet.
func (s *Store) Revise(sessionID, content, feedback string) (*models.PlanRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs, err := s.loadIndex(sessionID)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, protocol.NotFoundf("no plan exists for session %s", sessionID)
	}
	next := revs[len(revs)-1].Version + 1
	return s.writeRevision(sessionID, next, content, feedback)
}

// writeRevision writes the document and appends to the index. Caller holds mu.
func (s *Store) writeRevision(sessionID string, version int, content, feedback string) (*models.PlanRevision, error) {
	if err := os.MkdirAll(s.sessionDir(sessionID), 0755); err != nil {
		return nil, fmt.Errorf("create session plan directory: %w", err)
	}
	path := s.versionPath(sessionID, version)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write plan document: %w", err)
	}

	rev := models.PlanRevision{
		Version:   version,
		Path:      path,
		Feedback:  feedback,
		CreatedAt: time.Now(),
	}
	revs, err := s.loadIndex(sessionID)
	if err != nil {
		return nil, err
	}
	revs = append(revs, rev)
	if err := s.saveIndex(sessionID, revs); err != nil {
		return nil, err
	}
	return &rev, nil
}

// Current returns the latest revision record for a session.
func (s *Store) Current(sessionID string) (*models.PlanRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs, err := s.loadIndex(sessionID)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, protocol.NotFoundf("no plan exists for session %s", sessionID)
	}
	rev := revs[len(revs)-1]
	return &rev, nil
}

// Read returns the latest plan document's content.
func (s *Store) Read(sessionID string) (string, error) {
	rev, err := s.Current(sessionID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(rev.Path)
	if err != nil {
		return "", fmt.Errorf("read plan document: %w", err)
	}
	return string(data), nil
}

// Revisions returns the full revision history for a session, oldest first.
func (s *Store) Revisions(sessionID string) ([]models.PlanRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndex(sessionID)
}

// Sessions lists the session ids that have plan directories, sorted.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read plan directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes a session's plan directory and revision history.
func (s *Store) Remove(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("remove session plans: %w", err)
	}
	return nil
}

func (s *Store) loadIndex(sessionID string) ([]models.PlanRevision, error) {
	data, err := os.ReadFile(s.indexPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read revision index: %w", err)
	}
	var revs []models.PlanRevision
	if err := json.Unmarshal(data, &revs); err != nil {
		return nil, fmt.Errorf("parse revision index: %w", err)
	}
	return revs, nil
}

func (s *Store) saveIndex(sessionID string, revs []models.PlanRevision) error {
	data, err := json.MarshalIndent(revs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal revision index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(sessionID), data, 0644); err != nil {
		return fmt.Errorf("write revision index: %w", err)
	}
	return nil
}
