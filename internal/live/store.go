package live

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rwalker123/draco-sub020/internal/models"
)

var (
	// ErrAlreadyActive is returned by StartSession when the contest already
	// has an active session. Start is rejected, never silently merged: the
	// caller must stop or finalize first.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNoActiveSession is returned by mutating calls when the contest has
	// no active session.
	ErrNoActiveSession = errors.New("no active session")
)

// Store holds the authoritative in-memory state of every live scoring
// session, keyed by contest id. It is process-scoped and injected as a
// dependency; entries enter and leave only through the lifecycle operations
// below. All methods return deep copies, so callers never share memory with
// the live map.
//
// The store's own lock only guards map and slice integrity. Serializing
// mutating calls per contest (so broadcasts leave in mutation order) is the
// Service's job.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*models.Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*models.Session)}
}

// Get returns a snapshot of the contest's live session, if one exists.
func (s *Store) Get(contestID int64) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[contestID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// StartSession creates an active session for the contest, starting at
// segment 1. Fails with ErrAlreadyActive if one already exists.
func (s *Store) StartSession(contestID, accountID int64, startedBy uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[contestID]; ok {
		return nil, ErrAlreadyActive
	}
	sess := &models.Session{
		ContestID:      contestID,
		AccountID:      accountID,
		Status:         models.SessionActive,
		CurrentSegment: 1,
		StartedBy:      startedBy,
		StartedAt:      time.Now().UTC(),
		Entries:        []models.ScoreEntry{},
	}
	s.sessions[contestID] = sess
	return sess.Clone(), nil
}

// RecordEntry appends a scoring entry. Duplicate (segment, side) pairs are
// accepted: the latest entry supersedes earlier ones, which is how scorers
// correct mistakes without losing the audit trail.
func (s *Store) RecordEntry(contestID int64, segmentNumber int, side string, value int, enteredBy uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[contestID]
	if !ok || sess.Status != models.SessionActive {
		return nil, ErrNoActiveSession
	}
	sess.Entries = append(sess.Entries, models.ScoreEntry{
		SegmentNumber: segmentNumber,
		Side:          side,
		Value:         value,
		EnteredBy:     enteredBy,
		EnteredAt:     time.Now().UTC(),
	})
	return sess.Clone(), nil
}

// AdvanceSegment moves the current segment forward. An out-of-order call with
// a lower number is accepted but never rolls the contest backward: the
// current segment is the max of the current and requested values.
func (s *Store) AdvanceSegment(contestID int64, segmentNumber int) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[contestID]
	if !ok || sess.Status != models.SessionActive {
		return nil, ErrNoActiveSession
	}
	if segmentNumber > sess.CurrentSegment {
		sess.CurrentSegment = segmentNumber
	}
	return sess.Clone(), nil
}

// Finalize marks the session finalized and removes it from the live set.
// Only called after the durable result write succeeded, so a finalized
// session always matches a saved result.
func (s *Store) Finalize(contestID int64) (*models.Session, error) {
	return s.remove(contestID, models.SessionFinalized)
}

// Stop discards the session without persisting anything.
func (s *Store) Stop(contestID int64) (*models.Session, error) {
	return s.remove(contestID, models.SessionStopped)
}

func (s *Store) remove(contestID int64, terminal models.SessionStatus) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[contestID]
	if !ok || sess.Status != models.SessionActive {
		return nil, ErrNoActiveSession
	}
	delete(s.sessions, contestID)
	sess.Status = terminal
	return sess.Clone(), nil
}

// Active returns the contest ids with a live session, for observability.
func (s *Store) Active() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
