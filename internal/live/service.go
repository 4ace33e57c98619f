package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rwalker123/draco-sub020/internal/models"
	"github.com/rwalker123/draco-sub020/internal/realtime"
)

var (
	// ErrNotAuthorized is returned when the caller lacks the role required
	// for the action. It is surfaced as 403, never silently downgraded.
	ErrNotAuthorized = errors.New("not authorized to score this contest")
	// ErrPersistence wraps a failed durable write during finalize. The
	// session stays active and the scorer must retry.
	ErrPersistence = errors.New("persistence failure")
)

// PermissionChecker decides whether a user may score a contest.
type PermissionChecker interface {
	CanScore(ctx context.Context, contestID int64, userID uuid.UUID) (bool, error)
}

// ResultWriter durably stores a finalized contest result.
type ResultWriter interface {
	Save(ctx context.Context, res *models.ContestResult) error
}

// Broadcaster fans an event out to every connection watching a contest.
type Broadcaster interface {
	BroadcastAndPublish(contestID int64, event string, payload interface{})
}

// ScoreUpdate is the score_update event payload.
type ScoreUpdate struct {
	SegmentNumber int       `json:"segmentNumber"`
	Side          string    `json:"side"`
	Value         int       `json:"value"`
	EnteredBy     uuid.UUID `json:"enteredBy"`
	Timestamp     time.Time `json:"timestamp"`
}

// FinalResult is the session_finalized event payload.
type FinalResult struct {
	ContestID    int64                  `json:"contestId"`
	Totals       map[string]int         `json:"totals"`
	LineScore    map[string]map[int]int `json:"lineScore"`
	SegmentCount int                    `json:"segmentCount"`
}

// Service orchestrates the live-scoring state machine:
// no session -> active -> finalized or stopped. Every mutating call checks
// the caller's authority once at this boundary, mutates the store, and
// broadcasts the resulting event before returning, so a successful HTTP
// response means the viewers have already been notified.
//
// Calls for the same contest are serialized by a per-contest lock; calls for
// different contests never contend. That serialization is what guarantees
// events for one contest broadcast in mutation order.
type Service struct {
	store   *Store
	tickets *TicketIssuer
	hub     Broadcaster
	perms   PermissionChecker
	results ResultWriter
	logger  *zap.Logger

	// locks entries are never removed: dropping one while a caller still
	// holds it would let a new session's calls run unserialized against an
	// in-flight call from the old session. Growth is bounded by the number
	// of distinct contests scored over the process lifetime.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService creates a live scoring service.
func NewService(store *Store, tickets *TicketIssuer, hub Broadcaster, perms PermissionChecker, results ResultWriter, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		tickets: tickets,
		hub:     hub,
		perms:   perms,
		results: results,
		logger:  logger,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// contestLock returns the mutex serializing mutating calls for one contest.
func (s *Service) contestLock(contestID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[contestID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[contestID] = l
	}
	return l
}

func (s *Service) authorize(ctx context.Context, contestID int64, userID uuid.UUID) error {
	ok, err := s.perms.CanScore(ctx, contestID, userID)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// Start begins a live session for the contest.
func (s *Service) Start(ctx context.Context, contest *models.Contest, userID uuid.UUID) (*models.Session, error) {
	if err := s.authorize(ctx, contest.ID, userID); err != nil {
		return nil, err
	}
	l := s.contestLock(contest.ID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.StartSession(contest.ID, contest.AccountID, userID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastAndPublish(contest.ID, realtime.EventSessionStarted, sess)
	s.logger.Info("session started",
		zap.Int64("contest_id", contest.ID),
		zap.String("started_by", userID.String()),
	)
	return sess, nil
}

// SubmitScore records one scoring entry and notifies viewers.
func (s *Service) SubmitScore(ctx context.Context, contest *models.Contest, userID uuid.UUID, segmentNumber int, side string, value int) (*models.Session, error) {
	if err := s.authorize(ctx, contest.ID, userID); err != nil {
		return nil, err
	}
	l := s.contestLock(contest.ID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.RecordEntry(contest.ID, segmentNumber, side, value, userID)
	if err != nil {
		return nil, err
	}
	entry := sess.Entries[len(sess.Entries)-1]
	s.hub.BroadcastAndPublish(contest.ID, realtime.EventScoreUpdate, ScoreUpdate{
		SegmentNumber: entry.SegmentNumber,
		Side:          entry.Side,
		Value:         entry.Value,
		EnteredBy:     entry.EnteredBy,
		Timestamp:     entry.EnteredAt,
	})
	return sess, nil
}

// AdvanceSegment moves the contest to the next inning or hole.
func (s *Service) AdvanceSegment(ctx context.Context, contest *models.Contest, userID uuid.UUID, segmentNumber int) (*models.Session, error) {
	if err := s.authorize(ctx, contest.ID, userID); err != nil {
		return nil, err
	}
	l := s.contestLock(contest.ID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.AdvanceSegment(contest.ID, segmentNumber)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastAndPublish(contest.ID, realtime.EventSegmentAdvanced, map[string]int{
		"currentSegment": sess.CurrentSegment,
	})
	return sess, nil
}

// Finalize computes totals, writes the durable result, and only then removes
// the session and broadcasts session_finalized. If the write fails the
// session stays active and no terminal event is sent, so "finalized" is never
// announced for a result that was not saved.
func (s *Service) Finalize(ctx context.Context, contest *models.Contest, userID uuid.UUID) (*FinalResult, error) {
	if err := s.authorize(ctx, contest.ID, userID); err != nil {
		return nil, err
	}
	l := s.contestLock(contest.ID)
	l.Lock()
	defer l.Unlock()

	sess, ok := s.store.Get(contest.ID)
	if !ok || sess.Status != models.SessionActive {
		return nil, ErrNoActiveSession
	}

	final := &FinalResult{
		ContestID:    contest.ID,
		Totals:       sess.Totals(),
		LineScore:    sess.LineScore(),
		SegmentCount: sess.CurrentSegment,
	}
	err := s.results.Save(ctx, &models.ContestResult{
		ContestID:    contest.ID,
		AccountID:    contest.AccountID,
		Totals:       final.Totals,
		LineScore:    final.LineScore,
		SegmentCount: final.SegmentCount,
		StartedBy:    sess.StartedBy,
		FinalizedBy:  userID,
		StartedAt:    sess.StartedAt,
	})
	if err != nil {
		s.logger.Error("final result write failed",
			zap.Int64("contest_id", contest.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if _, err := s.store.Finalize(contest.ID); err != nil {
		return nil, err
	}
	s.hub.BroadcastAndPublish(contest.ID, realtime.EventSessionFinalized, final)
	s.logger.Info("session finalized",
		zap.Int64("contest_id", contest.ID),
		zap.String("finalized_by", userID.String()),
	)
	return final, nil
}

// Stop discards the session without persisting anything.
func (s *Service) Stop(ctx context.Context, contest *models.Contest, userID uuid.UUID) error {
	if err := s.authorize(ctx, contest.ID, userID); err != nil {
		return err
	}
	l := s.contestLock(contest.ID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.store.Stop(contest.ID); err != nil {
		return err
	}
	s.hub.BroadcastAndPublish(contest.ID, realtime.EventSessionStopped, map[string]int64{
		"contestId": contest.ID,
	})
	s.logger.Info("session stopped", zap.Int64("contest_id", contest.ID))
	return nil
}

// GetState returns a read-only snapshot of the contest's live session.
func (s *Service) GetState(contestID int64) (*models.Session, bool) {
	return s.store.Get(contestID)
}

// CreateTicket mints a streaming ticket for the contest. Scorer tickets
// require scoring permission; viewer tickets only require authentication.
func (s *Service) CreateTicket(ctx context.Context, contest *models.Contest, userID uuid.UUID, role Role) (token string, expiresIn int, err error) {
	if role == RoleScorer {
		if err := s.authorize(ctx, contest.ID, userID); err != nil {
			return "", 0, err
		}
	}
	return s.tickets.Create(userID, contest.ID, contest.AccountID, role)
}

// ValidateTicket consumes a ticket for the contest being subscribed to.
func (s *Service) ValidateTicket(token string, contestID int64) (*TicketClaims, error) {
	return s.tickets.Validate(token, contestID)
}
