package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rwalker123/draco-sub020/internal/models"
	"github.com/rwalker123/draco-sub020/internal/realtime"
)

// memStream is an in-memory realtime.Stream recording everything pushed to it.
type memStream struct {
	mu     sync.Mutex
	events []string
	data   map[string][]json.RawMessage
	closed bool
}

func newMemStream() *memStream {
	return &memStream{data: make(map[string][]json.RawMessage)}
}

func (m *memStream) Send(event string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.data[event] = append(m.data[event], data)
	return nil
}

func (m *memStream) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *memStream) received(event string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[event]
}

// TestLiveScoringFlow drives the full path: start a session, submit a score,
// finalize; viewers connected through the hub see every event for their
// contest and nothing from others.
func TestLiveScoringFlow(t *testing.T) {
	scorer := uuid.New()
	store := NewStore()
	hub := realtime.NewHub(zap.NewNop(), nil, nil)
	hub.SetSnapshotFunc(func(contestID int64) (interface{}, bool) {
		sess, ok := store.Get(contestID)
		if !ok {
			return nil, false
		}
		return sess, true
	})
	resultsRepo := &fakeResults{}
	svc := NewService(store, NewTicketIssuer(time.Minute), hub, &fakePerms{allowed: map[uuid.UUID]bool{scorer: true}}, resultsRepo, zap.NewNop())

	contest := &models.Contest{ID: 42, AccountID: 1, Sport: models.SportBaseball, HomeSide: "home", AwaySide: "away"}
	ctx := context.Background()

	// Three viewers on contest 42, one on contest 7.
	viewers := []*memStream{newMemStream(), newMemStream(), newMemStream()}
	for _, v := range viewers {
		hub.Add(42, uuid.New(), "viewer", v)
	}
	bystander := newMemStream()
	hub.Add(7, uuid.New(), "viewer", bystander)

	// Before any session exists, subscribers are told so.
	assert.Len(t, viewers[0].received(realtime.EventNoSession), 1)

	_, err := svc.Start(ctx, contest, scorer)
	require.NoError(t, err)
	_, err = svc.SubmitScore(ctx, contest, scorer, 1, "home", 3)
	require.NoError(t, err)

	for _, v := range viewers {
		updates := v.received(realtime.EventScoreUpdate)
		require.Len(t, updates, 1)
		var u ScoreUpdate
		require.NoError(t, json.Unmarshal(updates[0], &u))
		assert.Equal(t, 3, u.Value)
		assert.Equal(t, "home", u.Side)
	}
	assert.Empty(t, bystander.received(realtime.EventScoreUpdate))
	assert.Empty(t, bystander.received(realtime.EventSessionStarted))

	// A viewer joining mid-session replays the snapshot with the entries so
	// far, so missing earlier broadcasts is harmless.
	late := newMemStream()
	hub.Add(42, uuid.New(), "viewer", late)
	states := late.received(realtime.EventState)
	require.Len(t, states, 1)
	var snap models.Session
	require.NoError(t, json.Unmarshal(states[0], &snap))
	assert.Len(t, snap.Entries, 1)
	assert.Equal(t, models.SessionActive, snap.Status)

	final, err := svc.Finalize(ctx, contest, scorer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"home": 3}, final.Totals)
	require.Len(t, resultsRepo.saved, 1)

	for _, v := range viewers {
		require.Len(t, v.received(realtime.EventSessionFinalized), 1)
	}

	// The live set no longer knows the contest.
	_, ok := svc.GetState(42)
	assert.False(t, ok)
	assert.Empty(t, bystander.received(realtime.EventSessionFinalized))
}
