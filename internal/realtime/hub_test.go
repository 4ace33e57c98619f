package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentEvent struct {
	Event string
	Data  json.RawMessage
}

type fakeStream struct {
	mu     sync.Mutex
	events []sentEvent
	fail   bool
	closed bool
}

func (f *fakeStream) Send(event string, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, sentEvent{Event: event, Data: data})
	return nil
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeStream) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeStream) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Event
	}
	return out
}

func (f *fakeStream) received(event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), nil, nil)
}

func TestHub_AddReplaysNoSession(t *testing.T) {
	hub := newTestHub()
	hub.SetSnapshotFunc(func(int64) (interface{}, bool) { return nil, false })

	stream := &fakeStream{}
	connID := hub.Add(42, uuid.New(), "viewer", stream)
	assert.NotEmpty(t, connID)
	assert.Equal(t, []string{EventConnected, EventNoSession}, stream.eventNames())

	var connected struct {
		ConnectionID string `json:"connectionId"`
	}
	require.NoError(t, json.Unmarshal(stream.events[0].Data, &connected))
	assert.Equal(t, connID, connected.ConnectionID)
}

func TestHub_AddReplaysSnapshot(t *testing.T) {
	hub := newTestHub()
	hub.SetSnapshotFunc(func(contestID int64) (interface{}, bool) {
		return map[string]interface{}{"contestId": contestID, "currentSegment": 3}, true
	})

	stream := &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", stream)
	require.Equal(t, []string{EventConnected, EventState}, stream.eventNames())

	var state struct {
		ContestID      int64 `json:"contestId"`
		CurrentSegment int   `json:"currentSegment"`
	}
	require.NoError(t, json.Unmarshal(stream.events[1].Data, &state))
	assert.Equal(t, int64(42), state.ContestID)
	assert.Equal(t, 3, state.CurrentSegment)
}

func TestHub_BroadcastReachesOnlySubscribedContest(t *testing.T) {
	hub := newTestHub()

	a, b, c := &fakeStream{}, &fakeStream{}, &fakeStream{}
	other := &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", a)
	hub.Add(42, uuid.New(), "viewer", b)
	hub.Add(42, uuid.New(), "scorer", c)
	hub.Add(7, uuid.New(), "viewer", other)

	hub.Broadcast(42, EventScoreUpdate, map[string]int{"value": 3})

	for _, s := range []*fakeStream{a, b, c} {
		assert.Contains(t, s.eventNames(), EventScoreUpdate)
	}
	assert.NotContains(t, other.eventNames(), EventScoreUpdate)
}

func TestHub_RemoveIsIdempotent(t *testing.T) {
	hub := newTestHub()
	stream := &fakeStream{}
	connID := hub.Add(42, uuid.New(), "viewer", stream)
	assert.Equal(t, 1, hub.ViewerCount(42))

	hub.Remove(connID)
	assert.Equal(t, 0, hub.ViewerCount(42))

	// Second removal and unknown ids are no-ops.
	hub.Remove(connID)
	hub.Remove("no-such-connection")
	assert.Equal(t, 0, hub.ViewerCount(42))
}

func TestHub_FailedWriteEvictsOnlyThatConnection(t *testing.T) {
	hub := newTestHub()
	healthy := &fakeStream{}
	broken := &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", healthy)
	hub.Add(42, uuid.New(), "viewer", broken)
	require.Equal(t, 2, hub.ViewerCount(42))

	// The connection only starts failing after registration, so the eviction
	// under test is the one Broadcast performs.
	broken.setFail(true)

	hub.Broadcast(42, EventScoreUpdate, map[string]int{"value": 1})

	assert.Equal(t, 1, hub.ViewerCount(42))
	assert.True(t, broken.closed)
	assert.Contains(t, healthy.eventNames(), EventScoreUpdate)

	// Subsequent broadcasts still reach the healthy connection.
	hub.Broadcast(42, EventSegmentAdvanced, map[string]int{"currentSegment": 2})
	assert.Contains(t, healthy.eventNames(), EventSegmentAdvanced)
}

func TestHub_ViewerCount(t *testing.T) {
	hub := newTestHub()
	assert.Equal(t, 0, hub.ViewerCount(42))

	s1, s2 := &fakeStream{}, &fakeStream{}
	id1 := hub.Add(42, uuid.New(), "viewer", s1)
	hub.Add(42, uuid.New(), "viewer", s2)
	hub.Add(7, uuid.New(), "viewer", &fakeStream{})
	assert.Equal(t, 2, hub.ViewerCount(42))
	assert.Equal(t, 1, hub.ViewerCount(7))

	hub.Remove(id1)
	assert.Equal(t, 1, hub.ViewerCount(42))
}

func TestHub_ShutdownClosesAllConnections(t *testing.T) {
	hub := newTestHub()
	s1, s2 := &fakeStream{}, &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", s1)
	hub.Add(7, uuid.New(), "viewer", s2)

	hub.Shutdown()

	assert.True(t, s1.closed)
	assert.True(t, s2.closed)
	assert.Equal(t, 0, hub.ViewerCount(42))
	assert.Equal(t, 0, hub.ViewerCount(7))
}

// loopbackBus is an in-process Publisher/Subscriber with pub/sub's real
// delivery semantics: every published message reaches every subscriber,
// including the instance that published it.
type loopbackBus struct {
	mu   sync.Mutex
	subs map[int64][]func(origin, event string, payload []byte)
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{subs: make(map[int64][]func(origin, event string, payload []byte))}
}

func (b *loopbackBus) PublishContestEvent(contestID int64, origin, event string, payload []byte) error {
	b.mu.Lock()
	handlers := append([]func(origin, event string, payload []byte){}, b.subs[contestID]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(origin, event, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeContest(contestID int64, handler func(origin, event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	b.subs[contestID] = append(b.subs[contestID], handler)
	b.mu.Unlock()
	return func() {}, nil
}

func TestHub_PublishedEventDeliveredLocallyOnce(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(zap.NewNop(), bus, bus)

	viewer := &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", viewer)

	hub.BroadcastAndPublish(42, EventScoreUpdate, map[string]int{"value": 3})

	// The bus echoes the publish back to this hub's own subscription; the
	// echo must be dropped, not re-broadcast to local viewers.
	assert.Len(t, viewer.received(EventScoreUpdate), 1)
}

func TestHub_PublishReachesOtherInstancesOnce(t *testing.T) {
	bus := newLoopbackBus()
	hubA := NewHub(zap.NewNop(), bus, bus)
	hubB := NewHub(zap.NewNop(), bus, bus)

	local := &fakeStream{}
	remote := &fakeStream{}
	hubA.Add(42, uuid.New(), "viewer", local)
	hubB.Add(42, uuid.New(), "viewer", remote)

	hubA.BroadcastAndPublish(42, EventScoreUpdate, map[string]int{"value": 2})

	assert.Len(t, local.received(EventScoreUpdate), 1)
	require.Len(t, remote.received(EventScoreUpdate), 1)

	var update struct {
		Value int `json:"value"`
	}
	require.NoError(t, json.Unmarshal(remote.received(EventScoreUpdate)[0], &update))
	assert.Equal(t, 2, update.Value)
}

func TestHub_RunViewerCountBroadcastsPeriodically(t *testing.T) {
	hub := newTestHub()
	viewer := &fakeStream{}
	hub.Add(42, uuid.New(), "viewer", viewer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunViewerCount(ctx, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		if counts := viewer.received(EventViewerCount); len(counts) > 0 {
			var p struct {
				Count int `json:"count"`
			}
			require.NoError(t, json.Unmarshal(counts[0], &p))
			assert.Equal(t, 1, p.Count)
			return
		}
		select {
		case <-deadline:
			t.Fatal("no viewer_count event observed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHub_ConcurrentAddRemoveBroadcast(t *testing.T) {
	hub := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := hub.Add(42, uuid.New(), "viewer", &fakeStream{})
			hub.Broadcast(42, EventScoreUpdate, map[string]int{"value": 1})
			hub.Remove(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.ViewerCount(42))
}
