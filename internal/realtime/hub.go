package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event names pushed on every stream.
const (
	EventConnected        = "connected"
	EventState            = "state"
	EventNoSession        = "no_session"
	EventViewerCount      = "viewer_count"
	EventSessionStarted   = "session_started"
	EventScoreUpdate      = "score_update"
	EventSegmentAdvanced  = "segment_advanced"
	EventSessionFinalized = "session_finalized"
	EventSessionStopped   = "session_stopped"
)

// Stream is the transport-agnostic push channel a connection writes to.
// Adapters (WebSocket, SSE) satisfy it; the hub never touches a transport
// handle directly.
type Stream interface {
	// Send pushes one named event. An error means the connection is dead and
	// the hub will evict it.
	Send(event string, data json.RawMessage) error
	// Close releases the underlying transport. Safe to call more than once.
	Close()
}

// Connection is one open streaming channel bound to a contest and role.
type Connection struct {
	ID        string
	ContestID int64
	UserID    uuid.UUID
	Role      string
	stream    Stream
}

// SnapshotFunc returns the current session snapshot for a contest, if one
// exists. Injected so the hub stays independent of the session store.
type SnapshotFunc func(contestID int64) (interface{}, bool)

// Publisher publishes events to other instances (cross-process fan-out).
// origin identifies the publishing hub so subscribers can drop their own
// echoes: pub/sub delivers every message to every subscriber, including the
// instance that published it.
type Publisher interface {
	PublishContestEvent(contestID int64, origin, event string, payload []byte) error
}

// Subscriber subscribes to a contest's channel and invokes handler for
// published events, passing through the publisher's origin id.
type Subscriber interface {
	SubscribeContest(contestID int64, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains contestID -> set of connections and fans events out to them.
// With a Publisher/Subscriber attached every broadcast also reaches viewers
// connected to other instances; with nil it runs single-process.
type Hub struct {
	id       string // instance id stamped on published events
	mu       sync.RWMutex
	contests map[int64]map[string]*Connection
	byID     map[string]*Connection
	subs     map[int64]func() // cancel cross-instance subscription per contest
	snapshot SnapshotFunc
	pub      Publisher
	sub      Subscriber
	logger   *zap.Logger
}

// NewHub creates a connection hub. pub and sub may be nil.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		id:       uuid.New().String(),
		contests: make(map[int64]map[string]*Connection),
		byID:     make(map[string]*Connection),
		subs:     make(map[int64]func()),
		pub:      pub,
		sub:      sub,
		logger:   logger,
	}
}

// SetSnapshotFunc sets the session snapshot provider used for replay on Add.
func (h *Hub) SetSnapshotFunc(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Add registers a connection and immediately replays the current state:
// a connected event carrying the connection id, then either a state event
// with the full session snapshot or no_session. Starts the cross-instance
// subscription when this is the contest's first local connection.
func (h *Hub) Add(contestID int64, userID uuid.UUID, role string, stream Stream) string {
	conn := &Connection{
		ID:        uuid.New().String(),
		ContestID: contestID,
		UserID:    userID,
		Role:      role,
		stream:    stream,
	}

	h.mu.Lock()
	if h.contests[contestID] == nil {
		h.contests[contestID] = make(map[string]*Connection)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeContest(contestID, func(origin, event string, payload []byte) {
				// Local viewers already got this event synchronously in
				// BroadcastAndPublish; only relay other instances' events.
				if origin == h.id {
					return
				}
				h.Broadcast(contestID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[contestID] = cancel
			} else {
				h.logger.Warn("contest subscription failed", zap.Int64("contest_id", contestID), zap.Error(err))
			}
		}
	}
	h.contests[contestID][conn.ID] = conn
	h.byID[conn.ID] = conn
	snapshot := h.snapshot
	h.mu.Unlock()

	h.sendTo(conn, EventConnected, map[string]string{"connectionId": conn.ID})
	if snapshot != nil {
		if state, ok := snapshot(contestID); ok {
			h.sendTo(conn, EventState, state)
		} else {
			h.sendTo(conn, EventNoSession, struct{}{})
		}
	}

	h.logger.Debug("connection added",
		zap.String("connection_id", conn.ID),
		zap.Int64("contest_id", contestID),
		zap.String("role", role),
	)
	return conn.ID
}

// Remove deregisters a connection. Idempotent: removing an unknown or
// already-removed id is a no-op. Cancels the cross-instance subscription when
// the contest's last local connection leaves.
func (h *Hub) Remove(connectionID string) {
	h.mu.Lock()
	conn, ok := h.byID[connectionID]
	if ok {
		delete(h.byID, connectionID)
		if m := h.contests[conn.ContestID]; m != nil {
			delete(m, connectionID)
			if len(m) == 0 {
				delete(h.contests, conn.ContestID)
				if cancel, ok := h.subs[conn.ContestID]; ok {
					cancel()
					delete(h.subs, conn.ContestID)
				}
			}
		}
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("connection removed",
			zap.String("connection_id", connectionID),
			zap.Int64("contest_id", conn.ContestID),
		)
	}
}

// Broadcast sends the named event to every local connection subscribed to the
// contest. Delivery is best-effort per connection: a failed write evicts that
// connection without affecting the others.
func (h *Hub) Broadcast(contestID int64, event string, payload interface{}) {
	data, err := marshalPayload(payload)
	if err != nil {
		h.logger.Error("marshal broadcast payload", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.contests[contestID]))
	for _, c := range h.contests[contestID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.stream.Send(event, data); err != nil {
			h.logger.Warn("stream write failed, evicting connection",
				zap.String("connection_id", c.ID),
				zap.Int64("contest_id", contestID),
				zap.Error(err),
			)
			h.Remove(c.ID)
			c.stream.Close()
		}
	}
}

// BroadcastAndPublish sends to local connections and publishes to other
// instances when a Publisher is attached.
func (h *Hub) BroadcastAndPublish(contestID int64, event string, payload interface{}) {
	h.Broadcast(contestID, event, payload)
	if h.pub != nil {
		data, err := marshalPayload(payload)
		if err != nil {
			return
		}
		if err := h.pub.PublishContestEvent(contestID, h.id, event, data); err != nil {
			h.logger.Warn("publish contest event", zap.Int64("contest_id", contestID), zap.Error(err))
		}
	}
}

// ViewerCount returns the number of local connections for a contest.
func (h *Hub) ViewerCount(contestID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.contests[contestID])
}

// RunViewerCount periodically pushes a viewer_count event to every contest
// that has at least one local connection. Blocks until ctx is done.
func (h *Hub) RunViewerCount(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			counts := make(map[int64]int, len(h.contests))
			for id, m := range h.contests {
				counts[id] = len(m)
			}
			h.mu.RUnlock()
			for id, n := range counts {
				h.Broadcast(id, EventViewerCount, map[string]int{"count": n})
			}
		}
	}
}

// Shutdown closes every connection and cancels all subscriptions. Used on
// server shutdown so streaming clients see an orderly close.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.byID))
	for _, c := range h.byID {
		conns = append(conns, c)
	}
	for _, cancel := range h.subs {
		cancel()
	}
	h.contests = make(map[int64]map[string]*Connection)
	h.byID = make(map[string]*Connection)
	h.subs = make(map[int64]func())
	h.mu.Unlock()

	for _, c := range conns {
		c.stream.Close()
	}
}

func (h *Hub) sendTo(conn *Connection, event string, payload interface{}) {
	data, err := marshalPayload(payload)
	if err != nil {
		return
	}
	if err := conn.stream.Send(event, data); err != nil {
		h.Remove(conn.ID)
		conn.stream.Close()
	}
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
