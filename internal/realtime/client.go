package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// pingInterval and pongWait are used for heartbeat (seconds).
	pingInterval = 30
	pongWait     = 60

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

var errStreamClosed = errors.New("stream closed")

// wsEnvelope is the WebSocket message envelope.
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsStream implements Stream over a gorilla WebSocket connection. Writes go
// through a buffered channel drained by a single write pump so concurrent
// broadcasts never interleave frames.
type wsStream struct {
	conn      *websocket.Conn
	send      chan wsEnvelope
	done      chan struct{}
	closeOnce sync.Once
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{
		conn: conn,
		send: make(chan wsEnvelope, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues one event for the write pump. A closed stream or a full buffer
// (a client that stopped reading) reports an error so the hub evicts us.
func (s *wsStream) Send(event string, data json.RawMessage) error {
	select {
	case <-s.done:
		return errStreamClosed
	default:
	}
	select {
	case s.send <- wsEnvelope{Event: event, Data: data}:
		return nil
	case <-s.done:
		return errStreamClosed
	default:
		return errors.New("send buffer full")
	}
}

// Close shuts the stream down. Safe to call from any goroutine, any number
// of times.
func (s *wsStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsStream) writePump() {
	ticker := time.NewTicker(pingInterval * time.Second)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames to drive pong handling and to detect
// disconnects. Viewers and scorers never send application messages over the
// stream (all mutations are HTTP calls), so frames are discarded.
func (s *wsStream) readPump(onClose func()) {
	defer func() {
		onClose()
		s.Close()
	}()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait * time.Second))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait * time.Second))
	}
}

// ServeWS upgrades the request to a WebSocket, registers it with the hub, and
// blocks until the client disconnects. Ticket validation has already happened
// in the HTTP handler; this only owns the transport. Removal from the hub is
// guaranteed on every exit path by the read pump's deferred callback.
func ServeWS(hub *Hub, logger *zap.Logger, c *gin.Context, contestID int64, userID uuid.UUID, role string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	stream := newWSStream(conn)
	connID := hub.Add(contestID, userID, role, stream)
	go stream.writePump()
	stream.readPump(func() { hub.Remove(connID) })
}
