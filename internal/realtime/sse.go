package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sseStream implements Stream over a flushed HTTP response using the
// server-sent-events framing: an event-name line, a JSON data line, and a
// blank line per event.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	closed  bool
}

func newSSEStream(w http.ResponseWriter, flusher http.Flusher) *sseStream {
	return &sseStream{w: w, flusher: flusher, done: make(chan struct{})}
}

func (s *sseStream) Send(event string, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close unblocks ServeSSE, which ends the response. Idempotent.
func (s *sseStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// ServeSSE registers the request as a streaming connection and blocks until
// the client disconnects, the hub evicts the stream, or the server shuts
// down. Ticket validation has already happened in the HTTP handler. Removal
// from the hub is deferred, so it runs on every exit path.
func ServeSSE(hub *Hub, logger *zap.Logger, c *gin.Context, contestID int64, userID uuid.UUID, role string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := newSSEStream(c.Writer, flusher)
	connID := hub.Add(contestID, userID, role, stream)
	defer func() {
		hub.Remove(connID)
		stream.Close()
	}()

	select {
	case <-c.Request.Context().Done():
	case <-stream.done:
	}
}
