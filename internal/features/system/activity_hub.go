package system

import (
	"sync"
	"time"

	"go-approvals/internal/features/request"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// ActivityEvent is the wire shape pushed to connected dashboards.
type ActivityEvent struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityHub fans committed workflow events out to websocket subscribers.
// Subscribers with full buffers are dropped rather than slowing the fanout.
type ActivityHub struct {
	mu     sync.RWMutex
	subs   map[*websocket.Conn]chan ActivityEvent
	logger *zap.Logger
}

func NewActivityHub(logger *zap.Logger) *ActivityHub {
	return &ActivityHub{
		subs:   make(map[*websocket.Conn]chan ActivityEvent),
		logger: logger,
	}
}

// OnEvent implements the event sink consumed by the workflow service.
func (h *ActivityHub) OnEvent(event request.Event) {
	msg := ActivityEvent{
		RequestID: event.RequestID.Hex(),
		Action:    string(event.Action),
		ActorID:   event.Actor.ID,
		ActorName: event.Actor.Name,
		Comment:   event.Comment,
		Timestamp: event.Timestamp,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("activity subscriber buffer full, dropping event",
				zap.String("remote", conn.RemoteAddr().String()),
			)
		}
	}
}

func (h *ActivityHub) subscribe(conn *websocket.Conn) chan ActivityEvent {
	ch := make(chan ActivityEvent, 64)
	h.mu.Lock()
	h.subs[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *ActivityHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.subs[conn]; ok {
		delete(h.subs, conn)
		close(ch)
	}
	h.mu.Unlock()
}

// HandleConnection serves one subscriber until it disconnects. Inbound
// messages are read only to detect the close frame.
func (h *ActivityHub) HandleConnection(conn *websocket.Conn) {
	ch := h.subscribe(conn)
	defer h.unsubscribe(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("activity write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
