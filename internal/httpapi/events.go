package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"radiantcore/lending"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventBacklogSize  = 64
)

// EventHub implements lending.Emitter and fans every engine event out to
// every connected websocket subscriber, grounded on rpc/ws.go's
// subscribe-channel-then-write-loop shape but with an in-process broadcast
// in place of a node-level subscription registry. Callers build one hub,
// pass it to lending.NewEngine as the emitter, and pass the same hub into
// Config so the HTTP layer streams the exact engine it serves.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[chan lending.Event]struct{}
}

// NewEventHub builds an EventHub ready to be used both as a lending.Emitter
// and as a Server's event source.
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[chan lending.Event]struct{})}
}

// Emit implements lending.Emitter.
func (h *EventHub) Emit(e lending.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			// slow subscriber; drop rather than block the engine's critical section
		}
	}
}

func (h *EventHub) subscribe() chan lending.Event {
	ch := make(chan lending.Event, eventBacklogSize)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan lending.Event) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

var _ lending.Emitter = (*EventHub)(nil)

// streamEvents upgrades to a websocket and relays every emitted lending
// event to the client as JSON text frames until the connection closes.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch := s.events.subscribe()
	defer s.events.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event lending.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
