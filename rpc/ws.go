package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"markertransfer/core/events"
)

const (
	wsWriteTimeout    = 10 * time.Second
	subscriberBacklog = 64
)

// EventMessage is the JSON frame sent to subscribers.
type EventMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	eventType string
	denom     string
	ch        chan EventMessage
}

func (s *subscriber) wants(p EventMessage) bool {
	if s.eventType != "" && s.eventType != p.Type {
		return false
	}
	if s.denom != "" && s.denom != p.Attributes["denom"] {
		return false
	}
	return true
}

// Hub fans committed events out to websocket subscribers. A subscriber whose
// backlog fills up is disconnected rather than slowing the node down.
type Hub struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	raw := evt.Event()
	attrs := make(map[string]string, len(raw.Attributes))
	for k, v := range raw.Attributes {
		attrs[k] = v
	}
	payload := EventMessage{Type: raw.Type, Attributes: attrs}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.wants(payload) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			h.logger.Warn("dropping slow event subscriber", slog.String("type", sub.eventType))
		}
	}
}

// Subscribe registers a filtered subscription. Empty filters match all
// events. The returned cancel func is idempotent.
func (h *Hub) Subscribe(eventType, denom string) (<-chan EventMessage, func()) {
	sub := &subscriber{eventType: eventType, denom: denom, ch: make(chan EventMessage, subscriberBacklog)}
	h.mu.Lock()
	if h.closed {
		close(sub.ch)
		h.mu.Unlock()
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades to a websocket and streams events matching the optional
// type and denom query parameters.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	query := r.URL.Query()
	updates, cancel := h.Subscribe(strings.TrimSpace(query.Get("type")), strings.TrimSpace(query.Get("denom")))
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	err = streamEvents(ctx, conn, updates)
	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusGoingAway, "subscription ended")
	case websocket.CloseStatus(err) == -1:
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan EventMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, payload EventMessage) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
