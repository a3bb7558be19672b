// Package wshub fans out run events to connected dashboard websocket
// clients. It is grounded on internal/localapi/ws_hub.go: a
// mutex-guarded client set, a monotonic per-process event id, and a
// best-effort bounded-timeout write per client so one slow reader
// cannot stall a Publish call for the rest.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"ohmyremote/internal/events"
)

// message is the envelope written to every connected client.
type message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	RunID     string         `json:"runId,omitempty"`
	ChatID    string         `json:"chatId,omitempty"`
	ProjectID string         `json:"projectId,omitempty"`
	Event     *events.Event  `json:"event,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Hub holds the set of live dashboard websocket connections and
// broadcasts run lifecycle and event traffic to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	seq     atomic.Uint64
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{clients: map[*websocket.Conn]struct{}{}}
}

// HandleWS upgrades r to a websocket connection and registers it as a
// broadcast target until the client disconnects or the request's
// context is cancelled. Inbound frames are read and discarded; the
// hub is publish-only from the dashboard's point of view.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// PublishEvent broadcasts a single normalized run event to every
// connected client.
func (h *Hub) PublishEvent(runID, chatID string, ev events.Event) {
	h.broadcast(message{
		Type:   "run_event",
		RunID:  runID,
		ChatID: chatID,
		Event:  &ev,
	})
}

// PublishRunStatus broadcasts a coarse run lifecycle transition
// (queued, in_flight, completed, failed, cancelled, abandoned) that
// isn't itself a normalized engine event.
func (h *Hub) PublishRunStatus(runID, projectID, status string) {
	h.broadcast(message{
		Type:      "run_status",
		RunID:     runID,
		ProjectID: projectID,
		Payload:   map[string]any{"status": status},
	})
}

func (h *Hub) broadcast(msg message) {
	msg.ID = "evt_" + itoa(h.seq.Add(1))

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = c.Write(ctx, websocket.MessageText, payload)
		cancel()
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
