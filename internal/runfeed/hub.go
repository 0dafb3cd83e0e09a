package runfeed

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans catalog-run events out to connected websocket clients. The
// ingestion runner publishes into it; clients only listen.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Add registers the client and sends the welcome frame. The welcome write
// happens under the hub mutex so it cannot interleave with a concurrent
// Publish to the same connection; gorilla/websocket allows only one writer
// at a time.
func (h *Hub) Add(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ws] = struct{}{}
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`+"\n"))
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Publish broadcasts one event as a JSON text message. Dead connections
// are dropped on write failure.
func (h *Hub) Publish(event any) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
