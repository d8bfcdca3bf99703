package stream

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// Hub pushes session snapshots to websocket subscribers. Presentation
// receives the same read-only view as the REST snapshot endpoint, once
// after every clock tick and every applied action.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a snapshot hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Subscribe upgrades the request and registers the connection for a session
func (h *Hub) Subscribe(sessionID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.subs[sessionID][conn] = true
	h.mu.Unlock()

	h.logger.Debug("Snapshot subscriber connected", zap.String("session_id", sessionID))

	// Reader loop exists only to detect the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(sessionID, conn)
				return
			}
		}
	}()

	return nil
}

// Broadcast sends a snapshot to every subscriber of the session. The
// hub mutex is held across the writes: broadcasts arrive from every
// session's clock runner and from the action pipeline concurrently, and
// a websocket connection allows only one writer at a time.
func (h *Hub) Broadcast(sessionID string, snapshot types.Snapshot) {
	h.mu.Lock()
	var failed []*websocket.Conn
	for conn := range h.subs[sessionID] {
		if err := conn.WriteJSON(snapshot); err != nil {
			h.logger.Debug("Snapshot subscriber dropped",
				zap.String("session_id", sessionID),
				zap.Error(err))
			failed = append(failed, conn)
		}
	}
	if set, ok := h.subs[sessionID]; ok {
		for _, conn := range failed {
			delete(set, conn)
		}
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()

	for _, conn := range failed {
		conn.Close()
	}
}

// CloseSession disconnects every subscriber of a session
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	conns := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for conn := range conns {
		conn.Close()
	}
}

func (h *Hub) drop(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
	conn.Close()
}
