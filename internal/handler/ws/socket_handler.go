package wshandler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"notification-engine/internal/middleware"
	"notification-engine/pkg/notifier/ws"
)

type WSHandler struct {
	manager *ws.Manager
}

func NewWSHandler(manager *ws.Manager) *WSHandler {
	return &WSHandler{manager: manager}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks happen at the gateway.
		return true
	},
}

// HandleNotifications upgrades HTTP -> WebSocket and registers the
// connection with the realtime registry until the peer goes away.
func (h *WSHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	log.Printf("[ws] session opened: user=%s", userID)

	c := h.manager.Add(userID, conn)

	// Reader loop: only pongs and close frames are expected.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		c.Touch()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.manager.Remove(c)
}
