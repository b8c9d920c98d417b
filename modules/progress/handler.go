package progress

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"bildoro-server/modules/common/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes - /ws/progress 등록 (auth 미들웨어는 ?token= 쿼리 지원)
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/progress", h.handleConnect).Methods("GET")
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [Progress] WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		userID: user.ID,
		send:   make(chan []byte, 16),
	}
	h.hub.addClient(c)

	go c.writePump()
	go c.readPump(h.hub)
}
