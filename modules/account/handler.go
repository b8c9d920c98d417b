package account

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - Account 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/signup", h.Sync).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/callback", h.Sync).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/account", h.Delete).Methods("DELETE", "OPTIONS")
	log.Println("✅ Account routes registered: /api/signup, /api/auth/callback, /api/account")
}

// Sync - 로그인/가입 직후 유저 row 동기화. 멱등.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	cfg := config.GetConfig()
	user := auth.UserFrom(r.Context())
	if user == nil {
		apierr.Write(w, apierr.ErrUnauthorized, cfg.ContactURL)
		return
	}

	row, created, err := h.service.SyncUser(r.Context(), user)
	if err != nil {
		log.Printf("❌ [Account] Failed to sync user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"created": created,
		"user":    row,
	})
}

// Delete - 계정과 모든 레코드 삭제
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	cfg := config.GetConfig()
	user := auth.UserFrom(r.Context())
	if user == nil {
		apierr.Write(w, apierr.ErrUnauthorized, cfg.ContactURL)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), user.ID); err != nil {
		log.Printf("❌ [Account] Failed to delete user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
	})
}
