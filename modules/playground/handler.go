package playground

import (
	"encoding/json"
	"fmt"
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

// RegisterRoutes - Playground 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/playground/generate", h.Generate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/playground/revise", h.Revise).Methods("POST", "OPTIONS")
	log.Println("✅ Playground routes registered: /api/playground/generate, /api/playground/revise")
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
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

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, fmt.Errorf("%w: invalid request format", apierr.ErrValidation), cfg.ContactURL)
		return
	}

	resp, err := h.service.Generate(r.Context(), user, req)
	if err != nil {
		log.Printf("❌ [Playground] Generate failed for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
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

	var req ReviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, fmt.Errorf("%w: invalid request format", apierr.ErrValidation), cfg.ContactURL)
		return
	}

	resp, err := h.service.Revise(r.Context(), user, req)
	if err != nil {
		log.Printf("❌ [Playground] Revise failed for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(resp)
}
