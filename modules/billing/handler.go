package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82/webhook"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
)

// Stripe 권장 webhook 바디 상한
const maxWebhookBytes = int64(65536)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - 인증 필요 checkout 라우터에 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/checkout", h.Checkout).Methods("POST", "OPTIONS")
	log.Println("✅ Billing routes registered: /api/checkout")
}

// RegisterWebhook - webhook은 인증 미들웨어 밖 (Stripe 서명으로 검증)
func (h *Handler) RegisterWebhook(r *mux.Router) {
	r.HandleFunc("/api/webhook", h.Webhook).Methods("POST")
	log.Println("✅ Billing webhook registered: /api/webhook")
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
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

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, fmt.Errorf("%w: invalid request format", apierr.ErrValidation), cfg.ContactURL)
		return
	}

	resp, err := h.service.CreateCheckout(r.Context(), user, req.Plan)
	if err != nil {
		log.Printf("❌ [Billing] Checkout failed for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(resp)
}

// Webhook - Stripe 이벤트 수신. 서명 검증 실패는 400, 처리 실패는 500으로
// Stripe 재시도를 유도한다.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetConfig()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		log.Printf("❌ [Billing] Failed to read webhook body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), cfg.StripeWebhookSecret)
	if err != nil {
		log.Printf("❌ [Billing] Webhook signature verification failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessEvent(r.Context(), event); err != nil {
		log.Printf("❌ [Billing] Failed to process event %s (%s): %v", event.ID, event.Type, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
