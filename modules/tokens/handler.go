package tokens

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/database"
	"bildoro-server/modules/common/ledger"
)

type Handler struct {
	ledger *ledger.Ledger
	db     *database.Client
}

func NewHandler(l *ledger.Ledger, db *database.Client) *Handler {
	return &Handler{ledger: l, db: db}
}

// RegisterRoutes - Tokens 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/tokens/balance", h.Balance).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/tokens/transactions", h.Transactions).Methods("GET", "OPTIONS")
	log.Println("✅ Tokens routes registered: /api/tokens/balance, /api/tokens/transactions")
}

// Balance - 현재 토큰 잔액 조회. 유저 row가 없으면 무료 티어로 생성.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
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

	balance, err := h.ledger.GetBalance(r.Context(), user.ID, user.Email, user.Username)
	if err != nil {
		log.Printf("❌ [Tokens] Failed to fetch balance for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":            true,
		"tokens":             balance.Tokens,
		"tokenType":          balance.TokenType,
		"subscriptionStatus": balance.SubscriptionStatus,
	})
}

// Transactions - 최근 토큰 거래 내역 (감사 추적)
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	txns, err := h.db.ListTokenTransactions(r.Context(), user.ID, limit)
	if err != nil {
		log.Printf("❌ [Tokens] Failed to list transactions for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"transactions": txns,
	})
}
