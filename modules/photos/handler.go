package photos

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
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Handler struct {
	db *database.Client
}

func NewHandler(db *database.Client) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes - Photos 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/photos", h.List).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/photos/{photoId}", h.Get).Methods("GET", "OPTIONS")
	log.Println("✅ Photos routes registered: /api/photos, /api/photos/{photoId}")
}

// List - 내 갤러리 목록 (최신순, limit/offset 페이징)
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	limit, offset := pagination(r)

	if r.URL.Query().Get("type") == "playground" {
		records, err := h.db.ListPlaygroundPhotos(r.Context(), user.ID, limit, offset)
		if err != nil {
			log.Printf("❌ [Photos] Failed to list playground records for user %s: %v", user.ID, err)
			apierr.Write(w, err, cfg.ContactURL)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"records": records,
			"limit":   limit,
			"offset":  offset,
		})
		return
	}

	photos, err := h.db.ListPhotos(r.Context(), user.ID, limit, offset)
	if err != nil {
		log.Printf("❌ [Photos] Failed to list photos for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"photos":  photos,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get - 단건 조회. 다른 유저의 레코드는 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
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

	photoID := mux.Vars(r)["photoId"]
	photo, err := h.db.FetchPhoto(r.Context(), photoID, user.ID)
	if err != nil {
		log.Printf("❌ [Photos] Failed to fetch photo %s: %v", photoID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}
	if photo == nil {
		apierr.Write(w, apierr.ErrNotFound, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"photo":   photo,
	})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
