package generate

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - Generate 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generate", h.Generate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/revise", h.Revise).Methods("POST", "OPTIONS")
	log.Println("✅ Generate routes registered: /api/generate, /api/revise")
}

// Generate - preset 기반 이미지 생성 (multipart)
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

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierr.Write(w, fmt.Errorf("%w: invalid multipart form", apierr.ErrValidation), cfg.ContactURL)
		return
	}

	preset := r.FormValue("preset")
	prompt := r.FormValue("prompt")
	aspectRatio := r.FormValue("aspectRatio")
	if preset == "" {
		apierr.Write(w, fmt.Errorf("%w: preset is required", apierr.ErrValidation), cfg.ContactURL)
		return
	}

	files, err := readInputFiles(r.MultipartForm.File["images"])
	if err != nil {
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	resp, err := h.service.Generate(r.Context(), user, preset, prompt, aspectRatio, files)
	if err != nil {
		log.Printf("❌ [Generate] Failed for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(resp)
}

// Revise - 기존 결과물 재생성 (JSON)
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
		log.Printf("❌ [Revise] Failed for user %s: %v", user.ID, err)
		apierr.Write(w, err, cfg.ContactURL)
		return
	}

	json.NewEncoder(w).Encode(resp)
}

// readInputFiles - multipart 파일 파트를 메모리로 읽기 (1~3장)
func readInputFiles(headers []*multipart.FileHeader) ([]InputFile, error) {
	if len(headers) < 1 || len(headers) > 3 {
		return nil, fmt.Errorf("%w: between 1 and 3 images required", apierr.ErrValidation)
	}

	files := make([]InputFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open uploaded file", apierr.ErrValidation)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read uploaded file", apierr.ErrValidation)
		}
		files = append(files, InputFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
