package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bildoro-server/modules/account"
	"bildoro-server/modules/billing"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/database"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/ledger"
	"bildoro-server/modules/common/mailer"
	"bildoro-server/modules/common/orchestrator"
	redisconn "bildoro-server/modules/common/redis"
	"bildoro-server/modules/common/storage"
	"bildoro-server/modules/generate"
	"bildoro-server/modules/photos"
	"bildoro-server/modules/playground"
	"bildoro-server/modules/progress"
	"bildoro-server/modules/prostudio"
	"bildoro-server/modules/tokens"
	"bildoro-server/modules/video"
)

var startTime = time.Now()

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(hub *progress.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"uptime":      time.Since(startTime).String(),
			"connections": hub.ConnectionCount(),
		})
	}
}

func main() {
	// 환경변수 로드
	if _, err := config.LoadConfig(); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	// 공용 인프라
	db := database.NewClient()
	store := storage.NewClient()
	led := ledger.New(db)
	inv := invoker.New()
	hub := progress.NewHub()
	orch := orchestrator.New(led, store, inv, hub)
	mail := mailer.NewService()

	// Redis는 webhook 중복 제거 빠른 경로 - 없어도 동작
	var deduper billing.Deduper
	if rdb := redisconn.Connect(cfg); rdb != nil {
		deduper = redisconn.NewEventDeduper(rdb)
	}

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck(hub)).Methods("GET")
	r.HandleFunc("/health", healthCheck(hub)).Methods("GET")

	// Stripe webhook은 서명으로 검증 - auth 미들웨어 밖
	billingHandler := billing.NewHandler(billing.NewService(led, db, deduper, mail))
	billingHandler.RegisterWebhook(r)

	// 인증 필요 라우트
	authed := r.NewRoute().Subrouter()
	authed.Use(auth.Middleware(auth.NewSupabaseResolver()))

	account.NewHandler(account.NewService(db, store, mail)).RegisterRoutes(authed)
	tokens.NewHandler(led, db).RegisterRoutes(authed)
	generate.NewHandler(generate.NewService(orch, db, store)).RegisterRoutes(authed)
	playground.NewHandler(playground.NewService(orch, db)).RegisterRoutes(authed)
	prostudio.NewHandler(prostudio.NewService(orch, db, store)).RegisterRoutes(authed)
	video.NewHandler(video.NewService(orch, db)).RegisterRoutes(authed)
	photos.NewHandler(db).RegisterRoutes(authed)
	billingHandler.RegisterRoutes(authed)
	progress.NewHandler(hub).RegisterRoutes(authed)

	// 포트 설정 (Render.com은 PORT 환경변수 사용)
	port := cfg.Port

	log.Printf("🚀 BildOro server starting on port %s", port)
	log.Printf("📡 Progress WebSocket: ws://localhost:%s/ws/progress", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)

	// 서버 시작
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
