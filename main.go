package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"storybook-scene-server/modules/common/config"
	"storybook-scene-server/modules/common/database"
	redisClient "storybook-scene-server/modules/common/redis"
	"storybook-scene-server/modules/common/storage"
	"storybook-scene-server/modules/edit"
	"storybook-scene-server/modules/provider/gemini"
	"storybook-scene-server/modules/provider/runware"
	"storybook-scene-server/modules/refine"
	"storybook-scene-server/modules/story"
	"storybook-scene-server/modules/worker"
)

// enableCORS - CORS 미들웨어
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

// healthCheck - 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetConfig()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "storybook-scene-server",
		"backends": map[string]bool{
			"gemini":  cfg.HasGemini(),
			"runware": cfg.HasRunware(),
		},
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 공용 인프라 초기화
	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}

	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
	}

	storageClient := storage.NewClient()

	// 생성 백엔드 초기화
	geminiSvc := gemini.NewService(cfg.GeminiAPIKeys, cfg.GeminiModel, cfg.GeminiTextModel)
	runwareSvc := runware.NewService(cfg.RunwareAPIKey, cfg.RunwareAPIURL,
		time.Duration(cfg.GenerationTimeoutSec)*time.Second)

	// 피드백 기반 프롬프트 보정 (Gemini 텍스트 모델 + 키워드 규칙 fallback)
	var rewriter refine.TextRewriter
	if geminiSvc.Configured() {
		rewriter = geminiSvc
	}
	refiner := refine.NewRefiner(rewriter)

	// 진행 상황 WebSocket 허브
	hub := story.NewHub()

	// 스토리 생성 오케스트레이터
	var storySvc *story.Service
	storySvc = story.NewService(story.Deps{
		Gemini:          geminiSvc,
		Runware:         runwareSvc,
		GeminiOK:        cfg.HasGemini(),
		RunwareOK:       cfg.HasRunware(),
		Uploader:        storageClient,
		Store:           dbClient,
		Refiner:         refiner,
		AssetBaseURL:    cfg.SupabaseStorageBaseURL,
		DefaultArtStyle: cfg.DefaultArtStyle,
		Timeout:         time.Duration(cfg.GenerationTimeoutSec) * time.Second,
		Concurrency:     cfg.SceneConcurrency,
		OnUpdate: func(storyID string, img story.GeneratedImage) {
			hub.BroadcastSceneUpdate(storyID, img)
			if progress, err := storySvc.Progress(storyID); err == nil {
				hub.BroadcastProgress(storyID, progress)
			}
		},
	})

	// 이미지 편집 (primary Gemini, secondary Runware)
	editSvc := edit.NewService(edit.Deps{
		Primary:     geminiSvc,
		Secondary:   runwareSvc,
		PrimaryOK:   cfg.HasGemini(),
		SecondaryOK: cfg.HasRunware(),
		Uploader:    storageClient,
		Timeout:     time.Duration(cfg.GenerationTimeoutSec) * time.Second,
	})

	// Redis Queue Worker 시작 (백그라운드)
	w := worker.New(storySvc, dbClient, rdb)
	go w.Start()

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")

	story.NewHandler(storySvc, hub, rdb, dbClient).RegisterRoutes(r)
	edit.NewHandler(editSvc).RegisterRoutes(r)

	log.Printf("🚀 Storybook Scene Server starting on port %s", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📡 Progress WebSocket: ws://localhost:%s/ws/story/{storyId}", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
