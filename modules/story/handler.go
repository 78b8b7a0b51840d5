package story

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"storybook-scene-server/modules/character"
	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/common/cancel"
	"storybook-scene-server/modules/common/model"
)

// JobStore - 비동기 Job 레코드 저장소 (Supabase)
type JobStore interface {
	CreateJob(job *model.StoryJob) error
	FetchJob(jobID string) (*model.StoryJob, error)
}

// GenerateRequest - 일괄 생성 요청
type GenerateRequest struct {
	StoryID    string                `json:"storyId"`
	UserID     string                `json:"userId,omitempty"`
	Scenes     []Scene               `json:"scenes"`
	Characters []character.Character `json:"characters"`
	Options    GenerateOptions       `json:"options"`
}

// GenerateResponse - 일괄 생성 응답
type GenerateResponse struct {
	Success      bool             `json:"success"`
	StoryID      string           `json:"storyId,omitempty"`
	Images       []GeneratedImage `json:"images,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
	Progress     *Progress        `json:"progress,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}

// RegenerateRequest - 단일 장면 재생성 요청
type RegenerateRequest struct {
	StoryID      string `json:"storyId"`
	SceneID      string `json:"sceneId"`
	Prompt       string `json:"prompt,omitempty"` // 사용자가 직접 수정한 프롬프트
	UserFeedback string `json:"userFeedback,omitempty"`
}

// RegenerateResponse - 단일 장면 재생성 응답
type RegenerateResponse struct {
	Success      bool            `json:"success"`
	Image        *GeneratedImage `json:"image,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

type Handler struct {
	service  *Service
	hub      *Hub
	rdb      *redis.Client
	jobStore JobStore
}

// NewHandler - Handler 생성 (rdb/jobStore는 nil 가능, 그 경우 비동기 경로 비활성)
func NewHandler(service *Service, hub *Hub, rdb *redis.Client, jobStore JobStore) *Handler {
	return &Handler{
		service:  service,
		hub:      hub,
		rdb:      rdb,
		jobStore: jobStore,
	}
}

// RegisterRoutes - 스토리 생성 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/story/generate-images", h.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/story/generate-images/async", h.HandleGenerateAsync).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/story/regenerate-image", h.HandleRegenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/story/{storyId}/progress", h.HandleProgress).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/story/jobs/{jobId}", h.HandleJobStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/story/jobs/{jobId}/cancel", h.HandleCancelJob).Methods("POST", "OPTIONS")
	r.HandleFunc("/ws/story/{storyId}", h.HandleWebSocket).Methods("GET")
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// HandleGenerate - POST /api/story/generate-images
// 동기 일괄 생성. 장면별 실패는 errors 목록으로 보고되고 HTTP는 200.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Story] Invalid request: %v", err)
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Invalid request format"})
		return
	}

	if req.StoryID == "" {
		req.StoryID = uuid.New().String()
	}

	log.Printf("🎨 [Story] Generate request: story=%s, scenes=%d, characters=%d",
		req.StoryID, len(req.Scenes), len(req.Characters))

	images, sceneErrors, err := h.service.GenerateAll(r.Context(), req.StoryID, req.Scenes, req.Characters, req.Options)
	if err != nil {
		log.Printf("❌ [Story] Generation rejected: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: apierror.UserMessage(err)})
		return
	}

	progress, _ := h.service.Progress(req.StoryID)
	json.NewEncoder(w).Encode(GenerateResponse{
		Success:  true,
		StoryID:  req.StoryID,
		Images:   images,
		Errors:   sceneErrors,
		Progress: &progress,
	})
}

// HandleGenerateAsync - POST /api/story/generate-images/async
// Job 레코드를 만들고 Redis 큐에 넣는다. 실제 생성은 worker가 수행.
func (h *Handler) HandleGenerateAsync(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.rdb == nil || h.jobStore == nil {
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Async generation is not available"})
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Invalid request format"})
		return
	}

	if len(req.Scenes) == 0 {
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "No scenes to generate"})
		return
	}

	if req.StoryID == "" {
		req.StoryID = uuid.New().String()
	}

	jobID := uuid.New().String()
	inputData, err := toInputData(req)
	if err != nil {
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Invalid request format"})
		return
	}

	job := &model.StoryJob{
		ID:           jobID,
		UserID:       req.UserID,
		Status:       model.JobStatusPending,
		JobInputData: inputData,
	}
	if err := h.jobStore.CreateJob(job); err != nil {
		log.Printf("❌ [Story] Failed to create job: %v", err)
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Failed to create job"})
		return
	}

	if err := h.rdb.LPush(r.Context(), model.JobQueueKey, jobID).Err(); err != nil {
		log.Printf("❌ [Story] Failed to enqueue job %s: %v", jobID, err)
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: "Failed to enqueue job"})
		return
	}

	log.Printf("📤 [Story] Job %s enqueued (story=%s, scenes=%d)", jobID, req.StoryID, len(req.Scenes))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"jobId":   jobID,
		"storyId": req.StoryID,
	})
}

// toInputData - 요청을 job_input_data 맵으로 변환
func toInputData(req GenerateRequest) (map[string]interface{}, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// HandleRegenerate - POST /api/story/regenerate-image
// 피드백 기반 단일 장면 재생성. 결과는 기존 레코드를 교체한다.
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(RegenerateResponse{Success: false, ErrorMessage: "Invalid request format"})
		return
	}

	if req.StoryID == "" || req.SceneID == "" {
		json.NewEncoder(w).Encode(RegenerateResponse{Success: false, ErrorMessage: "storyId and sceneId are required"})
		return
	}

	log.Printf("🔄 [Story] Regenerate request: story=%s, scene=%s, feedback=%s",
		req.StoryID, req.SceneID, truncate(req.UserFeedback, 50))

	image, err := h.service.RegenerateScene(r.Context(), req.StoryID, req.SceneID, req.UserFeedback, req.Prompt)
	if err != nil {
		if apierror.KindOf(err) == apierror.KindValidation {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(RegenerateResponse{Success: false, ErrorMessage: apierror.UserMessage(err)})
			return
		}
		// 백엔드 실패: 레코드는 failed 상태로 교체되어 반환된다
		json.NewEncoder(w).Encode(RegenerateResponse{Success: false, Image: image, ErrorMessage: apierror.UserMessage(err)})
		return
	}

	json.NewEncoder(w).Encode(RegenerateResponse{Success: true, Image: image})
}

// HandleProgress - GET /api/story/{storyId}/progress
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	storyID := mux.Vars(r)["storyId"]

	progress, err := h.service.Progress(storyID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, ErrorMessage: apierror.UserMessage(err)})
		return
	}

	images, _ := h.service.Images(storyID)
	json.NewEncoder(w).Encode(GenerateResponse{
		Success:  true,
		StoryID:  storyID,
		Images:   images,
		Progress: &progress,
	})
}

// HandleJobStatus - GET /api/story/jobs/{jobId}
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.jobStore == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errorMessage": "Job store is not available"})
		return
	}

	jobID := mux.Vars(r)["jobId"]
	job, err := h.jobStore.FetchJob(jobID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errorMessage": "Job not found"})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "job": job})
}

// HandleCancelJob - POST /api/story/jobs/{jobId}/cancel
// 취소 플래그만 세운다. 진행 중인 장면은 끝까지 가고, 시작 전 장면만 건너뛴다.
func (h *Handler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.rdb == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errorMessage": "Cancellation is not available"})
		return
	}

	jobID := mux.Vars(r)["jobId"]
	if err := cancel.Mark(context.Background(), h.rdb, jobID); err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errorMessage": "Failed to mark job for cancellation"})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "jobId": jobID})
}

// HandleWebSocket - GET /ws/story/{storyId}
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "WebSocket is not available", http.StatusServiceUnavailable)
		return
	}
	storyID := mux.Vars(r)["storyId"]
	h.hub.HandleWebSocket(w, r, storyID)
}

// truncate - 로그용 문자열 자르기
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
