package edit

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"storybook-scene-server/modules/common/apierror"
)

type Handler struct {
	service *Service
}

// NewHandler - Handler 생성
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - 편집 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/edit/image", h.HandleEdit).Methods("POST", "OPTIONS")
}

// HandleEdit - POST /api/edit/image
// 지시문 기반 단일 이미지 편집
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Edit] Invalid request: %v", err)
		json.NewEncoder(w).Encode(EditResponse{Success: false, ErrorMessage: "Invalid request format"})
		return
	}

	log.Printf("🖌️ [Edit] Edit request: type=%s, instruction=%s",
		req.ImageType, truncate(req.Instruction, 50))

	resp, err := h.service.Edit(r.Context(), &req)
	if err != nil {
		if apierror.KindOf(err) == apierror.KindValidation {
			w.WriteHeader(http.StatusBadRequest)
		}
		json.NewEncoder(w).Encode(EditResponse{Success: false, ErrorMessage: apierror.UserMessage(err)})
		return
	}

	json.NewEncoder(w).Encode(resp)
}

// truncate - 로그용 문자열 자르기
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
