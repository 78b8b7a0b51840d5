package edit

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/common/utils"
	"storybook-scene-server/modules/provider"
)

// Uploader - 편집 결과 업로드 (Supabase Storage)
type Uploader interface {
	UploadSceneImage(ctx context.Context, storyID, sceneID string, imageData []byte) (string, error)
}

// Deps - Service 의존성 주입
type Deps struct {
	Primary     provider.ImageEditor // Gemini
	Secondary   provider.ImageEditor // Runware
	PrimaryOK   bool
	SecondaryOK bool
	Uploader    Uploader
	Timeout     time.Duration
}

// Service - 지시문 기반 단일 이미지 편집
// primary 실패 시 secondary로 runtime fallback (explicit 지정이 없을 때만).
type Service struct {
	deps Deps
}

// NewService - Service 생성
func NewService(deps Deps) *Service {
	if deps.Timeout <= 0 {
		deps.Timeout = 180 * time.Second
	}
	return &Service{deps: deps}
}

// Edit - 이미지 편집 수행
// 검증 실패는 백엔드 호출 전에 KindValidation으로 반환된다.
func (s *Service) Edit(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	availability := provider.EditAvailability{
		PrimaryConfigured:   s.deps.PrimaryOK,
		SecondaryConfigured: s.deps.SecondaryOK,
	}
	chosen, err := provider.SelectEditor(req.Provider, availability)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()

	result, usedProvider, err := s.editWithFallback(callCtx, chosen, req, availability)
	if err != nil {
		return nil, err
	}
	if !result.HasImage() {
		return nil, apierror.New(apierror.KindEmptyResult, "edit backend returned no image")
	}

	imageURL, uploadFailed := s.persistResult(ctx, req, result)

	log.Printf("✅ [Edit] %s image edited in %.1fs (%s)", req.ImageType, result.GenerationTime, usedProvider)
	return &EditResponse{
		Success:        true,
		ImageURL:       imageURL,
		Provider:       usedProvider,
		GenerationTime: result.GenerationTime,
		UploadFailed:   uploadFailed,
	}, nil
}

// editWithFallback - primary 실패 시 secondary 재시도
// explicit 지정이 있으면 fallback 하지 않는다 (사용자 선택 존중).
func (s *Service) editWithFallback(ctx context.Context, chosen string, req *EditRequest, availability provider.EditAvailability) (*provider.Result, string, error) {
	editor := s.editorByName(chosen)

	result, err := editor.EditImage(ctx, req.ImageURL, req.Instruction)
	if err == nil {
		return result, chosen, nil
	}

	if req.Provider == "" && chosen == provider.NameGemini && availability.SecondaryConfigured {
		log.Printf("⚠️ [Edit] Gemini edit failed, falling back to Runware: %v", err)
		result, fallbackErr := s.deps.Secondary.EditImage(ctx, req.ImageURL, req.Instruction)
		if fallbackErr == nil {
			return result, provider.NameRunware, nil
		}
		log.Printf("❌ [Edit] Runware fallback also failed: %v", fallbackErr)
	}

	return nil, chosen, err
}

func (s *Service) editorByName(name string) provider.ImageEditor {
	if name == provider.NameRunware {
		return s.deps.Secondary
	}
	return s.deps.Primary
}

// persistResult - 편집 결과 업로드 (실패 시 data URL degraded)
func (s *Service) persistResult(ctx context.Context, req *EditRequest, result *provider.Result) (string, bool) {
	if result.ImageBase64 == "" {
		return result.ImageURL, false
	}

	imageData, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		log.Printf("⚠️ [Edit] Invalid base64 payload, serving inline: %v", err)
		return utils.BuildDataURL(result.MimeType, result.ImageBase64), true
	}

	storyID := req.StoryID
	if storyID == "" {
		storyID = "standalone"
	}
	assetID := req.SceneID
	if assetID == "" {
		assetID = fmt.Sprintf("%s-%s", req.ImageType, uuid.New().String())
	}

	publicURL, err := s.deps.Uploader.UploadSceneImage(ctx, storyID, assetID, imageData)
	if err != nil {
		log.Printf("⚠️ [Edit] Upload failed, serving inline payload: %v", err)
		return utils.BuildDataURL(result.MimeType, result.ImageBase64), true
	}
	return publicURL, false
}

// validateRequest - 편집 요청 검증 (백엔드 호출 전)
func validateRequest(req *EditRequest) error {
	if req == nil {
		return apierror.New(apierror.KindValidation, "request is required")
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return apierror.New(apierror.KindValidation, "imageUrl is required")
	}
	if len(strings.TrimSpace(req.Instruction)) < minInstructionLen {
		return apierror.Newf(apierror.KindValidation, "instruction must be at least %d characters", minInstructionLen)
	}
	if req.ImageType != ImageTypeScene && req.ImageType != ImageTypeCover {
		return apierror.Newf(apierror.KindValidation, "imageType must be %q or %q", ImageTypeScene, ImageTypeCover)
	}
	return nil
}
