package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"storybook-scene-server/modules/common/apierror"
	commongemini "storybook-scene-server/modules/common/gemini"
	"storybook-scene-server/modules/provider"
)

// Service - Gemini 기반 identity-preserving 생성 + 편집 + 텍스트 리라이트
type Service struct {
	apiKeys    []string
	model      string
	textModel  string
	httpClient *http.Client
}

// NewService - Gemini 서비스 생성
// 키가 없으면 nil 반환 대신 Configured()가 false인 서비스를 돌려준다.
// ("configured vs not"을 호출 시점 예외가 아니라 명시적 상태로 다루기 위함)
func NewService(apiKeys []string, model, textModel string) *Service {
	if len(apiKeys) == 0 {
		log.Println("⚠️ [Gemini] No API keys configured")
	} else {
		log.Printf("✅ [Gemini] Service initialized (model: %s, keys: %d)", model, len(apiKeys))
	}

	return &Service{
		apiKeys:    apiKeys,
		model:      model,
		textModel:  textModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Name - provider 이름
func (s *Service) Name() string {
	return provider.NameGemini
}

// Configured - API 키 설정 여부
func (s *Service) Configured() bool {
	return s != nil && len(s.apiKeys) > 0
}

// GenerateWithReferences - 참조 이미지 + 프롬프트로 장면 이미지 생성
// scenePrompt는 Prompt Composer가 조립한 텍스트, characters는 참조 이미지 해석용.
func (s *Service) GenerateWithReferences(ctx context.Context, characters []provider.CharacterRef, scenePrompt, artStyle string) (*provider.Result, error) {
	if !s.Configured() {
		return nil, apierror.New(apierror.KindProviderUnavailable, "Gemini is not configured")
	}

	start := time.Now()

	// 참조 이미지 다운로드 + 캐릭터별 identity 지시문 구성
	parts := []*genai.Part{}
	instruction := s.buildReferenceInstruction(characters, scenePrompt, artStyle)
	parts = append(parts, genai.NewPartFromText(instruction))

	refCount := 0
	for _, c := range characters {
		if c.ReferenceImageURL == "" {
			continue
		}
		imageData, err := s.downloadImage(ctx, c.ReferenceImageURL)
		if err != nil {
			// 참조 이미지 한 장 실패는 전체 실패가 아니라 텍스트 묘사로 대체
			log.Printf("⚠️ [Gemini] Failed to download reference for %s: %v", c.Name, err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(imageData, detectMimeType(c.ReferenceImageURL)))
		refCount++
	}

	log.Printf("🎨 [Gemini] Generating scene image (model: %s, references: %d, prompt: %d chars)",
		s.model, refCount, len(instruction))

	content := &genai.Content{Parts: parts}

	result, err := commongemini.GenerateContentWithRetry(ctx, s.apiKeys, s.model, []*genai.Content{content}, nil)
	if err != nil {
		return nil, err
	}

	imageBase64, mimeType, err := extractInlineImage(result)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	log.Printf("✅ [Gemini] Scene image generated in %.1fs", elapsed)

	return &provider.Result{
		ImageBase64:    imageBase64,
		MimeType:       mimeType,
		Prompt:         instruction,
		GenerationTime: elapsed,
	}, nil
}

// GenerateFromText - 참조 이미지 없이 텍스트만으로 생성
// primary 참조 이미지가 없는 스토리에서 Gemini가 기본 백엔드일 때 사용된다.
func (s *Service) GenerateFromText(ctx context.Context, promptText string, size provider.SizeHint) (*provider.Result, error) {
	if !s.Configured() {
		return nil, apierror.New(apierror.KindProviderUnavailable, "Gemini is not configured")
	}

	start := time.Now()

	log.Printf("🎨 [Gemini] Generating from text (model: %s, prompt: %d chars)", s.model, len(promptText))

	content := &genai.Content{
		Parts: []*genai.Part{genai.NewPartFromText(promptText)},
	}

	var config *genai.GenerateContentConfig
	if size.AspectRatio != "" {
		config = &genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{AspectRatio: size.AspectRatio},
		}
	}

	result, err := commongemini.GenerateContentWithRetry(ctx, s.apiKeys, s.model, []*genai.Content{content}, config)
	if err != nil {
		return nil, err
	}

	imageBase64, mimeType, err := extractInlineImage(result)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	log.Printf("✅ [Gemini] Image generated in %.1fs", elapsed)

	return &provider.Result{
		ImageBase64:    imageBase64,
		MimeType:       mimeType,
		Prompt:         promptText,
		GenerationTime: elapsed,
	}, nil
}

// EditImage - 지시문 기반 이미지 편집
func (s *Service) EditImage(ctx context.Context, imageURL, instruction string) (*provider.Result, error) {
	if !s.Configured() {
		return nil, apierror.New(apierror.KindProviderUnavailable, "Gemini is not configured")
	}

	start := time.Now()

	imageData, err := s.downloadImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download source image: %w", err)
	}

	// 지시한 부분만 바꾸고 나머지는 유지하도록 템플릿 구성
	editPrompt := fmt.Sprintf(
		"Using the provided image, apply this change: %s. Keep everything else in the image exactly the same, preserving the original style, lighting, and composition.",
		instruction)

	log.Printf("🖌️ [Gemini] Editing image (%d bytes, instruction: %s)", len(imageData), truncateString(instruction, 50))

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(editPrompt),
			genai.NewPartFromBytes(imageData, detectMimeType(imageURL)),
		},
	}

	result, err := commongemini.GenerateContentWithRetry(ctx, s.apiKeys, s.model, []*genai.Content{content}, nil)
	if err != nil {
		return nil, err
	}

	imageBase64, mimeType, err := extractInlineImage(result)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	log.Printf("✅ [Gemini] Image edited in %.1fs", elapsed)

	return &provider.Result{
		ImageBase64:    imageBase64,
		MimeType:       mimeType,
		Prompt:         editPrompt,
		GenerationTime: elapsed,
	}, nil
}

// RewriteText - 자유 텍스트 리라이트 (피드백 기반 프롬프트 교정용)
// 신뢰할 수 없는 협력자: 빈 응답/에러는 호출자가 규칙 기반으로 fallback한다.
func (s *Service) RewriteText(ctx context.Context, instruction string) (string, error) {
	if !s.Configured() {
		return "", apierror.New(apierror.KindProviderUnavailable, "Gemini is not configured")
	}

	content := &genai.Content{
		Parts: []*genai.Part{genai.NewPartFromText(instruction)},
	}

	result, err := commongemini.GenerateContentWithRetry(ctx, s.apiKeys, s.textModel, []*genai.Content{content}, nil)
	if err != nil {
		return "", err
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", apierror.New(apierror.KindEmptyResult, "no text in rewrite response")
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// buildReferenceInstruction - 참조 이미지용 identity 지시문 조립
func (s *Service) buildReferenceInstruction(characters []provider.CharacterRef, scenePrompt, artStyle string) string {
	var b strings.Builder

	b.WriteString(scenePrompt)

	imageIndex := 1
	for _, c := range characters {
		if c.ReferenceImageURL == "" {
			continue
		}
		b.WriteString(fmt.Sprintf(
			"\n\nReference Image %d (%s): ⚠️ CRITICAL - copy this character's face and appearance EXACTLY. %s must be recognizable as this specific character in the output.",
			imageIndex, c.Name, c.Name))
		if c.Description != "" {
			b.WriteString(" Appearance: " + c.Description + ".")
		}
		imageIndex++
	}

	if artStyle != "" {
		b.WriteString("\n\nArt style: " + artStyle + ".")
	}
	b.WriteString("\nGenerate exactly ONE illustration.")

	return b.String()
}

// downloadImage - 참조/원본 이미지 다운로드
func (s *Service) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// extractInlineImage - Gemini 응답에서 inline 이미지 추출
// 빈/비정상 응답은 raw payload 대신 정규화된 에러로 변환한다.
func extractInlineImage(result *genai.GenerateContentResponse) (string, string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", "", apierror.New(apierror.KindEmptyResult, "no candidates in Gemini response")
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return base64.StdEncoding.EncodeToString(part.InlineData.Data), mimeType, nil
			}
		}
	}

	return "", "", apierror.New(apierror.KindMalformedResponse, "no image data in Gemini response")
}

// detectMimeType - URL 확장자 기반 MIME 타입 추정
func detectMimeType(imageURL string) string {
	lower := strings.ToLower(imageURL)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}

// truncateString - 로그용 문자열 자르기
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
