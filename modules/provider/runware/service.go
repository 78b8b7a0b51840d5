package runware

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/provider"
)

// Flux Schnell 모델 ID (Runware)
const FluxSchnellModelID = "runware:100@1"

// Service - Runware 기반 text-only 생성 + 보조 편집
type Service struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewService - Runware 서비스 생성
func NewService(apiKey, apiURL string, timeout time.Duration) *Service {
	if apiKey == "" {
		log.Println("⚠️ [Runware] RUNWARE_API_KEY not configured")
	} else {
		log.Println("✅ [Runware] Service initialized")
	}

	return &Service{
		apiKey:     apiKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name - provider 이름
func (s *Service) Name() string {
	return provider.NameRunware
}

// Configured - API 키 설정 여부
func (s *Service) Configured() bool {
	return s != nil && s.apiKey != ""
}

// GenerateFromText - 텍스트 프롬프트만으로 이미지 생성 (Flux Schnell)
func (s *Service) GenerateFromText(ctx context.Context, promptText string, size provider.SizeHint) (*provider.Result, error) {
	if !s.Configured() {
		return nil, apierror.New(apierror.KindProviderUnavailable, "Runware is not configured")
	}

	start := time.Now()

	width, height := calculateDimensions(size)
	seed := rand.Int63n(2147483647) + 1

	log.Printf("🎨 [Runware] Generating image - size: %dx%d, seed: %d, prompt: %s",
		width, height, seed, truncateString(promptText, 50))

	runwareReq := RunwareRequest{
		TaskType:       "imageInference",
		TaskUUID:       uuid.New().String(),
		PositivePrompt: promptText,
		Model:          FluxSchnellModelID,
		Width:          width,
		Height:         height,
		NumberResults:  1,
		OutputFormat:   "PNG",
		Seed:           seed,
	}

	data, err := s.call(ctx, runwareReq)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()

	if data.Seed != 0 {
		seed = data.Seed
	}

	// 이미지 다운로드해서 base64로 변환 (실패 시 URL만 반환)
	imageBase64, err := s.downloadImageAsBase64(ctx, data.ImageURL)
	if err != nil {
		log.Printf("⚠️ [Runware] Failed to download image, returning URL: %v", err)
		return &provider.Result{
			ImageURL:       data.ImageURL,
			Seed:           seed,
			Prompt:         promptText,
			GenerationTime: elapsed,
		}, nil
	}

	log.Printf("✅ [Runware] Image generated in %.1fs", elapsed)
	return &provider.Result{
		ImageURL:       data.ImageURL,
		ImageBase64:    imageBase64,
		MimeType:       "image/png",
		Seed:           seed,
		Prompt:         promptText,
		GenerationTime: elapsed,
	}, nil
}

// EditImage - 원본을 referenceImages로 넣는 보조 편집 경로
// Gemini 편집이 불가할 때의 secondary 백엔드.
func (s *Service) EditImage(ctx context.Context, imageURL, instruction string) (*provider.Result, error) {
	if !s.Configured() {
		return nil, apierror.New(apierror.KindProviderUnavailable, "Runware is not configured")
	}

	start := time.Now()

	// 원본 이미지를 data URL로 변환
	imageBase64, err := s.downloadImageAsBase64(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download source image: %w", err)
	}

	editPrompt := fmt.Sprintf("%s. Keep the rest of the image unchanged, same style and composition.", instruction)

	log.Printf("🖌️ [Runware] Editing image (instruction: %s)", truncateString(instruction, 50))

	runwareReq := RunwareRequest{
		TaskType:        "imageInference",
		TaskUUID:        uuid.New().String(),
		PositivePrompt:  editPrompt,
		Model:           FluxSchnellModelID,
		Width:           1024,
		Height:          1024,
		NumberResults:   1,
		OutputFormat:    "PNG",
		ReferenceImages: []string{"data:image/png;base64," + imageBase64},
	}

	data, err := s.call(ctx, runwareReq)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()

	resultBase64, err := s.downloadImageAsBase64(ctx, data.ImageURL)
	if err != nil {
		log.Printf("⚠️ [Runware] Failed to download edited image, returning URL: %v", err)
		return &provider.Result{
			ImageURL:       data.ImageURL,
			Prompt:         editPrompt,
			GenerationTime: elapsed,
		}, nil
	}

	log.Printf("✅ [Runware] Image edited in %.1fs", elapsed)
	return &provider.Result{
		ImageURL:       data.ImageURL,
		ImageBase64:    resultBase64,
		MimeType:       "image/png",
		Prompt:         editPrompt,
		GenerationTime: elapsed,
	}, nil
}

// call - Runware API 호출 + 응답 정규화
func (s *Service) call(ctx context.Context, runwareReq RunwareRequest) (*struct {
	TaskType  string `json:"taskType"`
	TaskUUID  string `json:"taskUUID"`
	ImageURL  string `json:"imageURL"`
	ImageUUID string `json:"imageUUID"`
	Seed      int64  `json:"seed"`
}, error) {
	jsonBody, err := json.Marshal([]RunwareRequest{runwareReq})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if apierror.IsTimeout(err) || ctx.Err() != nil {
			return nil, apierror.Wrap(apierror.KindTimeout, "Runware call timed out", err)
		}
		return nil, fmt.Errorf("Runware API error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindMalformedResponse, "failed to read Runware response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierror.New(apierror.KindRateLimited, "Runware rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [Runware] API error: status=%d, body=%s", resp.StatusCode, truncateString(string(bodyBytes), 200))
		return nil, apierror.Newf(apierror.KindMalformedResponse, "Runware API returned status %d", resp.StatusCode)
	}

	var runwareResp RunwareResponse
	if err := json.Unmarshal(bodyBytes, &runwareResp); err != nil {
		return nil, apierror.Wrap(apierror.KindMalformedResponse, "failed to parse Runware response", err)
	}

	if runwareResp.Error != "" {
		return nil, apierror.Newf(apierror.KindMalformedResponse, "Runware error: %s", runwareResp.Error)
	}
	if len(runwareResp.Errors) > 0 {
		return nil, apierror.Newf(apierror.KindMalformedResponse, "Runware error: %s", runwareResp.Errors[0].Message)
	}

	if len(runwareResp.Data) == 0 || runwareResp.Data[0].ImageURL == "" {
		return nil, apierror.New(apierror.KindEmptyResult, "no image generated from Runware")
	}

	return &runwareResp.Data[0], nil
}

// downloadImageAsBase64 - 이미지 URL을 base64로 변환
func (s *Service) downloadImageAsBase64(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(imageData), nil
}

// calculateDimensions - aspect ratio 힌트를 실제 크기로 변환
func calculateDimensions(size provider.SizeHint) (int, int) {
	if size.Width > 0 && size.Height > 0 {
		return size.Width, size.Height
	}

	switch size.AspectRatio {
	case "16:9":
		return 1344, 768
	case "9:16":
		return 768, 1344
	case "4:3":
		return 1152, 896
	case "3:4":
		return 896, 1152
	default:
		return 1024, 1024
	}
}

// truncateString - 로그용 문자열 자르기
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
