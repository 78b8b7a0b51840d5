package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/common/config"
	"storybook-scene-server/modules/common/utils"
)

// Client - Supabase Storage 업로드 클라이언트
type Client struct {
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload - 바이너리를 Storage에 업로드하고 public URL 반환
// key는 scene id + timestamp 조합으로 호출자가 유일성을 보장한다 (히스토리 덮어쓰기 방지).
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cfg := config.GetConfig()

	log.Printf("📤 Uploading to storage: %s (%d bytes, %s)", key, len(data), contentType)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", cfg.SupabaseURL, cfg.SupabaseBucket, key)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", apierror.Wrap(apierror.KindStorageUpload, "failed to create upload request", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierror.Wrap(apierror.KindStorageUpload, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", apierror.Newf(apierror.KindStorageUpload,
			"upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := c.PublicURL(key)
	log.Printf("✅ Uploaded successfully: %s", publicURL)
	return publicURL, nil
}

// UploadSceneImage - 장면 이미지 업로드 (WebP 변환 포함)
// key 형식: stories/{storyID}/scene-{sceneID}-{timestamp}.webp
func (c *Client) UploadSceneImage(ctx context.Context, storyID, sceneID string, imageData []byte) (string, error) {
	webpData, err := utils.ConvertPNGToWebP(imageData, 90.0)
	if err != nil {
		// WebP 변환 실패 시 원본 PNG로 업로드
		log.Printf("⚠️  WebP conversion failed, uploading original: %v", err)
		key := fmt.Sprintf("stories/%s/scene-%s-%d.png", storyID, sceneID, time.Now().UnixMilli())
		return c.Upload(ctx, key, imageData, "image/png")
	}

	key := fmt.Sprintf("stories/%s/scene-%s-%d.webp", storyID, sceneID, time.Now().UnixMilli())
	return c.Upload(ctx, key, webpData, "image/webp")
}

// PublicURL - 업로드된 파일의 public URL 생성
func (c *Client) PublicURL(key string) string {
	cfg := config.GetConfig()
	if cfg.SupabaseStorageBaseURL != "" {
		return cfg.SupabaseStorageBaseURL + key
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", cfg.SupabaseURL, cfg.SupabaseBucket, key)
}

// DownloadImage - URL에서 이미지 다운로드 (reference 이미지 해석용)
func (c *Client) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	log.Printf("📥 Downloading image from: %s", imageURL)

	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download image: status %d, body: %s", resp.StatusCode, string(body))
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	log.Printf("✅ Image downloaded successfully: %d bytes", len(imageData))
	return imageData, nil
}
