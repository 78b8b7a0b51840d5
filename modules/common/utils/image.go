package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	"image/png"
	"log"
	"strings"

	"github.com/kolesa-team/go-webp/encoder"
	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/webp"
)

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// ConvertPNGToWebP - PNG/JPEG 바이너리를 WebP로 변환
func ConvertPNGToWebP(imageData []byte, quality float32) ([]byte, error) {
	log.Printf("🔄 Converting image to WebP (quality: %.1f)", quality)

	// 디코딩 (PNG/JPEG 자동 감지)
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		// PNG로 한번 더 시도
		if pngImg, pngErr := png.Decode(bytes.NewReader(imageData)); pngErr == nil {
			img = pngImg
			format = "png"
		} else {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
	}

	// WebP 인코딩
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()

	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes", format,
		len(imageData), len(webpData))

	return webpData, nil
}

// ExtractBase64Data - data URL에서 base64 본문만 추출
func ExtractBase64Data(dataURL string) string {
	if idx := strings.Index(dataURL, ";base64,"); idx >= 0 {
		return dataURL[idx+len(";base64,"):]
	}
	return dataURL
}

// ExtractMimeType - data URL에서 MIME 타입 추출 (기본: image/png)
func ExtractMimeType(dataURL string) string {
	if strings.HasPrefix(dataURL, "data:") {
		if idx := strings.Index(dataURL, ";"); idx > len("data:") {
			return dataURL[len("data:"):idx]
		}
	}
	return "image/png"
}

// BuildDataURL - base64 본문을 data URL로 감싸기
func BuildDataURL(mimeType, base64Data string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64Data
}
