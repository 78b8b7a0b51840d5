package gemini

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"

	"storybook-scene-server/modules/common/apierror"
)

// GenerateContentWithRetry - 429 에러 시 여러 API 키로 재시도하는 헬퍼 함수
// apiKeys: 시도할 API 키 리스트
// model: Gemini 모델명 (예: "gemini-2.5-flash-image")
// 각 키당 최대 3번 재시도. 429가 아닌 에러는 즉시 반환.
func GenerateContentWithRetry(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	if len(apiKeys) == 0 {
		return nil, apierror.New(apierror.KindProviderUnavailable, "no Gemini API keys provided")
	}

	const maxRetriesPerKey = 3
	var lastErr error

	// 각 API 키로 시도
	for keyIndex, apiKey := range apiKeys {
		log.Printf("🔑 [Gemini Retry] Trying API key #%d/%d", keyIndex+1, len(apiKeys))

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			// 새 클라이언트 생성
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				log.Printf("⚠️  [Gemini Retry] Failed to create client with key #%d: %v", keyIndex+1, err)
				lastErr = err
				continue
			}

			// API 호출
			result, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				log.Printf("✅ [Gemini Retry] Success with API key #%d (attempt %d/%d)", keyIndex+1, attempt, maxRetriesPerKey)
				return result, nil
			}

			lastErr = err

			// 컨텍스트가 끝났으면 재시도 무의미
			if ctx.Err() != nil {
				return nil, apierror.Wrap(apierror.KindTimeout, "Gemini call cancelled or timed out", err)
			}

			// 429가 아닌 다른 에러면 바로 반환 (재시도 안 함)
			if !apierror.IsRateLimited(err) {
				log.Printf("❌ [Gemini Retry] Key #%d failed with non-429 error: %v", keyIndex+1, err)
				return nil, err
			}

			// 429 에러 - 같은 키로 재시도 (최대 3번)
			log.Printf("⚠️  [Gemini Retry] Key #%d hit rate limit (429) on attempt %d/%d", keyIndex+1, attempt, maxRetriesPerKey)

			if attempt < maxRetriesPerKey {
				log.Printf("   ⏳ Waiting 2 seconds before retry...")
				time.Sleep(time.Second * 2)
			}
		}

		log.Printf("⚠️  [Gemini Retry] Key #%d exhausted all %d attempts, trying next key...", keyIndex+1, maxRetriesPerKey)
	}

	// 모든 키 실패
	return nil, apierror.Wrap(apierror.KindRateLimited,
		fmt.Sprintf("all %d API keys exhausted (%d attempts each)", len(apiKeys), maxRetriesPerKey), lastErr)
}
