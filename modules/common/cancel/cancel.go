package cancel

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"storybook-scene-server/modules/common/model"
)

// 취소 플래그 TTL (작업보다 충분히 길게)
const flagTTL = time.Hour

// Mark - 작업 취소 플래그 설정
func Mark(ctx context.Context, rdb *redis.Client, jobID string) error {
	key := model.CancelKeyPrefix + jobID
	if err := rdb.Set(ctx, key, "1", flagTTL).Err(); err != nil {
		return err
	}
	log.Printf("⚠️ [Cancel] Job %s marked for cancellation", jobID)
	return nil
}

// IsCancelled - 취소 플래그 확인
// Redis 장애 시 false 반환 (작업은 계속 진행)
func IsCancelled(ctx context.Context, rdb *redis.Client, jobID string) bool {
	key := model.CancelKeyPrefix + jobID
	val, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("⚠️ [Cancel] Failed to check cancel flag for job %s: %v", jobID, err)
		return false
	}
	return val == "1"
}

// Clear - 취소 플래그 제거 (작업 종료 후 정리)
func Clear(ctx context.Context, rdb *redis.Client, jobID string) {
	key := model.CancelKeyPrefix + jobID
	if err := rdb.Del(ctx, key).Err(); err != nil {
		log.Printf("⚠️ [Cancel] Failed to clear cancel flag for job %s: %v", jobID, err)
	}
}
