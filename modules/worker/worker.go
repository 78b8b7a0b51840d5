package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"storybook-scene-server/modules/character"
	"storybook-scene-server/modules/common/cancel"
	"storybook-scene-server/modules/common/database"
	"storybook-scene-server/modules/common/fallback"
	"storybook-scene-server/modules/common/model"
	"storybook-scene-server/modules/story"
)

// Worker - Redis Queue 기반 비동기 생성 worker
type Worker struct {
	service *story.Service
	db      *database.Client
	rdb     *redis.Client
}

// New - Worker 생성
func New(service *story.Service, db *database.Client, rdb *redis.Client) *Worker {
	return &Worker{
		service: service,
		db:      db,
		rdb:     rdb,
	}
}

// Start - Redis Queue Worker 시작 (blocking, goroutine에서 호출)
func (w *Worker) Start() {
	log.Println("🔄 Redis Queue Worker starting...")
	log.Printf("👀 Watching queue: %s", model.JobQueueKey)

	ctx := context.Background()

	for {
		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := w.rdb.BRPop(ctx, 0, model.JobQueueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 큐 이름, result[1]이 실제 job ID
		jobID := result[1]
		log.Printf("🎯 Received new job: %s", jobID)

		go w.processJob(ctx, jobID)
	}
}

// processJob - Job 1건 처리 (조회 → 파싱 → 생성 → 상태 반영)
func (w *Worker) processJob(ctx context.Context, jobID string) {
	log.Printf("🚀 Processing job: %s", jobID)

	job, err := w.db.FetchJob(jobID)
	if err != nil {
		log.Printf("❌ Failed to fetch job %s: %v", jobID, err)
		return
	}

	// 시작 전 취소 확인
	if cancel.IsCancelled(ctx, w.rdb, jobID) {
		log.Printf("⚠️ Job %s cancelled before start", jobID)
		w.db.UpdateJobStatus(jobID, model.JobStatusCancelled, "")
		cancel.Clear(ctx, w.rdb, jobID)
		return
	}

	storyID, scenes, characters, opts := parseJobInput(job.JobInputData)
	if len(scenes) == 0 {
		log.Printf("❌ Job %s has no scenes", jobID)
		w.db.UpdateJobStatus(jobID, model.JobStatusFailed, "job_input_data has no scenes")
		return
	}
	if storyID == "" {
		storyID = jobID
	}

	if err := w.db.UpdateJobStatus(jobID, model.JobStatusProcessing, ""); err != nil {
		log.Printf("⚠️ Failed to mark job %s as processing: %v", jobID, err)
	}

	// 장면 시작 전마다 취소 플래그 확인
	opts.Cancelled = func() bool {
		return cancel.IsCancelled(ctx, w.rdb, jobID)
	}

	log.Printf("📦 Job %s: story=%s, scenes=%d, characters=%d", jobID, storyID, len(scenes), len(characters))

	_, sceneErrors, err := w.service.GenerateAll(ctx, storyID, scenes, characters, opts)
	if err != nil {
		log.Printf("❌ Job %s rejected: %v", jobID, err)
		w.db.UpdateJobStatus(jobID, model.JobStatusFailed, err.Error())
		cancel.Clear(ctx, w.rdb, jobID)
		return
	}

	progress, _ := w.service.Progress(storyID)
	w.db.UpdateJobProgress(jobID, progress.ProgressPercent)

	switch {
	case cancel.IsCancelled(ctx, w.rdb, jobID):
		w.db.UpdateJobStatus(jobID, model.JobStatusCancelled, "")
		log.Printf("⚠️ Job %s cancelled (completed: %d/%d)", jobID, progress.CompletedCount, progress.TotalScenes)
	case progress.CompletedCount == 0:
		w.db.UpdateJobStatus(jobID, model.JobStatusFailed, strings.Join(sceneErrors, "; "))
		log.Printf("❌ Job %s failed: all scenes failed", jobID)
	default:
		// 일부 실패는 completed + 장면별 에러 메시지로 보고
		w.db.UpdateJobStatus(jobID, model.JobStatusCompleted, strings.Join(sceneErrors, "; "))
		log.Printf("✅ Job %s completed (%d/%d scenes, %d errors)",
			jobID, progress.CompletedCount, progress.TotalScenes, len(sceneErrors))
	}

	cancel.Clear(ctx, w.rdb, jobID)
}

// parseJobInput - job_input_data를 생성 입력으로 변환
// 필드 누락/타입 불일치는 fallback 헬퍼로 흡수한다.
func parseJobInput(data map[string]interface{}) (string, []story.Scene, []character.Character, story.GenerateOptions) {
	if data == nil {
		return "", nil, nil, story.GenerateOptions{}
	}

	storyID := fallback.SafeString(data["storyId"], "")

	scenes := []story.Scene{}
	for i, raw := range fallback.SafeMapSlice(data["scenes"]) {
		scenes = append(scenes, story.Scene{
			ID:             fallback.SafeString(raw["id"], uuid.New().String()),
			SceneNumber:    fallback.SafeInt(raw["sceneNumber"], i+1),
			Description:    fallback.SafeString(raw["description"], ""),
			CharacterNames: fallback.SafeStringSlice(raw["characterNames"]),
		})
	}

	characters := []character.Character{}
	for i, raw := range fallback.SafeMapSlice(data["characters"]) {
		c := character.Character{
			ID:           fallback.SafeString(raw["id"], uuid.New().String()),
			Name:         fallback.SafeString(raw["name"], fmt.Sprintf("Character %d", i+1)),
			IsPrimary:    fallback.SafeBool(raw["isPrimary"], false),
			DisplayOrder: fallback.SafeInt(raw["displayOrder"], i+1),
		}
		if ref, ok := raw["referenceImage"].(map[string]interface{}); ok {
			url := fallback.SafeString(ref["url"], "")
			if url != "" {
				c.ReferenceImage = &character.ReferenceImage{
					URL:      url,
					Filename: fallback.SafeString(ref["filename"], ""),
				}
			}
		}
		if desc, ok := raw["description"].(map[string]interface{}); ok {
			c.Description = character.Description{
				HairColor:     fallback.SafeString(desc["hairColor"], ""),
				SkinTone:      fallback.SafeString(desc["skinTone"], ""),
				Clothing:      fallback.SafeString(desc["clothing"], ""),
				Age:           fallback.SafeString(desc["age"], ""),
				OtherFeatures: fallback.SafeString(desc["otherFeatures"], ""),
			}
		}
		characters = append(characters, c)
	}
	characters = character.Normalize(characters)

	opts := story.GenerateOptions{}
	if rawOpts, ok := data["options"].(map[string]interface{}); ok {
		opts.ArtStyle = fallback.SafeString(rawOpts["artStyle"], "")
		opts.Location = fallback.SafeString(rawOpts["location"], "")
		opts.Provider = fallback.SafeString(rawOpts["provider"], "")
		opts.AspectRatio = fallback.SafeString(rawOpts["aspectRatio"], "")
		opts.MentionGenericCharacters = fallback.SafeBool(rawOpts["mentionGenericCharacters"], false)
	}

	return storyID, scenes, characters, opts
}
