package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"

	"storybook-scene-server/modules/common/config"
	"storybook-scene-server/modules/common/model"
	"storybook-scene-server/modules/story"
)

const (
	jobsTable   = "storybook_jobs"
	imagesTable = "storybook_images"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// FetchJob - Supabase에서 Job 데이터 조회
func (c *Client) FetchJob(jobID string) (*model.StoryJob, error) {
	log.Printf("🔍 Fetching job from Supabase: %s", jobID)

	var jobs []model.StoryJob

	data, _, err := c.supabase.From(jobsTable).
		Select("*", "exact", false).
		Eq("id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	job := &jobs[0]
	log.Printf("✅ Job fetched: %s (status: %s)", job.ID, job.Status)

	return job, nil
}

// CreateJob - 비동기 생성 Job 레코드 생성
func (c *Client) CreateJob(job *model.StoryJob) error {
	_, _, err := c.supabase.From(jobsTable).
		Insert(map[string]interface{}{
			"id":             job.ID,
			"user_id":        job.UserID,
			"status":         job.Status,
			"job_input_data": job.JobInputData,
			"progress":       0,
		}, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	log.Printf("📝 Job created: %s", job.ID)
	return nil
}

// UpdateJobStatus - Job 상태 업데이트
func (c *Client) UpdateJobStatus(jobID, status, errorMessage string) error {
	log.Printf("📝 Updating job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"status":     status,
		"updated_at": "now()",
	}
	if errorMessage != "" {
		updateData["error_message"] = errorMessage
	}
	if status == model.JobStatusCompleted || status == model.JobStatusFailed || status == model.JobStatusCancelled {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// UpdateJobProgress - Job 진행률 업데이트 (0~100)
func (c *Client) UpdateJobProgress(jobID string, progress int) error {
	_, _, err := c.supabase.From(jobsTable).
		Update(map[string]interface{}{
			"progress":   progress,
			"updated_at": "now()",
		}, "", "").
		Eq("id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// SaveImages - 생성 레코드 일괄 저장 (생성 시작 시점의 pending 레코드)
func (c *Client) SaveImages(ctx context.Context, storyID string, images []story.GeneratedImage) error {
	rows := make([]map[string]interface{}, 0, len(images))
	for _, img := range images {
		rows = append(rows, imageRow(storyID, img))
	}

	_, _, err := c.supabase.From(imagesTable).
		Insert(rows, true, "id", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to save images: %w", err)
	}
	return nil
}

// UpdateImage - 생성 레코드 1건 반영 (상태 전이마다 호출)
func (c *Client) UpdateImage(ctx context.Context, storyID string, image story.GeneratedImage) error {
	_, _, err := c.supabase.From(imagesTable).
		Update(imageRow(storyID, image), "", "").
		Eq("id", image.ID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update image %s: %w", image.ID, err)
	}
	return nil
}

// imageRow - GeneratedImage를 storybook_images 행으로 변환
func imageRow(storyID string, img story.GeneratedImage) map[string]interface{} {
	return map[string]interface{}{
		"id":                img.ID,
		"story_id":          storyID,
		"scene_id":          img.SceneID,
		"scene_number":      img.SceneNumber,
		"scene_description": img.SceneDescription,
		"image_url":         img.ImageURL,
		"prompt":            img.Prompt,
		"generation_time":   img.GenerationTime,
		"status":            img.Status,
		"error_message":     img.Error,
		"upload_failed":     img.UploadFailed,
		"updated_at":        "now()",
	}
}
