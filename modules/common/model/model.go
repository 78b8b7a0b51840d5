package model

// 비동기 작업 상태 상수
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Redis 키
const (
	JobQueueKey     = "storybook:jobs:queue"   // BRPOP 대상 작업 큐
	CancelKeyPrefix = "storybook:jobs:cancel:" // + jobID = 취소 플래그
)

// StoryJob - storybook_jobs 테이블 레코드
type StoryJob struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id,omitempty"`
	Status       string                 `json:"status"`
	JobInputData map[string]interface{} `json:"job_input_data"`
	Progress     int                    `json:"progress"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    string                 `json:"created_at,omitempty"`
	UpdatedAt    string                 `json:"updated_at,omitempty"`
}
