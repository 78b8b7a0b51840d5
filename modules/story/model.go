package story

import "math"

// GeneratedImage 상태 상수
// 상태는 앞으로만 움직인다: pending → generating → {completed | failed}
// 재생성 요청만 terminal 상태를 다시 generating으로 되돌린다.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Scene - 스토리 장면
type Scene struct {
	ID             string   `json:"id"`
	SceneNumber    int      `json:"sceneNumber"` // 1부터 연속
	Description    string   `json:"description"`
	CharacterNames []string `json:"characterNames,omitempty"`
}

// CharacterRating - 장면별 캐릭터 품질 라벨링용 id/name 쌍
type CharacterRating struct {
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName"`
}

// GeneratedImage - 장면당 1개의 생성 결과 레코드
// 재생성 시에도 ID/SceneID는 유지된다 (replace-in-place).
type GeneratedImage struct {
	ID               string            `json:"id"`
	SceneID          string            `json:"sceneId"`
	SceneNumber      int               `json:"sceneNumber"`
	SceneDescription string            `json:"sceneDescription"`
	ImageURL         string            `json:"imageUrl"`
	Prompt           string            `json:"prompt"` // 백엔드에 전송된 정확한 텍스트 (감사/재생성용)
	GenerationTime   float64           `json:"generationTime"`
	Status           string            `json:"status"`
	Error            string            `json:"error,omitempty"`
	CharacterRatings []CharacterRating `json:"characterRatings,omitempty"`
	UploadFailed     bool              `json:"uploadFailed,omitempty"` // degraded completion 플래그
}

// GenerateOptions - 배치 생성 옵션
type GenerateOptions struct {
	ArtStyle                 string `json:"artStyle,omitempty"`
	Location                 string `json:"location,omitempty"` // 장면 간 일관된 배경 장소
	Provider                 string `json:"provider,omitempty"` // explicit provider 지정
	AspectRatio              string `json:"aspectRatio,omitempty"`
	MentionGenericCharacters bool   `json:"mentionGenericCharacters,omitempty"`

	// Cancelled는 장면 시작 전마다 호출된다 (worker의 취소 플래그 체크용).
	// true를 반환하면 아직 시작하지 않은 장면은 pending으로 남는다.
	Cancelled func() bool `json:"-"`
}

// Progress - 집계 진행 상황 (저장하지 않고 항상 읽는 시점에 재계산)
type Progress struct {
	TotalScenes     int `json:"totalScenes"`
	CompletedCount  int `json:"completedCount"`
	FailedCount     int `json:"failedCount"`
	GeneratingCount int `json:"generatingCount"`
	PendingCount    int `json:"pendingCount"`
	ProgressPercent int `json:"progressPercent"`
}

// ComputeProgress - 진행 상황 계산
// pendingCount는 pending 레코드 + 아직 레코드가 없는 장면 수.
func ComputeProgress(images []GeneratedImage, totalScenes int) Progress {
	p := Progress{TotalScenes: totalScenes}

	for _, img := range images {
		switch img.Status {
		case StatusCompleted:
			p.CompletedCount++
		case StatusFailed:
			p.FailedCount++
		case StatusGenerating:
			p.GeneratingCount++
		case StatusPending:
			p.PendingCount++
		}
	}

	if missing := totalScenes - len(images); missing > 0 {
		p.PendingCount += missing
	}

	if totalScenes > 0 {
		p.ProgressPercent = int(math.Round(float64(p.CompletedCount) / float64(totalScenes) * 100))
	}

	return p
}
