package story

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"storybook-scene-server/modules/character"
)

// Tracker - 장면별 상태 머신 + 진행 상황 집계
// 상태 전이 규칙:
//
//	pending   -[start]->      generating
//	generating-[success]->    completed
//	generating-[error]->      failed
//	completed/failed -[regenerate]-> generating
//
// terminal 상태에서 pending으로 돌아가는 전이는 없다.
type Tracker struct {
	mu          sync.RWMutex
	totalScenes int
	images      map[string]*GeneratedImage // record ID 기준
	bySceneID   map[string]string          // scene ID → record ID
	onUpdate    func(GeneratedImage)
}

// NewTracker - Tracker 생성
func NewTracker(totalScenes int) *Tracker {
	return &Tracker{
		totalScenes: totalScenes,
		images:      make(map[string]*GeneratedImage),
		bySceneID:   make(map[string]string),
	}
}

// SetOnUpdate - 상태 변경 알림 콜백 등록 (WebSocket 진행 푸시용)
func (t *Tracker) SetOnUpdate(fn func(GeneratedImage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = fn
}

// Seed - 생성 요청 시점에 장면당 pending 레코드를 일괄 생성
func (t *Tracker) Seed(scenes []Scene, characters []character.Character) []GeneratedImage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]GeneratedImage, 0, len(scenes))
	for _, scene := range scenes {
		record := &GeneratedImage{
			ID:               uuid.New().String(),
			SceneID:          scene.ID,
			SceneNumber:      scene.SceneNumber,
			SceneDescription: scene.Description,
			Status:           StatusPending,
			CharacterRatings: buildRatings(scene, characters),
		}
		t.images[record.ID] = record
		t.bySceneID[scene.ID] = record.ID
		out = append(out, *record)
	}
	return out
}

// buildRatings - 장면에 등장하는 캐릭터의 id/name 쌍 생성
func buildRatings(scene Scene, characters []character.Character) []CharacterRating {
	if len(scene.CharacterNames) == 0 {
		return nil
	}

	byName := make(map[string]character.Character, len(characters))
	for _, c := range characters {
		byName[c.Name] = c
	}

	ratings := []CharacterRating{}
	for _, name := range scene.CharacterNames {
		if c, ok := byName[name]; ok {
			ratings = append(ratings, CharacterRating{CharacterID: c.ID, CharacterName: c.Name})
		}
	}
	return ratings
}

// Start - pending 또는 terminal 레코드를 generating으로 전이
// 백엔드 호출 전에 반드시 호출되어야 한다 (진행 상황이 레이스 없이 보이도록).
func (t *Tracker) Start(recordID string) error {
	t.mu.Lock()

	record, ok := t.images[recordID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown record: %s", recordID)
	}

	if record.Status == StatusGenerating {
		t.mu.Unlock()
		return fmt.Errorf("record %s is already generating", recordID)
	}

	record.Status = StatusGenerating
	snapshot := *record
	fn := t.onUpdate
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Complete - generating 레코드를 completed로 전이
// 프롬프트/URL/시간을 덮어쓰고 이전 error를 지운다 (재생성 replace-in-place).
func (t *Tracker) Complete(recordID, imageURL, promptText string, generationTime float64, uploadFailed bool) error {
	t.mu.Lock()

	record, ok := t.images[recordID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown record: %s", recordID)
	}

	if record.Status != StatusGenerating {
		t.mu.Unlock()
		return fmt.Errorf("cannot complete record %s from status %s", recordID, record.Status)
	}

	record.Status = StatusCompleted
	record.ImageURL = imageURL
	record.Prompt = promptText
	record.GenerationTime = generationTime
	record.UploadFailed = uploadFailed
	record.Error = ""
	snapshot := *record
	fn := t.onUpdate
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Fail - generating 레코드를 failed로 전이
func (t *Tracker) Fail(recordID, errorMessage string) error {
	t.mu.Lock()

	record, ok := t.images[recordID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown record: %s", recordID)
	}

	if record.Status != StatusGenerating {
		t.mu.Unlock()
		return fmt.Errorf("cannot fail record %s from status %s", recordID, record.Status)
	}

	record.Status = StatusFailed
	record.Error = errorMessage
	record.ImageURL = ""
	record.UploadFailed = false
	snapshot := *record
	fn := t.onUpdate
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Get - 레코드 조회 (record ID 기준)
func (t *Tracker) Get(recordID string) (GeneratedImage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.images[recordID]
	if !ok {
		return GeneratedImage{}, false
	}
	return *record, true
}

// GetBySceneID - 레코드 조회 (scene ID 기준)
func (t *Tracker) GetBySceneID(sceneID string) (GeneratedImage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	recordID, ok := t.bySceneID[sceneID]
	if !ok {
		return GeneratedImage{}, false
	}
	return *t.images[recordID], true
}

// Snapshot - 전체 레코드 복사본 (scene number 순 정렬)
func (t *Tracker) Snapshot() []GeneratedImage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]GeneratedImage, 0, len(t.images))
	for _, record := range t.images {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SceneNumber < out[j].SceneNumber
	})
	return out
}

// Progress - 집계 진행 상황 (읽는 시점에 재계산)
func (t *Tracker) Progress() Progress {
	return ComputeProgress(t.Snapshot(), t.totalScenes)
}
