package edit

// 편집 대상 이미지 타입
const (
	ImageTypeScene = "scene"
	ImageTypeCover = "cover"
)

// 지시문 최소 길이 (공백 제거 후)
const minInstructionLen = 3

// EditRequest - 지시문 기반 이미지 편집 요청
type EditRequest struct {
	ImageURL    string `json:"imageUrl"`
	Instruction string `json:"instruction"`
	ImageType   string `json:"imageType"` // "scene" | "cover"
	StoryID     string `json:"storyId,omitempty"`
	SceneID     string `json:"sceneId,omitempty"`
	Provider    string `json:"provider,omitempty"` // explicit provider 지정
}

// EditResponse - 편집 결과
type EditResponse struct {
	Success        bool    `json:"success"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Provider       string  `json:"provider,omitempty"` // 실제로 편집을 수행한 백엔드
	GenerationTime float64 `json:"generationTime,omitempty"`
	UploadFailed   bool    `json:"uploadFailed,omitempty"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
}
