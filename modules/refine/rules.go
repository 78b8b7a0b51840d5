package refine

import "strings"

// feedbackRule - 키워드 기반 보정 규칙
// AI 재작성이 불가능하거나 실패했을 때의 fallback 경로.
type feedbackRule struct {
	keywords []string
	clause   string
}

// 규칙은 순서대로 평가되고 매칭된 규칙의 절이 모두 추가된다.
var feedbackRules = []feedbackRule{
	{
		keywords: []string{"extra", "duplicate", "duplicated", "too many", "clone"},
		clause:   "show ONLY the named characters, no extra people, no duplicated characters",
	},
	{
		keywords: []string{"hand", "finger", "arm", "leg", "anatomy", "distorted", "deformed", "weird body"},
		clause:   "CORRECT human anatomy, exactly two arms and two legs per person, five fingers per hand, natural proportions",
	},
	{
		keywords: []string{"missing", "not in the image", "disappear", "can't see", "cannot see"},
		clause:   "every named character MUST be clearly visible in the scene",
	},
	{
		keywords: []string{"expression", "smile", "smiling", "sad", "angry", "face looks"},
		clause:   "natural facial expression matching the mood of the scene",
	},
	{
		keywords: []string{"background", "setting", "location", "place looks"},
		clause:   "keep the background consistent with the scene description",
	},
	{
		keywords: []string{"merged", "fused", "fusion", "blend", "blended together"},
		clause:   "each character is a SEPARATE distinct person, characters must never merge or blend together",
	},
}

// 매칭되는 규칙이 하나도 없을 때의 일반 보정 절
const genericFixClause = "improve overall quality and coherence, fix visual artifacts"

// applyFeedbackRules - 피드백 키워드를 보정 절로 변환해 원본 프롬프트에 덧붙임
func applyFeedbackRules(originalPrompt, userFeedback string) string {
	feedback := strings.ToLower(userFeedback)

	clauses := []string{}
	for _, rule := range feedbackRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(feedback, keyword) {
				clauses = append(clauses, rule.clause)
				break
			}
		}
	}

	if len(clauses) == 0 {
		clauses = append(clauses, genericFixClause)
	}

	return originalPrompt + ", " + strings.Join(clauses, ", ")
}

// 장면 텍스트에 동물이 등장하면 항상 덧붙이는 분리 절
// 사람-동물 융합(아이 얼굴을 한 강아지 등)이 가장 흔한 결함이라 무조건 명시한다.
const animalSeparationClause = "humans and animals are SEPARATE beings, never merge human and animal features"

var animalWords = []string{
	"dog", "puppy", "cat", "kitten", "rabbit", "bunny", "bird", "duck", "chicken",
	"horse", "pony", "cow", "pig", "sheep", "goat", "bear", "lion", "tiger",
	"elephant", "fox", "wolf", "monkey", "deer", "squirrel", "fish", "whale",
	"dolphin", "turtle", "frog", "dinosaur", "dragon", "animal",
}

// ContainsAnimalWord - 장면 텍스트에 동물 단어가 포함되는지 확인
func ContainsAnimalWord(text string) bool {
	lowered := strings.ToLower(text)
	for _, word := range animalWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}
