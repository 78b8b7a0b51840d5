package refine

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// 재작성된 프롬프트 최대 길이 (백엔드 프롬프트 폭주 방지)
const maxRefinedPromptLen = 600

// TextRewriter - AI 기반 프롬프트 재작성 (Gemini 텍스트 모델)
type TextRewriter interface {
	RewriteText(ctx context.Context, instruction string) (string, error)
}

// Refiner - 피드백 기반 프롬프트 보정
// 우선순위: 사용자가 직접 수정한 프롬프트(verbatim) > AI 재작성 > 키워드 규칙 fallback
type Refiner struct {
	rewriter TextRewriter
}

// NewRefiner - Refiner 생성 (rewriter는 nil 가능, 그 경우 규칙만 사용)
func NewRefiner(rewriter TextRewriter) *Refiner {
	return &Refiner{rewriter: rewriter}
}

// Refine - 재생성용 프롬프트 결정
// editedPrompt가 원본과 다르면 그대로 사용한다 (AI/규칙 보정 없이).
// userFeedback이 비어 있으면 원본 프롬프트 그대로 재생성한다.
func (r *Refiner) Refine(ctx context.Context, originalPrompt, userFeedback, sceneText, editedPrompt string) string {
	if editedPrompt != "" && editedPrompt != originalPrompt {
		log.Printf("🔄 [Refine] Using user-edited prompt verbatim (%d chars)", len(editedPrompt))
		return editedPrompt
	}

	if strings.TrimSpace(userFeedback) == "" {
		return originalPrompt
	}

	refined := r.rewriteWithAI(ctx, originalPrompt, userFeedback)
	if refined == "" {
		log.Printf("🔄 [Refine] Falling back to keyword rules")
		refined = applyFeedbackRules(originalPrompt, userFeedback)
	}

	if ContainsAnimalWord(sceneText) && !strings.Contains(refined, animalSeparationClause) {
		refined += ", " + animalSeparationClause
	}

	if len(refined) > maxRefinedPromptLen {
		refined = refined[:maxRefinedPromptLen]
	}

	return refined
}

// rewriteWithAI - Gemini 텍스트 모델로 프롬프트 재작성 (실패 시 빈 문자열)
func (r *Refiner) rewriteWithAI(ctx context.Context, originalPrompt, userFeedback string) string {
	if r.rewriter == nil {
		return ""
	}

	instruction := fmt.Sprintf(`You are refining an image generation prompt for a children's storybook scene.

Original prompt:
%s

User feedback about the generated image:
%s

Rewrite the prompt so the regenerated image fixes the feedback. Common defects and required fixes:
- extra or duplicated characters: state that ONLY the named characters appear, no extra people
- anatomy problems: demand CORRECT anatomy, five fingers per hand, natural proportions
- missing characters: require every named character to be clearly visible
- wrong facial expression: describe the intended expression explicitly
- inconsistent background: restate the scene setting
- merged characters: each character MUST be a separate, distinct person

Keep the original scene content and art style. Use UPPERCASE for the critical corrective clauses.
Return ONLY the rewritten prompt text, no commentary.`, originalPrompt, userFeedback)

	rewritten, err := r.rewriter.RewriteText(ctx, instruction)
	if err != nil {
		log.Printf("⚠️ [Refine] AI rewrite failed: %v", err)
		return ""
	}

	return cleanRewrittenPrompt(rewritten)
}

// cleanRewrittenPrompt - 모델 출력에서 코드펜스/따옴표 제거
func cleanRewrittenPrompt(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.Trim(cleaned, "\"")
	return strings.TrimSpace(cleaned)
}
