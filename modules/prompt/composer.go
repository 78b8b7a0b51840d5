package prompt

import (
	"strings"

	"storybook-scene-server/modules/character"
)

// Options - 프롬프트 구성 옵션
type Options struct {
	ArtStyle                 string // 화풍 (예: "children's book illustration, soft watercolor style")
	Location                 string // 장면 간 일관된 배경 장소 힌트
	MentionGenericCharacters bool   // 직업형 배경 인물 언급 여부
}

// ComposePrompt - 캐릭터 + 장면 설명을 하나의 생성 프롬프트로 조립
// 순수 함수: 동일 입력이면 항상 바이트 단위로 동일한 출력 (감사/재생성 재현성 보장)
//
// 최종 구조:
//
//	{scene}, MAIN FOCUS: {character fragments}{generic clause}{location clause},
//	{artStyle}, maintain consistent character appearance and scene background, detailed illustration
func ComposePrompt(characters []character.Character, sceneDescription string, opts Options) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(sceneDescription))

	// 캐릭터 묘사 조각 (여러 명이면 ", and "로 연결)
	if len(characters) > 0 {
		fragments := make([]string, 0, len(characters))
		for _, c := range characters {
			fragments = append(fragments, c.PromptFragment())
		}
		b.WriteString(", MAIN FOCUS: ")
		b.WriteString(strings.Join(fragments, ", and "))
	}

	// 직업형 배경 인물은 명시적으로 background로 밀어낸다
	// (이름 있는 캐릭터와 시각적으로 경쟁하지 않도록)
	if opts.MentionGenericCharacters {
		if generics := ExtractGenericCharacters(sceneDescription); len(generics) > 0 {
			b.WriteString(", with ")
			b.WriteString(strings.Join(generics, " and "))
			b.WriteString(" in background")
		}
	}

	// 장면 간 배경 일관성 힌트
	if opts.Location != "" {
		b.WriteString(", consistent ")
		b.WriteString(opts.Location)
		b.WriteString(" setting")
	}

	b.WriteString(", ")
	b.WriteString(opts.ArtStyle)
	b.WriteString(", maintain consistent character appearance and scene background, detailed illustration")

	return b.String()
}
