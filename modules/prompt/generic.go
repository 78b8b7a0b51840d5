package prompt

import "strings"

// genericCharacterNouns - 장면 텍스트에서 찾는 직업형/역할형 배경 인물 명사
// 순서 고정: 추출 결과가 결정적이어야 프롬프트 재현성이 유지된다.
var genericCharacterNouns = []string{
	"policeman",
	"police officer",
	"firefighter",
	"fireman",
	"teacher",
	"doctor",
	"nurse",
	"farmer",
	"baker",
	"shopkeeper",
	"bus driver",
	"driver",
	"postman",
	"mailman",
	"waiter",
	"waitress",
	"chef",
	"librarian",
	"pilot",
	"sailor",
	"soldier",
	"king",
	"queen",
	"wizard",
	"witch",
}

// ExtractGenericCharacters - 장면 텍스트에서 직업형 배경 인물 추출 (lexical)
// 중복 없이, genericCharacterNouns 순서대로 반환한다.
func ExtractGenericCharacters(sceneText string) []string {
	lower := strings.ToLower(sceneText)

	found := []string{}
	seen := map[string]bool{}
	for _, noun := range genericCharacterNouns {
		if !strings.Contains(lower, noun) {
			continue
		}
		// "police officer"를 찾았으면 부분 문자열인 "driver" 류 중복 방지
		if seen[noun] {
			continue
		}
		// 더 긴 명사를 이미 찾았으면 그 부분 문자열은 건너뛴다 (예: "bus driver" vs "driver")
		skip := false
		for _, f := range found {
			if strings.Contains(f, noun) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		seen[noun] = true
		found = append(found, noun)
	}

	return found
}
