package character

import (
	"fmt"
	"strings"
)

// ReferenceImage - 업로드된 캐릭터 참조 이미지
type ReferenceImage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Description - 캐릭터 외형 속성 (모두 optional)
type Description struct {
	HairColor     string `json:"hairColor,omitempty"`
	SkinTone      string `json:"skinTone,omitempty"`
	Clothing      string `json:"clothing,omitempty"`
	Age           string `json:"age,omitempty"`
	OtherFeatures string `json:"otherFeatures,omitempty"`
}

// Character - 스토리 캐릭터
type Character struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ReferenceImage *ReferenceImage `json:"referenceImage,omitempty"`
	Description    Description     `json:"description"`
	IsPrimary      bool            `json:"isPrimary"`
	DisplayOrder   int             `json:"displayOrder"`
}

// GenericFragment - 속성이 하나도 없을 때 대신 쓰는 기본 묘사
const GenericFragment = "friendly child character with bright eyes and cheerful smile"

// IsEmpty - 묘사 속성이 하나도 없는지 확인
func (d Description) IsEmpty() bool {
	return d.HairColor == "" && d.SkinTone == "" && d.Clothing == "" &&
		d.Age == "" && d.OtherFeatures == ""
}

// Fragment - 캐릭터 일관성 묘사 조각 생성
// 속성 순서 고정: hair → skin → clothing → age → other (프롬프트 재현성 보장)
func (d Description) Fragment() string {
	if d.IsEmpty() {
		return GenericFragment
	}

	parts := []string{}
	if d.HairColor != "" {
		parts = append(parts, d.HairColor+" hair")
	}
	if d.SkinTone != "" {
		parts = append(parts, d.SkinTone+" skin")
	}
	if d.Clothing != "" {
		parts = append(parts, "wearing "+d.Clothing)
	}
	if d.Age != "" {
		parts = append(parts, d.Age+" years old")
	}
	if d.OtherFeatures != "" {
		parts = append(parts, d.OtherFeatures)
	}

	return strings.Join(parts, ", ")
}

// PromptFragment - 이름 포함 묘사 조각 ("Name: black hair, fair skin, ...")
func (c Character) PromptFragment() string {
	return c.Name + ": " + c.Description.Fragment()
}

// HasReferenceImage - 참조 이미지 업로드 여부
func (c Character) HasReferenceImage() bool {
	return c.ReferenceImage != nil && c.ReferenceImage.URL != ""
}

// Primary - primary 캐릭터 찾기 (없으면 nil)
func Primary(chars []Character) *Character {
	for i := range chars {
		if chars[i].IsPrimary {
			return &chars[i]
		}
	}
	return nil
}

// Validate - 캐릭터 리스트 불변식 검증
// 비어있지 않으면 primary는 정확히 한 명이어야 한다.
func Validate(chars []Character) error {
	if len(chars) == 0 {
		return nil
	}

	primaryCount := 0
	seen := map[string]bool{}
	for _, c := range chars {
		if c.Name == "" {
			return fmt.Errorf("character %s has no name", c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate character id: %s", c.ID)
		}
		seen[c.ID] = true
		if c.IsPrimary {
			primaryCount++
		}
	}

	if primaryCount != 1 {
		return fmt.Errorf("expected exactly 1 primary character, got %d", primaryCount)
	}
	return nil
}

// Normalize - primary 불변식과 display order를 강제로 맞추기
// primary가 없으면 첫 번째를 primary로, 여러 명이면 첫 번째만 남긴다.
// display order는 1부터 연속으로 다시 매긴다.
func Normalize(chars []Character) []Character {
	if len(chars) == 0 {
		return chars
	}

	primaryFound := false
	for i := range chars {
		if chars[i].IsPrimary {
			if primaryFound {
				chars[i].IsPrimary = false
			}
			primaryFound = true
		}
	}
	if !primaryFound {
		chars[0].IsPrimary = true
	}

	for i := range chars {
		chars[i].DisplayOrder = i + 1
	}
	return chars
}

// Remove - 캐릭터 제거
// primary를 지우면 남은 첫 번째 캐릭터가 primary가 되고,
// display order는 1부터 연속으로 다시 매겨진다.
func Remove(chars []Character, id string) []Character {
	out := make([]Character, 0, len(chars))
	for _, c := range chars {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return Normalize(out)
}
