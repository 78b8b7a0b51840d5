package provider

import (
	"context"

	"storybook-scene-server/modules/common/apierror"
)

// Provider 이름 상수 (요청의 explicit provider 지정에 사용)
const (
	NameGemini  = "gemini"
	NameRunware = "runware"
)

// CharacterRef - 백엔드에 넘기는 캐릭터 참조 정보
type CharacterRef struct {
	Name              string
	ReferenceImageURL string // 절대 URL (백엔드는 상대 경로를 해석하지 못함)
	Description       string // 일관성 묘사 조각
}

// SizeHint - text-only 생성의 크기 힌트
type SizeHint struct {
	AspectRatio string // "1:1", "16:9", "4:3" ...
	Width       int
	Height      int
}

// Result - 생성/편집 결과
// GenerationTime은 호출자가 벽시계로 측정한 값이다 (provider 응답의 시간 값을 신뢰하지 않음).
type Result struct {
	ImageURL       string  // provider가 URL을 반환한 경우
	ImageBase64    string  // provider가 inline payload를 반환한 경우
	MimeType       string  // inline payload의 MIME 타입
	Seed           int64   // text-only 백엔드만 의미 있음
	Prompt         string  // 실제로 전송된 프롬프트 (감사/재생성용)
	GenerationTime float64 // 초 단위 벽시계 시간
}

// HasImage - 결과에 이미지가 있는지 확인
func (r *Result) HasImage() bool {
	return r != nil && (r.ImageURL != "" || r.ImageBase64 != "")
}

// ReferenceImageGenerator - 참조 이미지 + 텍스트 기반 생성 (identity-preserving)
// scenePrompt는 Prompt Composer가 조립한 장면 프롬프트, characters는 참조 이미지용.
type ReferenceImageGenerator interface {
	Name() string
	GenerateWithReferences(ctx context.Context, characters []CharacterRef, scenePrompt, artStyle string) (*Result, error)
}

// TextOnlyGenerator - 텍스트만으로 생성
type TextOnlyGenerator interface {
	Name() string
	GenerateFromText(ctx context.Context, prompt string, size SizeHint) (*Result, error)
}

// ImageEditor - 지시문 기반 단일 이미지 편집
type ImageEditor interface {
	Name() string
	EditImage(ctx context.Context, imageURL, instruction string) (*Result, error)
}

// Availability - 생성 provider 선택에 필요한 상태 플래그
// 네트워크 코드와 분리된 순수 입력으로 선택 로직을 단위 테스트 가능하게 한다.
type Availability struct {
	GeminiConfigured  bool
	RunwareConfigured bool
	HasReferenceImage bool // primary 캐릭터 참조 이미지 존재 여부
}

// SelectGenerator - 생성 백엔드 선택 (고정 우선순위, 레이스 아님)
// explicit 지정 > identity-preserving(참조 이미지 있을 때) > text-only > 에러
func SelectGenerator(explicit string, av Availability) (string, error) {
	switch explicit {
	case NameGemini:
		if !av.GeminiConfigured {
			return "", apierror.New(apierror.KindProviderUnavailable, "requested provider gemini is not configured")
		}
		return NameGemini, nil
	case NameRunware:
		if !av.RunwareConfigured {
			return "", apierror.New(apierror.KindProviderUnavailable, "requested provider runware is not configured")
		}
		return NameRunware, nil
	case "":
		// 기본 선택
	default:
		return "", apierror.Newf(apierror.KindValidation, "unknown provider: %s", explicit)
	}

	if av.GeminiConfigured && av.HasReferenceImage {
		return NameGemini, nil
	}
	if av.RunwareConfigured {
		return NameRunware, nil
	}
	if av.GeminiConfigured {
		// 참조 이미지가 없어도 Gemini는 텍스트만으로 생성 가능
		return NameGemini, nil
	}

	return "", apierror.New(apierror.KindProviderUnavailable, "no image generation provider configured")
}

// EditAvailability - 편집 provider 선택 플래그
// 편집 백엔드는 생성 백엔드와 독립적으로 평가된다.
type EditAvailability struct {
	PrimaryConfigured   bool // Gemini 편집
	SecondaryConfigured bool // Runware 편집
}

// SelectEditor - 편집 백엔드 선택
// explicit 지정 > primary > secondary > 에러
func SelectEditor(explicit string, av EditAvailability) (string, error) {
	switch explicit {
	case NameGemini:
		if !av.PrimaryConfigured {
			return "", apierror.New(apierror.KindProviderUnavailable, "requested provider gemini is not configured")
		}
		return NameGemini, nil
	case NameRunware:
		if !av.SecondaryConfigured {
			return "", apierror.New(apierror.KindProviderUnavailable, "requested provider runware is not configured")
		}
		return NameRunware, nil
	case "":
		// 기본 선택
	default:
		return "", apierror.Newf(apierror.KindValidation, "unknown provider: %s", explicit)
	}

	if av.PrimaryConfigured {
		return NameGemini, nil
	}
	if av.SecondaryConfigured {
		return NameRunware, nil
	}

	return "", apierror.New(apierror.KindProviderUnavailable, "no image edit provider configured")
}
