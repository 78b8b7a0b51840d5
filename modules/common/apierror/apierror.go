package apierror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind - 에러 분류
type Kind string

const (
	KindValidation          Kind = "validation"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindTimeout             Kind = "backend_timeout"
	KindRateLimited         Kind = "backend_rate_limited"
	KindMalformedResponse   Kind = "backend_malformed_response"
	KindEmptyResult         Kind = "backend_empty_result"
	KindStorageUpload       Kind = "storage_upload_failed"
	KindUnknown             Kind = "unknown"
)

// Error - 분류가 붙은 에러. 백엔드 raw payload 대신 정규화된 메시지를 담는다.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New - 분류된 에러 생성
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf - 분류된 에러 생성 (포맷)
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap - 기존 에러를 분류해서 감싸기
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf - 에러의 분류 추출 (분류 없는 에러는 휴리스틱으로 판별)
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	if IsRateLimited(err) {
		return KindRateLimited
	}

	return KindUnknown
}

// IsRateLimited - 429 Rate Limit 에러인지 확인
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource exhausted")
}

// IsTimeout - 타임아웃 에러인지 확인
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "timeout")
}

// UserMessage - 사용자에게 보여줄 메시지
// rate limit은 "잠시 후 재시도"로, 나머지는 실패 사유로 구분한다.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindRateLimited:
		return "Image service is busy right now, please try again shortly"
	case KindTimeout:
		return "Image generation timed out"
	case KindProviderUnavailable:
		return "No image generation provider is configured"
	case KindEmptyResult:
		return "The image service returned no image"
	case KindMalformedResponse:
		return "The image service returned an unexpected response"
	case KindStorageUpload:
		return "Generated image could not be saved"
	case KindValidation:
		if apiErr := asError(err); apiErr != nil {
			return apiErr.Message
		}
		return "Invalid request"
	default:
		return "Image generation failed"
	}
}

func asError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
