package story

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook-scene-server/modules/character"
	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/provider"
	"storybook-scene-server/modules/refine"
)

var fakePayload = base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))

// fakeBackend - 생성 백엔드 fake (참조/텍스트 둘 다 지원)
// failContains가 프롬프트에 포함되면 failErr를 반환한다.
type fakeBackend struct {
	mu           sync.Mutex
	name         string
	refCalls     int
	textCalls    int
	failContains string
	failErr      error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) GenerateWithReferences(ctx context.Context, characters []provider.CharacterRef, scenePrompt, artStyle string) (*provider.Result, error) {
	f.mu.Lock()
	f.refCalls++
	f.mu.Unlock()
	return f.result(scenePrompt)
}

func (f *fakeBackend) GenerateFromText(ctx context.Context, promptText string, size provider.SizeHint) (*provider.Result, error) {
	f.mu.Lock()
	f.textCalls++
	f.mu.Unlock()
	return f.result(promptText)
}

func (f *fakeBackend) result(promptText string) (*provider.Result, error) {
	if f.failContains != "" && strings.Contains(promptText, f.failContains) {
		return nil, f.failErr
	}
	return &provider.Result{
		ImageBase64:    fakePayload,
		MimeType:       "image/png",
		Prompt:         promptText,
		GenerationTime: 0.1,
	}, nil
}

func (f *fakeBackend) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refCalls, f.textCalls
}

// fakeUploader - 업로드 fake
type fakeUploader struct {
	mu      sync.Mutex
	fail    bool
	uploads int
}

func (f *fakeUploader) UploadSceneImage(ctx context.Context, storyID, sceneID string, imageData []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", apierror.New(apierror.KindStorageUpload, "bucket unavailable")
	}
	f.uploads++
	return fmt.Sprintf("https://cdn.example.com/%s/%s.webp", storyID, sceneID), nil
}

func testScenes() []Scene {
	return []Scene{
		{ID: "s1", SceneNumber: 1, Description: "Mina wakes up in her room"},
		{ID: "s2", SceneNumber: 2, Description: "Mina explores the dragon cave"},
		{ID: "s3", SceneNumber: 3, Description: "Mina returns home at sunset"},
	}
}

func refChars() []character.Character {
	return []character.Character{
		{
			ID:             "c1",
			Name:           "Mina",
			IsPrimary:      true,
			ReferenceImage: &character.ReferenceImage{URL: "/uploads/mina.png"},
			Description:    character.Description{HairColor: "black"},
		},
	}
}

func newTestService(gemini *fakeBackend, runware *fakeBackend, uploader *fakeUploader, geminiOK, runwareOK bool) *Service {
	return NewService(Deps{
		Gemini:          gemini,
		Runware:         runware,
		GeminiOK:        geminiOK,
		RunwareOK:       runwareOK,
		Uploader:        uploader,
		Refiner:         refine.NewRefiner(nil),
		AssetBaseURL:    "https://assets.example.com",
		DefaultArtStyle: "soft watercolor",
		Timeout:         5 * time.Second,
		Concurrency:     2,
	})
}

func TestGenerateAllSuccess(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	uploader := &fakeUploader{}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, uploader, true, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})

	require.NoError(t, err)
	assert.Empty(t, sceneErrors)
	require.Len(t, images, 3)
	for _, img := range images {
		assert.Equal(t, StatusCompleted, img.Status)
		assert.Contains(t, img.ImageURL, "https://cdn.example.com/story-1/")
		assert.NotEmpty(t, img.Prompt)
		assert.False(t, img.UploadFailed)
	}

	// primary에 참조 이미지가 있으므로 identity-preserving 경로를 탄다
	refCalls, textCalls := gemini.calls()
	assert.Equal(t, 3, refCalls)
	assert.Zero(t, textCalls)

	progress, err := svc.Progress("story-1")
	require.NoError(t, err)
	assert.Equal(t, 100, progress.ProgressPercent)
}

func TestGenerateAllPartialFailure(t *testing.T) {
	gemini := &fakeBackend{
		name:         provider.NameGemini,
		failContains: "dragon cave",
		failErr:      apierror.New(apierror.KindTimeout, "backend call timed out"),
	}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})

	require.NoError(t, err)
	require.Len(t, images, 3)

	// 한 장면의 실패가 다른 장면을 중단시키지 않는다
	assert.Equal(t, StatusCompleted, images[0].Status)
	assert.Equal(t, StatusFailed, images[1].Status)
	assert.Equal(t, StatusCompleted, images[2].Status)
	assert.Equal(t, "Image generation timed out", images[1].Error)
	assert.Empty(t, images[1].ImageURL)

	require.Len(t, sceneErrors, 1)
	assert.Equal(t, "Scene 2: Image generation timed out", sceneErrors[0])

	progress, _ := svc.Progress("story-1")
	assert.Equal(t, 2, progress.CompletedCount)
	assert.Equal(t, 1, progress.FailedCount)
	assert.Equal(t, 67, progress.ProgressPercent)
}

func TestGenerateAllRateLimitedMessage(t *testing.T) {
	gemini := &fakeBackend{
		name:         provider.NameGemini,
		failContains: "Mina",
		failErr:      apierror.New(apierror.KindRateLimited, "429 from upstream"),
	}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})

	require.NoError(t, err)
	for _, img := range images {
		assert.Equal(t, StatusFailed, img.Status)
		// raw 429 payload가 아니라 재시도 안내 메시지
		assert.Equal(t, "Image service is busy right now, please try again shortly", img.Error)
	}
	assert.Len(t, sceneErrors, 3)
}

func TestGenerateAllValidation(t *testing.T) {
	svc := newTestService(&fakeBackend{name: provider.NameGemini}, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, true)

	_, _, err := svc.GenerateAll(context.Background(), "story-1", nil, nil, GenerateOptions{})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	_, _, err = svc.GenerateAll(context.Background(), "story-1", []Scene{{ID: "s1", SceneNumber: 1, Description: "   "}}, nil, GenerateOptions{})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	twoPrimaries := []character.Character{
		{ID: "a", Name: "Mina", IsPrimary: true},
		{ID: "b", Name: "Juno", IsPrimary: true},
	}
	_, _, err = svc.GenerateAll(context.Background(), "story-1", testScenes(), twoPrimaries, GenerateOptions{})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestGenerateAllNoProviderConfigured(t *testing.T) {
	svc := newTestService(&fakeBackend{name: provider.NameGemini}, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, false, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})

	require.NoError(t, err)
	assert.Len(t, sceneErrors, 3)
	for _, img := range images {
		assert.Equal(t, StatusFailed, img.Status)
		assert.Equal(t, "No image generation provider is configured", img.Error)
	}
}

func TestGenerateAllTextOnlyRouting(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	runware := &fakeBackend{name: provider.NameRunware}
	svc := newTestService(gemini, runware, &fakeUploader{}, false, true)

	noRefChars := []character.Character{{ID: "c1", Name: "Mina", IsPrimary: true}}
	_, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), noRefChars, GenerateOptions{})

	require.NoError(t, err)
	assert.Empty(t, sceneErrors)

	refCalls, textCalls := runware.calls()
	assert.Zero(t, refCalls)
	assert.Equal(t, 3, textCalls)

	geminiRef, geminiText := gemini.calls()
	assert.Zero(t, geminiRef)
	assert.Zero(t, geminiText)
}

func TestGenerateAllDegradedUpload(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{fail: true}, true, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})

	require.NoError(t, err)
	// 업로드 실패는 생성 실패가 아니다: inline payload로 degraded completion
	assert.Empty(t, sceneErrors)
	for _, img := range images {
		assert.Equal(t, StatusCompleted, img.Status)
		assert.True(t, img.UploadFailed)
		assert.True(t, strings.HasPrefix(img.ImageURL, "data:image/png;base64,"))
	}
}

func TestGenerateAllCancelled(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	images, sceneErrors, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{
		Cancelled: func() bool { return true },
	})

	require.NoError(t, err)
	assert.Empty(t, sceneErrors)
	for _, img := range images {
		assert.Equal(t, StatusPending, img.Status)
	}

	refCalls, textCalls := gemini.calls()
	assert.Zero(t, refCalls)
	assert.Zero(t, textCalls)
}

func TestRegenerateReplaceInPlace(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	images, _, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})
	require.NoError(t, err)
	originalID := images[1].ID
	originalPrompt := images[1].Prompt

	updated, err := svc.RegenerateScene(context.Background(), "story-1", "s2", "there is an extra person", "")

	require.NoError(t, err)
	require.NotNil(t, updated)
	// 레코드는 교체되고 ID/SceneID는 유지된다
	assert.Equal(t, originalID, updated.ID)
	assert.Equal(t, "s2", updated.SceneID)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.NotEqual(t, originalPrompt, updated.Prompt)
	assert.Contains(t, updated.Prompt, "ONLY")

	// 전체 스냅샷에도 장면당 레코드는 여전히 1개
	all, _ := svc.Images("story-1")
	assert.Len(t, all, 3)
}

func TestRegenerateWithEditedPrompt(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	_, _, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})
	require.NoError(t, err)

	edited := "A completely custom hand-written prompt"
	updated, err := svc.RegenerateScene(context.Background(), "story-1", "s1", "ignored feedback", edited)

	require.NoError(t, err)
	// 직접 수정한 프롬프트는 보정 없이 그대로 전송된다
	assert.Equal(t, edited, updated.Prompt)
}

func TestRegenerateClearsPreviousError(t *testing.T) {
	gemini := &fakeBackend{
		name:         provider.NameGemini,
		failContains: "dragon cave",
		failErr:      apierror.New(apierror.KindEmptyResult, "no image"),
	}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	images, _, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, images[1].Status)

	// 백엔드 복구 후 재생성
	gemini.failContains = ""
	updated, err := svc.RegenerateScene(context.Background(), "story-1", "s2", "", "")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Empty(t, updated.Error)
	assert.NotEmpty(t, updated.ImageURL)
}

func TestRegenerateFailureKeepsRecordFailed(t *testing.T) {
	gemini := &fakeBackend{name: provider.NameGemini}
	svc := newTestService(gemini, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	_, _, err := svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})
	require.NoError(t, err)

	gemini.failContains = "Mina"
	gemini.failErr = apierror.New(apierror.KindTimeout, "slow")

	updated, err := svc.RegenerateScene(context.Background(), "story-1", "s1", "extra person", "")

	require.Error(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, StatusFailed, updated.Status)
	assert.Equal(t, "Image generation timed out", updated.Error)
}

func TestRegenerateUnknownTargets(t *testing.T) {
	svc := newTestService(&fakeBackend{name: provider.NameGemini}, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	_, err := svc.RegenerateScene(context.Background(), "no-such-story", "s1", "", "")
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	_, _, err = svc.GenerateAll(context.Background(), "story-1", testScenes(), refChars(), GenerateOptions{})
	require.NoError(t, err)

	_, err = svc.RegenerateScene(context.Background(), "story-1", "no-such-scene", "", "")
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestResolveAssetURL(t *testing.T) {
	svc := newTestService(&fakeBackend{name: provider.NameGemini}, &fakeBackend{name: provider.NameRunware}, &fakeUploader{}, true, false)

	assert.Equal(t, "https://assets.example.com/uploads/mina.png", svc.resolveAssetURL("/uploads/mina.png"))
	assert.Equal(t, "https://assets.example.com/uploads/mina.png", svc.resolveAssetURL("uploads/mina.png"))
	assert.Equal(t, "https://other.example.com/a.png", svc.resolveAssetURL("https://other.example.com/a.png"))
	assert.True(t, strings.HasPrefix(svc.resolveAssetURL("data:image/png;base64,abc"), "data:"))
}

func TestCharactersForScene(t *testing.T) {
	chars := []character.Character{
		{ID: "a", Name: "Mina", IsPrimary: true},
		{ID: "b", Name: "Juno"},
	}

	// 지정이 없으면 전체
	assert.Len(t, charactersForScene(chars, Scene{}), 2)

	// 지정이 있으면 해당 캐릭터만
	filtered := charactersForScene(chars, Scene{CharacterNames: []string{"Juno"}})
	require.Len(t, filtered, 1)
	assert.Equal(t, "Juno", filtered[0].Name)

	// 매칭되는 이름이 하나도 없으면 전체로 fallback
	assert.Len(t, charactersForScene(chars, Scene{CharacterNames: []string{"Ghost"}}), 2)
}
