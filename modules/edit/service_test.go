package edit

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/provider"
)

var fakePayload = base64.StdEncoding.EncodeToString([]byte("edited-image-bytes"))

type fakeEditor struct {
	name  string
	err   error
	calls int
}

func (f *fakeEditor) Name() string { return f.name }

func (f *fakeEditor) EditImage(ctx context.Context, imageURL, instruction string) (*provider.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Result{
		ImageBase64:    fakePayload,
		MimeType:       "image/png",
		Prompt:         instruction,
		GenerationTime: 0.2,
	}, nil
}

type fakeUploader struct {
	fail    bool
	uploads int
}

func (f *fakeUploader) UploadSceneImage(ctx context.Context, storyID, sceneID string, imageData []byte) (string, error) {
	if f.fail {
		return "", apierror.New(apierror.KindStorageUpload, "bucket unavailable")
	}
	f.uploads++
	return fmt.Sprintf("https://cdn.example.com/%s/%s.webp", storyID, sceneID), nil
}

func validRequest() *EditRequest {
	return &EditRequest{
		ImageURL:    "https://cdn.example.com/story-1/s1.webp",
		Instruction: "make the sky darker",
		ImageType:   ImageTypeScene,
		StoryID:     "story-1",
		SceneID:     "s1",
	}
}

func newTestService(primary, secondary *fakeEditor, uploader *fakeUploader, primaryOK, secondaryOK bool) *Service {
	return NewService(Deps{
		Primary:     primary,
		Secondary:   secondary,
		PrimaryOK:   primaryOK,
		SecondaryOK: secondaryOK,
		Uploader:    uploader,
	})
}

func TestEditSuccess(t *testing.T) {
	primary := &fakeEditor{name: provider.NameGemini}
	uploader := &fakeUploader{}
	svc := newTestService(primary, &fakeEditor{name: provider.NameRunware}, uploader, true, true)

	resp, err := svc.Edit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, provider.NameGemini, resp.Provider)
	assert.Equal(t, "https://cdn.example.com/story-1/s1.webp", resp.ImageURL)
	assert.False(t, resp.UploadFailed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, uploader.uploads)
}

func TestEditValidationBeforeBackendCall(t *testing.T) {
	primary := &fakeEditor{name: provider.NameGemini}
	svc := newTestService(primary, &fakeEditor{name: provider.NameRunware}, &fakeUploader{}, true, true)

	tests := []struct {
		name   string
		mutate func(*EditRequest)
	}{
		{"missing image url", func(r *EditRequest) { r.ImageURL = "  " }},
		{"instruction too short", func(r *EditRequest) { r.Instruction = "ok" }},
		{"whitespace instruction", func(r *EditRequest) { r.Instruction = "      " }},
		{"unknown image type", func(r *EditRequest) { r.ImageType = "avatar" }},
		{"empty image type", func(r *EditRequest) { r.ImageType = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			_, err := svc.Edit(context.Background(), req)

			assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
		})
	}

	// 검증 실패는 백엔드 호출 전에 끝난다
	assert.Zero(t, primary.calls)
}

func TestEditCoverType(t *testing.T) {
	svc := newTestService(&fakeEditor{name: provider.NameGemini}, &fakeEditor{name: provider.NameRunware}, &fakeUploader{}, true, true)

	req := validRequest()
	req.ImageType = ImageTypeCover
	req.SceneID = ""

	resp, err := svc.Edit(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestEditFallbackToSecondary(t *testing.T) {
	primary := &fakeEditor{name: provider.NameGemini, err: apierror.New(apierror.KindRateLimited, "429")}
	secondary := &fakeEditor{name: provider.NameRunware}
	svc := newTestService(primary, secondary, &fakeUploader{}, true, true)

	resp, err := svc.Edit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, provider.NameRunware, resp.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestEditNoFallbackWhenExplicitProvider(t *testing.T) {
	primary := &fakeEditor{name: provider.NameGemini, err: apierror.New(apierror.KindRateLimited, "429")}
	secondary := &fakeEditor{name: provider.NameRunware}
	svc := newTestService(primary, secondary, &fakeUploader{}, true, true)

	req := validRequest()
	req.Provider = provider.NameGemini

	_, err := svc.Edit(context.Background(), req)

	// explicit 지정 시 실패해도 다른 백엔드로 넘어가지 않는다
	require.Error(t, err)
	assert.Zero(t, secondary.calls)
}

func TestEditBothBackendsFail(t *testing.T) {
	primary := &fakeEditor{name: provider.NameGemini, err: apierror.New(apierror.KindTimeout, "slow")}
	secondary := &fakeEditor{name: provider.NameRunware, err: apierror.New(apierror.KindEmptyResult, "no image")}
	svc := newTestService(primary, secondary, &fakeUploader{}, true, true)

	_, err := svc.Edit(context.Background(), validRequest())

	require.Error(t, err)
	// 원래(primary) 에러가 반환된다
	assert.Equal(t, apierror.KindTimeout, apierror.KindOf(err))
}

func TestEditSecondaryOnlyConfiguration(t *testing.T) {
	secondary := &fakeEditor{name: provider.NameRunware}
	svc := newTestService(&fakeEditor{name: provider.NameGemini}, secondary, &fakeUploader{}, false, true)

	resp, err := svc.Edit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, provider.NameRunware, resp.Provider)
}

func TestEditNoProviderConfigured(t *testing.T) {
	svc := newTestService(&fakeEditor{name: provider.NameGemini}, &fakeEditor{name: provider.NameRunware}, &fakeUploader{}, false, false)

	_, err := svc.Edit(context.Background(), validRequest())

	assert.Equal(t, apierror.KindProviderUnavailable, apierror.KindOf(err))
}

func TestEditDegradedUpload(t *testing.T) {
	svc := newTestService(&fakeEditor{name: provider.NameGemini}, &fakeEditor{name: provider.NameRunware}, &fakeUploader{fail: true}, true, true)

	resp, err := svc.Edit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.UploadFailed)
	assert.True(t, strings.HasPrefix(resp.ImageURL, "data:image/png;base64,"))
}
