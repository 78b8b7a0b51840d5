package story

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storybook-scene-server/modules/character"
	"storybook-scene-server/modules/common/apierror"
	"storybook-scene-server/modules/common/utils"
	"storybook-scene-server/modules/prompt"
	"storybook-scene-server/modules/provider"
	"storybook-scene-server/modules/refine"
)

// ReferenceBackend - identity-preserving 생성과 text-only 생성을 모두 지원하는 백엔드 (Gemini)
type ReferenceBackend interface {
	provider.ReferenceImageGenerator
	provider.TextOnlyGenerator
}

// Uploader - 생성 결과 업로드 (Supabase Storage)
type Uploader interface {
	UploadSceneImage(ctx context.Context, storyID, sceneID string, imageData []byte) (string, error)
}

// Store - 생성 레코드 영속화 (best-effort, 실패해도 생성 흐름은 계속)
type Store interface {
	SaveImages(ctx context.Context, storyID string, images []GeneratedImage) error
	UpdateImage(ctx context.Context, storyID string, image GeneratedImage) error
}

// Deps - Service 의존성 주입
type Deps struct {
	Gemini          ReferenceBackend
	Runware         provider.TextOnlyGenerator
	GeminiOK        bool
	RunwareOK       bool
	Uploader        Uploader
	Store           Store // nil이면 메모리 전용
	Refiner         *refine.Refiner
	AssetBaseURL    string // 상대 경로 참조 이미지를 절대 URL로 변환할 베이스
	DefaultArtStyle string
	Timeout         time.Duration // 장면당 백엔드 호출 타임아웃
	Concurrency     int           // 동시 생성 장면 수
	OnUpdate        func(storyID string, img GeneratedImage)
}

// storyState - 스토리별 생성 상태 (재생성을 위해 입력을 보관)
type storyState struct {
	tracker    *Tracker
	scenes     map[string]Scene // scene ID 기준
	characters []character.Character
	opts       GenerateOptions
}

// Service - 장면 이미지 생성 오케스트레이터
type Service struct {
	deps Deps

	mu      sync.RWMutex
	stories map[string]*storyState
}

// NewService - Service 생성
func NewService(deps Deps) *Service {
	if deps.Concurrency <= 0 {
		deps.Concurrency = 3
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 180 * time.Second
	}
	return &Service{
		deps:    deps,
		stories: make(map[string]*storyState),
	}
}

// GenerateAll - 전체 장면 일괄 생성
// 한 장면의 실패가 다른 장면을 중단시키지 않는다.
// 반환: 전체 레코드 스냅샷 + 장면별 에러 메시지 목록("Scene N: ...")
func (s *Service) GenerateAll(ctx context.Context, storyID string, scenes []Scene, characters []character.Character, opts GenerateOptions) ([]GeneratedImage, []string, error) {
	if len(scenes) == 0 {
		return nil, nil, apierror.New(apierror.KindValidation, "no scenes to generate")
	}
	for i := range scenes {
		if strings.TrimSpace(scenes[i].Description) == "" {
			return nil, nil, apierror.Newf(apierror.KindValidation, "scene %d has no description", i+1)
		}
		if scenes[i].ID == "" {
			scenes[i].ID = uuid.New().String()
		}
		if scenes[i].SceneNumber == 0 {
			scenes[i].SceneNumber = i + 1
		}
	}
	if err := character.Validate(characters); err != nil {
		return nil, nil, apierror.Wrap(apierror.KindValidation, "invalid characters", err)
	}

	if opts.ArtStyle == "" {
		opts.ArtStyle = s.deps.DefaultArtStyle
	}

	st := &storyState{
		tracker:    NewTracker(len(scenes)),
		scenes:     make(map[string]Scene, len(scenes)),
		characters: characters,
		opts:       opts,
	}
	for _, scene := range scenes {
		st.scenes[scene.ID] = scene
	}
	if s.deps.OnUpdate != nil {
		st.tracker.SetOnUpdate(func(img GeneratedImage) {
			s.deps.OnUpdate(storyID, img)
		})
	}

	s.mu.Lock()
	s.stories[storyID] = st
	s.mu.Unlock()

	seeded := st.tracker.Seed(scenes, characters)
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveImages(ctx, storyID, seeded); err != nil {
			log.Printf("⚠️ [Story] Failed to persist initial records: %v", err)
		}
	}

	log.Printf("🎨 [Story] Generating %d scenes for story %s (concurrency: %d)",
		len(scenes), storyID, s.deps.Concurrency)

	type sceneError struct {
		number  int
		message string
	}
	var (
		errMu       sync.Mutex
		sceneErrors []sceneError
	)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(s.deps.Concurrency)

	for _, record := range seeded {
		record := record
		scene := st.scenes[record.SceneID]

		if opts.Cancelled != nil && opts.Cancelled() {
			log.Printf("⚠️ [Story] Generation cancelled, scene %d left pending", scene.SceneNumber)
			break
		}

		g.Go(func() error {
			if err := s.generateScene(gctx, storyID, st, scene, record.ID, ""); err != nil {
				errMu.Lock()
				sceneErrors = append(sceneErrors, sceneError{scene.SceneNumber, apierror.UserMessage(err)})
				errMu.Unlock()
			}
			return nil
		})
	}

	g.Wait()

	sort.Slice(sceneErrors, func(i, j int) bool { return sceneErrors[i].number < sceneErrors[j].number })
	messages := make([]string, 0, len(sceneErrors))
	for _, se := range sceneErrors {
		messages = append(messages, fmt.Sprintf("Scene %d: %s", se.number, se.message))
	}

	progress := st.tracker.Progress()
	log.Printf("✅ [Story] Story %s done - completed: %d, failed: %d, pending: %d",
		storyID, progress.CompletedCount, progress.FailedCount, progress.PendingCount)

	return st.tracker.Snapshot(), messages, nil
}

// generateScene - 단일 장면 생성 (프롬프트 조립 → 백엔드 선택 → 호출 → 업로드 → 상태 전이)
// promptOverride가 비어 있지 않으면 조립 대신 그 텍스트를 사용한다 (재생성 경로).
func (s *Service) generateScene(ctx context.Context, storyID string, st *storyState, scene Scene, recordID, promptOverride string) error {
	if err := st.tracker.Start(recordID); err != nil {
		return err
	}

	sceneChars := charactersForScene(st.characters, scene)

	promptText := promptOverride
	if promptText == "" {
		promptText = prompt.ComposePrompt(sceneChars, scene.Description, prompt.Options{
			ArtStyle:                 st.opts.ArtStyle,
			Location:                 st.opts.Location,
			MentionGenericCharacters: st.opts.MentionGenericCharacters,
		})
	}

	primary := character.Primary(st.characters)
	availability := provider.Availability{
		GeminiConfigured:  s.deps.GeminiOK,
		RunwareConfigured: s.deps.RunwareOK,
		HasReferenceImage: primary != nil && primary.HasReferenceImage(),
	}

	chosen, err := provider.SelectGenerator(st.opts.Provider, availability)
	if err != nil {
		st.tracker.Fail(recordID, apierror.UserMessage(err))
		s.persistRecord(ctx, storyID, st, recordID)
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()

	var result *provider.Result
	switch {
	case chosen == provider.NameGemini && availability.HasReferenceImage:
		refs := s.buildCharacterRefs(sceneChars)
		result, err = s.deps.Gemini.GenerateWithReferences(callCtx, refs, promptText, st.opts.ArtStyle)
	case chosen == provider.NameGemini:
		result, err = s.deps.Gemini.GenerateFromText(callCtx, promptText, provider.SizeHint{AspectRatio: st.opts.AspectRatio})
	default:
		result, err = s.deps.Runware.GenerateFromText(callCtx, promptText, provider.SizeHint{AspectRatio: st.opts.AspectRatio})
	}

	if err != nil {
		log.Printf("❌ [Story] Scene %d failed (%s): %v", scene.SceneNumber, chosen, err)
		st.tracker.Fail(recordID, apierror.UserMessage(err))
		s.persistRecord(ctx, storyID, st, recordID)
		return err
	}
	if !result.HasImage() {
		err = apierror.New(apierror.KindEmptyResult, "backend returned no image")
		st.tracker.Fail(recordID, apierror.UserMessage(err))
		s.persistRecord(ctx, storyID, st, recordID)
		return err
	}

	sentPrompt := result.Prompt
	if sentPrompt == "" {
		sentPrompt = promptText
	}

	imageURL, uploadFailed := s.persistImage(ctx, storyID, scene.ID, result)
	st.tracker.Complete(recordID, imageURL, sentPrompt, result.GenerationTime, uploadFailed)
	s.persistRecord(ctx, storyID, st, recordID)

	log.Printf("✅ [Story] Scene %d completed in %.1fs (%s)", scene.SceneNumber, result.GenerationTime, chosen)
	return nil
}

// persistImage - inline payload를 스토리지에 업로드
// 업로드 실패 시 data URL로 degraded completion (생성 자체는 성공이므로 failed 처리하지 않음)
func (s *Service) persistImage(ctx context.Context, storyID, sceneID string, result *provider.Result) (string, bool) {
	if result.ImageBase64 == "" {
		// provider가 URL만 반환한 경우 그대로 사용
		return result.ImageURL, false
	}

	imageData, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		log.Printf("⚠️ [Story] Invalid base64 payload, falling back to data URL: %v", err)
		return utils.BuildDataURL(result.MimeType, result.ImageBase64), true
	}

	publicURL, err := s.deps.Uploader.UploadSceneImage(ctx, storyID, sceneID, imageData)
	if err != nil {
		log.Printf("⚠️ [Story] Upload failed for scene %s, serving inline payload: %v", sceneID, err)
		return utils.BuildDataURL(result.MimeType, result.ImageBase64), true
	}

	return publicURL, false
}

// persistRecord - 레코드 1건을 DB에 best-effort 반영
func (s *Service) persistRecord(ctx context.Context, storyID string, st *storyState, recordID string) {
	if s.deps.Store == nil {
		return
	}
	record, ok := st.tracker.Get(recordID)
	if !ok {
		return
	}
	if err := s.deps.Store.UpdateImage(ctx, storyID, record); err != nil {
		log.Printf("⚠️ [Story] Failed to persist record %s: %v", recordID, err)
	}
}

// buildCharacterRefs - 참조 이미지가 있는 캐릭터를 백엔드 참조 목록으로 변환
func (s *Service) buildCharacterRefs(chars []character.Character) []provider.CharacterRef {
	refs := []provider.CharacterRef{}
	for _, c := range chars {
		if !c.HasReferenceImage() {
			continue
		}
		refs = append(refs, provider.CharacterRef{
			Name:              c.Name,
			ReferenceImageURL: s.resolveAssetURL(c.ReferenceImage.URL),
			Description:       c.Description.Fragment(),
		})
	}
	return refs
}

// resolveAssetURL - 상대 경로를 절대 URL로 변환 (백엔드는 상대 경로를 해석하지 못함)
func (s *Service) resolveAssetURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") || strings.HasPrefix(rawURL, "data:") {
		return rawURL
	}
	base := strings.TrimSuffix(s.deps.AssetBaseURL, "/")
	return base + "/" + strings.TrimPrefix(rawURL, "/")
}

// charactersForScene - 장면에 등장하는 캐릭터만 필터 (지정이 없으면 전체)
func charactersForScene(chars []character.Character, scene Scene) []character.Character {
	if len(scene.CharacterNames) == 0 {
		return chars
	}

	wanted := make(map[string]bool, len(scene.CharacterNames))
	for _, name := range scene.CharacterNames {
		wanted[name] = true
	}

	out := []character.Character{}
	for _, c := range chars {
		if wanted[c.Name] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return chars
	}
	return out
}

// RegenerateScene - 피드백 기반 단일 장면 재생성 (replace-in-place)
// editedPrompt가 원본과 다르면 verbatim 사용, 아니면 userFeedback으로 프롬프트 보정.
func (s *Service) RegenerateScene(ctx context.Context, storyID, sceneID, userFeedback, editedPrompt string) (*GeneratedImage, error) {
	s.mu.RLock()
	st, ok := s.stories[storyID]
	s.mu.RUnlock()
	if !ok {
		return nil, apierror.Newf(apierror.KindValidation, "unknown story: %s", storyID)
	}

	record, ok := st.tracker.GetBySceneID(sceneID)
	if !ok {
		return nil, apierror.Newf(apierror.KindValidation, "unknown scene: %s", sceneID)
	}
	scene := st.scenes[sceneID]

	originalPrompt := record.Prompt
	if originalPrompt == "" {
		// 이전 시도가 프롬프트를 남기지 못한 경우 (조기 실패) 새로 조립
		originalPrompt = prompt.ComposePrompt(charactersForScene(st.characters, scene), scene.Description, prompt.Options{
			ArtStyle:                 st.opts.ArtStyle,
			Location:                 st.opts.Location,
			MentionGenericCharacters: st.opts.MentionGenericCharacters,
		})
	}

	refined := originalPrompt
	if s.deps.Refiner != nil {
		refined = s.deps.Refiner.Refine(ctx, originalPrompt, userFeedback, scene.Description, editedPrompt)
	}

	log.Printf("🔄 [Story] Regenerating scene %d of story %s", scene.SceneNumber, storyID)

	if err := s.generateScene(ctx, storyID, st, scene, record.ID, refined); err != nil {
		updated, _ := st.tracker.Get(record.ID)
		return &updated, err
	}

	updated, _ := st.tracker.Get(record.ID)
	return &updated, nil
}

// Images - 스토리의 전체 레코드 스냅샷
func (s *Service) Images(storyID string) ([]GeneratedImage, error) {
	s.mu.RLock()
	st, ok := s.stories[storyID]
	s.mu.RUnlock()
	if !ok {
		return nil, apierror.Newf(apierror.KindValidation, "unknown story: %s", storyID)
	}
	return st.tracker.Snapshot(), nil
}

// Progress - 스토리 진행 상황 (읽는 시점에 재계산)
func (s *Service) Progress(storyID string) (Progress, error) {
	s.mu.RLock()
	st, ok := s.stories[storyID]
	s.mu.RUnlock()
	if !ok {
		return Progress{}, apierror.Newf(apierror.KindValidation, "unknown story: %s", storyID)
	}
	return st.tracker.Progress(), nil
}
