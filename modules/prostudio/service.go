package prostudio

import (
	"context"
	"fmt"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/model"
	"bildoro-server/modules/common/orchestrator"
)

// maxQuantity - 배치당 생성 가능한 이미지 수
const maxQuantity = 4

// InputFile - 업로드된 입력 이미지
type InputFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Runner is the orchestrator slice this feature drives.
type Runner interface {
	Precheck(ctx context.Context, userID string, cost int) error
	RunBatch(ctx context.Context, req orchestrator.BatchRequest) (*orchestrator.BatchResult, error)
}

// Store uploads user inputs before the models run.
type Store interface {
	UploadInput(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error)
	PublicURL(filePath string) string
}

// DB persists batch records.
type DB interface {
	InsertProStudioBatch(ctx context.Context, record *model.ProStudioBatch) (*model.ProStudioBatch, error)
	FetchProStudioBatch(ctx context.Context, recordID, userID string) (*model.ProStudioBatch, error)
}

type Service struct {
	orch  Runner
	db    DB
	store Store
}

func NewService(orch Runner, db DB, store Store) *Service {
	return &Service{orch: orch, db: db, store: store}
}

// Generate - 동일 preset으로 여러 장 동시 생성. 이미지당 과금이며 성공분만 정산.
func (s *Service) Generate(ctx context.Context, user *auth.AuthUser, presetName, prompt, aspectRatio string, quantity int, files []InputFile) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	preset, err := invoker.GetPreset(presetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}
	if quantity < 1 || quantity > maxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", apierr.ErrValidation, maxQuantity)
	}
	if len(files) < 1 || len(files) > 3 {
		return nil, fmt.Errorf("%w: between 1 and 3 images required", apierr.ErrValidation)
	}

	// 업로드 전 잔액 확인 - 토큰 부족이면 스토리지에 아무것도 남기지 않는다
	if err := s.orch.Precheck(ctx, user.ID, quantity*cfg.CostProStudioImage); err != nil {
		return nil, err
	}

	inputURLs, err := s.uploadInputs(ctx, user.ID, files)
	if err != nil {
		return nil, err
	}

	// 같은 primary 모델을 quantity번 팬아웃 (variation 생성)
	keys := make([]string, quantity)
	refs := make([]invoker.ModelRef, quantity)
	for i := 0; i < quantity; i++ {
		keys[i] = fmt.Sprintf("image-%d", i+1)
		refs[i] = preset.Primary
	}

	var batch *model.ProStudioBatch
	result, err := s.orch.RunBatch(ctx, orchestrator.BatchRequest{
		UserID:       user.ID,
		Feature:      "pro-studio",
		CostPerModel: cfg.CostProStudioImage,
		Keys:         keys,
		Refs:         refs,
		Input: invoker.Input{
			Prompt:      preset.BuildPrompt(prompt),
			ImageURLs:   inputURLs,
			AspectRatio: aspectRatio,
		},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			inserted, err := s.db.InsertProStudioBatch(ctx, &model.ProStudioBatch{
				UserID:     user.ID,
				Preset:     presetName,
				Prompt:     prompt,
				InputURLs:  inputURLs,
				Results:    items,
				TokensCost: charged,
			})
			if err != nil {
				return err
			}
			batch = inserted
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Success:    true,
		Batch:      batch,
		Results:    result.Items,
		Charged:    result.Charged,
		NewBalance: result.NewBalance,
	}, nil
}

// Revise - 배치의 한 이미지를 입력으로 단건 재생성. 새 배치 레코드가 생성된다.
func (s *Service) Revise(ctx context.Context, user *auth.AuthUser, req ReviseRequest) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	if req.BatchID == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: batchId and prompt are required", apierr.ErrValidation)
	}

	source, err := s.db.FetchProStudioBatch(ctx, req.BatchID, user.ID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, apierr.ErrNotFound
	}
	if req.Index < 0 || req.Index >= len(source.Results) {
		return nil, fmt.Errorf("%w: index out of range", apierr.ErrValidation)
	}
	sourceItem := source.Results[req.Index]
	if sourceItem.ImageURL == "" {
		return nil, fmt.Errorf("%w: selected image has no result to revise", apierr.ErrValidation)
	}

	preset, err := invoker.GetPreset(source.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	var batch *model.ProStudioBatch
	result, err := s.orch.RunBatch(ctx, orchestrator.BatchRequest{
		UserID:       user.ID,
		Feature:      "pro-studio",
		CostPerModel: cfg.CostProStudioImage,
		Keys:         []string{"image-1"},
		Refs:         []invoker.ModelRef{preset.Primary},
		Input: invoker.Input{
			Prompt:    preset.BuildPrompt(req.Prompt),
			ImageURLs: []string{sourceItem.ImageURL},
		},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			inserted, err := s.db.InsertProStudioBatch(ctx, &model.ProStudioBatch{
				UserID:     user.ID,
				Preset:     source.Preset,
				Prompt:     req.Prompt,
				InputURLs:  []string{sourceItem.ImageURL},
				Results:    items,
				TokensCost: charged,
			})
			if err != nil {
				return err
			}
			batch = inserted
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Success:    true,
		Batch:      batch,
		Results:    result.Items,
		Charged:    result.Charged,
		NewBalance: result.NewBalance,
	}, nil
}

func (s *Service) uploadInputs(ctx context.Context, userID string, files []InputFile) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		path, err := s.store.UploadInput(ctx, userID, f.Filename, f.Data, f.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload input image: %w", err)
		}
		urls = append(urls, s.store.PublicURL(path))
	}
	return urls, nil
}
