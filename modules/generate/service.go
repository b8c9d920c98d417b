package generate

import (
	"context"
	"fmt"
	"log"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/ledger"
	"bildoro-server/modules/common/model"
	"bildoro-server/modules/common/orchestrator"
)

// InputFile - 업로드된 입력 이미지
type InputFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Runner is the orchestrator slice this feature drives.
type Runner interface {
	Precheck(ctx context.Context, userID string, cost int) error
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error)
}

// Store uploads user inputs before the model runs.
type Store interface {
	UploadInput(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error)
	PublicURL(filePath string) string
}

// DB persists photo records and revision history.
type DB interface {
	InsertPhoto(ctx context.Context, photo *model.Photo) (*model.Photo, error)
	FetchPhoto(ctx context.Context, photoID, userID string) (*model.Photo, error)
	UpdatePhotoRevision(ctx context.Context, photoID, outputURL, prompt string, revisionCount int) error
	InsertTransformation(ctx context.Context, record *model.ImageTransformation) error
}

type Service struct {
	orch  Runner
	db    DB
	store Store
}

func NewService(orch Runner, db DB, store Store) *Service {
	return &Service{orch: orch, db: db, store: store}
}

// Generate - preset 기반 단일 이미지 생성 (1~3장 입력)
func (s *Service) Generate(ctx context.Context, user *auth.AuthUser, presetName, prompt, aspectRatio string, files []InputFile) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	preset, err := invoker.GetPreset(presetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}
	if len(files) < 1 || len(files) > 3 {
		return nil, fmt.Errorf("%w: between 1 and 3 images required", apierr.ErrValidation)
	}

	// 업로드 전 잔액 확인 - 토큰 부족이면 스토리지에 아무것도 남기지 않는다
	if err := s.orch.Precheck(ctx, user.ID, cfg.CostGenerate); err != nil {
		return nil, err
	}

	// 입력 업로드는 모델 호출 전 - 실패 시 과금 없이 중단
	inputURLs, err := s.uploadInputs(ctx, user.ID, files)
	if err != nil {
		return nil, err
	}

	var photo *model.Photo
	result, err := s.orch.Run(ctx, orchestrator.RunRequest{
		UserID:  user.ID,
		Feature: "generate",
		Cost:    cfg.CostGenerate,
		Preset:  preset,
		Input: invoker.Input{
			Prompt:      prompt,
			ImageURLs:   inputURLs,
			AspectRatio: aspectRatio,
		},
		Persist: func(ctx context.Context, outputURL string, used invoker.ModelRef, newBalance int) error {
			inserted, err := s.db.InsertPhoto(ctx, &model.Photo{
				UserID:     user.ID,
				Preset:     presetName,
				Prompt:     prompt,
				InputURLs:  inputURLs,
				OutputURL:  outputURL,
				ModelID:    used.String(),
				TokensCost: cfg.CostGenerate,
			})
			if err != nil {
				return err
			}
			photo = inserted
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Success:    true,
		Photo:      photo,
		UsedModel:  result.UsedModel.String(),
		NewBalance: result.NewBalance,
	}, nil
}

// Revise - 기존 결과물을 입력으로 재생성. revision_count < 2 까지는 할인 과금.
func (s *Service) Revise(ctx context.Context, user *auth.AuthUser, req ReviseRequest) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	if req.PhotoID == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: photoId and prompt are required", apierr.ErrValidation)
	}

	photo, err := s.db.FetchPhoto(ctx, req.PhotoID, user.ID)
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, apierr.ErrNotFound
	}

	preset, err := invoker.GetPreset(photo.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	cost := ledger.ReviseCost(cfg, photo.RevisionCount)
	log.Printf("💰 [Generate] Revise cost for photo %s: %d (revision #%d)", photo.ID, cost, photo.RevisionCount+1)

	result, err := s.orch.Run(ctx, orchestrator.RunRequest{
		UserID:  user.ID,
		Feature: "revise",
		Cost:    cost,
		Preset:  preset,
		Input: invoker.Input{
			Prompt:    req.Prompt,
			ImageURLs: []string{photo.OutputURL},
		},
		Persist: func(ctx context.Context, outputURL string, used invoker.ModelRef, newBalance int) error {
			if err := s.db.UpdatePhotoRevision(ctx, photo.ID, outputURL, req.Prompt, photo.RevisionCount+1); err != nil {
				return err
			}
			// 변환 이력은 별도 테이블에 append
			return s.db.InsertTransformation(ctx, &model.ImageTransformation{
				UserID:     user.ID,
				PhotoID:    photo.ID,
				Prompt:     req.Prompt,
				SourceURL:  photo.OutputURL,
				OutputURL:  outputURL,
				TokensCost: cost,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	photo.OutputURL = result.OutputURL
	photo.RevisionCount++
	photo.ModelID = result.UsedModel.String()

	return &GenerateResponse{
		Success:    true,
		Photo:      photo,
		UsedModel:  result.UsedModel.String(),
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
