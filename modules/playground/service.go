package playground

import (
	"context"
	"fmt"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/database"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/model"
	"bildoro-server/modules/common/orchestrator"
)

// maxModels - 한 번에 비교 가능한 모델 수
const maxModels = 5

type Service struct {
	orch *orchestrator.Orchestrator
	db   *database.Client
}

func NewService(orch *orchestrator.Orchestrator, db *database.Client) *Service {
	return &Service{orch: orch, db: db}
}

// Generate - 선택한 모델들로 동일 프롬프트 팬아웃 실행 (성공한 모델만 과금)
func (s *Service) Generate(ctx context.Context, user *auth.AuthUser, req GenerateRequest) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", apierr.ErrValidation)
	}
	keys, refs, err := invoker.ResolveMenuModels(invoker.PlaygroundModels, req.Models, maxModels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	var inputURLs []string
	if req.ImageURL != "" {
		inputURLs = []string{req.ImageURL}
	}

	return s.runBatch(ctx, user, req.Prompt, req.AspectRatio, inputURLs, keys, refs, 0, cfg.CostPlaygroundImage)
}

// Revise - 이전 레코드의 성공 결과를 입력으로 재실행. 새 레코드가 생성되고
// revision_count가 이어진다.
func (s *Service) Revise(ctx context.Context, user *auth.AuthUser, req ReviseRequest) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	if req.RecordID == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: recordId and prompt are required", apierr.ErrValidation)
	}

	record, err := s.db.FetchPlaygroundPhoto(ctx, req.RecordID, user.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apierr.ErrNotFound
	}

	// 재실행 대상: 요청에 명시된 모델 또는 이전에 성공한 모델 전부
	modelKeys := req.Models
	if len(modelKeys) == 0 {
		for _, item := range record.Results {
			if item.Error == "" {
				modelKeys = append(modelKeys, item.ModelID)
			}
		}
	}
	keys, refs, err := invoker.ResolveMenuModels(invoker.PlaygroundModels, modelKeys, maxModels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	// 이전 성공 결과 이미지를 입력으로 전달 (최대 3장)
	var inputURLs []string
	for _, item := range record.Results {
		if item.ImageURL != "" && len(inputURLs) < 3 {
			inputURLs = append(inputURLs, item.ImageURL)
		}
	}

	return s.runBatch(ctx, user, req.Prompt, "", inputURLs, keys, refs, record.RevisionCount+1, cfg.CostPlaygroundImage)
}

func (s *Service) runBatch(ctx context.Context, user *auth.AuthUser, prompt, aspectRatio string, inputURLs, keys []string, refs []invoker.ModelRef, revisionCount, costPerModel int) (*GenerateResponse, error) {
	var record *model.PlaygroundPhoto
	result, err := s.orch.RunBatch(ctx, orchestrator.BatchRequest{
		UserID:       user.ID,
		Feature:      "playground",
		CostPerModel: costPerModel,
		Keys:         keys,
		Refs:         refs,
		Input: invoker.Input{
			Prompt:      prompt,
			ImageURLs:   inputURLs,
			AspectRatio: aspectRatio,
		},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			inserted, err := s.db.InsertPlaygroundPhoto(ctx, &model.PlaygroundPhoto{
				UserID:        user.ID,
				Prompt:        prompt,
				InputURLs:     inputURLs,
				Results:       items,
				TokensCost:    charged,
				RevisionCount: revisionCount,
			})
			if err != nil {
				return err
			}
			record = inserted
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Success:    true,
		Record:     record,
		Results:    result.Items,
		Charged:    result.Charged,
		NewBalance: result.NewBalance,
	}, nil
}
