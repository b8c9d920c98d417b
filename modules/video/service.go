package video

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

// maxModels - 동시 실행 가능한 비디오 모델 수
const maxModels = 3

type Service struct {
	orch *orchestrator.Orchestrator
	db   *database.Client
}

func NewService(orch *orchestrator.Orchestrator, db *database.Client) *Service {
	return &Service{orch: orch, db: db}
}

// Generate - 선택한 비디오 모델들로 팬아웃 실행. 비디오는 WebP 재인코딩 없이
// mp4 그대로 저장된다.
func (s *Service) Generate(ctx context.Context, user *auth.AuthUser, req GenerateRequest) (*GenerateResponse, error) {
	cfg := config.GetConfig()

	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", apierr.ErrValidation)
	}
	keys, refs, err := invoker.ResolveMenuModels(invoker.VideoModels, req.Models, maxModels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	var inputURLs []string
	if req.ImageURL != "" {
		inputURLs = []string{req.ImageURL}
	}

	var record *model.VideoGeneration
	result, err := s.orch.RunBatch(ctx, orchestrator.BatchRequest{
		UserID:       user.ID,
		Feature:      "video",
		CostPerModel: cfg.CostVideoModel,
		Keys:         keys,
		Refs:         refs,
		Input: invoker.Input{
			Prompt:    req.Prompt,
			ImageURLs: inputURLs,
		},
		Video: true,
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			inserted, err := s.db.InsertVideoGeneration(ctx, &model.VideoGeneration{
				UserID:     user.ID,
				Prompt:     req.Prompt,
				InputURL:   req.ImageURL,
				Results:    items,
				TokensCost: charged,
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
