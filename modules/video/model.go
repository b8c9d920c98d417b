package video

import "bildoro-server/modules/common/model"

// GenerateRequest - 이미지 기반 비디오 생성 (모델 최대 3개)
type GenerateRequest struct {
	Prompt   string   `json:"prompt"`
	Models   []string `json:"models"`
	ImageURL string   `json:"imageUrl"`
}

// GenerateResponse - 비디오 생성 응답
type GenerateResponse struct {
	Success    bool                    `json:"success"`
	Record     *model.VideoGeneration  `json:"record"`
	Results    []model.ModelResultItem `json:"results"`
	Charged    int                     `json:"charged"`
	NewBalance int                     `json:"newBalance"`
}
