package prostudio

import "bildoro-server/modules/common/model"

// ReviseRequest - 배치 내 단일 이미지 재생성
type ReviseRequest struct {
	BatchID string `json:"batchId"`
	Index   int    `json:"index"`
	Prompt  string `json:"prompt"`
}

// GenerateResponse - 프로 스튜디오 배치 응답
type GenerateResponse struct {
	Success    bool                    `json:"success"`
	Batch      *model.ProStudioBatch   `json:"batch"`
	Results    []model.ModelResultItem `json:"results"`
	Charged    int                     `json:"charged"`
	NewBalance int                     `json:"newBalance"`
}
