package generate

import "bildoro-server/modules/common/model"

// ReviseRequest - 기존 결과물 재생성 요청
type ReviseRequest struct {
	PhotoID string `json:"photoId"`
	Prompt  string `json:"prompt"`
}

// GenerateResponse - 생성 성공 응답
type GenerateResponse struct {
	Success    bool         `json:"success"`
	Photo      *model.Photo `json:"photo"`
	UsedModel  string       `json:"usedModel"`
	NewBalance int          `json:"newBalance"`
}
