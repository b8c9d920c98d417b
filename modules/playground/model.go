package playground

import "bildoro-server/modules/common/model"

// GenerateRequest - 여러 모델 동시 비교 생성
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	Models      []string `json:"models"`
	AspectRatio string   `json:"aspectRatio"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

// ReviseRequest - 이전 결과를 입력으로 프롬프트 수정 후 재실행
type ReviseRequest struct {
	RecordID string   `json:"recordId"`
	Prompt   string   `json:"prompt"`
	Models   []string `json:"models,omitempty"`
}

// GenerateResponse - 배치 실행 응답 (모델별 결과 포함)
type GenerateResponse struct {
	Success    bool                    `json:"success"`
	Record     *model.PlaygroundPhoto  `json:"record"`
	Results    []model.ModelResultItem `json:"results"`
	Charged    int                     `json:"charged"`
	NewBalance int                     `json:"newBalance"`
}
