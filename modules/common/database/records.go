package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"bildoro-server/modules/common/model"
)

// 생성 기록 테이블 이름
const (
	TablePhotos           = "bildoro_photos"
	TablePlaygroundPhotos = "bildoro_playground_photos"
	TableProStudioBatches = "bildoro_prostudio_batches"
	TableTransformations  = "bildoro_image_transformations"
	TableVideoGenerations = "bildoro_video_generations"
)

// InsertPhoto - 생성 완료 후 Photo 레코드 저장
func (c *Client) InsertPhoto(ctx context.Context, photo *model.Photo) (*model.Photo, error) {
	insertData := map[string]interface{}{
		"user_id":        photo.UserID,
		"preset":         photo.Preset,
		"prompt":         photo.Prompt,
		"input_urls":     photo.InputURLs,
		"output_url":     photo.OutputURL,
		"model_id":       photo.ModelID,
		"tokens_cost":    photo.TokensCost,
		"revision_count": photo.RevisionCount,
	}

	data, _, err := c.supabase.From(TablePhotos).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert photo: %w", err)
	}

	var photos []model.Photo
	if err := json.Unmarshal(data, &photos); err != nil {
		return nil, fmt.Errorf("failed to parse inserted photo: %w", err)
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("no photo row returned")
	}

	log.Printf("💾 Photo record saved: %s (cost: %d)", photos[0].ID, photos[0].TokensCost)
	return &photos[0], nil
}

// FetchPhoto - 소유자 검증 포함 Photo 조회. 없거나 남의 것이면 nil 반환.
func (c *Client) FetchPhoto(ctx context.Context, photoID, userID string) (*model.Photo, error) {
	var photos []model.Photo

	data, _, err := c.supabase.From(TablePhotos).
		Select("*", "exact", false).
		Eq("id", photoID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query photo: %w", err)
	}

	if err := json.Unmarshal(data, &photos); err != nil {
		return nil, fmt.Errorf("failed to parse photo: %w", err)
	}
	if len(photos) == 0 {
		return nil, nil
	}
	return &photos[0], nil
}

// UpdatePhotoRevision - 단일 이미지 revise: output 덮어쓰기 + revision_count 증가
func (c *Client) UpdatePhotoRevision(ctx context.Context, photoID, outputURL, prompt string, revisionCount int) error {
	updateData := map[string]interface{}{
		"output_url":     outputURL,
		"prompt":         prompt,
		"revision_count": revisionCount,
	}

	_, _, err := c.supabase.From(TablePhotos).
		Update(updateData, "", "").
		Eq("id", photoID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update photo revision: %w", err)
	}

	log.Printf("📝 Photo %s revised (revision_count=%d)", photoID, revisionCount)
	return nil
}

// ListPhotos - 사용자 갤러리 조회 (최신순, limit/offset)
func (c *Client) ListPhotos(ctx context.Context, userID string, limit, offset int) ([]model.Photo, error) {
	var photos []model.Photo

	data, _, err := c.supabase.From(TablePhotos).
		Select("*", "exact", false).
		Eq("user_id", userID).
		Order("created_at", &postgrestOrderDesc).
		Range(offset, offset+limit-1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	if err := json.Unmarshal(data, &photos); err != nil {
		return nil, fmt.Errorf("failed to parse photos: %w", err)
	}
	return photos, nil
}

// InsertPlaygroundPhoto - 멀티 모델 배치 결과 저장
func (c *Client) InsertPlaygroundPhoto(ctx context.Context, record *model.PlaygroundPhoto) (*model.PlaygroundPhoto, error) {
	insertData := map[string]interface{}{
		"user_id":        record.UserID,
		"prompt":         record.Prompt,
		"input_urls":     record.InputURLs,
		"results":        record.Results,
		"tokens_cost":    record.TokensCost,
		"revision_count": record.RevisionCount,
	}

	data, _, err := c.supabase.From(TablePlaygroundPhotos).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert playground photo: %w", err)
	}

	var records []model.PlaygroundPhoto
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse inserted playground photo: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no playground photo row returned")
	}

	log.Printf("💾 Playground record saved: %s (%d results, cost: %d)",
		records[0].ID, len(records[0].Results), records[0].TokensCost)
	return &records[0], nil
}

// FetchPlaygroundPhoto - 소유자 검증 포함 조회
func (c *Client) FetchPlaygroundPhoto(ctx context.Context, recordID, userID string) (*model.PlaygroundPhoto, error) {
	var records []model.PlaygroundPhoto

	data, _, err := c.supabase.From(TablePlaygroundPhotos).
		Select("*", "exact", false).
		Eq("id", recordID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query playground photo: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse playground photo: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListPlaygroundPhotos - 갤러리 조회
func (c *Client) ListPlaygroundPhotos(ctx context.Context, userID string, limit, offset int) ([]model.PlaygroundPhoto, error) {
	var records []model.PlaygroundPhoto

	data, _, err := c.supabase.From(TablePlaygroundPhotos).
		Select("*", "exact", false).
		Eq("user_id", userID).
		Order("created_at", &postgrestOrderDesc).
		Range(offset, offset+limit-1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list playground photos: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse playground photos: %w", err)
	}
	return records, nil
}

// InsertProStudioBatch - 프로 스튜디오 배치 결과 저장
func (c *Client) InsertProStudioBatch(ctx context.Context, record *model.ProStudioBatch) (*model.ProStudioBatch, error) {
	insertData := map[string]interface{}{
		"user_id":     record.UserID,
		"preset":      record.Preset,
		"prompt":      record.Prompt,
		"input_urls":  record.InputURLs,
		"results":     record.Results,
		"tokens_cost": record.TokensCost,
	}

	data, _, err := c.supabase.From(TableProStudioBatches).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert pro-studio batch: %w", err)
	}

	var records []model.ProStudioBatch
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse inserted pro-studio batch: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no pro-studio batch row returned")
	}

	log.Printf("💾 Pro-studio batch saved: %s (%d results, cost: %d)",
		records[0].ID, len(records[0].Results), records[0].TokensCost)
	return &records[0], nil
}

// FetchProStudioBatch - 소유자 검증 포함 조회
func (c *Client) FetchProStudioBatch(ctx context.Context, recordID, userID string) (*model.ProStudioBatch, error) {
	var records []model.ProStudioBatch

	data, _, err := c.supabase.From(TableProStudioBatches).
		Select("*", "exact", false).
		Eq("id", recordID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query pro-studio batch: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse pro-studio batch: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// InsertTransformation - revise 이력 저장
func (c *Client) InsertTransformation(ctx context.Context, record *model.ImageTransformation) error {
	insertData := map[string]interface{}{
		"user_id":     record.UserID,
		"photo_id":    record.PhotoID,
		"prompt":      record.Prompt,
		"source_url":  record.SourceURL,
		"output_url":  record.OutputURL,
		"tokens_cost": record.TokensCost,
	}

	_, _, err := c.supabase.From(TableTransformations).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert transformation: %w", err)
	}
	return nil
}

// InsertVideoGeneration - 비디오 배치 결과 저장
func (c *Client) InsertVideoGeneration(ctx context.Context, record *model.VideoGeneration) (*model.VideoGeneration, error) {
	insertData := map[string]interface{}{
		"user_id":     record.UserID,
		"prompt":      record.Prompt,
		"input_url":   record.InputURL,
		"results":     record.Results,
		"tokens_cost": record.TokensCost,
	}

	data, _, err := c.supabase.From(TableVideoGenerations).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert video generation: %w", err)
	}

	var records []model.VideoGeneration
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse inserted video generation: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no video generation row returned")
	}

	log.Printf("💾 Video generation saved: %s (%d results, cost: %d)",
		records[0].ID, len(records[0].Results), records[0].TokensCost)
	return &records[0], nil
}

// InsertWebhookEvent - webhook 이벤트 기록. event_id unique 제약에 걸리면
// duplicate=true 반환 (중복 전달 감지의 내구성 있는 가드).
func (c *Client) InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string) (duplicate bool, err error) {
	insertData := map[string]interface{}{
		"provider":     provider,
		"event_id":     eventID,
		"event_type":   eventType,
		"processed_at": "now()",
	}

	_, _, err = c.supabase.From("bildoro_webhook_events").
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		// Unique violation means the event was already handled.
		if isUniqueViolation(err) {
			log.Printf("🔁 Duplicate webhook event ignored: %s", eventID)
			return true, nil
		}
		return false, fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return false, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
