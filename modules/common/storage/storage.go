package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/utils"
)

// Bucket layout: uploads/user-<id>/ for request inputs,
// generated/user-<id>/ for materialized results.
const bucketName = "attachments"

type Client struct {
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// UploadInput stores a caller-provided input file and returns its public URL.
// Input uploads are fire-and-forget: nothing cleans them up if a later step
// of the same request fails.
func (c *Client) UploadInput(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error) {
	ext := extensionFor(contentType, filename)
	filePath := fmt.Sprintf("uploads/user-%s/input_%s%s", userID, uuid.New().String(), ext)

	if err := c.upload(ctx, filePath, data, contentType); err != nil {
		return "", err
	}

	return c.PublicURL(filePath), nil
}

// MaterializeImage fetches a model result, re-encodes it as WebP and
// re-uploads it to our own storage so the URL outlives the provider's.
func (c *Client) MaterializeImage(ctx context.Context, userID string, result []byte) (string, error) {
	webpData, err := utils.ConvertToWebP(result, 90.0)
	if err != nil {
		return "", fmt.Errorf("failed to convert result to WebP: %w", err)
	}

	filePath := fmt.Sprintf("generated/user-%s/generated_%s.webp", userID, uuid.New().String())
	if err := c.upload(ctx, filePath, webpData, "image/webp"); err != nil {
		return "", err
	}

	return c.PublicURL(filePath), nil
}

// MaterializeVideo re-uploads fetched video bytes unchanged.
func (c *Client) MaterializeVideo(ctx context.Context, userID string, result []byte) (string, error) {
	filePath := fmt.Sprintf("generated/user-%s/generated_%s.mp4", userID, uuid.New().String())
	if err := c.upload(ctx, filePath, result, "video/mp4"); err != nil {
		return "", err
	}
	return c.PublicURL(filePath), nil
}

// Download - 제공자 URL에서 결과 바이트 가져오기
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	log.Printf("📥 Downloading result from: %s", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read result data: %w", err)
	}

	log.Printf("✅ Result downloaded: %d bytes", len(data))
	return data, nil
}

// PublicURL builds the stable public URL for an object path.
func (c *Client) PublicURL(filePath string) string {
	cfg := config.GetConfig()
	base := strings.TrimRight(cfg.SupabaseStorageBaseURL, "/")
	return base + "/" + filePath
}

// upload - Supabase Storage API로 직접 업로드
func (c *Client) upload(ctx context.Context, filePath string, data []byte, contentType string) error {
	cfg := config.GetConfig()

	log.Printf("📤 Uploading to storage: %s (%d bytes)", filePath, len(data))

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", cfg.SupabaseURL, bucketName, filePath)
	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Uploaded: %s", filePath)
	return nil
}

// DeleteUserObjects - 계정 삭제 시 best-effort 스토리지 정리
func (c *Client) DeleteUserObjects(ctx context.Context, userID string) {
	cfg := config.GetConfig()

	for _, prefix := range []string{"uploads", "generated"} {
		deleteURL := fmt.Sprintf("%s/storage/v1/object/%s/%s/user-%s",
			cfg.SupabaseURL, bucketName, prefix, userID)

		req, err := http.NewRequestWithContext(ctx, "DELETE", deleteURL, nil)
		if err != nil {
			continue
		}
		req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Printf("⚠️  Failed to delete %s objects for %s: %v", prefix, userID, err)
			continue
		}
		resp.Body.Close()
	}
}

func extensionFor(contentType, filename string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[idx:]
	}
	return ".png"
}
