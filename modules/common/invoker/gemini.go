package invoker

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"bildoro-server/modules/common/config"
)

// geminiAdapter runs image models through the Gemini API. Rate limits are
// common on the image models, so every call rotates through the configured
// API keys with per-key retries before giving up.
type geminiAdapter struct {
	httpClient *http.Client
}

func newGeminiAdapter() *geminiAdapter {
	return &geminiAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *geminiAdapter) Generate(ctx context.Context, modelID string, in Input) (ModelResult, error) {
	cfg := config.GetConfig()
	if len(cfg.GeminiAPIKeys) == 0 {
		return ModelResult{}, fmt.Errorf("GEMINI_API_KEY not configured")
	}

	parts := []*genai.Part{genai.NewPartFromText(in.Prompt)}
	for _, url := range in.ImageURLs {
		data, mimeType, err := a.fetchImage(ctx, url)
		if err != nil {
			return ModelResult{}, fmt.Errorf("failed to fetch reference image: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}

	contents := []*genai.Content{{Parts: parts}}
	genConfig := &genai.GenerateContentConfig{}
	if in.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{AspectRatio: in.AspectRatio}
	}

	result, err := generateContentWithRetry(ctx, cfg.GeminiAPIKeys, modelID, contents, genConfig)
	if err != nil {
		return ModelResult{}, err
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return ModelResult{Bytes: part.InlineData.Data, MimeType: mimeType}, nil
			}
		}
	}

	return ModelResult{}, fmt.Errorf("no image in gemini response")
}

func (a *geminiAdapter) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.Contains(mimeType, "octet-stream") {
		mimeType = "image/png"
	}
	return data, mimeType, nil
}

// generateContentWithRetry - 429 에러 시 여러 API 키로 재시도
// 각 키당 최대 3번 재시도
func generateContentWithRetry(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	genConfig *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	const maxRetriesPerKey = 3
	var lastErr error

	for keyIndex, apiKey := range apiKeys {
		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				log.Printf("⚠️ [Gemini] Failed to create client with key #%d: %v", keyIndex+1, err)
				lastErr = err
				break
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if !isRateLimitError(err) {
				return nil, err
			}

			log.Printf("⚠️ [Gemini] Key #%d hit rate limit (attempt %d/%d)", keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				time.Sleep(time.Second * 2)
			}
		}
	}

	return nil, fmt.Errorf("all %d API keys exhausted, last error: %w", len(apiKeys), lastErr)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}
