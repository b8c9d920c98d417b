package invoker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"bildoro-server/modules/common/config"
)

const openAIImageEndpoint = "https://api.openai.com/v1/images"

// openaiAdapter calls the OpenAI Images API directly. gpt-image-1 always
// returns base64 payloads, so results carry Bytes instead of a URL.
type openaiAdapter struct {
	httpClient *http.Client
}

func newOpenAIAdapter() *openaiAdapter {
	return &openaiAdapter{
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

type openaiImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *openaiAdapter) Generate(ctx context.Context, modelID string, in Input) (ModelResult, error) {
	cfg := config.GetConfig()
	if cfg.OpenAIAPIKey == "" {
		return ModelResult{}, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	var (
		resp *http.Response
		err  error
	)
	if len(in.ImageURLs) > 0 {
		resp, err = a.postEdit(ctx, cfg.OpenAIAPIKey, modelID, in)
	} else {
		resp, err = a.postGeneration(ctx, cfg.OpenAIAPIKey, modelID, in)
	}
	if err != nil {
		return ModelResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ModelResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed openaiImageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ModelResult{}, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return ModelResult{}, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return ModelResult{}, fmt.Errorf("openai returned no image data")
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return ModelResult{}, fmt.Errorf("failed to decode image: %w", err)
	}

	log.Printf("✅ [OpenAI] Image generated - model: %s, size: %d bytes", modelID, len(raw))
	return ModelResult{Bytes: raw, MimeType: "image/png"}, nil
}

// postGeneration - text-to-image via /images/generations
func (a *openaiAdapter) postGeneration(ctx context.Context, apiKey, modelID string, in Input) (*http.Response, error) {
	payload := map[string]interface{}{
		"model":  modelID,
		"prompt": in.Prompt,
		"n":      1,
	}
	if size := openaiSize(in.AspectRatio); size != "" {
		payload["size"] = size
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openAIImageEndpoint+"/generations", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	return a.httpClient.Do(req)
}

// postEdit - image-to-image via /images/edits. Reference images come in as
// URLs, so they are downloaded and forwarded as multipart parts.
func (a *openaiAdapter) postEdit(ctx context.Context, apiKey, modelID string, in Input) (*http.Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("model", modelID); err != nil {
		return nil, err
	}
	if err := writer.WriteField("prompt", in.Prompt); err != nil {
		return nil, err
	}
	if size := openaiSize(in.AspectRatio); size != "" {
		if err := writer.WriteField("size", size); err != nil {
			return nil, err
		}
	}

	for i, url := range in.ImageURLs {
		data, err := a.fetchImage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference image: %w", err)
		}
		part, err := writer.CreateFormFile("image[]", fmt.Sprintf("reference_%d.png", i))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openAIImageEndpoint+"/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	return a.httpClient.Do(req)
}

func (a *openaiAdapter) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// openaiSize maps aspect ratios onto gpt-image-1's fixed size set.
func openaiSize(aspectRatio string) string {
	switch aspectRatio {
	case "1:1":
		return "1024x1024"
	case "2:3", "3:4", "9:16":
		return "1024x1536"
	case "3:2", "4:3", "16:9":
		return "1536x1024"
	default:
		return ""
	}
}
