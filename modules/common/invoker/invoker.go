package invoker

import (
	"context"
	"fmt"
	"log"

	"bildoro-server/modules/common/apierr"
)

// Provider names
const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// ModelRef - 외부 모델 식별자 (provider + 모델 ID)
type ModelRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

func (m ModelRef) String() string {
	return m.Provider + "/" + m.ID
}

// Input - 모델 호출 입력. 이미지 0~3장 + 프롬프트.
type Input struct {
	Prompt      string
	ImageURLs   []string
	AspectRatio string
}

// ModelResult is the uniform internal result every provider adapter returns.
// Exactly one of URL or Bytes is set; handlers never see provider shapes.
type ModelResult struct {
	URL      string
	Bytes    []byte
	MimeType string
}

// adapter - provider별 경계 어댑터
type adapter interface {
	Generate(ctx context.Context, modelID string, in Input) (ModelResult, error)
}

type Invoker struct {
	adapters map[string]adapter
}

// New wires one adapter per provider.
func New() *Invoker {
	return &Invoker{
		adapters: map[string]adapter{
			ProviderReplicate: newReplicateAdapter(),
			ProviderOpenAI:    newOpenAIAdapter(),
			ProviderGemini:    newGeminiAdapter(),
		},
	}
}

// Invoke calls a single model and returns the normalized result.
func (iv *Invoker) Invoke(ctx context.Context, ref ModelRef, in Input) (ModelResult, error) {
	a, ok := iv.adapters[ref.Provider]
	if !ok {
		return ModelResult{}, fmt.Errorf("unknown provider: %s", ref.Provider)
	}

	log.Printf("🎨 Invoking model %s (images: %d, prompt: %d chars)",
		ref, len(in.ImageURLs), len(in.Prompt))

	result, err := a.Generate(ctx, ref.ID, in)
	if err != nil {
		return ModelResult{}, fmt.Errorf("%w: %s: %s", apierr.ErrModelFailure, ref,
			apierr.TruncateProvider(err.Error(), 300))
	}

	log.Printf("✅ Model %s returned result (url=%v, bytes=%d)", ref, result.URL != "", len(result.Bytes))
	return result, nil
}

// InvokeWithFallback tries the preset's primary model, and on failure retries
// exactly once against the fallback with a re-built prompt. The fallback's
// error is the one surfaced. No backoff, no further retries.
func (iv *Invoker) InvokeWithFallback(ctx context.Context, preset *Preset, in Input) (ModelResult, ModelRef, error) {
	primaryIn := in
	primaryIn.Prompt = preset.BuildPrompt(in.Prompt)

	result, err := iv.Invoke(ctx, preset.Primary, primaryIn)
	if err == nil {
		return result, preset.Primary, nil
	}

	log.Printf("⚠️  Primary model %s failed, trying fallback %s: %v",
		preset.Primary, preset.Fallback, err)

	fallbackIn := in
	fallbackIn.Prompt = preset.BuildFallbackPrompt(in.Prompt)

	result, err = iv.Invoke(ctx, preset.Fallback, fallbackIn)
	if err != nil {
		log.Printf("❌ Fallback model %s also failed: %v", preset.Fallback, err)
		return ModelResult{}, ModelRef{}, err
	}

	return result, preset.Fallback, nil
}
