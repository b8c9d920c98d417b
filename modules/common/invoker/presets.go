package invoker

import (
	"fmt"
	"strings"
)

// Preset - 변환 의도. primary/fallback 모델 쌍과 프롬프트 템플릿.
type Preset struct {
	Name     string
	Primary  ModelRef
	Fallback ModelRef
	// Template wraps the user prompt; %s is the user text.
	Template string
	// FallbackTemplate is used when re-building the prompt for the
	// fallback model. Empty means reuse Template.
	FallbackTemplate string
}

// BuildPrompt - primary 모델용 프롬프트 생성
func (p *Preset) BuildPrompt(userPrompt string) string {
	return buildFromTemplate(p.Template, userPrompt)
}

// BuildFallbackPrompt - fallback 모델용 프롬프트 재생성
func (p *Preset) BuildFallbackPrompt(userPrompt string) string {
	template := p.FallbackTemplate
	if template == "" {
		template = p.Template
	}
	return buildFromTemplate(template, userPrompt)
}

func buildFromTemplate(template, userPrompt string) string {
	userPrompt = strings.TrimSpace(userPrompt)
	if template == "" {
		return userPrompt
	}
	return fmt.Sprintf(template, userPrompt)
}

// presets - 이름별 변환 의도 레지스트리
var presets = map[string]*Preset{
	"professional": {
		Name:     "professional",
		Primary:  ModelRef{Provider: ProviderReplicate, ID: "google/nano-banana"},
		Fallback: ModelRef{Provider: ProviderOpenAI, ID: "gpt-image-1"},
		Template: "Transform this photo into a professional studio portrait. " +
			"Clean neutral background, soft even lighting, sharp focus on the subject. %s",
		FallbackTemplate: "Professional studio portrait of the subject in the photo, " +
			"neutral background, soft lighting. %s",
	},
	"background": {
		Name:     "background",
		Primary:  ModelRef{Provider: ProviderReplicate, ID: "black-forest-labs/flux-kontext-pro"},
		Fallback: ModelRef{Provider: ProviderOpenAI, ID: "gpt-image-1"},
		Template: "Replace the background of this image. Keep the subject unchanged. " +
			"New background: %s",
	},
	"combine": {
		Name:     "combine",
		Primary:  ModelRef{Provider: ProviderReplicate, ID: "google/nano-banana"},
		Fallback: ModelRef{Provider: ProviderGemini, ID: "gemini-2.5-flash-image"},
		Template: "Combine the provided images into a single unified composition. " +
			"No split layouts, no grid layouts. %s",
	},
	"restyle": {
		Name:     "restyle",
		Primary:  ModelRef{Provider: ProviderReplicate, ID: "bytedance/seedream-3"},
		Fallback: ModelRef{Provider: ProviderOpenAI, ID: "gpt-image-1"},
		Template: "Restyle this image: %s. Preserve the subject's identity and pose.",
	},
}

// GetPreset - 이름으로 preset 조회
func GetPreset(name string) (*Preset, error) {
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	return p, nil
}

// PresetNames - 등록된 preset 목록
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// PlaygroundModels - 플레이그라운드 비교용 선택 가능 모델 메뉴 (최대 5개 선택)
var PlaygroundModels = map[string]ModelRef{
	"flux-schnell":           {Provider: ProviderReplicate, ID: "black-forest-labs/flux-schnell"},
	"seedream-3":             {Provider: ProviderReplicate, ID: "bytedance/seedream-3"},
	"nano-banana":            {Provider: ProviderReplicate, ID: "google/nano-banana"},
	"gpt-image-1":            {Provider: ProviderOpenAI, ID: "gpt-image-1"},
	"gemini-2.5-flash-image": {Provider: ProviderGemini, ID: "gemini-2.5-flash-image"},
}

// VideoModels - 비디오 생성 모델 메뉴 (최대 3개 선택)
var VideoModels = map[string]ModelRef{
	"kling-v2": {Provider: ProviderReplicate, ID: "kwaivgi/kling-v2.0"},
	"wan-2.2":  {Provider: ProviderReplicate, ID: "wan-video/wan-2.2-i2v-a14b"},
	"hailuo-2": {Provider: ProviderReplicate, ID: "minimax/hailuo-02"},
}

// ResolveMenuModels maps requested model keys against a menu, enforcing the
// selection cap. Unknown keys are a validation failure, not a silent skip.
func ResolveMenuModels(menu map[string]ModelRef, keys []string, max int) ([]string, []ModelRef, error) {
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("no models selected")
	}
	if len(keys) > max {
		return nil, nil, fmt.Errorf("too many models selected: %d (max %d)", len(keys), max)
	}

	ids := make([]string, 0, len(keys))
	refs := make([]ModelRef, 0, len(keys))
	for _, key := range keys {
		ref, ok := menu[key]
		if !ok {
			return nil, nil, fmt.Errorf("unknown model: %s", key)
		}
		ids = append(ids, key)
		refs = append(refs, ref)
	}
	return ids, refs, nil
}
