package invoker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/replicate/replicate-go"

	"bildoro-server/modules/common/config"
)

// replicateAdapter runs models through the Replicate API. Prediction output
// is untyped JSON, so the adapter normalizes it to a URL right here at the
// boundary — business logic never branches on shape.
type replicateAdapter struct {
	once   sync.Once
	client *replicate.Client
	err    error
}

func newReplicateAdapter() *replicateAdapter {
	return &replicateAdapter{}
}

func (a *replicateAdapter) getClient() (*replicate.Client, error) {
	a.once.Do(func() {
		cfg := config.GetConfig()
		a.client, a.err = replicate.NewClient(replicate.WithToken(cfg.ReplicateAPIToken))
		if a.err == nil {
			log.Println("✅ [Replicate] Client initialized")
		}
	})
	return a.client, a.err
}

func (a *replicateAdapter) Generate(ctx context.Context, modelID string, in Input) (ModelResult, error) {
	client, err := a.getClient()
	if err != nil {
		return ModelResult{}, fmt.Errorf("failed to create replicate client: %w", err)
	}

	input := replicate.PredictionInput{
		"prompt": in.Prompt,
	}
	if in.AspectRatio != "" {
		input["aspect_ratio"] = in.AspectRatio
	}

	// Some models take a single image, some an array, some none.
	switch len(in.ImageURLs) {
	case 0:
		// text-to-image
	case 1:
		input["image"] = in.ImageURLs[0]
	default:
		input["image_input"] = in.ImageURLs
	}

	output, err := client.Run(ctx, modelID, input, nil)
	if err != nil {
		return ModelResult{}, err
	}

	url, err := NormalizeOutput(output)
	if err != nil {
		return ModelResult{}, fmt.Errorf("model %s: %w", modelID, err)
	}

	return ModelResult{URL: url}, nil
}

// NormalizeOutput reduces the three response shapes Replicate models produce
// to a single URL: a bare string, an array (first element), or an object
// exposing a url/output field. Any other shape is a hard failure.
func NormalizeOutput(output interface{}) (string, error) {
	switch v := output.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("empty output string")
		}
		return v, nil

	case []interface{}:
		if len(v) == 0 {
			return "", fmt.Errorf("empty output array")
		}
		return NormalizeOutput(v[0])

	case map[string]interface{}:
		for _, key := range []string{"url", "output", "image", "video"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s, nil
			}
		}
		return "", fmt.Errorf("no url field in output object")

	default:
		return "", fmt.Errorf("unexpected output shape: %T", output)
	}
}
