package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/model"
)

// TokenLedger is the slice of the ledger the orchestrator needs: an upfront
// affordability check and the guarded settlement deduct.
type TokenLedger interface {
	CheckTokens(ctx context.Context, userID string, amount int) (bool, error)
	DeductTokens(ctx context.Context, userID string, amount int, reason string) (int, error)
}

// Store materializes provider results into owned storage objects.
type Store interface {
	MaterializeImage(ctx context.Context, userID string, data []byte) (string, error)
	MaterializeVideo(ctx context.Context, userID string, data []byte) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
	PublicURL(filePath string) string
}

// Caller invokes external models.
type Caller interface {
	Invoke(ctx context.Context, ref invoker.ModelRef, in invoker.Input) (invoker.ModelResult, error)
	InvokeWithFallback(ctx context.Context, preset *invoker.Preset, in invoker.Input) (invoker.ModelResult, invoker.ModelRef, error)
}

// Notifier pushes progress events to the user's live connection. Nil-safe:
// a nil Notifier drops events.
type Notifier interface {
	Notify(userID, event string, payload interface{})
}

// Orchestrator runs every generation feature through the same flow:
// check tokens, invoke, materialize, settle, persist. Features differ only
// in the request they pass in.
type Orchestrator struct {
	ledger   TokenLedger
	store    Store
	caller   Caller
	notifier Notifier
}

func New(ledger TokenLedger, store Store, caller Caller, notifier Notifier) *Orchestrator {
	return &Orchestrator{ledger: ledger, store: store, caller: caller, notifier: notifier}
}

// RunRequest - 단일 모델 실행 (preset 기반, fallback 포함)
type RunRequest struct {
	UserID  string
	Feature string
	Cost    int
	Preset  *invoker.Preset
	Input   invoker.Input
	Video   bool
	// Persist writes the feature's own record after settlement. The output
	// URL is already public; newBalance is the post-deduct balance.
	Persist func(ctx context.Context, outputURL string, used invoker.ModelRef, newBalance int) error
}

// RunResult - 단일 실행 결과
type RunResult struct {
	OutputURL  string           `json:"outputUrl"`
	UsedModel  invoker.ModelRef `json:"usedModel"`
	NewBalance int              `json:"newBalance"`
}

// Precheck rejects a request the user cannot afford before any side effects
// happen. Features call this ahead of input uploads; Run and RunBatch check
// again, and the guarded deduct stays authoritative either way.
func (o *Orchestrator) Precheck(ctx context.Context, userID string, cost int) error {
	ok, err := o.ledger.CheckTokens(ctx, userID, cost)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.ErrInsufficientTokens
	}
	return nil
}

// Run executes one preset-driven generation end to end. Tokens are only
// deducted after the output is materialized, so a model failure never
// charges the user.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := o.Precheck(ctx, req.UserID, req.Cost); err != nil {
		return nil, err
	}

	o.notify(req.UserID, "generation_started", map[string]interface{}{
		"feature": req.Feature,
	})

	result, usedRef, err := o.caller.InvokeWithFallback(ctx, req.Preset, req.Input)
	if err != nil {
		o.notify(req.UserID, "generation_failed", map[string]interface{}{
			"feature": req.Feature,
			"error":   apierr.ClassifyProvider(err.Error()),
		})
		return nil, err
	}

	outputURL, err := o.materialize(ctx, req.UserID, result, req.Video)
	if err != nil {
		return nil, err
	}

	newBalance, err := o.ledger.DeductTokens(ctx, req.UserID, req.Cost, req.Feature)
	if err != nil {
		return nil, err
	}

	if req.Persist != nil {
		if err := req.Persist(ctx, outputURL, usedRef, newBalance); err != nil {
			// 이미 과금된 상태 - 기록 실패는 500으로 알린다
			log.Printf("❌ [Orchestrator] Failed to persist %s record for user %s: %v",
				req.Feature, req.UserID, err)
			return nil, fmt.Errorf("%w: failed to record %s result", apierr.ErrPersistence, req.Feature)
		}
	}

	o.notify(req.UserID, "generation_completed", map[string]interface{}{
		"feature":   req.Feature,
		"outputUrl": outputURL,
	})

	log.Printf("✅ [Orchestrator] %s completed for user %s (model: %s, balance: %d)",
		req.Feature, req.UserID, usedRef, newBalance)

	return &RunResult{OutputURL: outputURL, UsedModel: usedRef, NewBalance: newBalance}, nil
}

// BatchRequest - 여러 모델 팬아웃 실행 (playground, video 등)
type BatchRequest struct {
	UserID       string
	Feature      string
	CostPerModel int
	Keys         []string
	Refs         []invoker.ModelRef
	Input        invoker.Input
	Video        bool
	// Persist writes the batch record. charged is successes * CostPerModel.
	Persist func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error
}

// BatchResult - 팬아웃 실행 결과
type BatchResult struct {
	Items      []model.ModelResultItem `json:"results"`
	Charged    int                     `json:"charged"`
	NewBalance int                     `json:"newBalance"`
}

// RunBatch fans a prompt out to several models concurrently and settles
// tokens for successes only. The upfront check requires the full batch cost
// so a user cannot start what they could never afford; settlement charges
// successes * CostPerModel. All-failed batches charge nothing.
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	totalCost := len(req.Refs) * req.CostPerModel

	if err := o.Precheck(ctx, req.UserID, totalCost); err != nil {
		return nil, err
	}

	o.notify(req.UserID, "batch_started", map[string]interface{}{
		"feature": req.Feature,
		"models":  req.Keys,
	})

	items := make([]model.ModelResultItem, len(req.Refs))

	// 모델 수는 핸들러 검증 단계에서 이미 제한됨 - 전부 동시에 실행
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range req.Refs {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			key := req.Keys[index]
			ref := req.Refs[index]

			item := model.ModelResultItem{ModelID: key}

			result, err := o.caller.Invoke(ctx, ref, req.Input)
			if err == nil {
				var outputURL string
				outputURL, err = o.materialize(ctx, req.UserID, result, req.Video)
				if err == nil {
					if req.Video {
						item.VideoURL = outputURL
					} else {
						item.ImageURL = outputURL
					}
				}
			}
			if err != nil {
				item.Error = apierr.ClassifyProvider(err.Error())
				log.Printf("⚠️ [Orchestrator] Model %s failed in %s batch: %v", key, req.Feature, err)
			}

			mu.Lock()
			items[index] = item
			mu.Unlock()

			event := "model_completed"
			if item.Error != "" {
				event = "model_failed"
			}
			o.notify(req.UserID, event, map[string]interface{}{
				"feature": req.Feature,
				"modelId": key,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, item := range items {
		if item.Error == "" {
			successes++
		}
	}

	if successes == 0 {
		o.notify(req.UserID, "batch_failed", map[string]interface{}{"feature": req.Feature})
		return nil, fmt.Errorf("%w: all %d models failed", apierr.ErrModelFailure, len(req.Refs))
	}

	charged := successes * req.CostPerModel
	newBalance, err := o.ledger.DeductTokens(ctx, req.UserID, charged, req.Feature)
	if err != nil {
		return nil, err
	}

	if req.Persist != nil {
		if err := req.Persist(ctx, items, charged, newBalance); err != nil {
			log.Printf("❌ [Orchestrator] Failed to persist %s batch for user %s: %v",
				req.Feature, req.UserID, err)
			return nil, fmt.Errorf("%w: failed to record %s batch", apierr.ErrPersistence, req.Feature)
		}
	}

	o.notify(req.UserID, "batch_completed", map[string]interface{}{
		"feature":   req.Feature,
		"succeeded": successes,
		"failed":    len(req.Refs) - successes,
	})

	log.Printf("✅ [Orchestrator] %s batch done for user %s (%d/%d succeeded, charged %d)",
		req.Feature, req.UserID, successes, len(req.Refs), charged)

	return &BatchResult{Items: items, Charged: charged, NewBalance: newBalance}, nil
}

// materialize turns a provider result into an owned public URL. URL results
// are downloaded first; byte results go straight to storage.
func (o *Orchestrator) materialize(ctx context.Context, userID string, result invoker.ModelResult, video bool) (string, error) {
	data := result.Bytes
	if len(data) == 0 {
		if result.URL == "" {
			return "", fmt.Errorf("model returned neither bytes nor url")
		}
		downloaded, err := o.store.Download(ctx, result.URL)
		if err != nil {
			return "", fmt.Errorf("failed to download model output: %w", err)
		}
		data = downloaded
	}

	var filePath string
	var err error
	if video {
		filePath, err = o.store.MaterializeVideo(ctx, userID, data)
	} else {
		filePath, err = o.store.MaterializeImage(ctx, userID, data)
	}
	if err != nil {
		return "", err
	}

	return o.store.PublicURL(filePath), nil
}

func (o *Orchestrator) notify(userID, event string, payload interface{}) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(userID, event, payload)
}
