package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/invoker"
	"bildoro-server/modules/common/model"
)

type fakeLedger struct {
	mu      sync.Mutex
	balance int
	deducts []int
}

func (f *fakeLedger) CheckTokens(ctx context.Context, userID string, amount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance >= amount, nil
}

func (f *fakeLedger) DeductTokens(ctx context.Context, userID string, amount int, reason string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return 0, apierr.ErrInsufficientTokens
	}
	f.balance -= amount
	f.deducts = append(f.deducts, amount)
	return f.balance, nil
}

type fakeStore struct {
	mu          sync.Mutex
	downloads   []string
	uploads     int
	downloadErr error
}

func (f *fakeStore) MaterializeImage(ctx context.Context, userID string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return fmt.Sprintf("generated/user-%s/img_%d.webp", userID, f.uploads), nil
}

func (f *fakeStore) MaterializeVideo(ctx context.Context, userID string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return fmt.Sprintf("generated/user-%s/vid_%d.mp4", userID, f.uploads), nil
}

func (f *fakeStore) Download(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	f.downloads = append(f.downloads, url)
	return []byte("model-output"), nil
}

func (f *fakeStore) PublicURL(filePath string) string {
	return "https://storage.example.com/" + filePath
}

type fakeCaller struct {
	mu      sync.Mutex
	results map[string]invoker.ModelResult
	errs    map[string]error
	calls   []string
}

func (f *fakeCaller) Invoke(ctx context.Context, ref invoker.ModelRef, in invoker.Input) (invoker.ModelResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ref.ID)
	f.mu.Unlock()
	if err, ok := f.errs[ref.ID]; ok {
		return invoker.ModelResult{}, err
	}
	return f.results[ref.ID], nil
}

func (f *fakeCaller) InvokeWithFallback(ctx context.Context, preset *invoker.Preset, in invoker.Input) (invoker.ModelResult, invoker.ModelRef, error) {
	result, err := f.Invoke(ctx, preset.Primary, in)
	if err == nil {
		return result, preset.Primary, nil
	}
	result, err = f.Invoke(ctx, preset.Fallback, in)
	if err != nil {
		return invoker.ModelResult{}, invoker.ModelRef{}, err
	}
	return result, preset.Fallback, nil
}

type recordedEvent struct {
	userID string
	event  string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) Notify(userID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{userID: userID, event: event})
}

func (f *fakeNotifier) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.event
	}
	return out
}

func testPreset() *invoker.Preset {
	return &invoker.Preset{
		Name:     "professional",
		Primary:  invoker.ModelRef{Provider: invoker.ProviderReplicate, ID: "primary-model"},
		Fallback: invoker.ModelRef{Provider: invoker.ProviderOpenAI, ID: "fallback-model"},
		Template: "studio portrait: %s",
	}
}

func TestRunSuccessChargesAndPersists(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	store := &fakeStore{}
	caller := &fakeCaller{results: map[string]invoker.ModelResult{
		"primary-model": {URL: "https://replicate.delivery/out.png"},
	}}
	notifier := &fakeNotifier{}
	orch := New(ledger, store, caller, notifier)

	var persistedURL string
	var persistedBalance int
	result, err := orch.Run(context.Background(), RunRequest{
		UserID:  "user-1",
		Feature: "generate",
		Cost:    2,
		Preset:  testPreset(),
		Input:   invoker.Input{Prompt: "headshot"},
		Persist: func(ctx context.Context, outputURL string, used invoker.ModelRef, newBalance int) error {
			persistedURL = outputURL
			persistedBalance = newBalance
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, ledger.balance)
	assert.Equal(t, []int{2}, ledger.deducts)
	assert.Equal(t, 8, result.NewBalance)
	assert.Equal(t, "primary-model", result.UsedModel.ID)
	assert.True(t, strings.HasPrefix(result.OutputURL, "https://storage.example.com/generated/user-user-1/"))
	assert.Equal(t, result.OutputURL, persistedURL)
	assert.Equal(t, 8, persistedBalance)

	// URL result goes through download before materialization
	assert.Equal(t, []string{"https://replicate.delivery/out.png"}, store.downloads)
	assert.Equal(t, []string{"generation_started", "generation_completed"}, notifier.names())
}

func TestRunModelFailureChargesNothing(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	caller := &fakeCaller{errs: map[string]error{
		"primary-model":  fmt.Errorf("NSFW content detected"),
		"fallback-model": fmt.Errorf("rate limit exceeded"),
	}}
	orch := New(ledger, &fakeStore{}, caller, nil)

	_, err := orch.Run(context.Background(), RunRequest{
		UserID: "user-1", Feature: "generate", Cost: 2,
		Preset: testPreset(), Input: invoker.Input{Prompt: "x"},
	})
	require.Error(t, err)
	assert.Equal(t, 10, ledger.balance)
	assert.Empty(t, ledger.deducts)
}

func TestRunInsufficientTokensSkipsInvoke(t *testing.T) {
	ledger := &fakeLedger{balance: 1}
	caller := &fakeCaller{}
	orch := New(ledger, &fakeStore{}, caller, nil)

	_, err := orch.Run(context.Background(), RunRequest{
		UserID: "user-1", Feature: "generate", Cost: 2,
		Preset: testPreset(), Input: invoker.Input{Prompt: "x"},
	})
	assert.True(t, errors.Is(err, apierr.ErrInsufficientTokens))
	assert.Empty(t, caller.calls, "no model call on failed precheck")
}

func TestRunBytesResultSkipsDownload(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	store := &fakeStore{}
	caller := &fakeCaller{results: map[string]invoker.ModelResult{
		"primary-model": {Bytes: []byte("png-bytes"), MimeType: "image/png"},
	}}
	orch := New(ledger, store, caller, nil)

	result, err := orch.Run(context.Background(), RunRequest{
		UserID: "user-1", Feature: "generate", Cost: 2,
		Preset: testPreset(), Input: invoker.Input{Prompt: "x"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.OutputURL)
	assert.Empty(t, store.downloads)
}

func TestRunPersistErrorReturnsPersistenceFailure(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	caller := &fakeCaller{results: map[string]invoker.ModelResult{
		"primary-model": {Bytes: []byte("x")},
	}}
	orch := New(ledger, &fakeStore{}, caller, nil)

	_, err := orch.Run(context.Background(), RunRequest{
		UserID: "user-1", Feature: "generate", Cost: 2,
		Preset: testPreset(), Input: invoker.Input{Prompt: "x"},
		Persist: func(ctx context.Context, outputURL string, used invoker.ModelRef, newBalance int) error {
			return fmt.Errorf("db down")
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrPersistence))
	// 과금은 기록 전에 끝난 상태
	assert.Equal(t, 8, ledger.balance)
}

func TestRunBatchPersistErrorReturnsPersistenceFailure(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	caller := &fakeCaller{results: map[string]invoker.ModelResult{
		"model-a": {Bytes: []byte("a")},
	}}
	orch := New(ledger, &fakeStore{}, caller, nil)

	_, err := orch.RunBatch(context.Background(), BatchRequest{
		UserID:       "user-1",
		Feature:      "playground",
		CostPerModel: 1,
		Keys:         []string{"a"},
		Refs:         []invoker.ModelRef{{Provider: invoker.ProviderReplicate, ID: "model-a"}},
		Input:        invoker.Input{Prompt: "x"},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			return fmt.Errorf("db down")
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrPersistence))
	assert.Equal(t, 9, ledger.balance)
}

func TestRunBatchChargesOnlySuccesses(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	caller := &fakeCaller{
		results: map[string]invoker.ModelResult{
			"model-a": {URL: "https://replicate.delivery/a.png"},
			"model-c": {Bytes: []byte("c")},
		},
		errs: map[string]error{
			"model-b": fmt.Errorf("NSFW content detected"),
		},
	}
	orch := New(ledger, &fakeStore{}, caller, nil)

	var persisted []model.ModelResultItem
	result, err := orch.RunBatch(context.Background(), BatchRequest{
		UserID:       "user-1",
		Feature:      "playground",
		CostPerModel: 1,
		Keys:         []string{"a", "b", "c"},
		Refs: []invoker.ModelRef{
			{Provider: invoker.ProviderReplicate, ID: "model-a"},
			{Provider: invoker.ProviderReplicate, ID: "model-b"},
			{Provider: invoker.ProviderOpenAI, ID: "model-c"},
		},
		Input: invoker.Input{Prompt: "sunset"},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			persisted = items
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Charged)
	assert.Equal(t, 8, result.NewBalance)
	assert.Equal(t, []int{2}, ledger.deducts)

	// Results keep request order regardless of completion order.
	require.Len(t, result.Items, 3)
	assert.Equal(t, "a", result.Items[0].ModelID)
	assert.NotEmpty(t, result.Items[0].ImageURL)
	assert.Empty(t, result.Items[0].Error)

	assert.Equal(t, "b", result.Items[1].ModelID)
	assert.Empty(t, result.Items[1].ImageURL)
	assert.Equal(t, "NSFW_FILTERED", result.Items[1].Error)

	assert.Equal(t, "c", result.Items[2].ModelID)
	assert.NotEmpty(t, result.Items[2].ImageURL)

	assert.Equal(t, result.Items, persisted)
}

func TestRunBatchAllFailedChargesNothing(t *testing.T) {
	ledger := &fakeLedger{balance: 10}
	caller := &fakeCaller{errs: map[string]error{
		"model-a": fmt.Errorf("timeout"),
		"model-b": fmt.Errorf("rate limit exceeded"),
	}}
	orch := New(ledger, &fakeStore{}, caller, nil)

	persistCalled := false
	_, err := orch.RunBatch(context.Background(), BatchRequest{
		UserID:       "user-1",
		Feature:      "playground",
		CostPerModel: 1,
		Keys:         []string{"a", "b"},
		Refs: []invoker.ModelRef{
			{Provider: invoker.ProviderReplicate, ID: "model-a"},
			{Provider: invoker.ProviderReplicate, ID: "model-b"},
		},
		Input: invoker.Input{Prompt: "x"},
		Persist: func(ctx context.Context, items []model.ModelResultItem, charged, newBalance int) error {
			persistCalled = true
			return nil
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrModelFailure))
	assert.Equal(t, 10, ledger.balance)
	assert.False(t, persistCalled)
}

func TestRunBatchRequiresFullCostUpfront(t *testing.T) {
	// 3 models at 5 tokens each needs 15; the user has 12.
	ledger := &fakeLedger{balance: 12}
	caller := &fakeCaller{}
	orch := New(ledger, &fakeStore{}, caller, nil)

	_, err := orch.RunBatch(context.Background(), BatchRequest{
		UserID:       "user-1",
		Feature:      "video",
		CostPerModel: 5,
		Keys:         []string{"a", "b", "c"},
		Refs: []invoker.ModelRef{
			{Provider: invoker.ProviderReplicate, ID: "model-a"},
			{Provider: invoker.ProviderReplicate, ID: "model-b"},
			{Provider: invoker.ProviderReplicate, ID: "model-c"},
		},
		Input: invoker.Input{Prompt: "x"},
	})
	assert.True(t, errors.Is(err, apierr.ErrInsufficientTokens))
	assert.Empty(t, caller.calls)
}

func TestRunBatchVideoResults(t *testing.T) {
	ledger := &fakeLedger{balance: 20}
	caller := &fakeCaller{results: map[string]invoker.ModelResult{
		"kwaivgi/kling-v2.0": {URL: "https://replicate.delivery/out.mp4"},
	}}
	orch := New(ledger, &fakeStore{}, caller, nil)

	result, err := orch.RunBatch(context.Background(), BatchRequest{
		UserID:       "user-1",
		Feature:      "video",
		CostPerModel: 5,
		Keys:         []string{"kling-v2"},
		Refs:         []invoker.ModelRef{{Provider: invoker.ProviderReplicate, ID: "kwaivgi/kling-v2.0"}},
		Input:        invoker.Input{Prompt: "waves"},
		Video:        true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Items[0].VideoURL)
	assert.Empty(t, result.Items[0].ImageURL)
	assert.Equal(t, 15, result.NewBalance)
}
