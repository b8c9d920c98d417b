package prostudio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/model"
	"bildoro-server/modules/common/orchestrator"
)

type fakeRunner struct {
	precheckErr error
	prechecks   []int
	ran         bool
	lastReq     orchestrator.BatchRequest
}

func (f *fakeRunner) Precheck(ctx context.Context, userID string, cost int) error {
	f.prechecks = append(f.prechecks, cost)
	return f.precheckErr
}

func (f *fakeRunner) RunBatch(ctx context.Context, req orchestrator.BatchRequest) (*orchestrator.BatchResult, error) {
	f.ran = true
	f.lastReq = req
	items := make([]model.ModelResultItem, len(req.Refs))
	for i, key := range req.Keys {
		items[i] = model.ModelResultItem{
			ModelID:  key,
			ImageURL: fmt.Sprintf("https://storage.example.com/generated/%s.webp", key),
		}
	}
	charged := len(req.Refs) * req.CostPerModel
	res := orchestrator.BatchResult{Items: items, Charged: charged, NewBalance: 10 - charged}
	if req.Persist != nil {
		if err := req.Persist(ctx, items, charged, res.NewBalance); err != nil {
			return nil, fmt.Errorf("%w: record", apierr.ErrPersistence)
		}
	}
	return &res, nil
}

type fakeStore struct {
	uploads []string
}

func (f *fakeStore) UploadInput(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error) {
	f.uploads = append(f.uploads, filename)
	return "inputs/" + userID + "/" + filename, nil
}

func (f *fakeStore) PublicURL(filePath string) string {
	return "https://storage.example.com/" + filePath
}

type fakeDB struct {
	batches  map[string]*model.ProStudioBatch
	inserted []*model.ProStudioBatch
}

func (f *fakeDB) InsertProStudioBatch(ctx context.Context, record *model.ProStudioBatch) (*model.ProStudioBatch, error) {
	record.ID = fmt.Sprintf("inserted-%d", len(f.inserted)+1)
	f.inserted = append(f.inserted, record)
	return record, nil
}

func (f *fakeDB) FetchProStudioBatch(ctx context.Context, recordID, userID string) (*model.ProStudioBatch, error) {
	batch, ok := f.batches[recordID]
	if !ok || batch.UserID != userID {
		return nil, nil
	}
	return batch, nil
}

func testConfig(t *testing.T) {
	t.Helper()
	config.SetConfigForTest(&config.Config{CostProStudioImage: 3})
}

func testUser() *auth.AuthUser {
	return &auth.AuthUser{ID: "user-1", Email: "user@example.com"}
}

func testFiles(n int) []InputFile {
	files := make([]InputFile, n)
	for i := range files {
		files[i] = InputFile{
			Filename:    fmt.Sprintf("input-%d.jpg", i+1),
			ContentType: "image/jpeg",
			Data:        []byte("jpeg"),
		}
	}
	return files
}

func TestGenerateInsufficientTokensUploadsNothing(t *testing.T) {
	testConfig(t)
	runner := &fakeRunner{precheckErr: apierr.ErrInsufficientTokens}
	store := &fakeStore{}
	svc := NewService(runner, &fakeDB{}, store)

	_, err := svc.Generate(context.Background(), testUser(), "professional", "variations", "1:1", 3, testFiles(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrInsufficientTokens))

	// 잔액 부족 시 스토리지에 아무것도 남지 않는다
	assert.Empty(t, store.uploads)
	assert.False(t, runner.ran)
	// 업로드 전 검사는 배치 전체 비용 기준 (3장 x 3토큰)
	assert.Equal(t, []int{9}, runner.prechecks)
}

func TestGenerateFansOutQuantity(t *testing.T) {
	testConfig(t)
	runner := &fakeRunner{}
	db := &fakeDB{}
	svc := NewService(runner, db, &fakeStore{})

	resp, err := svc.Generate(context.Background(), testUser(), "professional", "variations", "1:1", 3, testFiles(1))
	require.NoError(t, err)

	assert.Equal(t, []string{"image-1", "image-2", "image-3"}, runner.lastReq.Keys)
	require.Len(t, runner.lastReq.Refs, 3)
	// 같은 primary 모델을 quantity번 반복
	assert.Equal(t, runner.lastReq.Refs[0], runner.lastReq.Refs[1])
	assert.Equal(t, 3, runner.lastReq.CostPerModel)

	require.Len(t, db.inserted, 1)
	assert.Equal(t, 9, db.inserted[0].TokensCost)
	assert.True(t, resp.Success)
	assert.Equal(t, 9, resp.Charged)
}

func TestGenerateRejectsExcessQuantity(t *testing.T) {
	testConfig(t)
	store := &fakeStore{}
	svc := NewService(&fakeRunner{}, &fakeDB{}, store)

	_, err := svc.Generate(context.Background(), testUser(), "professional", "x", "", 5, testFiles(1))
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Empty(t, store.uploads)
}

func TestReviseValidatesIndexAndResult(t *testing.T) {
	testConfig(t)
	db := &fakeDB{batches: map[string]*model.ProStudioBatch{
		"batch-1": {
			ID:     "batch-1",
			UserID: "user-1",
			Preset: "professional",
			Results: []model.ModelResultItem{
				{ModelID: "image-1", ImageURL: "https://storage.example.com/generated/a.webp"},
				{ModelID: "image-2", Error: "GENERATION_FAILED"},
			},
		},
	}}
	svc := NewService(&fakeRunner{}, db, &fakeStore{})

	_, err := svc.Revise(context.Background(), testUser(), ReviseRequest{BatchID: "batch-1", Index: 5, Prompt: "x"})
	assert.True(t, errors.Is(err, apierr.ErrValidation))

	// 실패한 결과는 재생성 입력이 될 수 없음
	_, err = svc.Revise(context.Background(), testUser(), ReviseRequest{BatchID: "batch-1", Index: 1, Prompt: "x"})
	assert.True(t, errors.Is(err, apierr.ErrValidation))

	_, err = svc.Revise(context.Background(), testUser(), ReviseRequest{BatchID: "missing", Index: 0, Prompt: "x"})
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestReviseCreatesNewBatchFromSelectedImage(t *testing.T) {
	testConfig(t)
	runner := &fakeRunner{}
	db := &fakeDB{batches: map[string]*model.ProStudioBatch{
		"batch-1": {
			ID:     "batch-1",
			UserID: "user-1",
			Preset: "professional",
			Results: []model.ModelResultItem{
				{ModelID: "image-1", ImageURL: "https://storage.example.com/generated/a.webp"},
			},
		},
	}}
	svc := NewService(runner, db, &fakeStore{})

	resp, err := svc.Revise(context.Background(), testUser(), ReviseRequest{BatchID: "batch-1", Index: 0, Prompt: "closer crop"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://storage.example.com/generated/a.webp"}, runner.lastReq.Input.ImageURLs)
	require.Len(t, db.inserted, 1)
	assert.NotEqual(t, "batch-1", db.inserted[0].ID)
	assert.True(t, resp.Success)
}
