package generate

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
	runErr      error
	ran         bool
	lastReq     orchestrator.RunRequest
}

func (f *fakeRunner) Precheck(ctx context.Context, userID string, cost int) error {
	f.prechecks = append(f.prechecks, cost)
	return f.precheckErr
}

func (f *fakeRunner) Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
	f.ran = true
	f.lastReq = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	res := orchestrator.RunResult{
		OutputURL:  "https://storage.example.com/generated/out.webp",
		UsedModel:  req.Preset.Primary,
		NewBalance: 8,
	}
	if req.Persist != nil {
		if err := req.Persist(ctx, res.OutputURL, res.UsedModel, res.NewBalance); err != nil {
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
	photos          map[string]*model.Photo
	inserted        []*model.Photo
	transformations []*model.ImageTransformation
	revisions       int
}

func (f *fakeDB) InsertPhoto(ctx context.Context, photo *model.Photo) (*model.Photo, error) {
	photo.ID = fmt.Sprintf("photo-%d", len(f.inserted)+1)
	f.inserted = append(f.inserted, photo)
	return photo, nil
}

func (f *fakeDB) FetchPhoto(ctx context.Context, photoID, userID string) (*model.Photo, error) {
	photo, ok := f.photos[photoID]
	if !ok || photo.UserID != userID {
		return nil, nil
	}
	return photo, nil
}

func (f *fakeDB) UpdatePhotoRevision(ctx context.Context, photoID, outputURL, prompt string, revisionCount int) error {
	f.revisions++
	return nil
}

func (f *fakeDB) InsertTransformation(ctx context.Context, record *model.ImageTransformation) error {
	f.transformations = append(f.transformations, record)
	return nil
}

func testConfig(t *testing.T) {
	t.Helper()
	config.SetConfigForTest(&config.Config{
		CostGenerate:         2,
		CostRevise:           2,
		CostReviseDiscounted: 1,
	})
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

	_, err := svc.Generate(context.Background(), testUser(), "professional", "headshot", "1:1", testFiles(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrInsufficientTokens))

	// 잔액 부족 시 스토리지에 아무것도 남지 않는다
	assert.Empty(t, store.uploads)
	assert.False(t, runner.ran)
	assert.Equal(t, []int{2}, runner.prechecks)
}

func TestGenerateUploadsInputsAndPersists(t *testing.T) {
	testConfig(t)
	runner := &fakeRunner{}
	store := &fakeStore{}
	db := &fakeDB{}
	svc := NewService(runner, db, store)

	resp, err := svc.Generate(context.Background(), testUser(), "professional", "headshot", "1:1", testFiles(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"input-1.jpg", "input-2.jpg"}, store.uploads)
	require.Len(t, runner.lastReq.Input.ImageURLs, 2)
	assert.Equal(t, "https://storage.example.com/inputs/user-1/input-1.jpg", runner.lastReq.Input.ImageURLs[0])
	assert.Equal(t, 2, runner.lastReq.Cost)

	require.Len(t, db.inserted, 1)
	assert.Equal(t, "professional", db.inserted[0].Preset)
	assert.True(t, resp.Success)
	assert.Equal(t, 8, resp.NewBalance)
}

func TestGenerateRejectsTooManyFiles(t *testing.T) {
	testConfig(t)
	runner := &fakeRunner{}
	store := &fakeStore{}
	svc := NewService(runner, &fakeDB{}, store)

	_, err := svc.Generate(context.Background(), testUser(), "professional", "headshot", "", testFiles(4))
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Empty(t, store.uploads)
}

func TestReviseUnknownPhotoReturnsNotFound(t *testing.T) {
	testConfig(t)
	svc := NewService(&fakeRunner{}, &fakeDB{photos: map[string]*model.Photo{}}, &fakeStore{})

	_, err := svc.Revise(context.Background(), testUser(), ReviseRequest{PhotoID: "missing", Prompt: "brighter"})
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestReviseDiscountsFirstTwoRevisions(t *testing.T) {
	testConfig(t)

	cases := []struct {
		revisionCount int
		wantCost      int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
	}
	for _, tc := range cases {
		runner := &fakeRunner{}
		db := &fakeDB{photos: map[string]*model.Photo{
			"photo-1": {
				ID:            "photo-1",
				UserID:        "user-1",
				Preset:        "professional",
				OutputURL:     "https://storage.example.com/generated/prev.webp",
				RevisionCount: tc.revisionCount,
			},
		}}
		svc := NewService(runner, db, &fakeStore{})

		resp, err := svc.Revise(context.Background(), testUser(), ReviseRequest{PhotoID: "photo-1", Prompt: "warmer light"})
		require.NoError(t, err)
		assert.Equal(t, tc.wantCost, runner.lastReq.Cost, "revision #%d", tc.revisionCount+1)
		assert.Equal(t, 1, db.revisions)
		require.Len(t, db.transformations, 1)
		assert.Equal(t, tc.wantCost, db.transformations[0].TokensCost)
		assert.True(t, resp.Success)
	}
}
