package apierr

import (
	"fmt"
	"net/http"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrInsufficientTokens, http.StatusPaymentRequired},
		{ErrValidation, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrModelFailure, http.StatusInternalServerError},
		{ErrPersistence, http.StatusInternalServerError},
		{fmt.Errorf("%w: failed to record generate result", ErrPersistence), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestClassifyProvider(t *testing.T) {
	assert.Equal(t, "NSFW_FILTERED", ClassifyProvider("NSFW content detected"))
	assert.Equal(t, "RATE_LIMITED", ClassifyProvider("got 429 from upstream"))
	assert.Equal(t, "TIMED_OUT", ClassifyProvider("context deadline exceeded"))
	assert.Equal(t, "GENERATION_FAILED", ClassifyProvider("boom"))
}

func TestTruncateProviderKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "short", TruncateProvider("short", 10))
	assert.Equal(t, "abc...", TruncateProvider("abcdef", 3))
	assert.Equal(t, "everything", TruncateProvider("everything", 0))

	// 한글 메시지도 문자 단위로 잘라야 함
	got := TruncateProvider("안전 필터에 걸린 요청입니다", 5)
	assert.Equal(t, "안전 필터...", got)
	assert.True(t, utf8.ValidString(got))
}
