package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/models"
)

type stubProvider struct {
	result *models.ImageResult
	err    error
	calls  int
}

func (s *stubProvider) Search(ctx context.Context, query string) (*models.ImageResult, error) {
	s.calls++
	return s.result, s.err
}

func TestNewCachedProvider_NilClientPassesThrough(t *testing.T) {
	next := &stubProvider{}
	p := NewCachedProvider(next, nil, time.Hour, zap.NewNop())
	assert.Same(t, next, p)
}

func TestCacheKey_Normalizes(t *testing.T) {
	assert.Equal(t, CacheKeyPrefix+"stop sign", CacheKey("  Stop   SIGN "))
}
