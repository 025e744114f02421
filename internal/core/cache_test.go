package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/mocks"
)

const genKey = "renewal-risk:latest-gen:prop-1"

func TestLatestScoreCache_PutUsesTTLAndGenerationKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockCacheRepository(ctrl)
	cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo, TTL: time.Minute})

	repo.EXPECT().
		Set(gomock.Any(), "renewal-risk:latest:prop-1:g1", []byte(`[]`), time.Minute).
		Return(nil)

	require.NoError(t, cache.Put(context.Background(), "prop-1", "g1", nil))

	// Without a generation there is nothing safe to fill.
	require.NoError(t, cache.Put(context.Background(), "prop-1", "", nil))
}

func TestLatestScoreCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockCacheRepository(ctrl)
		cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo})
		gomock.InOrder(
			repo.EXPECT().Get(gomock.Any(), genKey).Return([]byte("g1"), nil),
			repo.EXPECT().Get(gomock.Any(), core.LatestScoresKey("prop-1", "g1")).
				Return([]byte(`[{"residentId":"r-1","riskScore":85,"riskTier":"high"}]`), nil),
		)

		got, err := cache.Get(ctx, "prop-1")
		require.NoError(t, err)
		require.True(t, got.Hit)
		assert.Equal(t, "g1", got.Generation)
		require.Len(t, got.Scores, 1)
		assert.Equal(t, model.RiskTierHigh, got.Scores[0].RiskTier)
	})

	t.Run("miss mints a generation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockCacheRepository(ctrl)
		cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo})

		var minted string
		gomock.InOrder(
			repo.EXPECT().Get(gomock.Any(), genKey).Return(nil, nil),
			repo.EXPECT().Set(gomock.Any(), genKey, gomock.Any(), time.Duration(0)).
				DoAndReturn(func(_ context.Context, _ string, v []byte, _ time.Duration) error {
					minted = string(v)
					return nil
				}),
			repo.EXPECT().Get(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, key string) ([]byte, error) {
					assert.Equal(t, core.LatestScoresKey("prop-1", minted), key)
					return nil, nil
				}),
		)

		got, err := cache.Get(ctx, "prop-1")
		require.NoError(t, err)
		assert.False(t, got.Hit)
		assert.NotEmpty(t, minted)
		assert.Equal(t, minted, got.Generation)
	})

	t.Run("undecodable entry is a miss", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockCacheRepository(ctrl)
		cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo})
		gomock.InOrder(
			repo.EXPECT().Get(gomock.Any(), genKey).Return([]byte("g1"), nil),
			repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte(`{not json`), nil),
		)

		got, err := cache.Get(ctx, "prop-1")
		require.NoError(t, err)
		assert.False(t, got.Hit)
		assert.Equal(t, "g1", got.Generation)
	})

	t.Run("backend error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockCacheRepository(ctrl)
		cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo})
		repo.EXPECT().Get(gomock.Any(), genKey).Return(nil, errors.New("i/o timeout"))

		got, err := cache.Get(ctx, "prop-1")
		require.ErrorContains(t, err, "get latest scores")
		assert.False(t, got.Hit)
		assert.Empty(t, got.Generation)
	})
}

func TestLatestScoreCache_InvalidateStartsNewGeneration(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockCacheRepository(ctrl)
	cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{Cache: repo})

	repo.EXPECT().Set(gomock.Any(), genKey, gomock.Any(), time.Duration(0)).
		DoAndReturn(func(_ context.Context, _ string, v []byte, _ time.Duration) error {
			assert.NotEmpty(t, v)
			return nil
		})
	require.NoError(t, cache.Invalidate(context.Background(), "prop-1"))

	// Blank property ids never reach the backend.
	require.NoError(t, cache.Invalidate(context.Background(), ""))
}

func TestLatestScoreCache_NilIsDisabled(t *testing.T) {
	cache := core.NewLatestScoreCache(core.LatestScoreCacheOptions{})
	assert.Nil(t, cache)

	got, err := cache.Get(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.False(t, got.Hit)
	require.NoError(t, cache.Put(context.Background(), "prop-1", "g1", nil))
	require.NoError(t, cache.Invalidate(context.Background(), "prop-1"))
}
