//go:build integration

package content_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/internal/content"
	"civicledger/pkg/domain"
	"civicledger/pkg/testutil/containers"
)

func TestVerificationCacheRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := content.NewVerificationCache(rc.Client, time.Minute, logger)
	ctx := context.Background()

	hash := domain.Hash32{7}
	stored := &content.Verification{
		Status:        content.StatusVerified,
		Verified:      true,
		LedgerChecked: true,
		OnChain:       true,
		CurrentHash:   &hash,
		TxHash:        "0xfeed",
		BlockNumber:   42,
		CheckedAt:     time.Now().UTC().Truncate(time.Second),
	}
	cache.Set(ctx, "issue-1", domain.ContentTypeIssue, stored)

	got, ok := cache.Get(ctx, "issue-1", domain.ContentTypeIssue)
	require.True(t, ok)
	assert.Equal(t, stored.Status, got.Status)
	assert.Equal(t, stored.TxHash, got.TxHash)
	require.NotNil(t, got.CurrentHash)
	assert.Equal(t, hash, *got.CurrentHash)

	t.Run("types do not collide", func(t *testing.T) {
		_, ok := cache.Get(ctx, "issue-1", domain.ContentTypeComment)
		assert.False(t, ok)
	})

	t.Run("invalidate drops the entry", func(t *testing.T) {
		cache.Invalidate(ctx, "issue-1", domain.ContentTypeIssue)
		_, ok := cache.Get(ctx, "issue-1", domain.ContentTypeIssue)
		assert.False(t, ok)
	})
}

func TestVerificationCacheSkipsUncheckedResults(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := content.NewVerificationCache(rc.Client, time.Minute, logger)
	ctx := context.Background()

	// An unconfirmed result reflects a node outage, not chain state.
	cache.Set(ctx, "issue-2", domain.ContentTypeIssue, &content.Verification{
		Status:        content.StatusUnconfirmed,
		LedgerChecked: false,
		CheckedAt:     time.Now().UTC(),
	})

	_, ok := cache.Get(ctx, "issue-2", domain.ContentTypeIssue)
	assert.False(t, ok)
}
