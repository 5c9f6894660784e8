package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"civicledger/pkg/domain"
)

// VerificationCache memoizes recent verification results so hot content
// does not hit the chain on every read. Results reflecting an
// unreachable ledger are never cached. All methods are nil-safe and
// degrade silently; the cache is an optimization, never a dependency.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewVerificationCache returns nil when no redis client is configured.
func NewVerificationCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *VerificationCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VerificationCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(subjectID domain.ContentID, t domain.ContentType) string {
	return "civicledger:verify:" + string(t) + ":" + subjectID.String()
}

func (c *VerificationCache) Get(ctx context.Context, subjectID domain.ContentID, t domain.ContentType) (*Verification, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(subjectID, t)).Bytes()
	if err != nil {
		return nil, false
	}
	var v Verification
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("verification cache entry corrupt; dropping", "key", cacheKey(subjectID, t), "error", err)
		c.client.Del(ctx, cacheKey(subjectID, t))
		return nil, false
	}
	return &v, true
}

func (c *VerificationCache) Set(ctx context.Context, subjectID domain.ContentID, t domain.ContentType, v *Verification) {
	if c == nil || !v.LedgerChecked {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(subjectID, t), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("verification cache set failed", "error", err)
	}
}

func (c *VerificationCache) Invalidate(ctx context.Context, subjectID domain.ContentID, t domain.ContentType) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(subjectID, t)).Err(); err != nil {
		c.logger.Warn("verification cache invalidate failed", "error", err)
	}
}
