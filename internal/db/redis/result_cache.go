package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ctshub/internal/domain/artifact"
	applog "ctshub/internal/platform/log"
)

// ResultCache 存量结果的 Redis 读缓存，按 fingerprint 命中。
// 纯加速层：缓存不可用时 orchestrator 直接回源，不影响正确性。
type ResultCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewResultCache 创建结果缓存。
func NewResultCache(rdb *redis.Client, ttlSeconds int) *ResultCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &ResultCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "cts:result:",
	}
}

// Get 从缓存读取 fingerprint 对应的 hit payload。
func (c *ResultCache) Get(ctx context.Context, fp artifact.Fingerprint) (json.RawMessage, bool) {
	data, err := c.redis.Get(ctx, c.cacheKey(fp)).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(data), true
}

// Set 写入 fingerprint 对应的 hit payload。
func (c *ResultCache) Set(ctx context.Context, fp artifact.Fingerprint, hit json.RawMessage) {
	if len(hit) == 0 {
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(fp), []byte(hit), c.ttl).Err(); err != nil {
		applog.Warn("[ResultCache] Failed to set cache", "fingerprint", fp.String(), "error", err)
	}
}

// cacheKey 生成缓存 key = prefix + hash(type|value)。
func (c *ResultCache) cacheKey(fp artifact.Fingerprint) string {
	hash := sha256.Sum256([]byte(fp.Type + "|" + fp.Value))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
