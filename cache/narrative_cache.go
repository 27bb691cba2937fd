package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// NarrativeCache caches generated LLM narratives per zone so the daily
// refresh never pays for the same analysis twice while the underlying
// metrics are unchanged
type NarrativeCache struct {
	redis *RedisClient
}

// NewNarrativeCache creates a new narrative cache instance
func NewNarrativeCache(redis *RedisClient) *NarrativeCache {
	return &NarrativeCache{
		redis: redis,
	}
}

// GetNarrative retrieves a cached narrative for a zone.
// Returns the cached text and true if found, "" and false otherwise.
func (c *NarrativeCache) GetNarrative(ctx context.Context, zoneID string, dataHash string) (string, bool) {
	if c.redis == nil {
		return "", false
	}

	cacheKey := fmt.Sprintf("llm:narrative:%s:%s", zoneID, dataHash)
	var narrative string

	if err := c.redis.Get(ctx, cacheKey, &narrative); err != nil {
		return "", false
	}

	return narrative, true
}

// SetNarrative caches a generated narrative for a zone
func (c *NarrativeCache) SetNarrative(ctx context.Context, zoneID string, dataHash string, narrative string, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("llm:narrative:%s:%s", zoneID, dataHash)
	return c.redis.Set(ctx, cacheKey, narrative, ttl)
}

// SetCooldown sets a cooldown period for a zone to prevent excessive LLM calls
func (c *NarrativeCache) SetCooldown(ctx context.Context, zoneID string, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cooldownKey := fmt.Sprintf("llm:cooldown:%s", zoneID)
	return c.redis.Set(ctx, cooldownKey, time.Now().Unix(), ttl)
}

// IsInCooldown checks if a zone is in cooldown period
func (c *NarrativeCache) IsInCooldown(ctx context.Context, zoneID string) bool {
	if c.redis == nil {
		return false
	}

	cooldownKey := fmt.Sprintf("llm:cooldown:%s", zoneID)
	var timestamp int64

	if err := c.redis.Get(ctx, cooldownKey, &timestamp); err != nil {
		return false
	}

	return timestamp > 0
}

// GenerateDataHash creates a hash from zone metrics to detect whether the
// underlying data changed since the last generated narrative
func GenerateDataHash(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes for shorter hash
}
