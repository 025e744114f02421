// Package core defines the ports shared by the renewal-risk services and the caching policy
// layered over them.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// DefaultLatestScoreTTL bounds how long a cached snapshot list is served.
const DefaultLatestScoreTTL = 5 * time.Minute

// LatestScoreCacheOptions bundles dependencies for NewLatestScoreCache.
type LatestScoreCacheOptions struct {
	Cache  CacheRepository
	TTL    time.Duration
	Logger *slog.Logger
}

// LatestScoreCache caches the latest snapshot list per property.
// A nil *LatestScoreCache is valid and always misses.
//
// Entries are scoped to a per-property generation token. Invalidate replaces the token, so
// a reader that loaded an older snapshot before the invalidation fills a key nobody reads.
type LatestScoreCache struct {
	cache  CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewLatestScoreCache creates a LatestScoreCache. It returns nil when no cache is configured.
func NewLatestScoreCache(opts LatestScoreCacheOptions) *LatestScoreCache {
	if opts.Cache == nil {
		return nil
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultLatestScoreTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LatestScoreCache{
		cache:  opts.Cache,
		ttl:    ttl,
		logger: logger.With("component", "latest_score_cache"),
	}
}

// LatestScoresKey generates the cache key for a property's latest snapshot at a generation.
func LatestScoresKey(propertyID, generation string) string {
	return "renewal-risk:latest:" + propertyID + ":" + generation
}

// LatestScoresGenerationKey generates the key holding a property's current generation token.
func LatestScoresGenerationKey(propertyID string) string {
	return "renewal-risk:latest-gen:" + propertyID
}

// LatestScoreLookup is the result of LatestScoreCache.Get.
type LatestScoreLookup struct {
	Scores []model.ResidentRisk
	Hit    bool
	// Generation is the token a Put filling this miss must carry. Empty when unknown.
	Generation string
}

// Get returns the cached list for the property's current generation.
// Undecodable entries are treated as misses.
func (c *LatestScoreCache) Get(ctx context.Context, propertyID string) (LatestScoreLookup, error) {
	if c == nil || propertyID == "" {
		return LatestScoreLookup{}, nil
	}
	gen, err := c.generation(ctx, propertyID)
	if err != nil {
		return LatestScoreLookup{}, fmt.Errorf("get latest scores: %w", err)
	}
	lookup := LatestScoreLookup{Generation: gen}

	raw, err := c.cache.Get(ctx, LatestScoresKey(propertyID, gen))
	if err != nil {
		return lookup, fmt.Errorf("get latest scores: %w", err)
	}
	if raw == nil {
		return lookup, nil
	}
	var out []model.ResidentRisk
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cache entry",
			"property_id", propertyID, "error", err)
		return lookup, nil
	}
	if out == nil {
		out = []model.ResidentRisk{}
	}
	lookup.Scores = out
	lookup.Hit = true
	return lookup, nil
}

// Put stores the list for a property under the generation returned by Get.
// A blank generation is ignored.
func (c *LatestScoreCache) Put(ctx context.Context, propertyID, generation string, scores []model.ResidentRisk) error {
	if c == nil || propertyID == "" || generation == "" {
		return nil
	}
	if scores == nil {
		scores = []model.ResidentRisk{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode latest scores: %w", err)
	}
	return c.cache.Set(ctx, LatestScoresKey(propertyID, generation), raw, c.ttl)
}

// Invalidate starts a new generation for a property. Entries of older generations are
// never read again and age out with their TTL.
// This should be called whenever a calculation job completes for it.
func (c *LatestScoreCache) Invalidate(ctx context.Context, propertyID string) error {
	if c == nil || propertyID == "" {
		return nil
	}
	return c.cache.Set(ctx, LatestScoresGenerationKey(propertyID), []byte(uuid.NewString()), 0)
}

// generation returns the property's current token, minting one when none is stored.
// Two readers minting at once is harmless: the losing token's entry is simply never read.
func (c *LatestScoreCache) generation(ctx context.Context, propertyID string) (string, error) {
	key := LatestScoresGenerationKey(propertyID)
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(raw) > 0 {
		return string(raw), nil
	}
	gen := uuid.NewString()
	if err := c.cache.Set(ctx, key, []byte(gen), 0); err != nil {
		return "", err
	}
	return gen, nil
}
