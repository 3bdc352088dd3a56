package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE SET CACHE
// ══════════════════════════════════════════════════════════════════════════════

// loadedMarker is stored in every cached set so an empty badge set can be
// told apart from a cache miss. Badge IDs never start with a NUL byte.
const loadedMarker = "\x00loaded"

// addIfLoaded adds members only when the set is already cached. Adding to a
// missing key would create a partial set that later reads take as complete.
var addIfLoaded = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("SADD", KEYS[1], unpack(ARGV, 2))
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 1
`)

// BadgeCache implements badge.StudentBadgeCache with one Redis set per
// student. SADD makes concurrent additions commute.
type BadgeCache struct {
	cache  *Cache
	ttl    time.Duration
	logger *zap.Logger
}

var _ badge.StudentBadgeCache = (*BadgeCache)(nil)

// NewBadgeCache creates a badge cache. A non-positive ttl uses TTLBadgeSet.
func NewBadgeCache(cache *Cache, ttl time.Duration, log *zap.Logger) *BadgeCache {
	if ttl <= 0 {
		ttl = TTLBadgeSet
	}
	return &BadgeCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger.OrNop(log).With(logger.Component("badge_cache")),
	}
}

// GetBadgeIDs returns the cached set. ok is false on a miss.
func (c *BadgeCache) GetBadgeIDs(ctx context.Context, studentID string) ([]string, bool, error) {
	members, err := c.cache.Client().SMembers(ctx, BadgeSetKey(studentID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("badge cache get: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	ids := make([]string, 0, len(members)-1)
	for _, m := range members {
		if m != loadedMarker {
			ids = append(ids, m)
		}
	}
	return ids, true, nil
}

// AddBadges adds badges to a cached set. A set that is not cached stays
// uncached and is loaded in full on the next read.
func (c *BadgeCache) AddBadges(ctx context.Context, studentID string, badgeIDs []string) error {
	if len(badgeIDs) == 0 {
		return nil
	}

	args := make([]any, 0, len(badgeIDs)+1)
	args = append(args, c.ttl.Milliseconds())
	for _, id := range badgeIDs {
		args = append(args, id)
	}

	added, err := addIfLoaded.Run(ctx, c.cache.Client(), []string{BadgeSetKey(studentID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("badge cache add: %w", err)
	}

	c.logger.Debug("badge cache add",
		logger.StudentID(studentID),
		zap.Strings("badge_ids", badgeIDs),
		zap.Bool("cached", added == 1),
	)
	return nil
}

// SetBadgeIDs replaces the cached set.
func (c *BadgeCache) SetBadgeIDs(ctx context.Context, studentID string, badgeIDs []string) error {
	key := BadgeSetKey(studentID)

	members := make([]any, 0, len(badgeIDs)+1)
	members = append(members, loadedMarker)
	for _, id := range badgeIDs {
		members = append(members, id)
	}

	_, err := c.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("badge cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached set.
func (c *BadgeCache) Invalidate(ctx context.Context, studentID string) error {
	return c.cache.Delete(ctx, BadgeSetKey(studentID))
}
