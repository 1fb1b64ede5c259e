package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// FeedItem is one community feed entry. The grid itself is not included.
type FeedItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary describes a stored share for maintenance listings.
type Summary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	InFeed    bool
}

// Feed returns the newest published shares. Entries whose record is missing
// or unreadable are skipped.
func (s *Store) Feed(ctx context.Context) ([]FeedItem, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.feedKey(), 0, int64(s.feedSize-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	items := make([]FeedItem, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.shareKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read feed records: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var rec struct {
			Meta Meta `json:"meta"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping unreadable feed record", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		title := rec.Meta.Title
		if title == "" {
			title = "Untitled Grid"
		}
		items = append(items, FeedItem{
			ID:        ids[i],
			Title:     title,
			ImageURL:  rec.Meta.ImageURL,
			CreatedAt: rec.Meta.CreatedAt,
		})
	}
	return items, nil
}

// AddToFeed publishes an existing share, scored by its creation time. It
// reports false when the share was already in the feed.
func (s *Store) AddToFeed(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	in, err := s.InFeed(ctx, id)
	if err != nil {
		return false, err
	}
	if in {
		return false, nil
	}
	created := rec.Meta.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if err := s.rdb.ZAdd(ctx, s.feedKey(), &redis.Z{Score: float64(created.UnixMilli()), Member: id}).Err(); err != nil {
		return false, fmt.Errorf("add %s to feed: %w", id, err)
	}
	return true, nil
}

// InFeed reports whether id is published.
func (s *Store) InFeed(ctx context.Context, id string) (bool, error) {
	err := s.rdb.ZScore(ctx, s.feedKey(), id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check feed for %s: %w", id, err)
	}
	return true, nil
}

// List scans every stored share, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	prefix := s.prefix + ":share:"
	var out []Summary
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":image") {
			continue
		}
		id := strings.TrimPrefix(key, prefix)
		rec, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping share", zap.String("key", key), zap.Error(err))
			continue
		}
		in, err := s.InFeed(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{ID: id, Title: rec.Meta.Title, CreatedAt: rec.Meta.CreatedAt, InFeed: in})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan shares: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

const feedCacheKey = "feed"

// FeedCache serves the community feed from memory for a short TTL.
type FeedCache struct {
	store *Store
	cache *cache.Cache
}

// NewFeedCache caches store's feed for ttl.
func NewFeedCache(store *Store, ttl time.Duration) *FeedCache {
	return &FeedCache{store: store, cache: cache.New(ttl, 2*ttl)}
}

// Feed returns the cached feed, reading through to Redis on a miss.
func (c *FeedCache) Feed(ctx context.Context) ([]FeedItem, error) {
	if v, ok := c.cache.Get(feedCacheKey); ok {
		return v.([]FeedItem), nil
	}
	items, err := c.store.Feed(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(feedCacheKey, items)
	return items, nil
}

// Invalidate drops the cached feed.
func (c *FeedCache) Invalidate() { c.cache.Delete(feedCacheKey) }
