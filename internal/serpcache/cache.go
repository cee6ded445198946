// Package serpcache caches SERP results in Redis so repeated deep dives on
// the same keyword do not spend search credits.
package serpcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const defaultPrefix = "seoagent:serp:"

// Searcher runs a search against the live SERP provider.
type Searcher interface {
	Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error)
}

// HitRecorder is told about each cache lookup.
type HitRecorder interface {
	ObserveCache(table string, hit bool)
}

// Cache wraps a Searcher with a Redis read-through cache. Redis failures
// fall through to the live searcher.
type Cache struct {
	next    Searcher
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	metrics HitRecorder
}

type Option func(*Cache)

func WithPrefix(p string) Option { return func(c *Cache) { c.prefix = p } }
func WithMetrics(m HitRecorder) Option { return func(c *Cache) { c.metrics = m } }

func New(next Searcher, client *redis.Client, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{next: next, client: client, ttl: ttl, prefix: defaultPrefix}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func (c *Cache) key(q seo.SERPQuery) string {
	norm := strings.ToLower(strings.Join(strings.Fields(q.Keyword), " "))
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d", norm, q.Language, q.Country, q.Num)))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *Cache) Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error) {
	key := c.key(q)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var res seo.SERPResult
		if uerr := json.Unmarshal(data, &res); uerr == nil {
			c.observe(true)
			return res, nil
		}
		slog.Warn("serp cache entry corrupt, refetching", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		slog.Warn("serp cache read failed", "error", err)
	}
	c.observe(false)

	res, err := c.next.Search(ctx, q)
	if err != nil {
		return seo.SERPResult{}, err
	}
	if len(res.Organic) == 0 {
		return res, nil
	}
	if payload, err := json.Marshal(res); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			slog.Warn("serp cache write failed", "error", err)
		}
	}
	return res, nil
}

func (c *Cache) observe(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCache("serp", hit)
	}
}
