package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/subscription"
)

// DefaultTTL bounds how long a cached membership answer is trusted
const DefaultTTL = 30 * time.Second

// Cache wraps a SubscriptionStore and remembers its answers in Redis.
// Both positive and negative answers are cached. Redis failures fall through
// to the wrapped store; errors from the wrapped store are never cached.
type Cache struct {
	client redis.Cmdable
	next   objectgate.SubscriptionStore
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// Option configures the cache
type Option func(*Cache)

// WithTTL sets the lifetime of cached answers
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix (default "objectgate:")
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger used for cache failures
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New wraps next with a Redis cache
func New(client redis.Cmdable, next objectgate.SubscriptionStore, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		next:   next,
		ttl:    DefaultTTL,
		prefix: "objectgate:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(subscriberID, creatorID string) string {
	return fmt.Sprintf("%ssubscription:%s:%s", c.prefix, creatorID, subscriberID)
}

// HasActiveSubscription answers from Redis when it can, otherwise asks the
// wrapped store and caches the result
func (c *Cache) HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	key := c.key(subscriberID, creatorID)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case errors.Is(err, redis.Nil):
		// miss
	default:
		c.logger.Warn("Membership cache read failed", "key", key, "error", err)
	}

	ok, err := c.next.HasActiveSubscription(ctx, subscriberID, creatorID)
	if err != nil {
		return false, err
	}

	val = "0"
	if ok {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("Membership cache write failed", "key", key, "error", err)
	}
	return ok, nil
}

// Put writes sub through to the wrapped store and drops the cached answer
// for the pair so the change is visible on the next lookup
func (c *Cache) Put(ctx context.Context, sub subscription.Subscription) error {
	w, ok := c.next.(subscription.Writer)
	if !ok {
		return errors.New("wrapped subscription store is read-only")
	}
	if err := w.Put(ctx, sub); err != nil {
		return err
	}
	if err := c.invalidate(ctx, sub.SubscriberID, sub.CreatorID); err != nil {
		// the stale answer expires with the ttl
		c.logger.Warn("Failed to invalidate membership cache",
			"subscriber_id", sub.SubscriberID, "creator_id", sub.CreatorID, "error", err)
	}
	return nil
}

func (c *Cache) invalidate(ctx context.Context, subscriberID, creatorID string) error {
	return c.client.Del(ctx, c.key(subscriberID, creatorID)).Err()
}
