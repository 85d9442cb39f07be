// Package cache provides a Redis read-through cache for the product catalog.
package cache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

var _ product.Repository = (*Products)(nil)

// Products caches single product lookups in Redis in front of another
// product.Repository. Writes go to the backing repository first and then
// drop the cached entry and bump its generation; a load that overlapped the
// write is not cached. Redis failures are logged and the backing repository
// is used instead.
type Products struct {
	next    product.Repository
	client  redis.UniversalClient
	baseTTL time.Duration
	jitter  time.Duration
}

// NewProducts wraps next with a Redis cache. Entries live for ttl plus up to
// a fifth of ttl of random jitter.
func NewProducts(next product.Repository, client redis.UniversalClient, ttl time.Duration) *Products {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Products{
		next:    next,
		client:  client,
		baseTTL: ttl,
		jitter:  ttl / 5,
	}
}

// Both keys of a product share a hash tag so they live in one cluster slot.
func cacheKey(id string) string {
	return fmt.Sprintf("product:{%s}", id)
}

// genKey counts the writes to a product. A reader captures it before loading
// from the backing repository and may only fill the cache if it is unchanged.
func genKey(id string) string {
	return fmt.Sprintf("product:{%s}:gen", id)
}

// errStaleFill aborts a fill that raced with a write.
var errStaleFill = errors.New("product changed while loading")

// Get returns the cached product or ErrCacheMiss.
func (c *Products) Get(ctx context.Context, id string) (*product.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	p, err := decodeProduct(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cached product")
	}
	return &p, nil
}

// Invalidate drops the cached entry of id and bumps its generation, so fills
// started before the call are discarded.
func (c *Products) Invalidate(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis invalidate")
	}
	return nil
}

// snapshot fetches the cached entries of ids and their generations in one
// MGET. Missing generations read as 0.
func (c *Products) snapshot(ctx context.Context, ids []string) (entries []any, gens []int64, err error) {
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, cacheKey(id))
	}
	for _, id := range ids {
		keys = append(keys, genKey(id))
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, errors.Wrap(err, "redis mget")
	}
	gens = make([]int64, len(ids))
	for i, v := range vals[len(ids):] {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if gens[i], err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, nil, errors.Wrapf(err, "parse generation of %s", ids[i])
		}
	}
	return vals[:len(ids)], gens, nil
}

func (c *Products) ttl() time.Duration {
	if c.jitter <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + rand.N(c.jitter)
}

// List is not cached.
func (c *Products) List(ctx context.Context) ([]product.Product, error) {
	return c.next.List(ctx)
}

func (c *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	entries, gens, err := c.snapshot(ctx, []string{id})
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
		return c.next.GetByID(ctx, id)
	}
	if s, ok := entries[0].(string); ok {
		if p, err := decodeProduct([]byte(s)); err == nil {
			return &p, nil
		}
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, p, gens[0])
	return p, nil
}

// GetByIDs serves hits from one MGET and loads the rest from the backing
// repository in a single call.
func (c *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	entries, gens, err := c.snapshot(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Product cache batch read failed", zap.Error(err))
		return c.next.GetByIDs(ctx, ids)
	}

	out := make([]product.Product, 0, len(ids))
	var missing []string
	missingGen := make(map[string]int64)
	for i, v := range entries {
		if s, ok := v.(string); ok {
			if p, err := decodeProduct([]byte(s)); err == nil {
				out = append(out, p)
				continue
			}
		}
		missing = append(missing, ids[i])
		missingGen[ids[i]] = gens[i]
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		c.fill(ctx, &loaded[i], missingGen[loaded[i].ID])
	}
	return append(out, loaded...), nil
}

func (c *Products) Create(ctx context.Context, p *product.Product) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.drop(ctx, p.ID)
	return nil
}

func (c *Products) Update(ctx context.Context, p *product.Product) error {
	if err := c.next.Update(ctx, p); err != nil {
		return err
	}
	c.drop(ctx, p.ID)
	return nil
}

// fill caches p unless the product was written after gen was read.
func (c *Products) fill(ctx context.Context, p *product.Product, gen int64) {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(p.ID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(p.ID), encodeProduct(p), c.ttl())
			return nil
		})
		return err
	}, genKey(p.ID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		zctx.From(ctx).Debug("Product cache fill skipped: concurrent write", zap.String("product_id", p.ID))
	default:
		zctx.From(ctx).Warn("Product cache fill failed", zap.String("product_id", p.ID), zap.Error(err))
	}
}

func (c *Products) drop(ctx context.Context, id string) {
	if err := c.Invalidate(ctx, id); err != nil {
		zctx.From(ctx).Error("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}
