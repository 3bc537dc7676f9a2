package subledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "ledger:subledger:version"
	bumpChannel      = "ledger.bump"
)

// Cache stores rendered statements in Redis under versioned keys. A nil
// Cache or one without a client computes every value directly.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	company string
}

// NewCache returns a cache scoped to one company.
func NewCache(client *redis.Client, ttl time.Duration, company string) *Cache {
	return &Cache{client: client, ttl: ttl, company: company}
}

func (c *Cache) versionKey() string {
	return versionKeyPrefix + ":" + c.company
}

// Version returns the company's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey(), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes a versioned key under the company namespace.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	joined := strings.Join(append([]string{"ledger", "subledger", c.company}, parts...), ":")
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every statement of the company and announces the new
// version to other processes.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey()).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, c.company+":"+strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows bumps published by other processes until ctx
// is done. Messages for other companies are ignored.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				company, raw, found := strings.Cut(msg.Payload, ":")
				if !found || company != c.company {
					continue
				}
				ver, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					_ = c.client.Incr(ctx, c.versionKey()).Err()
					continue
				}
				current, err := c.client.Get(ctx, c.versionKey()).Int64()
				if err == nil && current >= ver {
					continue
				}
				_ = c.client.Set(ctx, c.versionKey(), ver, 0).Err()
			}
		}
	}()
	return nil
}
