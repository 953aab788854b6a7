// Package scanguard keeps two scanners from redeeming the same ticket at once.
package scanguard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "scan:ticket:"

type Guard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Guard{rdb: rdb, ttl: ttl}
}

// Acquire reports false when another scan of ticketID holds the lock.
func (g *Guard) Acquire(ctx context.Context, ticketID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key(ticketID), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("scanguard: acquire %s: %w", ticketID, err)
	}
	return ok, nil
}

func (g *Guard) Release(ctx context.Context, ticketID string) error {
	if err := g.rdb.Del(ctx, key(ticketID)).Err(); err != nil {
		return fmt.Errorf("scanguard: release %s: %w", ticketID, err)
	}
	return nil
}

func key(ticketID string) string {
	return keyPrefix + ticketID
}

func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
