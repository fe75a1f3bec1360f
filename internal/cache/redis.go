// Package cache быстрый слой поверх redis для подавления повторных событий шлюза.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect создает клиента redis и проверяет соединение через PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		DialTimeout:     3 * time.Second, //nolint:mnd
		ReadTimeout:     2 * time.Second, //nolint:mnd
		WriteTimeout:    2 * time.Second, //nolint:mnd
		MaxRetries:      3,               //nolint:mnd
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
