package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix  = "market:gateway_event:"
	DefaultEventTTL = 72 * time.Hour
)

// EventDeduplicator помечает события шлюза как принятые. Это только быстрый путь: повторное применение
// события все равно безопасно на уровне заказа.
type EventDeduplicator struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewEventDeduplicator(client redis.Cmdable, ttl time.Duration) *EventDeduplicator {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventDeduplicator{client: client, ttl: ttl}
}

// MarkProcessed атомарно помечает событие. Возвращает domain.ErrDuplicateEvent, если событие уже было
// помечено ранее.
func (d *EventDeduplicator) MarkProcessed(ctx context.Context, eventID string) error {
	first, err := d.client.SetNX(ctx, eventKeyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	if !first {
		return fmt.Errorf("mark event %s: %w", eventID, domain.ErrDuplicateEvent)
	}
	return nil
}

// Forget снимает отметку, чтобы повторная доставка события после ошибки обработки не была отброшена.
func (d *EventDeduplicator) Forget(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("forget event %s: %w", eventID, err)
	}
	return nil
}

// NopDeduplicator используется без redis: каждое событие считается новым.
type NopDeduplicator struct{}

func (NopDeduplicator) MarkProcessed(context.Context, string) error {
	return nil
}

func (NopDeduplicator) Forget(context.Context, string) error {
	return nil
}
