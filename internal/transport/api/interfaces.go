package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/service"
)

type GatewayEventHandler interface {
	HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) (*service.ConfirmResult, error)
}

type EventVerifier interface {
	Verify(token string) (*domain.GatewayEvent, error)
}

// EventDeduplicator быстрый путь отбрасывания повторно доставленных событий.
type EventDeduplicator interface {
	MarkProcessed(ctx context.Context, eventID string) error
	Forget(ctx context.Context, eventID string) error
}
