package reconcile

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/fsdevblog/groph-market/internal/domain"
)

type Servicer interface {
	StaleOrders(ctx context.Context, limit uint) ([]domain.Order, error)
	ReconcileOrder(ctx context.Context, order domain.Order) (string, error)
}
