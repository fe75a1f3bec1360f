package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	LockByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
}

type LedgerRepository interface {
	Create(ctx context.Context, args repoargs.LedgerEntryCreate) (*domain.LedgerEntry, error)
	ListByUser(ctx context.Context, userID int64, page repoargs.Pagination) ([]domain.LedgerEntry, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error)
	ExistsForOrder(ctx context.Context, userID int64, kind domain.EntryKind, orderID int64) (bool, error)
}

type ProductRepository interface {
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error)
	Decrement(ctx context.Context, productID, quantity int64) error
	Increment(ctx context.Context, productID, quantity int64) error
}

type OrderRepository interface {
	Create(ctx context.Context, args repoargs.OrderCreate) (*domain.Order, error)
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	LockByID(ctx context.Context, id int64) (*domain.Order, error)
	FindByPaymentRef(ctx context.Context, ref string) (*domain.Order, error)
	LockByPaymentRef(ctx context.Context, ref string) (*domain.Order, error)
	Transition(ctx context.Context, args repoargs.OrderTransition) (*domain.Order, error)
	SetPaymentRef(ctx context.Context, id int64, ref string, details *domain.PaymentDetails) error
	UpdatePaymentDetails(ctx context.Context, id int64, details *domain.PaymentDetails) error
	ListStale(ctx context.Context, filter repoargs.StaleOrdersFilter) ([]domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID int64, status domain.OrderStatus) ([]domain.Order, error)
	ListByMerchant(ctx context.Context, merchantID int64, status domain.OrderStatus) ([]domain.Order, error)
}

// PaymentGateway внешний платежный шлюз. Вызовы выполняются только вне транзакций.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, args domain.CreateIntentArgs) (*domain.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

type MetricsRecorder interface {
	LedgerOperation(kind string, err error)
	OrderTransition(from, to string)
	Reconciled(outcome string)
}
