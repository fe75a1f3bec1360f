package repoargs

import (
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderCreate struct {
	OrderNumber   string
	BuyerID       int64
	MerchantID    int64
	TotalAmount   decimal.Decimal
	PaymentMethod domain.PaymentMethod
	Items         []OrderItemCreate
}

type OrderItemCreate struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderTransition переход заказа в новое состояние. PaymentDetails == nil оставляет прежние сведения.
type OrderTransition struct {
	OrderID        int64
	From           domain.OrderStatus
	FromPayment    domain.PaymentStatus
	To             domain.OrderStatus
	ToPayment      domain.PaymentStatus
	PaymentDetails *domain.PaymentDetails
	Reason         string
}

// StaleOrdersFilter выборка заказов, не менявшихся с UpdatedBefore.
type StaleOrdersFilter struct {
	Statuses      []domain.OrderStatus
	UpdatedBefore time.Time
	Limit         uint
}

type OrderItemBatchQueryRow func(i int, item *domain.OrderItem, err error)
