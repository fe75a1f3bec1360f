package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Email     string
	Role      UserRole
	Balance   decimal.Decimal
}

type Product struct {
	ID             int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	MerchantID     int64
	Name           string
	Price          decimal.Decimal
	AvailableUnits int64
	IsActive       bool
}

// LedgerEntry неизменяемая запись об изменении баланса. Amount хранится со знаком.
type LedgerEntry struct {
	ID            int64
	CreatedAt     time.Time
	UserID        int64
	CounterpartID *int64
	Kind          EntryKind
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	Metadata      *EntryMetadata
}

type Order struct {
	ID             int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	OrderNumber    string
	BuyerID        int64
	MerchantID     int64
	TotalAmount    decimal.Decimal
	Status         OrderStatus
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	PaymentRef     string
	PaymentDetails *PaymentDetails
	Items          []OrderItem
}

type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderTransition запись журнала переходов заказа.
type OrderTransition struct {
	ID                int64
	CreatedAt         time.Time
	OrderID           int64
	FromStatus        OrderStatus
	ToStatus          OrderStatus
	FromPaymentStatus PaymentStatus
	ToPaymentStatus   PaymentStatus
	Reason            string
}

// OrderEvent уведомление о заказе для внешних подписчиков.
type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderID       int64          `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	BuyerID       int64          `json:"buyer_id"`
	MerchantID    int64          `json:"merchant_id"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	TotalAmount   string         `json:"total_amount"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func NewOrderEvent(eventType OrderEventType, order *Order) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		MerchantID:    order.MerchantID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount.StringFixed(MoneyScale),
		OccurredAt:    time.Now().UTC(),
	}
}
