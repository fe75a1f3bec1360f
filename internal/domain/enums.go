package domain

type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleMerchant UserRole = "merchant"
	UserRoleAdmin    UserRole = "admin"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodWallet  PaymentMethod = "WALLET"
	PaymentMethodGateway PaymentMethod = "GATEWAY"
)

type EntryKind string

const (
	EntryKindDeposit     EntryKind = "deposit"
	EntryKindWithdrawal  EntryKind = "withdrawal"
	EntryKindPayment     EntryKind = "payment"
	EntryKindEarning     EntryKind = "earning"
	EntryKindRefund      EntryKind = "refund"
	EntryKindTransferOut EntryKind = "transfer_out"
	EntryKindTransferIn  EntryKind = "transfer_in"
	EntryKindFee         EntryKind = "fee"
)

// IsDebit сообщает, уменьшает ли запись данного вида баланс.
func (k EntryKind) IsDebit() bool {
	switch k {
	case EntryKindWithdrawal, EntryKindPayment, EntryKindTransferOut, EntryKindFee:
		return true
	default:
		return false
	}
}

// OrderEventType тип уведомления о жизненном цикле заказа.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "created"
	OrderEventPaid      OrderEventType = "paid"
	OrderEventCompleted OrderEventType = "completed"
	OrderEventFailed    OrderEventType = "failed"
	OrderEventCancelled OrderEventType = "cancelled"
	OrderEventRefunded  OrderEventType = "refunded"
)
