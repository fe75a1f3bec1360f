package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus статус платежного намерения на стороне шлюза.
type IntentStatus string

const (
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

// IsPending сообщает, что платеж еще может завершиться успехом.
func (s IntentStatus) IsPending() bool {
	switch s {
	case IntentStatusProcessing,
		IntentStatusRequiresPaymentMethod,
		IntentStatusRequiresConfirmation,
		IntentStatusRequiresAction:
		return true
	default:
		return false
	}
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	LastError    string
}

type CreateIntentArgs struct {
	Amount         decimal.Decimal
	Currency       string
	OrderID        int64
	OrderNumber    string
	IdempotencyKey string
}

type GatewayEventType string

const (
	GatewayEventPaymentSucceeded GatewayEventType = "payment_intent.succeeded"
	GatewayEventPaymentFailed    GatewayEventType = "payment_intent.payment_failed"
	GatewayEventPaymentCanceled  GatewayEventType = "payment_intent.canceled"
)

// IsPaymentOutcome сообщает, влияет ли событие на статус оплаты заказа.
func (t GatewayEventType) IsPaymentOutcome() bool {
	switch t {
	case GatewayEventPaymentSucceeded, GatewayEventPaymentFailed, GatewayEventPaymentCanceled:
		return true
	default:
		return false
	}
}

// GatewayEvent проверенное входящее событие шлюза.
type GatewayEvent struct {
	ID        string
	Type      GatewayEventType
	IntentID  string
	Status    IntentStatus
	LastError string
	CreatedAt time.Time
}
