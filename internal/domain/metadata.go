package domain

import "time"

type EntryMetadataKind string

const (
	EntryMetadataOrderCorrelation EntryMetadataKind = "order_correlation"
)

// EntryMetadata метаданные записи журнала. Допустим только вариант order_correlation.
type EntryMetadata struct {
	Kind        EntryMetadataKind `json:"kind"`
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number,omitempty"`
}

func NewOrderCorrelation(orderID int64, orderNumber string) *EntryMetadata {
	return &EntryMetadata{
		Kind:        EntryMetadataOrderCorrelation,
		OrderID:     orderID,
		OrderNumber: orderNumber,
	}
}

func (m *EntryMetadata) Validate() error {
	if m == nil {
		return nil
	}
	switch m.Kind {
	case EntryMetadataOrderCorrelation:
		if m.OrderID <= 0 {
			return NewValidationError("metadata.order_id", "must be positive")
		}
		return nil
	default:
		return NewValidationError("metadata.kind", "unsupported variant "+string(m.Kind))
	}
}

type PaymentDetailsKind string

const (
	PaymentDetailsWalletDebit   PaymentDetailsKind = "wallet_debit"
	PaymentDetailsGatewayIntent PaymentDetailsKind = "gateway_intent"
	PaymentDetailsFailure       PaymentDetailsKind = "failure"
)

// PaymentDetails сведения о платеже заказа. Набор полей определяется Kind.
type PaymentDetails struct {
	Kind           PaymentDetailsKind `json:"kind"`
	EntryID        int64              `json:"entry_id,omitempty"`
	IntentStatus   IntentStatus       `json:"intent_status,omitempty"`
	ClientSecret   string             `json:"client_secret,omitempty"`
	LastError      string             `json:"last_error,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	RefundRequired bool               `json:"refund_required,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func NewWalletDebitDetails(entryID int64) *PaymentDetails {
	return &PaymentDetails{Kind: PaymentDetailsWalletDebit, EntryID: entryID, UpdatedAt: time.Now().UTC()}
}

func NewIntentDetails(intent *PaymentIntent) *PaymentDetails {
	return &PaymentDetails{
		Kind:         PaymentDetailsGatewayIntent,
		IntentStatus: intent.Status,
		ClientSecret: intent.ClientSecret,
		LastError:    intent.LastError,
		UpdatedAt:    time.Now().UTC(),
	}
}

func NewFailureDetails(reason string, refundRequired bool) *PaymentDetails {
	return &PaymentDetails{
		Kind:           PaymentDetailsFailure,
		Reason:         reason,
		RefundRequired: refundRequired,
		UpdatedAt:      time.Now().UTC(),
	}
}

func (d *PaymentDetails) Validate() error {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case PaymentDetailsWalletDebit:
		if d.EntryID <= 0 {
			return NewValidationError("payment_details.entry_id", "must be positive")
		}
	case PaymentDetailsGatewayIntent:
		if d.IntentStatus == "" {
			return NewValidationError("payment_details.intent_status", "is required")
		}
	case PaymentDetailsFailure:
		if d.Reason == "" {
			return NewValidationError("payment_details.reason", "is required")
		}
	default:
		return NewValidationError("payment_details.kind", "unsupported variant "+string(d.Kind))
	}
	return nil
}
