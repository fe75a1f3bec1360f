package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknown        = errors.New("unknown error")

	ErrValidation        = errors.New("validation error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidOperation  = errors.New("invalid operation")
	// ErrInvalidState попытка перехода, недопустимого из текущего состояния заказа.
	ErrInvalidState     = fmt.Errorf("%w: invalid state", ErrInvalidOperation)
	ErrGateway          = errors.New("external gateway error")
	// ErrGatewayRejected шлюз окончательно отклонил запрос (4xx, кроме 429).
	ErrGatewayRejected  = fmt.Errorf("%w: request rejected", ErrGateway)
	ErrDuplicateEvent   = errors.New("duplicate event")
	ErrInvalidSignature = errors.New("invalid signature")
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type InsufficientStockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func NewInsufficientStockError(productID, available, requested int64) error {
	return &InsufficientStockError{ProductID: productID, Available: available, Requested: requested}
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf(
		"insufficient stock for product %d: available %d, requested %d",
		e.ProductID,
		e.Available,
		e.Requested,
	)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
