package gateway

import (
	"fmt"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
)

// StatusCodeError ответ шлюза с неожиданным статусом.
type StatusCodeError struct {
	Code    int
	Message string
}

func NewStatusCodeError(code int, message string) *StatusCodeError {
	return &StatusCodeError{Code: code, Message: message}
}

func (e *StatusCodeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Unexpected status code %d", e.Code)
	}
	return fmt.Sprintf("Unexpected status code %d: %s", e.Code, e.Message)
}

func (e *StatusCodeError) Unwrap() error {
	if e.Code >= 400 && e.Code < 500 {
		return domain.ErrGatewayRejected
	}
	return domain.ErrGateway
}

// Temporary сообщает, имеет ли смысл повторить запрос.
func (e *StatusCodeError) Temporary() bool {
	return e.Code >= 500
}

type TooManyRequestError struct {
	RetryAfter time.Duration
}

func NewTooManyRequestError(retryAfter time.Duration) *TooManyRequestError {
	return &TooManyRequestError{RetryAfter: retryAfter}
}

func (e *TooManyRequestError) Error() string {
	return fmt.Sprintf("Too many requests. Need retry after %.f seconds", e.RetryAfter.Seconds())
}

func (e *TooManyRequestError) Unwrap() error {
	return domain.ErrGateway
}
