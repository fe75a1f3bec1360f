package gateway

import (
	"fmt"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// EventClaims полезная нагрузка подписанного события шлюза.
type EventClaims struct {
	jwt.RegisteredClaims
	Type      domain.GatewayEventType `json:"type"`
	IntentID  string                  `json:"intent_id"`
	Status    domain.IntentStatus     `json:"status"`
	LastError string                  `json:"last_error,omitempty"`
}

// Verifier проверяет подпись входящих событий шлюза общим секретом (HS256).
type Verifier struct {
	key []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{key: []byte(secret)}
}

// Verify проверяет подпись и возвращает событие. Любая ошибка разбора или подписи оборачивает
// domain.ErrInvalidSignature.
func (v *Verifier) Verify(token string) (*domain.GatewayEvent, error) {
	claims := new(EventClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuedAt())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}

	if claims.ID == "" || claims.Type == "" {
		return nil, fmt.Errorf("%w: event id or type is missing", domain.ErrInvalidSignature)
	}
	if claims.Type.IsPaymentOutcome() && claims.IntentID == "" {
		return nil, fmt.Errorf("%w: intent id is missing", domain.ErrInvalidSignature)
	}

	event := &domain.GatewayEvent{
		ID:        claims.ID,
		Type:      claims.Type,
		IntentID:  claims.IntentID,
		Status:    claims.Status,
		LastError: claims.LastError,
	}
	if claims.IssuedAt != nil {
		event.CreatedAt = claims.IssuedAt.Time
	}
	return event, nil
}

// SignEvent подписывает событие. Используется тестовым шлюзом и в тестах обработчика вебхуков.
func SignEvent(event domain.GatewayEvent, secret string) (string, error) {
	if event.ID == "" {
		event.ID = "evt_" + uuid.NewString()
	}
	issuedAt := event.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	claims := EventClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       event.ID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
		Type:      event.Type,
		IntentID:  event.IntentID,
		Status:    event.Status,
		LastError: event.LastError,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing gateway event: %w", err)
	}
	return token, nil
}
