package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WebhookHandler struct {
	orderSvs GatewayEventHandler
	verifier EventVerifier
	dedup    EventDeduplicator
	l        *logrus.Entry
}

func NewWebhookHandler(
	orderSvs GatewayEventHandler,
	verifier EventVerifier,
	dedup EventDeduplicator,
	l *logrus.Logger,
) *WebhookHandler {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &WebhookHandler{
		orderSvs: orderSvs,
		verifier: verifier,
		dedup:    dedup,
		l: l.WithFields(logrus.Fields{
			"component": "api",
			"module":    "gateway_webhook",
		}),
	}
}

type WebhookResponse struct {
	OrderID int64                 `json:"order_id,omitempty"`
	Status  service.ConfirmStatus `json:"status"`
}

// Handle POST RouteGroup + WebhookRoute. Тело запроса подписанное событие шлюза (HS256 JWS).
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	event, verifyErr := h.verifier.Verify(strings.TrimSpace(string(body)))
	if verifyErr != nil {
		h.l.WithError(verifyErr).Warn("rejected gateway event")
		_ = c.AbortWithError(http.StatusBadRequest, domain.ErrInvalidSignature).SetType(gin.ErrorTypePublic)
		return
	}

	l := h.l.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"intent_id":  event.IntentID,
	})

	if markErr := h.dedup.MarkProcessed(c, event.ID); markErr != nil {
		if errors.Is(markErr, domain.ErrDuplicateEvent) {
			l.Debug("duplicate gateway event")
			c.JSON(http.StatusOK, WebhookResponse{Status: service.ConfirmAlreadyProcessed})
			return
		}
		// без redis событие все равно безопасно применить повторно.
		l.WithError(markErr).Warn("event deduplication unavailable")
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	result, handleErr := h.orderSvs.HandleGatewayEvent(reqCtx, *event)
	if handleErr != nil {
		// шлюз повторит доставку, отметка не должна ее отбросить.
		if forgetErr := h.dedup.Forget(context.WithoutCancel(c), event.ID); forgetErr != nil {
			l.WithError(forgetErr).Warn("forget gateway event")
		}

		status := webhookErrorStatus(handleErr)
		if status >= http.StatusInternalServerError {
			l.WithError(handleErr).Error("handle gateway event")
		} else {
			l.WithError(handleErr).Warn("handle gateway event")
		}
		_ = c.AbortWithError(status, handleErr).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{OrderID: result.OrderID, Status: result.Status})
}

func webhookErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
