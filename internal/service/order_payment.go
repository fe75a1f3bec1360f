package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ConfirmStatus string

const (
	ConfirmSucceeded        ConfirmStatus = "succeeded"
	ConfirmAlreadyProcessed ConfirmStatus = "already_processed"
	ConfirmPending          ConfirmStatus = "pending"
	ConfirmFailed           ConfirmStatus = "failed"
	ConfirmIgnored          ConfirmStatus = "ignored"
)

// ConfirmResult итог обработки подтверждения платежа.
type ConfirmResult struct {
	OrderID int64
	Status  ConfirmStatus
}

// payWithWallet списывает оплату с кошелька покупателя и исполняет заказ.
func (o *OrderService) payWithWallet(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	var paid *domain.Order
	debitErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, order.ID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != domain.OrderStatusPending || locked.PaymentStatus != domain.PaymentStatusPending {
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}
		entry, postErr := o.ledger.postTx(c, tx, locked.BuyerID, posting{
			Kind:          domain.EntryKindPayment,
			Amount:        locked.TotalAmount,
			CounterpartID: &locked.MerchantID,
			Description:   "Payment for order " + locked.OrderNumber,
			Metadata:      domain.NewOrderCorrelation(locked.ID, locked.OrderNumber),
		})
		if postErr != nil {
			return postErr
		}
		var trErr error
		paid, trErr = o.transitionTx(c, tx, locked,
			domain.OrderStatusProcessing, domain.PaymentStatusPaid,
			domain.NewWalletDebitDetails(entry.ID), "wallet debit")
		return trErr
	})
	o.metrics.LedgerOperation(string(domain.EntryKindPayment), debitErr)

	if debitErr != nil {
		if errors.Is(debitErr, domain.ErrInvalidState) {
			// заказ успели перевести другим путем, например отменой покупателя.
			current, findErr := o.orderRepo.FindByID(ctx, order.ID)
			if findErr != nil {
				return nil, fmt.Errorf("pay order %s: %w", order.OrderNumber, errors.Join(debitErr, findErr))
			}
			return current, fmt.Errorf("pay order %s: %w", order.OrderNumber, debitErr)
		}
		if !isBusinessErr(debitErr) {
			// заказ остается PENDING, его подберет сверка.
			return order, fmt.Errorf("pay order %s: %w", order.OrderNumber, debitErr)
		}
		failed, failErr := o.failPending(ctx, order.ID,
			domain.NewFailureDetails(failureReason(debitErr), false), "wallet debit failed")
		if failErr != nil {
			return order, fmt.Errorf("pay order %s: %w", order.OrderNumber, errors.Join(debitErr, failErr))
		}
		return failed, fmt.Errorf("pay order %s: %w", order.OrderNumber, debitErr)
	}

	o.committed(ctx, order.Status, paid, domain.OrderEventPaid)
	return o.fulfill(ctx, paid.ID)
}

// payWithGateway создает платежное намерение и сохраняет ссылку на него. Заказ остается PENDING/PENDING до
// подтверждения от шлюза.
func (o *OrderService) payWithGateway(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	intent, intentErr := o.gateway.CreateIntent(ctx, domain.CreateIntentArgs{
		Amount:         order.TotalAmount,
		Currency:       o.currency,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		IdempotencyKey: order.OrderNumber,
	})
	if intentErr != nil {
		if errors.Is(intentErr, context.Canceled) || errors.Is(intentErr, context.DeadlineExceeded) {
			// ответа от шлюза нет, намерение могло быть создано. Заказ считается ожидающим.
			return order, fmt.Errorf("create payment intent for order %s: %w", order.OrderNumber, intentErr)
		}
		if !errors.Is(intentErr, domain.ErrGateway) {
			intentErr = fmt.Errorf("%w: %w", domain.ErrGateway, intentErr)
		}
		failed, failErr := o.failPending(context.WithoutCancel(ctx), order.ID,
			domain.NewFailureDetails(failureReason(intentErr), false), "payment intent creation failed")
		if failErr != nil {
			return order, fmt.Errorf("create payment intent for order %s: %w",
				order.OrderNumber, errors.Join(intentErr, failErr))
		}
		return failed, fmt.Errorf("create payment intent for order %s: %w", order.OrderNumber, intentErr)
	}

	var pending *domain.Order
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, order.ID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != domain.OrderStatusPending || locked.PaymentStatus != domain.PaymentStatusPending {
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}
		orders, repoErr := uow.GetAs[OrderRepository](tx, orderRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		details := domain.NewIntentDetails(intent)
		if err := orders.SetPaymentRef(c, locked.ID, intent.ID, details); err != nil {
			return err //nolint:wrapcheck
		}
		locked.PaymentRef = intent.ID
		locked.PaymentDetails = details
		pending = locked
		return nil
	})
	if txErr != nil {
		o.l.WithError(txErr).WithFields(logrus.Fields{
			"order_id":  order.ID,
			"intent_id": intent.ID,
		}).Error("payment intent created but not attached to order")
		return order, fmt.Errorf("attach payment intent to order %s: %w", order.OrderNumber, txErr)
	}
	return pending, nil
}

// HandleGatewayEvent точка входа для проверенных событий шлюза. События, не влияющие на оплату, игнорируются.
func (o *OrderService) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) (*ConfirmResult, error) {
	if !event.Type.IsPaymentOutcome() {
		o.l.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Debug("gateway event ignored")
		return &ConfirmResult{Status: ConfirmIgnored}, nil
	}
	return o.ConfirmGatewayPayment(ctx, event.IntentID)
}

// ConfirmGatewayPayment применяет актуальное состояние платежного намерения intentID к заказу.
//
// Повторное подтверждение уже оплаченного заказа ничего не меняет и возвращает ConfirmAlreadyProcessed.
// Состояние намерения запрашивается у шлюза до взятия блокировки заказа.
func (o *OrderService) ConfirmGatewayPayment(ctx context.Context, intentID string) (_ *ConfirmResult, err error) {
	ctx, span := o.tracer.Start(ctx, "OrderService.ConfirmGatewayPayment",
		trace.WithAttributes(attribute.String("payment.intent_id", intentID)))
	defer func() { endSpan(span, err) }()

	existing, findErr := o.orderRepo.FindByPaymentRef(ctx, intentID)
	if findErr != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", intentID, findErr)
	}
	if isSettled(existing) {
		return &ConfirmResult{OrderID: existing.ID, Status: ConfirmAlreadyProcessed}, nil
	}

	intent, retrieveErr := o.gateway.RetrieveIntent(ctx, intentID)
	if retrieveErr != nil {
		if !errors.Is(retrieveErr, domain.ErrGateway) {
			retrieveErr = fmt.Errorf("%w: %w", domain.ErrGateway, retrieveErr)
		}
		return nil, fmt.Errorf("confirm payment %s: %w", intentID, retrieveErr)
	}

	result, applyErr := o.applyIntent(ctx, intent, false)
	if applyErr != nil {
		return nil, applyErr
	}
	span.SetAttributes(attribute.String("payment.confirm_status", string(result.Status)))
	return result, nil
}

// applyIntent переводит заказ, привязанный к intent, по его состоянию. При expire незавершенный платеж
// считается просроченным и заказ переводится в FAILED.
func (o *OrderService) applyIntent(
	ctx context.Context,
	intent *domain.PaymentIntent,
	expire bool,
) (*ConfirmResult, error) {
	var (
		result  ConfirmResult
		from    domain.OrderStatus
		changed *domain.Order
		event   domain.OrderEventType
	)
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orders, repoErr := uow.GetAs[OrderRepository](tx, orderRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		locked, lockErr := orders.LockByPaymentRef(c, intent.ID)
		if lockErr != nil {
			return lockErr //nolint:wrapcheck
		}
		result.OrderID = locked.ID

		if isSettled(locked) {
			result.Status = ConfirmAlreadyProcessed
			return nil
		}
		if locked.Status != domain.OrderStatusPending || locked.PaymentStatus != domain.PaymentStatusPending {
			if intent.Status != domain.IntentStatusSucceeded {
				result.Status = ConfirmAlreadyProcessed
				return nil
			}
			o.l.WithFields(logrus.Fields{
				"order_id":  locked.ID,
				"intent_id": intent.ID,
				"status":    locked.Status,
			}).Error("payment succeeded for closed order, external refund required")
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}

		from = locked.Status
		var trErr error
		switch {
		case intent.Status == domain.IntentStatusSucceeded:
			changed, trErr = o.transitionTx(c, tx, locked,
				domain.OrderStatusProcessing, domain.PaymentStatusPaid,
				domain.NewIntentDetails(intent), "gateway payment succeeded")
			result.Status = ConfirmSucceeded
			event = domain.OrderEventPaid
		case intent.Status.IsPending() && !expire:
			trErr = orders.UpdatePaymentDetails(c, locked.ID, domain.NewIntentDetails(intent))
			result.Status = ConfirmPending
		default:
			reason := "gateway payment " + string(intent.Status)
			if intent.Status.IsPending() {
				reason = "payment expired"
			}
			if intent.LastError != "" {
				reason += ": " + intent.LastError
			}
			changed, trErr = o.transitionTx(c, tx, locked,
				domain.OrderStatusFailed, domain.PaymentStatusFailed,
				domain.NewFailureDetails(reason, false), reason)
			result.Status = ConfirmFailed
			event = domain.OrderEventFailed
		}
		return trErr
	})
	if txErr != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", intent.ID, txErr)
	}
	if changed != nil {
		o.committed(ctx, from, changed, event)
	}

	if result.Status == ConfirmSucceeded {
		fulfilled, fulfillErr := o.fulfill(ctx, result.OrderID)
		if fulfillErr != nil {
			if fulfilled == nil || fulfilled.Status != domain.OrderStatusFailed {
				return nil, fulfillErr
			}
			// оплата принята, но исполнить заказ не удалось. Компенсация уже записана.
			result.Status = ConfirmFailed
		}
	}
	return &result, nil
}

// failPending переводит ожидающий оплаты заказ в FAILED/FAILED.
func (o *OrderService) failPending(
	ctx context.Context,
	orderID int64,
	details *domain.PaymentDetails,
	reason string,
) (*domain.Order, error) {
	var failed *domain.Order
	var from domain.OrderStatus
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, orderID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != domain.OrderStatusPending || locked.PaymentStatus != domain.PaymentStatusPending {
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}
		from = locked.Status
		var trErr error
		failed, trErr = o.transitionTx(c, tx, locked,
			domain.OrderStatusFailed, domain.PaymentStatusFailed, details, reason)
		return trErr
	})
	if txErr != nil {
		return nil, fmt.Errorf("fail order %d: %w", orderID, txErr)
	}
	o.committed(ctx, from, failed, domain.OrderEventFailed)
	return failed, nil
}

// isSettled сообщает, что деньги по заказу уже получены или возвращены.
func isSettled(order *domain.Order) bool {
	return order.PaymentStatus == domain.PaymentStatusPaid || order.PaymentStatus == domain.PaymentStatusRefunded
}
