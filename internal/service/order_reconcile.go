package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Итоги сверки зависшего заказа.
const (
	ReconcileFulfilled   = "fulfilled"
	ReconcileCompensated = "compensated"
	ReconcilePaid        = "paid"
	ReconcileFailed      = "failed"
	ReconcileExpired     = "expired"
	ReconcilePending     = "pending"
	ReconcileSkipped     = "skipped"
	ReconcileError       = "error"
)

// StaleOrders возвращает не более limit заказов в незавершенных статусах, которые не менялись дольше
// reconcileAfter. Самые старые первыми.
func (o *OrderService) StaleOrders(ctx context.Context, limit uint) ([]domain.Order, error) {
	orders, err := o.orderRepo.ListStale(ctx, repoargs.StaleOrdersFilter{
		Statuses:      []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing},
		UpdatedBefore: o.now().Add(-o.reconcileAfter),
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("stale orders: %w", err)
	}
	return orders, nil
}

// ReconcileOrder доводит зависший заказ до согласованного состояния.
//
//   - PROCESSING/PAID: повторяет исполнение (сбой между оплатой и исполнением).
//   - PENDING/PENDING с оплатой кошельком: транзакция списания не была зафиксирована, заказ переводится в FAILED.
//   - PENDING/PENDING с оплатой через шлюз и ссылкой на намерение: запрашивает состояние намерения и применяет
//     его как подтверждение. Незавершенный платеж старше pendingExpiry считается просроченным.
//   - PENDING/PENDING с оплатой через шлюз без ссылки: после pendingExpiry переводится в FAILED.
//
// Возвращает код итога сверки.
func (o *OrderService) ReconcileOrder(ctx context.Context, order domain.Order) (_ string, err error) {
	ctx, span := o.tracer.Start(ctx, "OrderService.ReconcileOrder", trace.WithAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
	))
	defer func() { endSpan(span, err) }()

	outcome, reconcileErr := o.reconcile(ctx, order)
	if reconcileErr != nil {
		o.metrics.Reconciled(ReconcileError)
		return ReconcileError, fmt.Errorf("reconcile order %d: %w", order.ID, reconcileErr)
	}
	o.metrics.Reconciled(outcome)
	span.SetAttributes(attribute.String("reconcile.outcome", outcome))
	return outcome, nil
}

func (o *OrderService) reconcile(ctx context.Context, order domain.Order) (string, error) {
	switch {
	case order.Status.IsTerminal():
		return ReconcileSkipped, nil

	case order.Status == domain.OrderStatusProcessing && order.PaymentStatus == domain.PaymentStatusPaid:
		fulfilled, err := o.fulfill(ctx, order.ID)
		if err != nil {
			if fulfilled != nil && fulfilled.Status == domain.OrderStatusFailed {
				return ReconcileCompensated, nil
			}
			return "", err
		}
		return ReconcileFulfilled, nil

	case order.Status == domain.OrderStatusPending && order.PaymentStatus == domain.PaymentStatusPending:
		return o.reconcilePending(ctx, order)

	default:
		return ReconcileSkipped, nil
	}
}

func (o *OrderService) reconcilePending(ctx context.Context, order domain.Order) (string, error) {
	expired := order.CreatedAt.Before(o.now().Add(-o.pendingExpiry))

	if order.PaymentMethod == domain.PaymentMethodWallet {
		if _, err := o.failPending(ctx, order.ID,
			domain.NewFailureDetails("wallet debit not completed", false), "wallet debit not completed"); err != nil {
			return "", err
		}
		return ReconcileExpired, nil
	}

	if order.PaymentRef == "" {
		if !expired {
			return ReconcileSkipped, nil
		}
		if _, err := o.failPending(ctx, order.ID,
			domain.NewFailureDetails("payment intent missing", false), "payment expired"); err != nil {
			return "", err
		}
		return ReconcileExpired, nil
	}

	intent, retrieveErr := o.gateway.RetrieveIntent(ctx, order.PaymentRef)
	if retrieveErr != nil {
		// шлюз окончательно отверг ссылку: ждать больше нечего.
		if expired && errors.Is(retrieveErr, domain.ErrGatewayRejected) {
			if _, err := o.failPending(ctx, order.ID,
				domain.NewFailureDetails("payment intent missing", false), "payment expired"); err != nil {
				return "", err
			}
			return ReconcileExpired, nil
		}
		if !errors.Is(retrieveErr, domain.ErrGateway) {
			retrieveErr = fmt.Errorf("%w: %w", domain.ErrGateway, retrieveErr)
		}
		return "", retrieveErr
	}
	result, applyErr := o.applyIntent(ctx, intent, expired)
	if applyErr != nil {
		return "", applyErr
	}

	switch result.Status {
	case ConfirmSucceeded:
		return ReconcilePaid, nil
	case ConfirmPending:
		return ReconcilePending, nil
	case ConfirmFailed:
		if expired && intent.Status.IsPending() {
			return ReconcileExpired, nil
		}
		return ReconcileFailed, nil
	default:
		return ReconcileSkipped, nil
	}
}
