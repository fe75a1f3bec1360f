package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fulfill исполняет оплаченный заказ: списывает остатки по всем позициям и зачисляет выручку продавцу.
// Остатки списываются ровно один раз, на переходе PROCESSING -> COMPLETED. Для уже исполненного заказа
// ничего не делает.
//
// Если исполнение невозможно по бизнес причине, запускается компенсация и возвращается заказ в
// состоянии FAILED вместе с исходной ошибкой.
func (o *OrderService) fulfill(ctx context.Context, orderID int64) (*domain.Order, error) {
	var (
		completed *domain.Order
		from      domain.OrderStatus
		done      bool
	)
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, orderID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status == domain.OrderStatusCompleted {
			completed, done = locked, true
			return nil
		}
		if locked.Status != domain.OrderStatusProcessing || locked.PaymentStatus != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}

		items := slices.Clone(locked.Items)
		slices.SortFunc(items, func(a, b domain.OrderItem) int {
			return cmp.Compare(a.ProductID, b.ProductID)
		})
		for _, item := range items {
			if err := o.stock.decrementTx(c, tx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("reserve %d units of product %d: %w", item.Quantity, item.ProductID, err)
			}
		}

		if _, postErr := o.ledger.postTx(c, tx, locked.MerchantID, posting{
			Kind:          domain.EntryKindEarning,
			Amount:        locked.TotalAmount,
			CounterpartID: &locked.BuyerID,
			Description:   "Earnings from order " + locked.OrderNumber,
			Metadata:      domain.NewOrderCorrelation(locked.ID, locked.OrderNumber),
		}); postErr != nil {
			return postErr
		}

		from = locked.Status
		var trErr error
		completed, trErr = o.transitionTx(c, tx, locked,
			domain.OrderStatusCompleted, domain.PaymentStatusPaid, nil, "fulfilled")
		return trErr
	})
	if txErr != nil {
		if isBusinessErr(txErr) {
			return o.compensate(ctx, orderID, txErr)
		}
		return nil, fmt.Errorf("fulfill order %d: %w", orderID, txErr)
	}
	if !done {
		o.metrics.LedgerOperation(string(domain.EntryKindEarning), nil)
		o.committed(ctx, from, completed, domain.OrderEventCompleted)
	}
	return completed, nil
}

// compensate фиксирует неудачное исполнение оплаченного заказа. Оплату кошельком возвращает покупателю
// записью refund, для оплаты через шлюз помечает, что требуется внешний возврат.
func (o *OrderService) compensate(ctx context.Context, orderID int64, cause error) (*domain.Order, error) {
	var (
		failed   *domain.Order
		from     domain.OrderStatus
		refunded bool
	)
	reason := "fulfillment failed: " + failureReason(cause)

	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, orderID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != domain.OrderStatusProcessing || locked.PaymentStatus != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}
		from = locked.Status

		var trErr error
		if locked.PaymentMethod == domain.PaymentMethodWallet {
			if _, refundErr := o.ledger.refundTx(c, tx, locked); refundErr != nil {
				return refundErr
			}
			refunded = true
			failed, trErr = o.transitionTx(c, tx, locked,
				domain.OrderStatusFailed, domain.PaymentStatusRefunded,
				domain.NewFailureDetails(reason, false), reason)
			return trErr
		}
		failed, trErr = o.transitionTx(c, tx, locked,
			domain.OrderStatusFailed, domain.PaymentStatusPaid,
			domain.NewFailureDetails(reason, true), reason)
		return trErr
	})

	log := o.l.WithFields(logrus.Fields{"order_id": orderID, "reason": reason})
	if txErr != nil {
		log.WithError(txErr).Error("order compensation failed")
		return nil, fmt.Errorf("fulfill order %d: %w", orderID, errors.Join(cause, txErr))
	}

	if refunded {
		o.metrics.LedgerOperation(string(domain.EntryKindRefund), nil)
		o.committed(ctx, from, failed, domain.OrderEventFailed, domain.OrderEventRefunded)
		log.Warn("order failed after payment, wallet payment refunded")
	} else {
		o.committed(ctx, from, failed, domain.OrderEventFailed)
		log.WithField("payment_ref", failed.PaymentRef).Error("order failed after gateway payment, external refund required")
	}
	return failed, fmt.Errorf("fulfill order %s: %w", failed.OrderNumber, cause)
}

// CancelOrder отменяет заказ по запросу покупателя.
//
// Отмена допустима для заказа в статусе PENDING, а также для оплаченного кошельком и еще не исполненного
// заказа: тогда оплата возвращается покупателю и заказ переходит в CANCELLED/REFUNDED. Оплата через шлюз
// возвращается только внешним способом, поэтому такой заказ отменить нельзя.
func (o *OrderService) CancelOrder(ctx context.Context, orderID, buyerID int64) (_ *domain.Order, err error) {
	ctx, span := o.tracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("order.buyer_id", buyerID),
	))
	defer func() { endSpan(span, err) }()

	var (
		cancelled *domain.Order
		from      domain.OrderStatus
		refunded  bool
	)
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		locked, lockErr := o.lockTx(c, tx, orderID)
		if lockErr != nil {
			return lockErr
		}
		if locked.BuyerID != buyerID {
			return fmt.Errorf("order %d: %w", orderID, domain.ErrRecordNotFound)
		}
		from = locked.Status

		var trErr error
		switch {
		case locked.PaymentStatus == domain.PaymentStatusPaid &&
			(locked.Status == domain.OrderStatusPending || locked.Status == domain.OrderStatusProcessing):
			if locked.PaymentMethod != domain.PaymentMethodWallet {
				return fmt.Errorf("%w: gateway payments are refunded externally", domain.ErrInvalidOperation)
			}
			if _, refundErr := o.ledger.refundTx(c, tx, locked); refundErr != nil {
				return refundErr
			}
			refunded = true
			cancelled, trErr = o.transitionTx(c, tx, locked,
				domain.OrderStatusCancelled, domain.PaymentStatusRefunded, nil, "cancelled by buyer")
		case locked.Status == domain.OrderStatusPending:
			cancelled, trErr = o.transitionTx(c, tx, locked,
				domain.OrderStatusCancelled, locked.PaymentStatus, nil, "cancelled by buyer")
		default:
			return fmt.Errorf("%w: order is %s/%s", domain.ErrInvalidState, locked.Status, locked.PaymentStatus)
		}
		return trErr
	})
	if txErr != nil {
		return nil, fmt.Errorf("cancel order %d: %w", orderID, txErr)
	}

	if refunded {
		o.metrics.LedgerOperation(string(domain.EntryKindRefund), nil)
		o.committed(ctx, from, cancelled, domain.OrderEventCancelled, domain.OrderEventRefunded)
	} else {
		o.committed(ctx, from, cancelled, domain.OrderEventCancelled)
	}
	return cancelled, nil
}
