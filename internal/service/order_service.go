package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fsdevblog/groph-market/internal/service"

// OrderService оркестратор заказов: создание, оплата кошельком или через шлюз, исполнение, отмена и сверка
// зависших заказов.
//
// Порядок блокировок во всех единицах работы один: заказ, затем товары по возрастанию id, затем пользователи.
// Вызовы платежного шлюза никогда не выполняются внутри транзакции.
type OrderService struct {
	uow       uow.UOW
	orderRepo OrderRepository
	ledger    *LedgerService
	stock     *StockService
	gateway   PaymentGateway
	publisher EventPublisher
	metrics   MetricsRecorder
	validate  *validator.Validate
	tracer    trace.Tracer
	l         *logrus.Entry

	currency       string
	reconcileAfter time.Duration
	pendingExpiry  time.Duration
	now            func() time.Time
}

type OrderServiceArgs struct {
	UOW       uow.UOW
	Ledger    *LedgerService
	Stock     *StockService
	Gateway   PaymentGateway
	Publisher EventPublisher
	Metrics   MetricsRecorder
	Logger    *logrus.Logger

	Currency string
	// ReconcileAfter через сколько после последнего изменения заказ считается зависшим.
	ReconcileAfter time.Duration
	// PendingExpiry сколько заказ может ждать оплату через шлюз до принудительного перевода в FAILED.
	PendingExpiry time.Duration
}

func NewOrderService(args OrderServiceArgs) (*OrderService, error) {
	orderRepo, err := uow.GetRepositoryAs[OrderRepository](args.UOW, orderRepoName)
	if err != nil {
		return nil, err
	}
	return &OrderService{
		uow:            args.UOW,
		orderRepo:      orderRepo,
		ledger:         args.Ledger,
		stock:          args.Stock,
		gateway:        args.Gateway,
		publisher:      args.Publisher,
		metrics:        args.Metrics,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		tracer:         otel.Tracer(tracerName),
		l:              args.Logger.WithField("module", "order_service"),
		currency:       args.Currency,
		reconcileAfter: args.ReconcileAfter,
		pendingExpiry:  args.PendingExpiry,
		now:            time.Now,
	}, nil
}

type CreateOrderItem struct {
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"required,gt=0"`
}

type CreateOrderArgs struct {
	BuyerID       int64                `validate:"required,gt=0"`
	PaymentMethod domain.PaymentMethod `validate:"required,oneof=WALLET GATEWAY"`
	Items         []CreateOrderItem    `validate:"required,min=1,dive"`
}

// CreateOrder создает заказ и сразу запускает оплату выбранным способом.
//
// Алгоритм работы:
//  1. Проверяет запрос и находит все товары. Все товары должны существовать, быть активными и принадлежать
//     одному продавцу, остатка должно хватать на каждую позицию.
//  2. Фиксирует цены и сохраняет заказ с позициями в статусе PENDING/PENDING одной транзакцией.
//  3. Для WALLET списывает оплату и исполняет заказ. Для GATEWAY создает платежное намерение и оставляет заказ
//     ждать подтверждения.
//
// Если заказ сохранен, но оплата или исполнение не удались по бизнес причине, возвращается заказ в
// итоговом состоянии вместе с ошибкой.
func (o *OrderService) CreateOrder(ctx context.Context, args CreateOrderArgs) (_ *domain.Order, err error) {
	ctx, span := o.tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.Int64("order.buyer_id", args.BuyerID),
		attribute.String("order.payment_method", string(args.PaymentMethod)),
	))
	defer func() { endSpan(span, err) }()

	if validErr := o.validateArgs(args); validErr != nil {
		return nil, fmt.Errorf("create order: %w", validErr)
	}

	create, prepErr := o.prepareOrder(ctx, args)
	if prepErr != nil {
		return nil, fmt.Errorf("create order: %w", prepErr)
	}

	var order *domain.Order
	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orders, repoErr := uow.GetAs[OrderRepository](tx, orderRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		var createErr error
		order, createErr = orders.Create(c, *create)
		return createErr //nolint:wrapcheck
	})
	if txErr != nil {
		return nil, fmt.Errorf("create order: %w", txErr)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	o.committed(ctx, "", order, domain.OrderEventCreated)

	switch order.PaymentMethod {
	case domain.PaymentMethodWallet:
		return o.payWithWallet(ctx, order)
	case domain.PaymentMethodGateway:
		return o.payWithGateway(ctx, order)
	default:
		return order, fmt.Errorf("create order: %w: payment method %s", domain.ErrInvalidOperation, order.PaymentMethod)
	}
}

// prepareOrder проверяет товары и рассчитывает суммы заказа по текущим ценам.
func (o *OrderService) prepareOrder(ctx context.Context, args CreateOrderArgs) (*repoargs.OrderCreate, error) {
	ids := make([]int64, 0, len(args.Items))
	seen := make(map[int64]struct{}, len(args.Items))
	for _, item := range args.Items {
		if _, ok := seen[item.ProductID]; ok {
			return nil, domain.NewValidationError("items", fmt.Sprintf("product %d is listed twice", item.ProductID))
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, lookupErr := o.stock.Lookup(ctx, ids)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if len(products) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d products exist", domain.ErrRecordNotFound, len(products), len(ids))
	}

	byID := make(map[int64]domain.Product, len(products))
	merchantID := products[0].MerchantID
	for _, p := range products {
		if !p.IsActive {
			return nil, fmt.Errorf("%w: product %d is not available", domain.ErrInvalidOperation, p.ID)
		}
		if p.MerchantID != merchantID {
			return nil, fmt.Errorf("%w: products belong to different merchants", domain.ErrInvalidOperation)
		}
		byID[p.ID] = p
	}
	if merchantID == args.BuyerID {
		return nil, fmt.Errorf("%w: merchant cannot buy own products", domain.ErrInvalidOperation)
	}

	create := repoargs.OrderCreate{
		OrderNumber:   newOrderNumber(o.now()),
		BuyerID:       args.BuyerID,
		MerchantID:    merchantID,
		TotalAmount:   decimal.Zero,
		PaymentMethod: args.PaymentMethod,
		Items:         make([]repoargs.OrderItemCreate, 0, len(args.Items)),
	}
	for _, item := range args.Items {
		p := byID[item.ProductID]
		if p.AvailableUnits < item.Quantity {
			return nil, domain.NewInsufficientStockError(p.ID, p.AvailableUnits, item.Quantity)
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(item.Quantity)).Round(domain.MoneyScale)
		create.TotalAmount = create.TotalAmount.Add(lineTotal)
		create.Items = append(create.Items, repoargs.OrderItemCreate{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			LineTotal: lineTotal,
		})
	}
	if err := domain.ValidateAmount("total_amount", create.TotalAmount); err != nil {
		return nil, err
	}
	return &create, nil
}

// GetOrder возвращает заказ, если userID его покупатель или продавец. Иначе заказ считается не найденным.
func (o *OrderService) GetOrder(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	order, err := o.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.BuyerID != userID && order.MerchantID != userID {
		return nil, fmt.Errorf("get order %d: %w", orderID, domain.ErrRecordNotFound)
	}
	return order, nil
}

// ListBuyerOrders заказы покупателя, новые первыми. Пустой status означает все статусы.
func (o *OrderService) ListBuyerOrders(
	ctx context.Context,
	buyerID int64,
	status domain.OrderStatus,
) ([]domain.Order, error) {
	orders, err := o.orderRepo.ListByBuyer(ctx, buyerID, status)
	if err != nil {
		return nil, fmt.Errorf("list buyer orders: %w", err)
	}
	return orders, nil
}

func (o *OrderService) ListMerchantOrders(
	ctx context.Context,
	merchantID int64,
	status domain.OrderStatus,
) ([]domain.Order, error) {
	orders, err := o.orderRepo.ListByMerchant(ctx, merchantID, status)
	if err != nil {
		return nil, fmt.Errorf("list merchant orders: %w", err)
	}
	return orders, nil
}

func (o *OrderService) validateArgs(args CreateOrderArgs) error {
	err := o.validate.Struct(args)
	if err == nil {
		return nil
	}
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) && len(valErrs) > 0 {
		fe := valErrs[0]
		return domain.NewValidationError(fe.Namespace(), "failed on the '"+fe.Tag()+"' rule")
	}
	return domain.NewValidationError("request", err.Error())
}

// transitionTx переводит заблокированный заказ в состояние to/toPayment в рамках транзакции tx.
func (o *OrderService) transitionTx(
	ctx context.Context,
	tx uow.TX,
	order *domain.Order,
	to domain.OrderStatus,
	toPayment domain.PaymentStatus,
	details *domain.PaymentDetails,
	reason string,
) (*domain.Order, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	orders, repoErr := uow.GetAs[OrderRepository](tx, orderRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}
	return orders.Transition(ctx, repoargs.OrderTransition{ //nolint:wrapcheck
		OrderID:        order.ID,
		From:           order.Status,
		FromPayment:    order.PaymentStatus,
		To:             to,
		ToPayment:      toPayment,
		PaymentDetails: details,
		Reason:         reason,
	})
}

// lockTx блокирует заказ до конца транзакции tx.
func (o *OrderService) lockTx(ctx context.Context, tx uow.TX, orderID int64) (*domain.Order, error) {
	orders, repoErr := uow.GetAs[OrderRepository](tx, orderRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}
	return orders.LockByID(ctx, orderID) //nolint:wrapcheck
}

// committed вызывается после коммита перехода: учитывает метрику и публикует событие.
func (o *OrderService) committed(
	ctx context.Context,
	from domain.OrderStatus,
	order *domain.Order,
	events ...domain.OrderEventType,
) {
	o.metrics.OrderTransition(string(from), string(order.Status))
	for _, eventType := range events {
		o.publish(ctx, eventType, order)
	}
}

// publish отправляет событие подписчикам. Ошибка доставки не влияет на результат операции.
func (o *OrderService) publish(ctx context.Context, eventType domain.OrderEventType, order *domain.Order) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishOrderEvent(context.WithoutCancel(ctx), domain.NewOrderEvent(eventType, order)); err != nil {
		o.l.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("failed to publish order event")
	}
}

// newOrderNumber формирует человекочитаемый номер заказа вида ORD-<unix ms>-<6 hex>.
func newOrderNumber(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(suffix))
}

// failureReason короткий машиночитаемый код причины отказа.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrGateway):
		return "gateway_error"
	default:
		return "internal_error"
	}
}

// isBusinessErr сообщает, что ошибка вызвана состоянием данных, а не инфраструктурой, и повтор ее не исправит.
func isBusinessErr(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrRecordNotFound)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
