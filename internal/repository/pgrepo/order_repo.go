package pgrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, created_at, updated_at, order_number, buyer_id, merchant_id, total_amount, status,
	payment_method, payment_status, payment_ref, payment_details`

const orderItemColumns = `id, order_id, product_id, quantity, unit_price, line_total`

type OrderRepository struct {
	conn uow.DBTX
}

func NewOrderRepository(conn uow.DBTX) *OrderRepository {
	return &OrderRepository{conn: conn}
}

// Create сохраняет заказ в статусе PENDING/PENDING вместе с позициями и первой записью журнала переходов.
func (r *OrderRepository) Create(ctx context.Context, args repoargs.OrderCreate) (*domain.Order, error) {
	row := r.conn.QueryRow(ctx,
		`INSERT INTO orders (order_number, buyer_id, merchant_id, total_amount, payment_method)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orderColumns,
		args.OrderNumber, args.BuyerID, args.MerchantID, args.TotalAmount, string(args.PaymentMethod),
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "create order %s", args.OrderNumber)
	}

	var itemsErr error
	order.Items = make([]domain.OrderItem, len(args.Items))
	r.batchCreateItems(ctx, order.ID, args.Items, func(i int, item *domain.OrderItem, err error) {
		if err != nil {
			itemsErr = err
			return
		}
		order.Items[i] = *item
	})
	if itemsErr != nil {
		return nil, itemsErr
	}

	if _, trErr := r.conn.Exec(ctx,
		`INSERT INTO order_transitions (order_id, from_status, to_status, from_payment_status, to_payment_status, reason)
		VALUES ($1, '', $2, '', $3, 'created')`,
		order.ID, string(order.Status), string(order.PaymentStatus),
	); trErr != nil {
		return nil, convertErr(trErr, "record creation of order %d", order.ID)
	}
	return order, nil
}

// batchCreateItems вставляет позиции заказа одним батчем. fn вызывается для каждой позиции в порядке items.
func (r *OrderRepository) batchCreateItems(
	ctx context.Context,
	orderID int64,
	items []repoargs.OrderItemCreate,
	fn repoargs.OrderItemBatchQueryRow,
) {
	batch := new(pgx.Batch)
	for _, item := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+orderItemColumns,
			orderID, item.ProductID, item.Quantity, item.UnitPrice, item.LineTotal,
		)
	}

	results := r.conn.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for i := range items {
		item, err := scanOrderItem(results.QueryRow())
		if err != nil {
			fn(i, nil, convertErr(err, "create item #%d of order %d", i, orderID))
			continue
		}
		fn(i, item, nil)
	}
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findOne(ctx, fmt.Sprintf("find order %d", id), `WHERE id = $1`, id)
}

// LockByID читает заказ с эксклюзивной блокировкой строки до конца транзакции.
func (r *OrderRepository) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findOne(ctx, fmt.Sprintf("lock order %d", id), `WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) FindByPaymentRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.findOne(ctx, "find order by payment ref "+ref, `WHERE payment_ref = $1`, ref)
}

// LockByPaymentRef блокирует заказ по внешнему идентификатору платежа.
func (r *OrderRepository) LockByPaymentRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.findOne(ctx, "lock order by payment ref "+ref, `WHERE payment_ref = $1 FOR UPDATE`, ref)
}

// Transition переводит заказ в новое состояние и добавляет запись в журнал переходов.
func (r *OrderRepository) Transition(ctx context.Context, args repoargs.OrderTransition) (*domain.Order, error) {
	details, marshalErr := marshalDetails(args.PaymentDetails)
	if marshalErr != nil {
		return nil, marshalErr
	}

	row := r.conn.QueryRow(ctx,
		`UPDATE orders
		SET status = $2, payment_status = $3, payment_details = COALESCE($4, payment_details), updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		args.OrderID, string(args.To), string(args.ToPayment), details,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "transition order %d to %s/%s", args.OrderID, args.To, args.ToPayment)
	}

	if _, trErr := r.conn.Exec(ctx,
		`INSERT INTO order_transitions (order_id, from_status, to_status, from_payment_status, to_payment_status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		args.OrderID, string(args.From), string(args.To), string(args.FromPayment), string(args.ToPayment), args.Reason,
	); trErr != nil {
		return nil, convertErr(trErr, "record transition of order %d", args.OrderID)
	}

	if itemsErr := r.attachItems(ctx, []*domain.Order{order}); itemsErr != nil {
		return nil, itemsErr
	}
	return order, nil
}

// SetPaymentRef сохраняет ссылку на платежное намерение и снимок его состояния.
func (r *OrderRepository) SetPaymentRef(
	ctx context.Context,
	id int64,
	ref string,
	details *domain.PaymentDetails,
) error {
	raw, marshalErr := marshalDetails(details)
	if marshalErr != nil {
		return marshalErr
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE orders SET payment_ref = $2, payment_details = $3, updated_at = now() WHERE id = $1`,
		id, ref, raw,
	)
	if err != nil {
		return convertErr(err, "set payment ref of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return convertErr(pgx.ErrNoRows, "set payment ref of order %d", id)
	}
	return nil
}

// UpdatePaymentDetails обновляет только снимок платежа, не меняя статусов.
func (r *OrderRepository) UpdatePaymentDetails(ctx context.Context, id int64, details *domain.PaymentDetails) error {
	raw, marshalErr := marshalDetails(details)
	if marshalErr != nil {
		return marshalErr
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE orders SET payment_details = $2, updated_at = now() WHERE id = $1`, id, raw,
	)
	if err != nil {
		return convertErr(err, "update payment details of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return convertErr(pgx.ErrNoRows, "update payment details of order %d", id)
	}
	return nil
}

// ListStale возвращает самые старые заказы в указанных статусах, не обновлявшиеся с filter.UpdatedBefore.
func (r *OrderRepository) ListStale(ctx context.Context, filter repoargs.StaleOrdersFilter) ([]domain.Order, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	return r.findMany(ctx, "list stale orders",
		`WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		statuses, filter.UpdatedBefore, filter.Limit,
	)
}

// ListByBuyer заказы покупателя, новые первыми. Пустой status означает любой статус.
func (r *OrderRepository) ListByBuyer(
	ctx context.Context,
	buyerID int64,
	status domain.OrderStatus,
) ([]domain.Order, error) {
	return r.findMany(ctx, fmt.Sprintf("list orders of buyer %d", buyerID),
		`WHERE buyer_id = $1 AND ($2::text = '' OR status = $2::text) ORDER BY created_at DESC, id DESC`,
		buyerID, string(status),
	)
}

// ListByMerchant заказы продавца, новые первыми. Пустой status означает любой статус.
func (r *OrderRepository) ListByMerchant(
	ctx context.Context,
	merchantID int64,
	status domain.OrderStatus,
) ([]domain.Order, error) {
	return r.findMany(ctx, fmt.Sprintf("list orders of merchant %d", merchantID),
		`WHERE merchant_id = $1 AND ($2::text = '' OR status = $2::text) ORDER BY created_at DESC, id DESC`,
		merchantID, string(status),
	)
}

func (r *OrderRepository) findOne(ctx context.Context, op, where string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.conn.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...))
	if err != nil {
		return nil, convertErr(err, "%s", op)
	}
	if itemsErr := r.attachItems(ctx, []*domain.Order{order}); itemsErr != nil {
		return nil, itemsErr
	}
	return order, nil
}

func (r *OrderRepository) findMany(ctx context.Context, op, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, convertErr(err, "%s", op)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "%s", op)
		}
		orders = append(orders, *order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "%s", op)
	}
	rows.Close()

	ptrs := make([]*domain.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if itemsErr := r.attachItems(ctx, ptrs); itemsErr != nil {
		return nil, itemsErr
	}
	return orders, nil
}

// attachItems загружает позиции для переданных заказов одним запросом.
func (r *OrderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, ids,
	)
	if err != nil {
		return convertErr(err, "load order items")
	}
	defer rows.Close()

	for rows.Next() {
		item, scanErr := scanOrderItem(rows)
		if scanErr != nil {
			return convertErr(scanErr, "scan order item")
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, *item)
		}
	}
	return convertErr(rows.Err(), "load order items")
}

func marshalDetails(details *domain.PaymentDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("[repository/marshal payment details] %w", err)
	}
	return raw, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status, method, paymentStatus string
	var paymentRef *string
	var details []byte
	if err := row.Scan(
		&o.ID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.OrderNumber,
		&o.BuyerID,
		&o.MerchantID,
		&o.TotalAmount,
		&status,
		&method,
		&paymentStatus,
		&paymentRef,
		&details,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if paymentRef != nil {
		o.PaymentRef = *paymentRef
	}
	if len(details) > 0 {
		o.PaymentDetails = new(domain.PaymentDetails)
		if err := json.Unmarshal(details, o.PaymentDetails); err != nil {
			return nil, fmt.Errorf("unmarshal payment details: %w", err)
		}
	}
	return &o, nil
}

func scanOrderItem(row pgx.Row) (*domain.OrderItem, error) {
	var item domain.OrderItem
	if err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.Quantity,
		&item.UnitPrice,
		&item.LineTotal,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &item, nil
}
