package pgrepo

import (
	"context"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, created_at, updated_at, merchant_id, name, price, available_units, is_active`

type ProductRepository struct {
	conn uow.DBTX
}

func NewProductRepository(conn uow.DBTX) *ProductRepository {
	return &ProductRepository{conn: conn}
}

func (r *ProductRepository) Create(ctx context.Context, args repoargs.CreateProduct) (*domain.Product, error) {
	row := r.conn.QueryRow(ctx,
		`INSERT INTO products (merchant_id, name, price, available_units, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		args.MerchantID, args.Name, args.Price, args.AvailableUnits, args.IsActive,
	)
	product, err := scanProduct(row)
	if err != nil {
		return nil, convertErr(err, "create product %s", args.Name)
	}
	return product, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`, ids,
	)
	if err != nil {
		return nil, convertErr(err, "find products")
	}
	defer rows.Close()

	var products = make([]domain.Product, 0, len(ids))
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scan product")
		}
		products = append(products, *product)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "find products")
	}
	return products, nil
}

// Decrement атомарно уменьшает остаток товара, только если его хватает. Проверка и запись выполняются одним
// UPDATE, поэтому параллельные списания не уводят остаток в минус. Возвращает domain.ErrInsufficientStock,
// если условие не выполнено или товара нет.
func (r *ProductRepository) Decrement(ctx context.Context, productID, quantity int64) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE products
		SET available_units = available_units - $2, updated_at = now()
		WHERE id = $1 AND available_units >= $2`,
		productID, quantity,
	)
	if err != nil {
		return convertErr(err, "decrement stock of product %d", productID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("[repository/decrement stock of product %d] %w", productID, domain.ErrInsufficientStock)
	}
	return nil
}

// Increment безусловно возвращает товар на склад.
func (r *ProductRepository) Increment(ctx context.Context, productID, quantity int64) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE products SET available_units = available_units + $2, updated_at = now() WHERE id = $1`,
		productID, quantity,
	)
	if err != nil {
		return convertErr(err, "increment stock of product %d", productID)
	}
	if tag.RowsAffected() == 0 {
		return convertErr(pgx.ErrNoRows, "increment stock of product %d", productID)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.MerchantID,
		&p.Name,
		&p.Price,
		&p.AvailableUnits,
		&p.IsActive,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &p, nil
}
