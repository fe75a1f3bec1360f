package pgrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `id, created_at, user_id, counterpart_id, kind, amount, balance_after, description, metadata`

// LedgerRepository журнал операций по балансу. Записи только добавляются.
type LedgerRepository struct {
	conn uow.DBTX
}

func NewLedgerRepository(conn uow.DBTX) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

func (r *LedgerRepository) Create(ctx context.Context, args repoargs.LedgerEntryCreate) (*domain.LedgerEntry, error) {
	var metadata []byte
	if args.Metadata != nil {
		var mErr error
		if metadata, mErr = json.Marshal(args.Metadata); mErr != nil {
			return nil, fmt.Errorf("[repository/create ledger entry] marshal metadata: %w", mErr)
		}
	}

	row := r.conn.QueryRow(ctx,
		`INSERT INTO ledger_entries (user_id, counterpart_id, kind, amount, balance_after, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ledgerColumns,
		args.UserID, args.CounterpartID, string(args.Kind), args.Amount, args.BalanceAfter, args.Description, metadata,
	)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		return nil, convertErr(err, "create %s ledger entry for user %d", args.Kind, args.UserID)
	}
	return entry, nil
}

// ListByUser возвращает записи пользователя, новые первыми.
func (r *LedgerRepository) ListByUser(
	ctx context.Context,
	userID int64,
	page repoargs.Pagination,
) ([]domain.LedgerEntry, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, convertErr(err, "list ledger entries of user %d", userID)
	}
	defer rows.Close()

	var entries = make([]domain.LedgerEntry, 0, page.Limit)
	for rows.Next() {
		entry, scanErr := scanLedgerEntry(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scan ledger entry of user %d", userID)
		}
		entries = append(entries, *entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "list ledger entries of user %d", userID)
	}
	return entries, nil
}

func (r *LedgerRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var total int64
	if err := r.conn.QueryRow(ctx,
		`SELECT count(*) FROM ledger_entries WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return 0, convertErr(err, "count ledger entries of user %d", userID)
	}
	return total, nil
}

// SumByUser сумма всех записей пользователя со знаком. Должна совпадать с балансом.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := r.conn.QueryRow(ctx,
		`SELECT COALESCE(sum(amount), 0) FROM ledger_entries WHERE user_id = $1`, userID,
	).Scan(&sum); err != nil {
		return decimal.Zero, convertErr(err, "sum ledger entries of user %d", userID)
	}
	return sum, nil
}

// ExistsForOrder проверяет наличие проводки вида kind по заказу orderID у пользователя.
func (r *LedgerRepository) ExistsForOrder(
	ctx context.Context,
	userID int64,
	kind domain.EntryKind,
	orderID int64,
) (bool, error) {
	var exists bool
	if err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM ledger_entries
			WHERE user_id = $1 AND kind = $2 AND metadata ->> 'order_id' = $3
		)`,
		userID, string(kind), fmt.Sprint(orderID),
	).Scan(&exists); err != nil {
		return false, convertErr(err, "check %s entry of order %d", kind, orderID)
	}
	return exists, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var kind string
	var metadata []byte
	if err := row.Scan(
		&e.ID,
		&e.CreatedAt,
		&e.UserID,
		&e.CounterpartID,
		&kind,
		&e.Amount,
		&e.BalanceAfter,
		&e.Description,
		&metadata,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}
	e.Kind = domain.EntryKind(kind)
	if len(metadata) > 0 {
		e.Metadata = new(domain.EntryMetadata)
		if err := json.Unmarshal(metadata, e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal ledger metadata: %w", err)
		}
	}
	return &e, nil
}
