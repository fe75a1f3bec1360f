package pgrepo

import (
	"context"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const userColumns = `id, created_at, updated_at, name, email, role, balance`

type UserRepository struct {
	conn uow.DBTX
}

func NewUserRepository(conn uow.DBTX) *UserRepository {
	return &UserRepository{conn: conn}
}

func (r *UserRepository) Create(ctx context.Context, args repoargs.CreateUser) (*domain.User, error) {
	row := r.conn.QueryRow(ctx,
		`INSERT INTO users (name, email, role) VALUES ($1, $2, $3) RETURNING `+userColumns,
		args.Name, args.Email, string(args.Role),
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, convertErr(err, "create user %s", args.Email)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, convertErr(err, "get user %d", id)
	}
	return user, nil
}

// LockByID читает пользователя с эксклюзивной блокировкой строки до конца транзакции.
func (r *UserRepository) LockByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, convertErr(err, "lock user %d", id)
	}
	return user, nil
}

func (r *UserRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE users SET balance = $2, updated_at = now() WHERE id = $1`,
		id, balance,
	)
	if err != nil {
		return convertErr(err, "update balance of user %d", id)
	}
	if tag.RowsAffected() == 0 {
		return convertErr(pgx.ErrNoRows, "update balance of user %d", id)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Name, &u.Email, &role, &u.Balance); err != nil {
		return nil, err //nolint:wrapcheck
	}
	u.Role = domain.UserRole(role)
	return &u, nil
}
