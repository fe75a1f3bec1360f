package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type RepositoryName string
type Repository any
type RepositoryFactory func(DBTX) Repository

// Pool источник транзакций. Реализуется *pgxpool.Pool.
type Pool interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txCtxKey struct{}

// InTransaction сообщает, выполняется ли код внутри Do.
func InTransaction(ctx context.Context) bool {
	return ctx.Value(txCtxKey{}) != nil
}

type UnitOfWork struct {
	conn         Pool
	txOptions    pgx.TxOptions
	repositories map[RepositoryName]RepositoryFactory
}

type Option func(*UnitOfWork)

// WithIsoLevel задает уровень изоляции транзакций. По умолчанию используется уровень сервера (read committed).
func WithIsoLevel(level pgx.TxIsoLevel) Option {
	return func(u *UnitOfWork) {
		u.txOptions.IsoLevel = level
	}
}

func NewUnitOfWork(conn Pool, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		conn:         conn,
		repositories: make(map[RepositoryName]RepositoryFactory),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Register регистрирует репозиторий у себя в мапе. Если репозиторий уже зарегистрирован, возвращает
// ошибку ErrRepositoryAlreadyRegistered.
func (u *UnitOfWork) Register(name RepositoryName, factory RepositoryFactory) error {
	if _, ok := u.repositories[name]; ok {
		return ErrRepositoryAlreadyRegistered
	}
	u.repositories[name] = factory
	return nil
}

// Do выполняет функцию fn внутри транзакции. Все блокировки строк, взятые внутри fn, держатся до коммита
// или отката. Ошибка fn или паника внутри fn откатывают транзакцию целиком. Вложенный вызов возвращает
// ErrNestedUnitOfWork: все шаги одной транзакции должны работать через переданный TX.
func (u *UnitOfWork) Do(ctx context.Context, fn func(context.Context, TX) error) (err error) {
	if InTransaction(ctx) {
		return ErrNestedUnitOfWork
	}

	tx, txErr := u.conn.BeginTx(ctx, u.txOptions)
	if txErr != nil {
		return fmt.Errorf("[uow] begin: %w", txErr)
	}

	defer func() {
		if p := recover(); p != nil {
			// откат с фоновым контекстом: исходный мог быть уже отменен.
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil &&
			!errors.Is(rollbackErr, pgx.ErrTxClosed) {
			if err == nil {
				err = rollbackErr
			} else {
				err = errors.Join(err, rollbackErr)
			}
		}
	}()

	txCtx := context.WithValue(ctx, txCtxKey{}, struct{}{})
	if transErr := fn(txCtx, NewTransaction(tx, u.repositories)); transErr != nil {
		return transErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("[uow] commit: %w", commitErr)
	}
	return nil
}

// GetRepository возвращает репозиторий, работающий вне транзакции, или ошибку ErrRepositoryNotRegistered.
func (u *UnitOfWork) GetRepository(name RepositoryName) (Repository, error) {
	if repoFactory, ok := u.repositories[name]; ok {
		return repoFactory(u.conn), nil
	}
	return nil, ErrRepositoryNotRegistered
}

// GetRepositoryAs возвращает репозиторий по имени name и приводит его к типу T. Возвращает ошибки
// ErrRepositoryNotRegistered и ErrInvalidRepositoryType.
func GetRepositoryAs[T any](u UOW, name RepositoryName) (T, error) {
	var res T
	repo, err := u.GetRepository(name)
	if err != nil {
		return res, err //nolint:wrapcheck
	}
	r, ok := repo.(T)

	if !ok {
		return res, ErrInvalidRepositoryType
	}

	return r, nil
}
