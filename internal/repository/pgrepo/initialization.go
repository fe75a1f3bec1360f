package pgrepo

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	// драйвер postgres для применения миграций.
	_ "github.com/golang-migrate/migrate/v4/database/postgres" //nolint:revive
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	connectMaxAttempts   = 30
	connectRetryInterval = 3 * time.Second
)

// Connect устанавливает соединение с postgres, повторяя попытки пока база недоступна, и применяет миграции.
func Connect(ctx context.Context, dsn string, l *logrus.Logger) (*pgxpool.Pool, error) {
	var attempt uint

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(connectRetryInterval), connectMaxAttempts),
		ctx,
	)

	pool, connErr := backoff.RetryNotifyWithData(func() (*pgxpool.Pool, error) {
		return newPostgresConnection(ctx, dsn)
	}, policy, func(err error, next time.Duration) {
		attempt++
		l.WithError(err).
			WithField("CurrentAttempt", fmt.Sprintf("#%d / %d", attempt, connectMaxAttempts)).
			Warnf("init postgres connection error, retrying in %.f seconds", next.Seconds())
	})
	if connErr != nil {
		return nil, fmt.Errorf("init postgres connection: %w", connErr)
	}

	if err := Migrate(dsn); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newPostgresConnection(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, confErr := pgxpool.ParseConfig(dsn)
	if confErr != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse postgres config: %w", confErr))
	}
	pool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if poolErr != nil {
		return nil, fmt.Errorf("failed to create pool: %w", poolErr)
	}

	// Проверяем, что соединение работает (Ping)
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", pingErr)
	}

	return pool, nil
}

// Migrate применяет встроенные в бинарник миграции.
func Migrate(dsn string) error {
	source, sourceErr := iofs.New(migrationsFS, "migrations")
	if sourceErr != nil {
		return fmt.Errorf("open embedded migrations: %w", sourceErr)
	}
	m, mErr := migrate.NewWithSourceInstance("iofs", source, dsn)
	if mErr != nil {
		return fmt.Errorf("failed to create migrate instance: %w", mErr)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
