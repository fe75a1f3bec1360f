package pgrepo

import (
	"errors"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolationCode = "23505"
	checkViolationCode  = "23514"
	foreignKeyCode      = "23503"
)

// convertErr преобразует ошибку к стандартному виду для слоя репозитория.
// Добавляет форматированное сообщение контекста, тип бизнес-ошибки и оригинальное сообщение.
// Особенности:
//   - Для ошибок отсутствия данных (pgx.ErrNoRows) возвращает ErrRecordNotFound из domain.
//   - Для ошибок базы Postgres определяет дубликаты ключей (uniqueViolationCode) как ErrDuplicateKey из domain.
//   - Нарушение CHECK ограничения (например отрицательный баланс) возвращается как ErrUnknown с именем
//     ограничения: до него бизнес-проверки доходить не должны.
//   - Нарушение внешнего ключа означает ссылку на несуществующую запись и возвращается как ErrRecordNotFound.
//   - Все остальные ошибки возвращаются как ErrUnknown с оригинальным сообщением.
func convertErr(err error, format string, formatArgs ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, formatArgs...)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("[repository/%s] %w", msg, domain.ErrRecordNotFound)
	}

	var pgErr *pgconn.PgError
	errType := domain.ErrUnknown

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			errType = domain.ErrDuplicateKey
		case foreignKeyCode:
			return fmt.Errorf("[repository/%s] %w: constraint %s violated", msg, domain.ErrRecordNotFound,
				pgErr.ConstraintName)
		case checkViolationCode:
			return fmt.Errorf("[repository/%s] %w: constraint %s violated", msg, errType, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("[repository/%s] %w: %s", msg, errType, err.Error())
}
