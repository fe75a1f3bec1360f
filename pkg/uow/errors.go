package uow

import "errors"

var (
	ErrRepositoryNotRegistered     = errors.New("[uow] repository not registered")
	ErrRepositoryAlreadyRegistered = errors.New("[uow] repository already registered")
	ErrInvalidRepositoryType       = errors.New("[uow] invalid repository type")
	// ErrNestedUnitOfWork Do вызван внутри другого Do. Вложенная транзакция открылась бы на отдельном
	// соединении и ждала бы блокировок, которые держит внешняя.
	ErrNestedUnitOfWork = errors.New("[uow] nested unit of work")
)
