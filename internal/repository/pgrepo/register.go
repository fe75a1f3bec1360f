package pgrepo

import (
	"fmt"

	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
)

// RegisterRepositories регистрирует фабрики всех postgres репозиториев в unit of work.
func RegisterRepositories(u uow.UOW) error {
	factories := map[repoargs.RepositoryName]uow.RepositoryFactory{
		repoargs.UserRepoName: func(dbtx uow.DBTX) uow.Repository {
			return NewUserRepository(dbtx)
		},
		repoargs.ProductRepoName: func(dbtx uow.DBTX) uow.Repository {
			return NewProductRepository(dbtx)
		},
		repoargs.OrderRepoName: func(dbtx uow.DBTX) uow.Repository {
			return NewOrderRepository(dbtx)
		},
		repoargs.LedgerRepoName: func(dbtx uow.DBTX) uow.Repository {
			return NewLedgerRepository(dbtx)
		},
	}

	for name, factory := range factories {
		if regErr := u.Register(uow.RepositoryName(name), factory); regErr != nil {
			return fmt.Errorf("register %s repository: %w", name, regErr)
		}
	}
	return nil
}
