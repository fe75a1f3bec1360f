package service

import (
	"context"
	"fmt"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/pkg/uow"
)

// StockService резервирование складских остатков.
type StockService struct {
	uow         uow.UOW
	productRepo ProductRepository
}

func NewStockService(u uow.UOW) (*StockService, error) {
	productRepo, err := uow.GetRepositoryAs[ProductRepository](u, productRepoName)
	if err != nil {
		return nil, err
	}
	return &StockService{uow: u, productRepo: productRepo}, nil
}

// Lookup возвращает товары по ids, упорядоченные по id. Отсутствующие товары просто не попадают в результат.
func (s *StockService) Lookup(ctx context.Context, ids []int64) ([]domain.Product, error) {
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup products: %w", err)
	}
	return products, nil
}

// Decrement атомарно списывает quantity единиц товара. Если остатка не хватает или товара нет,
// возвращает domain.ErrInsufficientStock и ничего не меняет.
func (s *StockService) Decrement(ctx context.Context, productID, quantity int64) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	err := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		return s.decrementTx(c, tx, productID, quantity)
	})
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

// Increment возвращает quantity единиц товара на склад.
func (s *StockService) Increment(ctx context.Context, productID, quantity int64) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	err := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		return s.incrementTx(c, tx, productID, quantity)
	})
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

func (s *StockService) decrementTx(ctx context.Context, tx uow.TX, productID, quantity int64) error {
	products, err := uow.GetAs[ProductRepository](tx, productRepoName)
	if err != nil {
		return err //nolint:wrapcheck
	}
	return products.Decrement(ctx, productID, quantity) //nolint:wrapcheck
}

func (s *StockService) incrementTx(ctx context.Context, tx uow.TX, productID, quantity int64) error {
	products, err := uow.GetAs[ProductRepository](tx, productRepoName)
	if err != nil {
		return err //nolint:wrapcheck
	}
	return products.Increment(ctx, productID, quantity) //nolint:wrapcheck
}
