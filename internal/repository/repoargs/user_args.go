package repoargs

import (
	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateUser struct {
	Name  string
	Email string
	Role  domain.UserRole
}

type CreateProduct struct {
	MerchantID     int64
	Name           string
	Price          decimal.Decimal
	AvailableUnits int64
	IsActive       bool
}
