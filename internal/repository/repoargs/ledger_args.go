package repoargs

import (
	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/shopspring/decimal"
)

// LedgerEntryCreate данные новой записи журнала. Amount передается со знаком.
type LedgerEntryCreate struct {
	UserID        int64
	CounterpartID *int64
	Kind          domain.EntryKind
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	Metadata      *domain.EntryMetadata
}
