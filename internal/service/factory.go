package service

import (
	"fmt"
	"time"

	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/sirupsen/logrus"
)

type AppServices struct {
	LedgerService *LedgerService
	StockService  *StockService
	OrderService  *OrderService
}

type FactoryArgs struct {
	UOW       uow.UOW
	Gateway   PaymentGateway
	Publisher EventPublisher
	Metrics   MetricsRecorder
	Logger    *logrus.Logger

	Currency       string
	ReconcileAfter time.Duration
	PendingExpiry  time.Duration
}

func Factory(args FactoryArgs) (*AppServices, error) {
	ledgerService, ledgerServiceErr := NewLedgerService(args.UOW, args.Metrics)
	if ledgerServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", ledgerServiceErr.Error())
	}

	stockService, stockServiceErr := NewStockService(args.UOW)
	if stockServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", stockServiceErr.Error())
	}

	orderService, orderServiceErr := NewOrderService(OrderServiceArgs{
		UOW:            args.UOW,
		Ledger:         ledgerService,
		Stock:          stockService,
		Gateway:        args.Gateway,
		Publisher:      args.Publisher,
		Metrics:        args.Metrics,
		Logger:         args.Logger,
		Currency:       args.Currency,
		ReconcileAfter: args.ReconcileAfter,
		PendingExpiry:  args.PendingExpiry,
	})
	if orderServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", orderServiceErr.Error())
	}

	return &AppServices{
		LedgerService: ledgerService,
		StockService:  stockService,
		OrderService:  orderService,
	}, nil
}
