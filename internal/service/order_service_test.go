package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/internal/service/mocks"
	"github.com/fsdevblog/groph-market/internal/transport/gateway"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

const (
	testBuyerID    int64 = 100
	testMerchantID int64 = 200
)

type OrderServiceTestSuite struct {
	suite.Suite
	mockCtrl     *gomock.Controller
	mocks        *repoMocks
	mockGateway  *mocks.MockPaymentGateway
	mockPub      *mocks.MockEventPublisher
	orderService *OrderService
	now          time.Time

	// состояние, которое моки репозиториев читают и меняют.
	stored      *domain.Order
	balances    map[int64]decimal.Decimal
	products    map[int64]domain.Product
	entries     []repoargs.LedgerEntryCreate
	transitions []repoargs.OrderTransition
	decremented []int64
	events      []domain.OrderEventType
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mocks = newRepoMocks(s.mockCtrl)
	s.mockGateway = mocks.NewMockPaymentGateway(s.mockCtrl)
	s.mockPub = mocks.NewMockEventPublisher(s.mockCtrl)
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s.stored = nil
	s.entries = nil
	s.transitions = nil
	s.decremented = nil
	s.events = nil
	s.balances = map[int64]decimal.Decimal{
		testBuyerID:    decimal.NewFromInt(100),
		testMerchantID: decimal.Zero,
	}
	s.products = map[int64]domain.Product{
		10: {ID: 10, MerchantID: testMerchantID, Price: decimal.RequireFromString("12.50"), AvailableUnits: 5, IsActive: true},
		20: {ID: 20, MerchantID: testMerchantID, Price: decimal.RequireFromString("5.00"), AvailableUnits: 1, IsActive: true},
		30: {ID: 30, MerchantID: 300, Price: decimal.NewFromInt(1), AvailableUnits: 10, IsActive: true},
		40: {ID: 40, MerchantID: testMerchantID, Price: decimal.NewFromInt(1), AvailableUnits: 10, IsActive: false},
		50: {ID: 50, MerchantID: testBuyerID, Price: decimal.NewFromInt(1), AvailableUnits: 10, IsActive: true},
	}
	s.stubRepositories()

	s.mockPub.EXPECT().
		PublishOrderEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event domain.OrderEvent) error {
			s.events = append(s.events, event.Type)
			return nil
		}).AnyTimes()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ledgerService, ledgerErr := NewLedgerService(s.mocks.uow, s.mocks.metrics)
	s.Require().NoError(ledgerErr)
	stockService, stockErr := NewStockService(s.mocks.uow)
	s.Require().NoError(stockErr)

	orderService, err := NewOrderService(OrderServiceArgs{
		UOW:            s.mocks.uow,
		Ledger:         ledgerService,
		Stock:          stockService,
		Gateway:        s.mockGateway,
		Publisher:      s.mockPub,
		Metrics:        s.mocks.metrics,
		Logger:         logger,
		Currency:       "usd",
		ReconcileAfter: 5 * time.Minute,
		PendingExpiry:  24 * time.Hour,
	})
	s.Require().NoError(err)
	orderService.now = func() time.Time { return s.now }
	s.orderService = orderService
}

func (s *OrderServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

// stubRepositories настраивает моки репозиториев поверх состояния сьюта.
func (s *OrderServiceTestSuite) stubRepositories() {
	m := s.mocks

	m.users.EXPECT().LockByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64) (*domain.User, error) {
			balance, ok := s.balances[id]
			if !ok {
				return nil, domain.ErrRecordNotFound
			}
			return &domain.User{ID: id, Balance: balance}, nil
		}).AnyTimes()
	m.users.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64, balance decimal.Decimal) error {
			s.balances[id] = balance
			return nil
		}).AnyTimes()

	m.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.LedgerEntryCreate) (*domain.LedgerEntry, error) {
			s.entries = append(s.entries, args)
			return &domain.LedgerEntry{
				ID:           int64(len(s.entries)),
				UserID:       args.UserID,
				Kind:         args.Kind,
				Amount:       args.Amount,
				BalanceAfter: args.BalanceAfter,
				Metadata:     args.Metadata,
			}, nil
		}).AnyTimes()
	m.ledger.EXPECT().ExistsForOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID int64, kind domain.EntryKind, orderID int64) (bool, error) {
			return slices.ContainsFunc(s.entries, func(e repoargs.LedgerEntryCreate) bool {
				return e.UserID == userID && e.Kind == kind && e.Metadata != nil && e.Metadata.OrderID == orderID
			}), nil
		}).AnyTimes()

	m.products.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ids []int64) ([]domain.Product, error) {
			sorted := slices.Clone(ids)
			slices.Sort(sorted)
			var res []domain.Product
			for _, id := range sorted {
				if p, ok := s.products[id]; ok {
					res = append(res, p)
				}
			}
			return res, nil
		}).AnyTimes()
	m.products.EXPECT().Decrement(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id, qty int64) error {
			p, ok := s.products[id]
			if !ok || p.AvailableUnits < qty {
				return fmt.Errorf("decrement %d: %w", id, domain.ErrInsufficientStock)
			}
			p.AvailableUnits -= qty
			s.products[id] = p
			s.decremented = append(s.decremented, id)
			return nil
		}).AnyTimes()

	m.orders.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.OrderCreate) (*domain.Order, error) {
			order := domain.Order{
				ID:            1,
				CreatedAt:     s.now,
				UpdatedAt:     s.now,
				OrderNumber:   args.OrderNumber,
				BuyerID:       args.BuyerID,
				MerchantID:    args.MerchantID,
				TotalAmount:   args.TotalAmount,
				Status:        domain.OrderStatusPending,
				PaymentMethod: args.PaymentMethod,
				PaymentStatus: domain.PaymentStatusPending,
			}
			for i, item := range args.Items {
				order.Items = append(order.Items, domain.OrderItem{
					ID:        int64(i + 1),
					OrderID:   1,
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					UnitPrice: item.UnitPrice,
					LineTotal: item.LineTotal,
				})
			}
			s.stored = &order
			return s.copyStored(), nil
		}).AnyTimes()
	m.orders.EXPECT().LockByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64) (*domain.Order, error) {
			if s.stored == nil || s.stored.ID != id {
				return nil, domain.ErrRecordNotFound
			}
			return s.copyStored(), nil
		}).AnyTimes()
	m.orders.EXPECT().FindByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64) (*domain.Order, error) {
			if s.stored == nil || s.stored.ID != id {
				return nil, domain.ErrRecordNotFound
			}
			return s.copyStored(), nil
		}).AnyTimes()
	byRef := func(_ context.Context, ref string) (*domain.Order, error) {
		if s.stored == nil || s.stored.PaymentRef != ref {
			return nil, domain.ErrRecordNotFound
		}
		return s.copyStored(), nil
	}
	m.orders.EXPECT().LockByPaymentRef(gomock.Any(), gomock.Any()).DoAndReturn(byRef).AnyTimes()
	m.orders.EXPECT().FindByPaymentRef(gomock.Any(), gomock.Any()).DoAndReturn(byRef).AnyTimes()
	m.orders.EXPECT().Transition(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.OrderTransition) (*domain.Order, error) {
			s.transitions = append(s.transitions, args)
			s.stored.Status = args.To
			s.stored.PaymentStatus = args.ToPayment
			if args.PaymentDetails != nil {
				s.stored.PaymentDetails = args.PaymentDetails
			}
			return s.copyStored(), nil
		}).AnyTimes()
	m.orders.EXPECT().SetPaymentRef(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, ref string, details *domain.PaymentDetails) error {
			s.stored.PaymentRef = ref
			s.stored.PaymentDetails = details
			return nil
		}).AnyTimes()
	m.orders.EXPECT().UpdatePaymentDetails(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, details *domain.PaymentDetails) error {
			s.stored.PaymentDetails = details
			return nil
		}).AnyTimes()
}

func (s *OrderServiceTestSuite) copyStored() *domain.Order {
	order := *s.stored
	order.Items = slices.Clone(s.stored.Items)
	return &order
}

// storeOrder кладет в хранилище заказ на 2 единицы товара 10 на сумму 25.00.
func (s *OrderServiceTestSuite) storeOrder(
	method domain.PaymentMethod,
	status domain.OrderStatus,
	paymentStatus domain.PaymentStatus,
) {
	s.stored = &domain.Order{
		ID:            1,
		CreatedAt:     s.now.Add(-time.Hour),
		UpdatedAt:     s.now.Add(-time.Hour),
		OrderNumber:   "ORD-1-ABCDEF",
		BuyerID:       testBuyerID,
		MerchantID:    testMerchantID,
		TotalAmount:   decimal.RequireFromString("25.00"),
		Status:        status,
		PaymentMethod: method,
		PaymentStatus: paymentStatus,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 1, ProductID: 10, Quantity: 2, UnitPrice: decimal.RequireFromString("12.50"),
				LineTotal: decimal.RequireFromString("25.00")},
		},
	}
}

func (s *OrderServiceTestSuite) entryKinds() []domain.EntryKind {
	kinds := make([]domain.EntryKind, len(s.entries))
	for i, e := range s.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *OrderServiceTestSuite) TestCreateOrderWalletCompleted() {
	order, err := s.orderService.CreateOrder(context.Background(), CreateOrderArgs{
		BuyerID:       testBuyerID,
		PaymentMethod: domain.PaymentMethodWallet,
		Items: []CreateOrderItem{
			{ProductID: 20, Quantity: 1},
			{ProductID: 10, Quantity: 2},
		},
	})
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusCompleted, order.Status)
	s.Equal(domain.PaymentStatusPaid, order.PaymentStatus)
	s.True(strings.HasPrefix(order.OrderNumber, "ORD-"))
	s.True(order.TotalAmount.Equal(decimal.NewFromInt(30)))
	s.Equal(testMerchantID, order.MerchantID)

	// остатки списаны по возрастанию id товара.
	s.Equal([]int64{10, 20}, s.decremented)
	s.Equal(int64(3), s.products[10].AvailableUnits)
	s.Equal(int64(0), s.products[20].AvailableUnits)

	s.True(s.balances[testBuyerID].Equal(decimal.NewFromInt(70)))
	s.True(s.balances[testMerchantID].Equal(decimal.NewFromInt(30)))
	s.Equal([]domain.EntryKind{domain.EntryKindPayment, domain.EntryKindEarning}, s.entryKinds())
	for _, e := range s.entries {
		s.Require().NotNil(e.Metadata)
		s.Equal(order.ID, e.Metadata.OrderID)
	}

	s.Equal([]domain.OrderEventType{
		domain.OrderEventCreated,
		domain.OrderEventPaid,
		domain.OrderEventCompleted,
	}, s.events)
}

func (s *OrderServiceTestSuite) TestCreateOrderWalletInsufficientFunds() {
	s.balances[testBuyerID] = decimal.NewFromInt(10)

	order, err := s.orderService.CreateOrder(context.Background(), CreateOrderArgs{
		BuyerID:       testBuyerID,
		PaymentMethod: domain.PaymentMethodWallet,
		Items:         []CreateOrderItem{{ProductID: 10, Quantity: 2}},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientFunds)
	s.Require().NotNil(order)

	s.Equal(domain.OrderStatusFailed, order.Status)
	s.Equal(domain.PaymentStatusFailed, order.PaymentStatus)
	s.Empty(s.entries)
	s.Empty(s.decremented)
	s.Equal(int64(5), s.products[10].AvailableUnits)
	s.True(s.balances[testBuyerID].Equal(decimal.NewFromInt(10)))
	s.Require().NotNil(order.PaymentDetails)
	s.Equal("insufficient_funds", order.PaymentDetails.Reason)
}

func (s *OrderServiceTestSuite) TestCreateOrderRejected() {
	cases := []struct {
		name    string
		args    CreateOrderArgs
		wantErr error
	}{
		{
			name:    "no items",
			args:    CreateOrderArgs{BuyerID: testBuyerID, PaymentMethod: domain.PaymentMethodWallet},
			wantErr: domain.ErrValidation,
		},
		{
			name: "unknown payment method",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: "CASH",
				Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}},
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "zero quantity",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 10, Quantity: 0}},
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "duplicate product",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}, {ProductID: 10, Quantity: 1}},
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "missing product",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}, {ProductID: 99, Quantity: 1}},
			},
			wantErr: domain.ErrRecordNotFound,
		},
		{
			name: "different merchants",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}, {ProductID: 30, Quantity: 1}},
			},
			wantErr: domain.ErrInvalidOperation,
		},
		{
			name: "inactive product",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 40, Quantity: 1}},
			},
			wantErr: domain.ErrInvalidOperation,
		},
		{
			name: "own product",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 50, Quantity: 1}},
			},
			wantErr: domain.ErrInvalidOperation,
		},
		{
			name: "not enough stock",
			args: CreateOrderArgs{
				BuyerID:       testBuyerID,
				PaymentMethod: domain.PaymentMethodWallet,
				Items:         []CreateOrderItem{{ProductID: 20, Quantity: 2}},
			},
			wantErr: domain.ErrInsufficientStock,
		},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			order, err := s.orderService.CreateOrder(context.Background(), c.args)
			s.Require().ErrorIs(err, c.wantErr)
			s.Nil(order)
			s.Nil(s.stored, "order must not be persisted")
			s.Empty(s.entries)
		})
	}
}

func (s *OrderServiceTestSuite) TestCreateOrderGateway() {
	s.Run("intent attached", func() {
		s.mockGateway.EXPECT().
			CreateIntent(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, args domain.CreateIntentArgs) (*domain.PaymentIntent, error) {
				s.True(args.Amount.Equal(decimal.NewFromInt(25)))
				s.Equal("usd", args.Currency)
				s.Equal(args.OrderNumber, args.IdempotencyKey)
				return &domain.PaymentIntent{
					ID:           "pi_1",
					ClientSecret: "pi_1_secret",
					Status:       domain.IntentStatusRequiresPaymentMethod,
				}, nil
			})

		order, err := s.orderService.CreateOrder(context.Background(), CreateOrderArgs{
			BuyerID:       testBuyerID,
			PaymentMethod: domain.PaymentMethodGateway,
			Items:         []CreateOrderItem{{ProductID: 10, Quantity: 2}},
		})
		s.Require().NoError(err)
		s.Equal(domain.OrderStatusPending, order.Status)
		s.Equal(domain.PaymentStatusPending, order.PaymentStatus)
		s.Equal("pi_1", order.PaymentRef)
		s.Require().NotNil(order.PaymentDetails)
		s.Equal("pi_1_secret", order.PaymentDetails.ClientSecret)
		s.Empty(s.entries)
		s.Empty(s.decremented)
	})

	s.Run("gateway error fails the order", func() {
		s.mockGateway.EXPECT().
			CreateIntent(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("%w: status 500", domain.ErrGateway))

		order, err := s.orderService.CreateOrder(context.Background(), CreateOrderArgs{
			BuyerID:       testBuyerID,
			PaymentMethod: domain.PaymentMethodGateway,
			Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}},
		})
		s.Require().ErrorIs(err, domain.ErrGateway)
		s.Equal(domain.OrderStatusFailed, order.Status)
		s.Equal(domain.PaymentStatusFailed, order.PaymentStatus)
		s.Empty(s.entries)
	})

	s.Run("timeout keeps the order pending", func() {
		s.transitions = nil
		s.mockGateway.EXPECT().
			CreateIntent(gomock.Any(), gomock.Any()).
			Return(nil, context.DeadlineExceeded)

		order, err := s.orderService.CreateOrder(context.Background(), CreateOrderArgs{
			BuyerID:       testBuyerID,
			PaymentMethod: domain.PaymentMethodGateway,
			Items:         []CreateOrderItem{{ProductID: 10, Quantity: 1}},
		})
		s.Require().ErrorIs(err, context.DeadlineExceeded)
		s.Equal(domain.OrderStatusPending, order.Status)
		s.Empty(s.transitions)
	})
}

func (s *OrderServiceTestSuite) TestConfirmGatewayPayment() {
	s.Run("success fulfills the order", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_1"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_1").
			Return(&domain.PaymentIntent{ID: "pi_1", Status: domain.IntentStatusSucceeded}, nil)

		res, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_1")
		s.Require().NoError(err)
		s.Equal(ConfirmSucceeded, res.Status)
		s.Equal(domain.OrderStatusCompleted, s.stored.Status)
		s.Equal(domain.PaymentStatusPaid, s.stored.PaymentStatus)
		s.Equal([]domain.EntryKind{domain.EntryKindEarning}, s.entryKinds())
		s.Equal(int64(3), s.products[10].AvailableUnits)
	})

	s.Run("replay is already processed", func() {
		for range 2 {
			res, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_1")
			s.Require().NoError(err)
			s.Equal(ConfirmAlreadyProcessed, res.Status)
		}
		s.Len(s.entries, 1)
		s.Equal(int64(3), s.products[10].AvailableUnits)
	})

	s.Run("pending intent keeps the order pending", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_2"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_2").
			Return(&domain.PaymentIntent{ID: "pi_2", Status: domain.IntentStatusRequiresAction}, nil)

		res, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_2")
		s.Require().NoError(err)
		s.Equal(ConfirmPending, res.Status)
		s.Equal(domain.OrderStatusPending, s.stored.Status)
		s.Equal(domain.IntentStatusRequiresAction, s.stored.PaymentDetails.IntentStatus)
	})

	s.Run("failed intent fails the order", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_3"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_3").
			Return(&domain.PaymentIntent{ID: "pi_3", Status: domain.IntentStatusFailed, LastError: "card declined"}, nil)

		res, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_3")
		s.Require().NoError(err)
		s.Equal(ConfirmFailed, res.Status)
		s.Equal(domain.OrderStatusFailed, s.stored.Status)
		s.Equal(domain.PaymentStatusFailed, s.stored.PaymentStatus)
		s.Contains(s.stored.PaymentDetails.Reason, "card declined")
	})

	s.Run("success for cancelled order", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusCancelled, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_4"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_4").
			Return(&domain.PaymentIntent{ID: "pi_4", Status: domain.IntentStatusSucceeded}, nil)

		_, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_4")
		s.Require().ErrorIs(err, domain.ErrInvalidState)
		s.Equal(domain.OrderStatusCancelled, s.stored.Status)
	})

	s.Run("unknown intent", func() {
		_, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_missing")
		s.Require().ErrorIs(err, domain.ErrRecordNotFound)
	})

	s.Run("gateway unavailable", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_5"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_5").Return(nil, errors.New("connection refused"))

		_, err := s.orderService.ConfirmGatewayPayment(context.Background(), "pi_5")
		s.Require().ErrorIs(err, domain.ErrGateway)
		s.Equal(domain.OrderStatusPending, s.stored.Status)
	})
}

func (s *OrderServiceTestSuite) TestHandleGatewayEventIgnoresOtherTypes() {
	res, err := s.orderService.HandleGatewayEvent(context.Background(), domain.GatewayEvent{
		ID:       "evt_1",
		Type:     "charge.updated",
		IntentID: "pi_1",
	})
	s.Require().NoError(err)
	s.Equal(ConfirmIgnored, res.Status)
}

func (s *OrderServiceTestSuite) TestFulfillCompensation() {
	s.Run("wallet payment is refunded", func() {
		s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusProcessing, domain.PaymentStatusPaid)
		s.products[10] = domain.Product{ID: 10, MerchantID: testMerchantID, AvailableUnits: 1, IsActive: true}

		order, err := s.orderService.fulfill(context.Background(), 1)
		s.Require().ErrorIs(err, domain.ErrInsufficientStock)
		s.Equal(domain.OrderStatusFailed, order.Status)
		s.Equal(domain.PaymentStatusRefunded, order.PaymentStatus)
		s.Equal([]domain.EntryKind{domain.EntryKindRefund}, s.entryKinds())
		s.True(s.balances[testBuyerID].Equal(decimal.NewFromInt(125)))
		s.True(s.balances[testMerchantID].IsZero())
		s.Equal(int64(1), s.products[10].AvailableUnits)
	})

	s.Run("gateway payment requires external refund", func() {
		s.entries = nil
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusProcessing, domain.PaymentStatusPaid)

		order, err := s.orderService.fulfill(context.Background(), 1)
		s.Require().ErrorIs(err, domain.ErrInsufficientStock)
		s.Equal(domain.OrderStatusFailed, order.Status)
		s.Equal(domain.PaymentStatusPaid, order.PaymentStatus)
		s.Require().NotNil(order.PaymentDetails)
		s.True(order.PaymentDetails.RefundRequired)
		s.Empty(s.entries)
	})

	s.Run("completed order is not fulfilled twice", func() {
		s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusCompleted, domain.PaymentStatusPaid)
		s.transitions = nil

		order, err := s.orderService.fulfill(context.Background(), 1)
		s.Require().NoError(err)
		s.Equal(domain.OrderStatusCompleted, order.Status)
		s.Empty(s.transitions)
	})
}

func (s *OrderServiceTestSuite) TestWalletPaymentLosesToCancel() {
	s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusPending, domain.PaymentStatusPending)
	stale := s.copyStored()
	s.stored.Status = domain.OrderStatusCancelled

	order, err := s.orderService.payWithWallet(context.Background(), stale)
	s.Require().ErrorIs(err, domain.ErrInvalidState)
	s.Require().NotNil(order)
	s.Equal(domain.OrderStatusCancelled, order.Status)
	s.Equal(domain.PaymentStatusPending, order.PaymentStatus)
	s.Empty(s.entries)
	s.True(s.balances[testBuyerID].Equal(decimal.NewFromInt(100)))
}

func (s *OrderServiceTestSuite) TestCancelOrder() {
	cases := []struct {
		name          string
		method        domain.PaymentMethod
		status        domain.OrderStatus
		paymentStatus domain.PaymentStatus
		buyerID       int64
		wantErr       error
		wantStatus    domain.OrderStatus
		wantPayment   domain.PaymentStatus
		wantRefund    bool
	}{
		{
			name:          "pending order",
			method:        domain.PaymentMethodGateway,
			status:        domain.OrderStatusPending,
			paymentStatus: domain.PaymentStatusPending,
			buyerID:       testBuyerID,
			wantStatus:    domain.OrderStatusCancelled,
			wantPayment:   domain.PaymentStatusPending,
		},
		{
			name:          "paid wallet order is refunded",
			method:        domain.PaymentMethodWallet,
			status:        domain.OrderStatusProcessing,
			paymentStatus: domain.PaymentStatusPaid,
			buyerID:       testBuyerID,
			wantStatus:    domain.OrderStatusCancelled,
			wantPayment:   domain.PaymentStatusRefunded,
			wantRefund:    true,
		},
		{
			name:          "paid gateway order",
			method:        domain.PaymentMethodGateway,
			status:        domain.OrderStatusProcessing,
			paymentStatus: domain.PaymentStatusPaid,
			buyerID:       testBuyerID,
			wantErr:       domain.ErrInvalidOperation,
		},
		{
			name:          "completed order",
			method:        domain.PaymentMethodWallet,
			status:        domain.OrderStatusCompleted,
			paymentStatus: domain.PaymentStatusPaid,
			buyerID:       testBuyerID,
			wantErr:       domain.ErrInvalidState,
		},
		{
			name:          "someone else's order",
			method:        domain.PaymentMethodWallet,
			status:        domain.OrderStatusPending,
			paymentStatus: domain.PaymentStatusPending,
			buyerID:       testMerchantID,
			wantErr:       domain.ErrRecordNotFound,
		},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			s.entries = nil
			s.balances[testBuyerID] = decimal.NewFromInt(100)
			s.storeOrder(c.method, c.status, c.paymentStatus)

			order, err := s.orderService.CancelOrder(context.Background(), 1, c.buyerID)
			if c.wantErr != nil {
				s.Require().ErrorIs(err, c.wantErr)
				s.Equal(c.status, s.stored.Status)
				s.Empty(s.entries)
				return
			}
			s.Require().NoError(err)
			s.Equal(c.wantStatus, order.Status)
			s.Equal(c.wantPayment, order.PaymentStatus)
			if c.wantRefund {
				s.Equal([]domain.EntryKind{domain.EntryKindRefund}, s.entryKinds())
				s.True(s.balances[testBuyerID].Equal(decimal.NewFromInt(125)))
			} else {
				s.Empty(s.entries)
			}
		})
	}
}

func (s *OrderServiceTestSuite) TestGetOrder() {
	s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusCompleted, domain.PaymentStatusPaid)

	for _, userID := range []int64{testBuyerID, testMerchantID} {
		order, err := s.orderService.GetOrder(context.Background(), 1, userID)
		s.Require().NoError(err)
		s.Equal(int64(1), order.ID)
	}

	_, err := s.orderService.GetOrder(context.Background(), 1, 999)
	s.Require().ErrorIs(err, domain.ErrRecordNotFound)
}

func (s *OrderServiceTestSuite) TestListOrders() {
	s.mocks.orders.EXPECT().
		ListByBuyer(gomock.Any(), testBuyerID, domain.OrderStatusPending).
		Return([]domain.Order{{ID: 2}, {ID: 1}}, nil)
	s.mocks.orders.EXPECT().
		ListByMerchant(gomock.Any(), testMerchantID, domain.OrderStatus("")).
		Return(nil, errors.New("boom"))

	orders, err := s.orderService.ListBuyerOrders(context.Background(), testBuyerID, domain.OrderStatusPending)
	s.Require().NoError(err)
	s.Len(orders, 2)

	_, err = s.orderService.ListMerchantOrders(context.Background(), testMerchantID, "")
	s.Require().Error(err)
}

func (s *OrderServiceTestSuite) TestStaleOrders() {
	s.mocks.orders.EXPECT().
		ListStale(gomock.Any(), repoargs.StaleOrdersFilter{
			Statuses:      []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing},
			UpdatedBefore: s.now.Add(-5 * time.Minute),
			Limit:         50,
		}).
		Return([]domain.Order{{ID: 1}}, nil)

	orders, err := s.orderService.StaleOrders(context.Background(), 50)
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *OrderServiceTestSuite) TestReconcileOrder() {
	s.Run("stranded payment is fulfilled", func() {
		s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusProcessing, domain.PaymentStatusPaid)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcileFulfilled, outcome)
		s.Equal(domain.OrderStatusCompleted, s.stored.Status)
	})

	s.Run("uncommitted wallet debit", func() {
		s.storeOrder(domain.PaymentMethodWallet, domain.OrderStatusPending, domain.PaymentStatusPending)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcileExpired, outcome)
		s.Equal(domain.OrderStatusFailed, s.stored.Status)
	})

	s.Run("terminal order is skipped", func() {
		for _, status := range []domain.OrderStatus{
			domain.OrderStatusCompleted, domain.OrderStatusFailed, domain.OrderStatusCancelled,
		} {
			s.storeOrder(domain.PaymentMethodGateway, status, domain.PaymentStatusPending)
			s.stored.PaymentRef = "pi_closed"

			outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
			s.Require().NoError(err)
			s.Equal(ReconcileSkipped, outcome)
			s.Equal(status, s.stored.Status)
		}
	})

	s.Run("fresh gateway order without intent", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcileSkipped, outcome)
		s.Equal(domain.OrderStatusPending, s.stored.Status)
	})

	s.Run("expired gateway order without intent", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.CreatedAt = s.now.Add(-25 * time.Hour)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcileExpired, outcome)
		s.Equal(domain.OrderStatusFailed, s.stored.Status)
	})

	s.Run("expired pending intent", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.CreatedAt = s.now.Add(-25 * time.Hour)
		s.stored.PaymentRef = "pi_9"
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_9").
			Return(&domain.PaymentIntent{ID: "pi_9", Status: domain.IntentStatusProcessing}, nil)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcileExpired, outcome)
		s.Equal(domain.OrderStatusFailed, s.stored.Status)
		s.Equal("payment expired", s.stored.PaymentDetails.Reason)
	})

	gatewayErr := func(err error) error {
		return fmt.Errorf("%w: %w", domain.ErrGateway, err)
	}
	rejectedCases := []struct {
		name        string
		age         time.Duration
		retrieveErr error
		wantOutcome string
		wantStatus  domain.OrderStatus
	}{
		{
			name:        "expired order with rejected intent",
			age:         30 * 24 * time.Hour,
			retrieveErr: gatewayErr(gateway.NewStatusCodeError(404, "no such intent")),
			wantOutcome: ReconcileExpired,
			wantStatus:  domain.OrderStatusFailed,
		},
		{
			name:        "fresh order with rejected intent",
			age:         time.Hour,
			retrieveErr: gatewayErr(gateway.NewStatusCodeError(404, "no such intent")),
			wantOutcome: ReconcileError,
			wantStatus:  domain.OrderStatusPending,
		},
		{
			name:        "expired order with gateway outage",
			age:         30 * 24 * time.Hour,
			retrieveErr: gatewayErr(gateway.NewStatusCodeError(503, "")),
			wantOutcome: ReconcileError,
			wantStatus:  domain.OrderStatusPending,
		},
		{
			name:        "expired order with rate limit",
			age:         30 * 24 * time.Hour,
			retrieveErr: gatewayErr(gateway.NewTooManyRequestError(time.Second)),
			wantOutcome: ReconcileError,
			wantStatus:  domain.OrderStatusPending,
		},
	}
	for _, c := range rejectedCases {
		s.Run(c.name, func() {
			s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
			s.stored.CreatedAt = s.now.Add(-c.age)
			s.stored.PaymentRef = "pi_gone"
			s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_gone").Return(nil, c.retrieveErr)

			outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
			s.Equal(c.wantOutcome, outcome)
			s.Equal(c.wantStatus, s.stored.Status)
			if c.wantOutcome == ReconcileError {
				s.Require().ErrorIs(err, domain.ErrGateway)
				s.Equal(1, strings.Count(err.Error(), domain.ErrGateway.Error()))
				return
			}
			s.Require().NoError(err)
			s.Require().NotNil(s.stored.PaymentDetails)
			s.Equal("payment intent missing", s.stored.PaymentDetails.Reason)
		})
	}

	s.Run("late success", func() {
		s.storeOrder(domain.PaymentMethodGateway, domain.OrderStatusPending, domain.PaymentStatusPending)
		s.stored.PaymentRef = "pi_10"
		s.products[10] = domain.Product{ID: 10, MerchantID: testMerchantID, AvailableUnits: 5, IsActive: true}
		s.mockGateway.EXPECT().RetrieveIntent(gomock.Any(), "pi_10").
			Return(&domain.PaymentIntent{ID: "pi_10", Status: domain.IntentStatusSucceeded}, nil)

		outcome, err := s.orderService.ReconcileOrder(context.Background(), *s.copyStored())
		s.Require().NoError(err)
		s.Equal(ReconcilePaid, outcome)
		s.Equal(domain.OrderStatusCompleted, s.stored.Status)
	})
}
