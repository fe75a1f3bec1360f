package service

import (
	"context"
	"fmt"
	"math"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize uint = 10
	maxPageSize     uint = 100
)

var (
	userRepoName    = uow.RepositoryName(repoargs.UserRepoName)
	ledgerRepoName  = uow.RepositoryName(repoargs.LedgerRepoName)
	productRepoName = uow.RepositoryName(repoargs.ProductRepoName)
	orderRepoName   = uow.RepositoryName(repoargs.OrderRepoName)
)

// LedgerService единственная точка изменения балансов. Каждое изменение баланса выполняется под блокировкой
// строки пользователя в той же транзакции, что и запись в журнал.
type LedgerService struct {
	uow        uow.UOW
	userRepo   UserRepository
	ledgerRepo LedgerRepository
	metrics    MetricsRecorder
}

func NewLedgerService(u uow.UOW, m MetricsRecorder) (*LedgerService, error) {
	userRepo, userRepoErr := uow.GetRepositoryAs[UserRepository](u, userRepoName)
	if userRepoErr != nil {
		return nil, userRepoErr
	}
	ledgerRepo, ledgerRepoErr := uow.GetRepositoryAs[LedgerRepository](u, ledgerRepoName)
	if ledgerRepoErr != nil {
		return nil, ledgerRepoErr
	}
	return &LedgerService{
		uow:        u,
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		metrics:    m,
	}, nil
}

// posting одна проводка. Amount всегда положительный, знак определяется видом записи.
type posting struct {
	Kind          domain.EntryKind
	Amount        decimal.Decimal
	CounterpartID *int64
	Description   string
	Metadata      *domain.EntryMetadata
}

func (p posting) validate() error {
	if err := domain.ValidateAmount("amount", p.Amount); err != nil {
		return err
	}
	return p.Metadata.Validate()
}

func (l *LedgerService) Deposit(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	description string,
) (*domain.LedgerEntry, error) {
	return l.single(ctx, userID, posting{
		Kind:        domain.EntryKindDeposit,
		Amount:      amount,
		Description: defaultIfBlank(description, "Wallet deposit"),
	})
}

// Withdraw списывает amount с баланса. При нехватке средств возвращает domain.ErrInsufficientFunds,
// баланс и журнал не меняются.
func (l *LedgerService) Withdraw(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	description string,
) (*domain.LedgerEntry, error) {
	return l.single(ctx, userID, posting{
		Kind:        domain.EntryKindWithdrawal,
		Amount:      amount,
		Description: defaultIfBlank(description, "Wallet withdrawal"),
	})
}

// ProcessPayment списание с покупателя в оплату заказа orderID.
func (l *LedgerService) ProcessPayment(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	orderID int64,
	description string,
) (*domain.LedgerEntry, error) {
	return l.single(ctx, userID, posting{
		Kind:        domain.EntryKindPayment,
		Amount:      amount,
		Description: defaultIfBlank(description, fmt.Sprintf("Payment for order #%d", orderID)),
		Metadata:    domain.NewOrderCorrelation(orderID, ""),
	})
}

// ProcessEarnings зачисление продавцу выручки по заказу orderID.
func (l *LedgerService) ProcessEarnings(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	orderID int64,
	description string,
) (*domain.LedgerEntry, error) {
	return l.single(ctx, userID, posting{
		Kind:        domain.EntryKindEarning,
		Amount:      amount,
		Description: defaultIfBlank(description, fmt.Sprintf("Earnings from order #%d", orderID)),
		Metadata:    domain.NewOrderCorrelation(orderID, ""),
	})
}

type TransferArgs struct {
	FromUserID  int64
	ToUserID    int64
	Amount      decimal.Decimal
	Description string
}

type TransferResult struct {
	Outgoing *domain.LedgerEntry
	Incoming *domain.LedgerEntry
}

// Transfer переводит средства между пользователями в одной транзакции.
//
// Обе строки пользователей блокируются в порядке возрастания id независимо от направления перевода, поэтому
// два встречных перевода не могут взаимно заблокировать друг друга.
func (l *LedgerService) Transfer(ctx context.Context, args TransferArgs) (*TransferResult, error) {
	if args.FromUserID == args.ToUserID {
		return nil, fmt.Errorf("transfer: %w: sender and recipient are the same user", domain.ErrInvalidOperation)
	}
	if err := domain.ValidateAmount("amount", args.Amount); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	var result TransferResult
	txErr := l.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		users, repoErr := uow.GetAs[UserRepository](tx, userRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}

		first, second := args.FromUserID, args.ToUserID
		if first > second {
			first, second = second, first
		}
		firstUser, lockErr := users.LockByID(c, first)
		if lockErr != nil {
			return lockErr //nolint:wrapcheck
		}
		secondUser, lockErr := users.LockByID(c, second)
		if lockErr != nil {
			return lockErr //nolint:wrapcheck
		}

		sender, recipient := firstUser, secondUser
		if sender.ID != args.FromUserID {
			sender, recipient = recipient, sender
		}

		var postErr error
		result.Outgoing, postErr = l.applyTx(c, tx, sender, posting{
			Kind:          domain.EntryKindTransferOut,
			Amount:        args.Amount,
			CounterpartID: &recipient.ID,
			Description:   defaultIfBlank(args.Description, fmt.Sprintf("Transfer to user #%d", recipient.ID)),
		})
		if postErr != nil {
			return postErr
		}
		result.Incoming, postErr = l.applyTx(c, tx, recipient, posting{
			Kind:          domain.EntryKindTransferIn,
			Amount:        args.Amount,
			CounterpartID: &sender.ID,
			Description:   defaultIfBlank(args.Description, fmt.Sprintf("Transfer from user #%d", sender.ID)),
		})
		return postErr
	})

	l.metrics.LedgerOperation("transfer", txErr)
	if txErr != nil {
		return nil, fmt.Errorf("transfer from user %d to user %d: %w", args.FromUserID, args.ToUserID, txErr)
	}
	return &result, nil
}

func (l *LedgerService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := l.userRepo.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return user.Balance, nil
}

type TransactionsPage struct {
	Items []domain.LedgerEntry
	Total int64
	Page  uint
	Size  uint
}

// GetTransactions возвращает страницу истории операций пользователя, новые первыми. Страницы нумеруются с 1.
func (l *LedgerService) GetTransactions(
	ctx context.Context,
	userID int64,
	page, size uint,
) (*TransactionsPage, error) {
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		return nil, domain.NewValidationError("size", fmt.Sprintf("must not exceed %d", maxPageSize))
	}

	// смещение уходит в bigint.
	if uint64(page-1) > uint64(math.MaxInt64)/uint64(size) {
		return nil, domain.NewValidationError("page", "is too large")
	}

	if _, err := l.userRepo.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	items, listErr := l.ledgerRepo.ListByUser(ctx, userID, repoargs.Pagination{
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if listErr != nil {
		return nil, fmt.Errorf("get transactions: %w", listErr)
	}
	total, countErr := l.ledgerRepo.CountByUser(ctx, userID)
	if countErr != nil {
		return nil, fmt.Errorf("get transactions: %w", countErr)
	}

	return &TransactionsPage{Items: items, Total: total, Page: page, Size: size}, nil
}

type BalanceReport struct {
	UserID    int64
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
}

// Consistent сообщает, совпадает ли баланс с суммой журнала.
func (r BalanceReport) Consistent() bool {
	return r.Balance.Equal(r.LedgerSum)
}

// VerifyBalance сверяет сохраненный баланс с суммой записей журнала. Строка пользователя блокируется на время
// сверки, чтобы параллельная проводка не попала между двумя чтениями.
func (l *LedgerService) VerifyBalance(ctx context.Context, userID int64) (*BalanceReport, error) {
	var report BalanceReport
	txErr := l.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		users, repoErr := uow.GetAs[UserRepository](tx, userRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		ledger, repoErr := uow.GetAs[LedgerRepository](tx, ledgerRepoName)
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		user, lockErr := users.LockByID(c, userID)
		if lockErr != nil {
			return lockErr //nolint:wrapcheck
		}
		sum, sumErr := ledger.SumByUser(c, userID)
		if sumErr != nil {
			return sumErr //nolint:wrapcheck
		}
		report = BalanceReport{UserID: userID, Balance: user.Balance, LedgerSum: sum}
		return nil
	})
	if txErr != nil {
		return nil, fmt.Errorf("verify balance: %w", txErr)
	}
	return &report, nil
}

// single проводит одну запись в собственной транзакции.
func (l *LedgerService) single(ctx context.Context, userID int64, p posting) (*domain.LedgerEntry, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Kind, err)
	}

	var entry *domain.LedgerEntry
	txErr := l.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		var postErr error
		entry, postErr = l.postTx(c, tx, userID, p)
		return postErr
	})

	l.metrics.LedgerOperation(string(p.Kind), txErr)
	if txErr != nil {
		return nil, fmt.Errorf("%s for user %d: %w", p.Kind, userID, txErr)
	}
	return entry, nil
}

// postTx блокирует строку пользователя и проводит запись внутри уже открытой транзакции tx.
func (l *LedgerService) postTx(
	ctx context.Context,
	tx uow.TX,
	userID int64,
	p posting,
) (*domain.LedgerEntry, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	users, repoErr := uow.GetAs[UserRepository](tx, userRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}
	user, lockErr := users.LockByID(ctx, userID)
	if lockErr != nil {
		return nil, lockErr //nolint:wrapcheck
	}
	return l.applyTx(ctx, tx, user, p)
}

// refundTx возвращает покупателю оплату заказа. Повторный возврат по тому же заказу не проводится,
// в этом случае возвращается nil запись.
func (l *LedgerService) refundTx(ctx context.Context, tx uow.TX, order *domain.Order) (*domain.LedgerEntry, error) {
	ledger, repoErr := uow.GetAs[LedgerRepository](tx, ledgerRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}
	refunded, existsErr := ledger.ExistsForOrder(ctx, order.BuyerID, domain.EntryKindRefund, order.ID)
	if existsErr != nil {
		return nil, existsErr //nolint:wrapcheck
	}
	if refunded {
		return nil, nil
	}
	return l.postTx(ctx, tx, order.BuyerID, posting{
		Kind:        domain.EntryKindRefund,
		Amount:      order.TotalAmount,
		Description: "Refund for order " + order.OrderNumber,
		Metadata:    domain.NewOrderCorrelation(order.ID, order.OrderNumber),
	})
}

// applyTx меняет баланс уже заблокированного пользователя и добавляет запись в журнал.
// Баланс и запись пишутся в одной транзакции tx.
func (l *LedgerService) applyTx(
	ctx context.Context,
	tx uow.TX,
	user *domain.User,
	p posting,
) (*domain.LedgerEntry, error) {
	users, repoErr := uow.GetAs[UserRepository](tx, userRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}
	ledger, repoErr := uow.GetAs[LedgerRepository](tx, ledgerRepoName)
	if repoErr != nil {
		return nil, repoErr //nolint:wrapcheck
	}

	signed := p.Amount
	if p.Kind.IsDebit() {
		signed = signed.Neg()
	}
	newBalance := user.Balance.Add(signed)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf(
			"%w: user %d has %s, needs %s",
			domain.ErrInsufficientFunds,
			user.ID,
			user.Balance.StringFixed(domain.MoneyScale),
			p.Amount.StringFixed(domain.MoneyScale),
		)
	}

	if err := users.UpdateBalance(ctx, user.ID, newBalance); err != nil {
		return nil, err //nolint:wrapcheck
	}
	entry, createErr := ledger.Create(ctx, repoargs.LedgerEntryCreate{
		UserID:        user.ID,
		CounterpartID: p.CounterpartID,
		Kind:          p.Kind,
		Amount:        signed,
		BalanceAfter:  newBalance,
		Description:   p.Description,
		Metadata:      p.Metadata,
	})
	if createErr != nil {
		return nil, createErr //nolint:wrapcheck
	}
	user.Balance = newBalance
	return entry, nil
}

func defaultIfBlank(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
