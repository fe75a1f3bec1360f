package service

import (
	"context"

	"github.com/fsdevblog/groph-market/internal/repository/repoargs"
	"github.com/fsdevblog/groph-market/internal/service/mocks"
	"github.com/fsdevblog/groph-market/pkg/uow"
	uowmocks "github.com/fsdevblog/groph-market/pkg/uow/mocks"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
)

// decimalMatcher сравнивает суммы по значению, а не по внутреннему представлению.
type decimalMatcher struct {
	want decimal.Decimal
}

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is equal to " + m.want.String()
}

func decEq(value string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(value)}
}

// repoMocks набор моков репозиториев, доступных как вне транзакции, так и через мок транзакции.
type repoMocks struct {
	uow      *uowmocks.MockUOW
	tx       *uowmocks.MockTX
	users    *mocks.MockUserRepository
	ledger   *mocks.MockLedgerRepository
	products *mocks.MockProductRepository
	orders   *mocks.MockOrderRepository
	metrics  *mocks.MockMetricsRecorder
}

func newRepoMocks(ctrl *gomock.Controller) *repoMocks {
	m := &repoMocks{
		uow:      uowmocks.NewMockUOW(ctrl),
		tx:       uowmocks.NewMockTX(ctrl),
		users:    mocks.NewMockUserRepository(ctrl),
		ledger:   mocks.NewMockLedgerRepository(ctrl),
		products: mocks.NewMockProductRepository(ctrl),
		orders:   mocks.NewMockOrderRepository(ctrl),
		metrics:  mocks.NewMockMetricsRecorder(ctrl),
	}

	repos := map[repoargs.RepositoryName]uow.Repository{
		repoargs.UserRepoName:    m.users,
		repoargs.LedgerRepoName:  m.ledger,
		repoargs.ProductRepoName: m.products,
		repoargs.OrderRepoName:   m.orders,
	}
	for name, repo := range repos {
		m.uow.EXPECT().GetRepository(uow.RepositoryName(name)).Return(repo, nil).AnyTimes()
		m.tx.EXPECT().Get(uow.RepositoryName(name)).Return(repo, nil).AnyTimes()
	}

	m.uow.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, uow.TX) error) error {
			return fn(ctx, m.tx)
		}).AnyTimes()

	m.metrics.EXPECT().LedgerOperation(gomock.Any(), gomock.Any()).AnyTimes()
	m.metrics.EXPECT().OrderTransition(gomock.Any(), gomock.Any()).AnyTimes()
	m.metrics.EXPECT().Reconciled(gomock.Any()).AnyTimes()
	return m
}
