package repoargs

type RepositoryName string

const (
	UserRepoName    RepositoryName = "user"
	ProductRepoName RepositoryName = "product"
	OrderRepoName   RepositoryName = "order"
	LedgerRepoName  RepositoryName = "ledger"
)

// Pagination смещение и размер выборки.
type Pagination struct {
	Limit  uint
	Offset uint
}
