package ports

import "github.com/tokenmarket/marketd/internal/core/domain"

type RepoManager interface {
	Ledger() domain.LedgerRepository
	Close()
}
