package application

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"github.com/tokenmarket/marketd/pkg/errors"
)

// balanceSheet accumulates balance updates within a single operation, so that
// the same address can be touched more than once before the changes are
// persisted.
type balanceSheet struct {
	repo    domain.LedgerRepository
	amounts map[common.Address]uint64
}

func newBalanceSheet(repo domain.LedgerRepository) *balanceSheet {
	return &balanceSheet{repo, make(map[common.Address]uint64)}
}

func (b *balanceSheet) get(ctx context.Context, addr common.Address) (uint64, error) {
	if amount, ok := b.amounts[addr]; ok {
		return amount, nil
	}
	amount, err := b.repo.GetBalance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	b.amounts[addr] = amount
	return amount, nil
}

func (b *balanceSheet) credit(ctx context.Context, addr common.Address, amount uint64) error {
	current, err := b.get(ctx, addr)
	if err != nil {
		return err
	}
	if current > math.MaxUint64-amount {
		return errors.INTERNAL_ERROR.New("balance overflow for %s", addr.Hex())
	}
	b.amounts[addr] = current + amount
	return nil
}

func (b *balanceSheet) debit(ctx context.Context, addr common.Address, amount uint64) error {
	current, err := b.get(ctx, addr)
	if err != nil {
		return err
	}
	if current < amount {
		return errors.INTERNAL_ERROR.New("balance underflow for %s", addr.Hex())
	}
	b.amounts[addr] = current - amount
	return nil
}

// changes returns the final balances sorted by address.
func (b *balanceSheet) changes() []domain.Balance {
	balances := make([]domain.Balance, 0, len(b.amounts))
	for addr, amount := range b.amounts {
		balances = append(balances, domain.Balance{Address: addr, Amount: amount})
	}
	sort.SliceStable(balances, func(i, j int) bool {
		return bytes.Compare(balances[i].Address[:], balances[j].Address[:]) < 0
	})
	return balances
}

func noSuchListing(tokenId uint64) error {
	return errors.NO_SUCH_LISTING.New("no listing for token %d", tokenId).
		WithMetadata(errors.ListingMetadata{TokenId: tokenId})
}

// rejectLedgerCaller fails when the ledger itself is the caller. The ledger
// never initiates operations and can't hold a listing as seller or buyer.
func rejectLedgerCaller(state *domain.LedgerState, caller common.Address) error {
	if !state.IsLedger(caller) {
		return nil
	}
	return errors.UNAUTHORIZED.New("the ledger cannot act as caller").
		WithMetadata(errors.UnauthorizedMetadata{
			Caller:   caller.Hex(),
			Operator: state.Operator.Hex(),
		})
}
