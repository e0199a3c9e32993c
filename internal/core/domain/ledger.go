package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerState is the single record holding the marketplace configuration and
// its counters. LastTokenId is the highest token id ever minted, 0 before the
// first mint.
type LedgerState struct {
	Operator      common.Address
	LedgerAddress common.Address
	ListingFee    uint64
	LastTokenId   uint64
	SoldCount     uint64
	UpdatedAt     time.Time
}

func NewLedgerState(operator, ledgerAddress common.Address, listingFee uint64) *LedgerState {
	return &LedgerState{
		Operator:      operator,
		LedgerAddress: ledgerAddress,
		ListingFee:    listingFee,
		UpdatedAt:     time.Now(),
	}
}

func (s LedgerState) NextTokenId() uint64 {
	return s.LastTokenId + 1
}

func (s LedgerState) IsOperator(addr common.Address) bool {
	return s.Operator == addr
}

func (s LedgerState) IsLedger(addr common.Address) bool {
	return s.LedgerAddress == addr
}

// Balance is the amount credited to an address.
type Balance struct {
	Address common.Address
	Amount  uint64
}

// LedgerChanges groups every record touched by a single ledger operation.
// Repositories must persist it atomically: either all of it or none.
// Balances carry absolute values, not deltas.
type LedgerChanges struct {
	State    *LedgerState
	Tokens   []Token
	Listings []Listing
	Balances []Balance
	Sales    []Sale
}

func (c LedgerChanges) IsEmpty() bool {
	return c.State == nil && len(c.Tokens) <= 0 && len(c.Listings) <= 0 &&
		len(c.Balances) <= 0 && len(c.Sales) <= 0
}
