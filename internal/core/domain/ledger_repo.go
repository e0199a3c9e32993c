package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type LedgerRepository interface {
	// GetState returns nil if the ledger was never initialized.
	GetState(ctx context.Context) (*LedgerState, error)
	// GetListing returns nil if no listing exists for the given token id.
	GetListing(ctx context.Context, tokenId uint64) (*Listing, error)
	// GetListings returns all listings sorted by ascending token id.
	GetListings(ctx context.Context) ([]Listing, error)
	GetToken(ctx context.Context, tokenId uint64) (*Token, error)
	// GetBalance returns 0 for unknown addresses.
	GetBalance(ctx context.Context, addr common.Address) (uint64, error)
	GetSales(ctx context.Context, tokenId uint64) ([]Sale, error)
	ApplyChanges(ctx context.Context, changes LedgerChanges) error
	Close()
}
