package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Listing is the marketplace record of a minted token. There is exactly one
// per token and it is never deleted. Custodian is who currently holds the
// token, Seller is who is entitled to the proceeds of the next sale.
type Listing struct {
	TokenId   uint64
	Custodian common.Address
	Seller    common.Address
	Price     uint64
	IsListed  bool
	UpdatedAt time.Time
}

func NewListing(tokenId uint64, ledger, seller common.Address, price uint64) Listing {
	return Listing{
		TokenId:   tokenId,
		Custodian: ledger,
		Seller:    seller,
		Price:     price,
		IsListed:  true,
		UpdatedAt: time.Now(),
	}
}

func (l Listing) IsHeldBy(addr common.Address) bool {
	return l.Custodian == addr
}

// Involves returns whether addr is either the seller or the custodian.
func (l Listing) Involves(addr common.Address) bool {
	return l.Seller == addr || l.Custodian == addr
}

// Sell hands the listing over to the buyer, who becomes both seller of record
// and custodian. IsListed is left untouched.
func (l *Listing) Sell(buyer common.Address) {
	l.Seller = buyer
	l.Custodian = buyer
	l.UpdatedAt = time.Now()
}
