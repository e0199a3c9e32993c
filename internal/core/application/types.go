package application

import "github.com/ethereum/go-ethereum/common"

type LedgerInfo struct {
	Operator      common.Address
	LedgerAddress common.Address
	ListingFee    uint64
	TokenCount    uint64
	SoldCount     uint64
}
