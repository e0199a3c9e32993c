package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Sale struct {
	Id          uint64
	TokenId     uint64
	Seller      common.Address
	Buyer       common.Address
	Price       uint64
	OperatorFee uint64
	SoldAt      time.Time
}
