package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the unique asset identity. Creator is the wallet the token was
// minted for, Owner carries the base transfer rights and ApprovedOperator is
// the standing approval granted after a sale.
type Token struct {
	Id               uint64
	URI              string
	Creator          common.Address
	Owner            common.Address
	ApprovedOperator common.Address
	MintedAt         time.Time
}

func NewToken(id uint64, uri string, creator, owner common.Address) Token {
	return Token{
		Id:       id,
		URI:      uri,
		Creator:  creator,
		Owner:    owner,
		MintedAt: time.Now(),
	}
}

func (t Token) HasApprovedOperator() bool {
	return t.ApprovedOperator != (common.Address{})
}
