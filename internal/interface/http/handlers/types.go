package handlers

import (
	"strconv"

	"github.com/tokenmarket/marketd/internal/core/application"
	"github.com/tokenmarket/marketd/internal/core/domain"
)

// Amounts are encoded as decimal strings, they may exceed what JSON numbers
// can carry without loss in most clients.

type SetListingFeeRequest struct {
	Fee string `json:"fee" binding:"required"`
}

type MintAndListRequest struct {
	Uri     string `json:"uri"`
	Price   string `json:"price" binding:"required"`
	FeePaid string `json:"fee_paid" binding:"required"`
	// Owner is the wallet the token is minted for, defaults to the caller.
	Owner string `json:"owner"`
}

type MintAndListResponse struct {
	TokenId uint64 `json:"token_id"`
}

type PurchaseRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type InfoResponse struct {
	Version       string `json:"version"`
	Operator      string `json:"operator"`
	LedgerAddress string `json:"ledger_address"`
	ListingFee    string `json:"listing_fee"`
	TokenCount    uint64 `json:"token_count"`
	SoldCount     uint64 `json:"sold_count"`
}

type FeeResponse struct {
	Fee string `json:"fee"`
}

type Listing struct {
	TokenId   uint64 `json:"token_id"`
	Custodian string `json:"custodian"`
	Seller    string `json:"seller"`
	Price     string `json:"price"`
	IsListed  bool   `json:"is_listed"`
	UpdatedAt int64  `json:"updated_at"`
}

type ListingsResponse struct {
	Listings []Listing `json:"listings"`
}

type Token struct {
	Id               uint64 `json:"id"`
	Uri              string `json:"uri"`
	Creator          string `json:"creator"`
	Owner            string `json:"owner"`
	ApprovedOperator string `json:"approved_operator,omitempty"`
	MintedAt         int64  `json:"minted_at"`
}

type Sale struct {
	Id          uint64 `json:"id"`
	TokenId     uint64 `json:"token_id"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer"`
	Price       string `json:"price"`
	OperatorFee string `json:"operator_fee"`
	SoldAt      int64  `json:"sold_at"`
}

type SalesResponse struct {
	Sales []Sale `json:"sales"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type Event struct {
	Type        string `json:"type"`
	TokenId     uint64 `json:"token_id"`
	Custodian   string `json:"custodian,omitempty"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer,omitempty"`
	Price       string `json:"price"`
	OperatorFee string `json:"operator_fee,omitempty"`
	IsListed    bool   `json:"is_listed"`
	Timestamp   int64  `json:"timestamp"`
}

func formatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func newInfoResponse(version string, info *application.LedgerInfo) InfoResponse {
	return InfoResponse{
		Version:       version,
		Operator:      info.Operator.Hex(),
		LedgerAddress: info.LedgerAddress.Hex(),
		ListingFee:    formatAmount(info.ListingFee),
		TokenCount:    info.TokenCount,
		SoldCount:     info.SoldCount,
	}
}

func newListing(l domain.Listing) Listing {
	return Listing{
		TokenId:   l.TokenId,
		Custodian: l.Custodian.Hex(),
		Seller:    l.Seller.Hex(),
		Price:     formatAmount(l.Price),
		IsListed:  l.IsListed,
		UpdatedAt: l.UpdatedAt.Unix(),
	}
}

func newListings(listings []domain.Listing) ListingsResponse {
	list := make([]Listing, 0, len(listings))
	for _, l := range listings {
		list = append(list, newListing(l))
	}
	return ListingsResponse{Listings: list}
}

func newToken(t domain.Token) Token {
	token := Token{
		Id:       t.Id,
		Uri:      t.URI,
		Creator:  t.Creator.Hex(),
		Owner:    t.Owner.Hex(),
		MintedAt: t.MintedAt.Unix(),
	}
	if t.HasApprovedOperator() {
		token.ApprovedOperator = t.ApprovedOperator.Hex()
	}
	return token
}

func newSales(sales []domain.Sale) SalesResponse {
	list := make([]Sale, 0, len(sales))
	for _, s := range sales {
		list = append(list, Sale{
			Id:          s.Id,
			TokenId:     s.TokenId,
			Seller:      s.Seller.Hex(),
			Buyer:       s.Buyer.Hex(),
			Price:       formatAmount(s.Price),
			OperatorFee: formatAmount(s.OperatorFee),
			SoldAt:      s.SoldAt.Unix(),
		})
	}
	return SalesResponse{Sales: list}
}

func newEvent(event domain.Event) (*Event, bool) {
	switch e := event.(type) {
	case domain.ListingCreated:
		return &Event{
			Type:      e.GetType().String(),
			TokenId:   e.TokenId,
			Custodian: e.Custodian.Hex(),
			Seller:    e.Seller.Hex(),
			Price:     formatAmount(e.Price),
			IsListed:  e.IsListed,
			Timestamp: e.Timestamp,
		}, true
	case domain.ListingSold:
		return &Event{
			Type:        e.GetType().String(),
			TokenId:     e.TokenId,
			Seller:      e.Seller.Hex(),
			Buyer:       e.Buyer.Hex(),
			Price:       formatAmount(e.Price),
			OperatorFee: formatAmount(e.OperatorFee),
			IsListed:    true,
			Timestamp:   e.Timestamp,
		}, true
	}
	return nil, false
}
