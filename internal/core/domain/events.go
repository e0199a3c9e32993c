package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const ListingTopic = "listings"

type EventType int

const (
	EventTypeUndefined EventType = iota
	EventTypeListingCreated
	EventTypeListingSold
)

func (t EventType) String() string {
	switch t {
	case EventTypeListingCreated:
		return "ListingCreated"
	case EventTypeListingSold:
		return "ListingSold"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
}

type ListingEvent struct {
	TokenId uint64
	Type    EventType
}

func (e ListingEvent) GetTopic() string   { return ListingTopic }
func (e ListingEvent) GetType() EventType { return e.Type }

// ListingCreated is emitted on every successful mint and list.
type ListingCreated struct {
	ListingEvent
	Custodian common.Address
	Seller    common.Address
	Price     uint64
	IsListed  bool
	Timestamp int64
}

func NewListingCreated(listing Listing) ListingCreated {
	return ListingCreated{
		ListingEvent: ListingEvent{TokenId: listing.TokenId, Type: EventTypeListingCreated},
		Custodian:    listing.Custodian,
		Seller:       listing.Seller,
		Price:        listing.Price,
		IsListed:     listing.IsListed,
		Timestamp:    time.Now().Unix(),
	}
}

type ListingSold struct {
	ListingEvent
	Seller      common.Address
	Buyer       common.Address
	Price       uint64
	OperatorFee uint64
	SoldCount   uint64
	Timestamp   int64
}

func NewListingSold(sale Sale) ListingSold {
	return ListingSold{
		ListingEvent: ListingEvent{TokenId: sale.TokenId, Type: EventTypeListingSold},
		Seller:       sale.Seller,
		Buyer:        sale.Buyer,
		Price:        sale.Price,
		OperatorFee:  sale.OperatorFee,
		SoldCount:    sale.Id,
		Timestamp:    sale.SoldAt.Unix(),
	}
}
