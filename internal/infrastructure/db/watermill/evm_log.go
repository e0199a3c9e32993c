package watermilldb

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"golang.org/x/crypto/sha3"
)

const (
	listingCreatedEventName = "ListingCreated"
	listingCreatedSignature = "ListingCreated(uint256,address,address,uint256,bool)"

	ListingEventsABIJson = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":false,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"address","name":"owner","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"},{"indexed":false,"internalType":"bool","name":"listed","type":"bool"}],"name":"ListingCreated","type":"event"}]`
)

var (
	ListingEventsABI = mustParseABI(ListingEventsABIJson)

	TopicListingCreated = keccak256Hash(listingCreatedSignature)
)

// EncodeListingCreated renders the event as the log a marketplace contract
// would emit: topic0 is the event id, topic1 the token id, and data holds
// (seller, owner, price, listed). seller is the custodian at listing time,
// owner the wallet entitled to the proceeds.
func EncodeListingCreated(event domain.ListingCreated) (*types.Log, error) {
	ev := ListingEventsABI.Events[listingCreatedEventName]
	data, err := ev.Inputs.NonIndexed().Pack(
		event.Custodian,
		event.Seller,
		new(big.Int).SetUint64(event.Price),
		event.IsListed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", listingCreatedEventName, err)
	}

	return &types.Log{
		Topics: []common.Hash{
			TopicListingCreated,
			common.BigToHash(new(big.Int).SetUint64(event.TokenId)),
		},
		Data: data,
	}, nil
}

// DecodeListingCreated parses a log produced by EncodeListingCreated.
func DecodeListingCreated(logData *types.Log) (*domain.ListingCreated, error) {
	if len(logData.Topics) != 2 || logData.Topics[0] != TopicListingCreated {
		return nil, fmt.Errorf("not a %s log", listingCreatedEventName)
	}

	eventData := make(map[string]interface{})
	if err := ListingEventsABI.UnpackIntoMap(
		eventData, listingCreatedEventName, logData.Data,
	); err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}

	tokenId := new(big.Int).SetBytes(logData.Topics[1].Bytes())
	if !tokenId.IsUint64() {
		return nil, fmt.Errorf("token id out of range")
	}
	event := &domain.ListingCreated{
		ListingEvent: domain.ListingEvent{
			TokenId: tokenId.Uint64(),
			Type:    domain.EventTypeListingCreated,
		},
	}
	if seller, ok := eventData["seller"].(common.Address); ok {
		event.Custodian = seller
	}
	if owner, ok := eventData["owner"].(common.Address); ok {
		event.Seller = owner
	}
	if price, ok := eventData["price"].(*big.Int); ok && price.IsUint64() {
		event.Price = price.Uint64()
	}
	if listed, ok := eventData["listed"].(bool); ok {
		event.IsListed = listed
	}
	return event, nil
}

func keccak256Hash(data string) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(data))
	return common.BytesToHash(hasher.Sum(nil))
}

func mustParseABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(err)
	}
	return parsed
}
