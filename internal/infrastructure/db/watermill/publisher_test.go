package watermilldb_test

import (
	"context"
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/tokenmarket/marketd/internal/core/domain"
	watermilldb "github.com/tokenmarket/marketd/internal/infrastructure/db/watermill"
)

var (
	ledger = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestEventPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermilldb.NewLogger())
	messages, err := pubsub.Subscribe(ctx, domain.ListingTopic)
	require.NoError(t, err)

	publisher := watermilldb.NewEventPublisher(pubsub, nil)
	defer publisher.Close()

	events := publisher.Subscribe(ctx, domain.ListingTopic)

	listing := domain.NewListing(7, ledger, alice, 1000)
	created := domain.NewListingCreated(listing)
	sold := domain.NewListingSold(domain.Sale{
		Id: 1, TokenId: 7, Seller: alice, Buyer: bob, Price: 1000, OperatorFee: 25,
		SoldAt: time.Now(),
	})

	err = publisher.Publish(ctx, created, sold)
	require.NoError(t, err)

	t.Run("watermill messages", func(t *testing.T) {
		msg := receive(t, messages)
		require.Equal(t, "ListingCreated", msg.Metadata.Get("event_type"))
		require.Equal(t, "7", msg.Metadata.Get("token_id"))
		require.Equal(t, watermilldb.TopicListingCreated.Hex(), msg.Metadata.Get("topic0"))

		data, err := hex.DecodeString(strings.TrimPrefix(msg.Metadata.Get("data"), "0x"))
		require.NoError(t, err)
		decoded, err := watermilldb.DecodeListingCreated(&types.Log{
			Topics: []common.Hash{
				common.HexToHash(msg.Metadata.Get("topic0")),
				common.HexToHash(msg.Metadata.Get("topic1")),
			},
			Data: data,
		})
		require.NoError(t, err)
		require.Equal(t, uint64(7), decoded.TokenId)
		require.Equal(t, ledger, decoded.Custodian)
		require.Equal(t, alice, decoded.Seller)
		require.Equal(t, uint64(1000), decoded.Price)
		require.True(t, decoded.IsListed)

		event, err := watermilldb.DeserializeEvent(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, created, event)
		msg.Ack()

		msg = receive(t, messages)
		require.Equal(t, "ListingSold", msg.Metadata.Get("event_type"))
		require.Empty(t, msg.Metadata.Get("topic0"))

		event, err = watermilldb.DeserializeEvent(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, sold, event)
		msg.Ack()
	})

	t.Run("local subscribers", func(t *testing.T) {
		require.Equal(t, created, <-events)
		require.Equal(t, sold, <-events)
	})

	t.Run("subscriber is removed when done", func(t *testing.T) {
		subCtx, subCancel := context.WithCancel(ctx)
		ch := publisher.Subscribe(subCtx, domain.ListingTopic)
		subCancel()

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("unknown payload", func(t *testing.T) {
		_, err := watermilldb.DeserializeEvent([]byte(`{"Type":0}`))
		require.Error(t, err)
		_, err = watermilldb.DeserializeEvent([]byte(`nope`))
		require.Error(t, err)
	})
}

func TestListingCreatedLog(t *testing.T) {
	t.Run("topic matches the event signature", func(t *testing.T) {
		ev := watermilldb.ListingEventsABI.Events["ListingCreated"]
		require.Equal(t, ev.ID, watermilldb.TopicListingCreated)
		require.Equal(t,
			crypto.Keccak256Hash([]byte("ListingCreated(uint256,address,address,uint256,bool)")),
			watermilldb.TopicListingCreated,
		)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := watermilldb.DecodeListingCreated(&types.Log{})
		require.Error(t, err)

		_, err = watermilldb.DecodeListingCreated(&types.Log{
			Topics: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		})
		require.Error(t, err)
	})
}

func TestNewService(t *testing.T) {
	t.Run("inmemory", func(t *testing.T) {
		publisher, err := watermilldb.NewService("inmemory")
		require.NoError(t, err)
		require.NoError(t, publisher.Publish(
			context.Background(), domain.NewListingCreated(domain.NewListing(1, ledger, alice, 1)),
		))
		publisher.Close()
	})

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv("MARKETD_TEST_PG_URL")
		if dsn == "" {
			t.Skip("MARKETD_TEST_PG_URL not set")
		}
		publisher, err := watermilldb.NewService("postgres", dsn)
		require.NoError(t, err)
		require.NoError(t, publisher.Publish(
			context.Background(), domain.NewListingCreated(domain.NewListing(1, ledger, alice, 1)),
		))
		publisher.Close()
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := watermilldb.NewService("kafka")
		require.Error(t, err)
		_, err = watermilldb.NewService("postgres")
		require.Error(t, err)
		_, err = watermilldb.NewService("postgres", 42)
		require.Error(t, err)
	})
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}
