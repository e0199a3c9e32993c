package db_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"github.com/tokenmarket/marketd/internal/core/ports"
	"github.com/tokenmarket/marketd/internal/infrastructure/db"
)

var (
	operator = common.HexToAddress("0x1000000000000000000000000000000000000001")
	ledger   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice    = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob      = common.HexToAddress("0xb0b0000000000000000000000000000000000002")

	now = time.UnixMilli(time.Now().UnixMilli())
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_in_memory_store",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_badger_store",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{t.TempDir(), nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_store",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{t.TempDir()},
			},
		},
	}
	if pgDsn := os.Getenv("MARKETD_TEST_PG_URL"); pgDsn != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_store",
			config: db.ServiceConfig{
				DataStoreType:   "postgres",
				DataStoreConfig: []interface{}{pgDsn, true},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			require.NotNil(t, svc)
			defer svc.Close()

			// The subtests share one store and run in order: tokens must exist
			// before their sales are recorded.
			testLedgerState(t, svc)
			testListings(t, svc)
			testBalances(t, svc)
			testSales(t, svc)
			testConcurrentChanges(t, svc)
		})
	}
}

func TestServiceInvalidConfig(t *testing.T) {
	fixtures := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name:   "unknown store type",
			config: db.ServiceConfig{DataStoreType: "mysql"},
		},
		{
			name: "badger without logger slot",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{""},
			},
		},
		{
			name: "sqlite with wrong base dir",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{42},
			},
		},
		{
			name: "postgres without autocreate flag",
			config: db.ServiceConfig{
				DataStoreType:   "postgres",
				DataStoreConfig: []interface{}{"postgres://localhost/market"},
			},
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			svc, err := db.NewService(f.config)
			require.Error(t, err)
			require.Nil(t, svc)
		})
	}
}

func testLedgerState(t *testing.T, svc ports.RepoManager) {
	t.Run("test_ledger_state", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()

		state, err := repo.GetState(ctx)
		require.NoError(t, err)
		require.Nil(t, state)

		state = domain.NewLedgerState(operator, ledger, 2500000000000000)
		state.UpdatedAt = now
		err = repo.ApplyChanges(ctx, domain.LedgerChanges{State: state})
		require.NoError(t, err)

		got, err := repo.GetState(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, operator, got.Operator)
		require.Equal(t, ledger, got.LedgerAddress)
		require.Equal(t, uint64(2500000000000000), got.ListingFee)
		require.Zero(t, got.LastTokenId)
		require.Zero(t, got.SoldCount)
		require.True(t, now.Equal(got.UpdatedAt))

		state.ListingFee = 0
		err = repo.ApplyChanges(ctx, domain.LedgerChanges{State: state})
		require.NoError(t, err)

		got, err = repo.GetState(ctx)
		require.NoError(t, err)
		require.Zero(t, got.ListingFee)

		err = repo.ApplyChanges(ctx, domain.LedgerChanges{})
		require.NoError(t, err)
	})
}

func testListings(t *testing.T, svc ports.RepoManager) {
	t.Run("test_listings", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()

		listing, err := repo.GetListing(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, listing)

		token, err := repo.GetToken(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, token)

		state, err := repo.GetState(ctx)
		require.NoError(t, err)

		// Insert out of order to check listings come back sorted by id.
		for _, id := range []uint64{2, 1, 3} {
			state.LastTokenId = max(state.LastTokenId, id)
			token := domain.NewToken(id, "ipfs://token", alice, alice)
			token.Owner = ledger
			token.MintedAt = now
			listing := domain.NewListing(id, ledger, alice, id*100)
			listing.UpdatedAt = now

			err := repo.ApplyChanges(ctx, domain.LedgerChanges{
				State:    state,
				Tokens:   []domain.Token{token},
				Listings: []domain.Listing{listing},
			})
			require.NoError(t, err)
		}

		listings, err := repo.GetListings(ctx)
		require.NoError(t, err)
		require.Len(t, listings, 3)
		for i, l := range listings {
			require.Equal(t, uint64(i+1), l.TokenId)
			require.Equal(t, ledger, l.Custodian)
			require.Equal(t, alice, l.Seller)
			require.Equal(t, uint64(i+1)*100, l.Price)
			require.True(t, l.IsListed)
		}

		token, err = repo.GetToken(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, token)
		require.Equal(t, "ipfs://token", token.URI)
		require.Equal(t, alice, token.Creator)
		require.Equal(t, ledger, token.Owner)
		require.False(t, token.HasApprovedOperator())
		require.True(t, now.Equal(token.MintedAt))

		listing, err = repo.GetListing(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, listing)

		listing.Sell(bob)
		token.Owner = bob
		token.ApprovedOperator = ledger
		err = repo.ApplyChanges(ctx, domain.LedgerChanges{
			Tokens:   []domain.Token{*token},
			Listings: []domain.Listing{*listing},
		})
		require.NoError(t, err)

		got, err := repo.GetListing(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, bob, got.Seller)
		require.Equal(t, bob, got.Custodian)
		require.True(t, got.IsListed)

		gotToken, err := repo.GetToken(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, bob, gotToken.Owner)
		require.Equal(t, ledger, gotToken.ApprovedOperator)
		require.Equal(t, "ipfs://token", gotToken.URI)
	})
}

func testBalances(t *testing.T, svc ports.RepoManager) {
	t.Run("test_balances", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()

		balance, err := repo.GetBalance(ctx, bob)
		require.NoError(t, err)
		require.Zero(t, balance)

		err = repo.ApplyChanges(ctx, domain.LedgerChanges{
			Balances: []domain.Balance{
				{Address: ledger, Amount: 5},
				{Address: bob, Amount: 18446744073709551615},
			},
		})
		require.NoError(t, err)

		balance, err = repo.GetBalance(ctx, ledger)
		require.NoError(t, err)
		require.Equal(t, uint64(5), balance)

		balance, err = repo.GetBalance(ctx, bob)
		require.NoError(t, err)
		require.Equal(t, uint64(18446744073709551615), balance)

		err = repo.ApplyChanges(ctx, domain.LedgerChanges{
			Balances: []domain.Balance{{Address: ledger, Amount: 0}},
		})
		require.NoError(t, err)

		balance, err = repo.GetBalance(ctx, ledger)
		require.NoError(t, err)
		require.Zero(t, balance)
	})
}

func testSales(t *testing.T, svc ports.RepoManager) {
	t.Run("test_sales", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()

		sales, err := repo.GetSales(ctx, 3)
		require.NoError(t, err)
		require.Empty(t, sales)

		fixtures := []domain.Sale{
			{Id: 2, TokenId: 3, Seller: bob, Buyer: alice, Price: 300, OperatorFee: 1, SoldAt: now},
			{Id: 1, TokenId: 3, Seller: alice, Buyer: bob, Price: 300, OperatorFee: 1, SoldAt: now},
			{Id: 3, TokenId: 1, Seller: alice, Buyer: bob, Price: 100, OperatorFee: 0, SoldAt: now},
		}
		for _, sale := range fixtures {
			err := repo.ApplyChanges(ctx, domain.LedgerChanges{Sales: []domain.Sale{sale}})
			require.NoError(t, err)
		}

		sales, err = repo.GetSales(ctx, 3)
		require.NoError(t, err)
		require.Len(t, sales, 2)
		require.Equal(t, uint64(1), sales[0].Id)
		require.Equal(t, bob, sales[0].Buyer)
		require.Equal(t, uint64(2), sales[1].Id)
		require.Equal(t, alice, sales[1].Buyer)
		require.Equal(t, uint64(300), sales[1].Price)
		require.Equal(t, uint64(1), sales[1].OperatorFee)
		require.True(t, now.Equal(sales[1].SoldAt))

		sales, err = repo.GetSales(ctx, 1)
		require.NoError(t, err)
		require.Len(t, sales, 1)

		// Sale ids are unique.
		err = repo.ApplyChanges(ctx, domain.LedgerChanges{Sales: fixtures[:1]})
		require.Error(t, err)
	})
}

func testConcurrentChanges(t *testing.T, svc ports.RepoManager) {
	t.Run("test_concurrent_changes", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Ledger()

		state, err := repo.GetState(ctx)
		require.NoError(t, err)
		firstId := state.LastTokenId + 1

		count := 10
		wg := sync.WaitGroup{}
		wg.Add(count)
		errs := make(chan error, count)
		for i := range count {
			go func(id uint64) {
				defer wg.Done()
				token := domain.NewToken(id, "ipfs://concurrent", bob, ledger)
				listing := domain.NewListing(id, ledger, bob, 10)
				errs <- repo.ApplyChanges(ctx, domain.LedgerChanges{
					Tokens:   []domain.Token{token},
					Listings: []domain.Listing{listing},
				})
			}(firstId + uint64(i))
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		listings, err := repo.GetListings(ctx)
		require.NoError(t, err)
		require.Len(t, listings, int(firstId)-1+count)
	})
}
