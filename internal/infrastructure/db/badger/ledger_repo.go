package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timshannon/badgerhold/v4"
	"github.com/tokenmarket/marketd/internal/core/domain"
)

const (
	ledgerStoreDir = "ledger"
	stateKey       = "state"
)

type ledgerRepository struct {
	store *badgerhold.Store
	gc    *valueLogGC
}

func NewLedgerRepository(config ...interface{}) (domain.LedgerRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, ledgerStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}

	repo := &ledgerRepository{store: store}
	// in-memory stores have no value log
	if len(dir) > 0 {
		gc, err := newValueLogGC(store.Badger(), defaultGCInterval)
		if err != nil {
			// nolint:all
			store.Close()
			return nil, fmt.Errorf("failed to schedule value log gc: %s", err)
		}
		repo.gc = gc
	}
	return repo, nil
}

func (r *ledgerRepository) GetState(ctx context.Context) (*domain.LedgerState, error) {
	var dto stateDTO
	err := r.store.Get(stateKey, &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger state: %w", err)
	}
	return dto.toDomain(), nil
}

func (r *ledgerRepository) GetListing(
	ctx context.Context, tokenId uint64,
) (*domain.Listing, error) {
	var dto listingDTO
	err := r.store.Get(tokenId, &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	listing := dto.toDomain()
	return &listing, nil
}

func (r *ledgerRepository) GetListings(ctx context.Context) ([]domain.Listing, error) {
	var dtos []listingDTO
	if err := r.store.Find(&dtos, nil); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	listings := make([]domain.Listing, 0, len(dtos))
	for _, dto := range dtos {
		listings = append(listings, dto.toDomain())
	}
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].TokenId < listings[j].TokenId
	})
	return listings, nil
}

func (r *ledgerRepository) GetToken(ctx context.Context, tokenId uint64) (*domain.Token, error) {
	var dto tokenDTO
	err := r.store.Get(tokenId, &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	token := dto.toDomain()
	return &token, nil
}

func (r *ledgerRepository) GetBalance(ctx context.Context, addr common.Address) (uint64, error) {
	var dto balanceDTO
	err := r.store.Get(addr.Hex(), &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return dto.Amount, nil
}

func (r *ledgerRepository) GetSales(ctx context.Context, tokenId uint64) ([]domain.Sale, error) {
	var dtos []saleDTO
	query := badgerhold.Where("TokenId").Eq(tokenId).Index("TokenId")
	if err := r.store.Find(&dtos, query); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	sales := make([]domain.Sale, 0, len(dtos))
	for _, dto := range dtos {
		sales = append(sales, dto.toDomain())
	}
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].Id < sales[j].Id
	})
	return sales, nil
}

func (r *ledgerRepository) ApplyChanges(ctx context.Context, changes domain.LedgerChanges) error {
	if changes.IsEmpty() {
		return nil
	}

	var err error
	for range maxRetries {
		err = func() error {
			tx := r.store.Badger().NewTransaction(true)
			defer tx.Discard()

			if changes.State != nil {
				dto := newStateDTO(*changes.State)
				if err := r.store.TxUpsert(tx, stateKey, &dto); err != nil {
					return err
				}
			}
			for _, token := range changes.Tokens {
				dto := newTokenDTO(token)
				if err := r.store.TxUpsert(tx, token.Id, &dto); err != nil {
					return err
				}
			}
			for _, listing := range changes.Listings {
				dto := newListingDTO(listing)
				if err := r.store.TxUpsert(tx, listing.TokenId, &dto); err != nil {
					return err
				}
			}
			for _, balance := range changes.Balances {
				dto := balanceDTO{Address: balance.Address.Hex(), Amount: balance.Amount}
				if err := r.store.TxUpsert(tx, dto.Address, &dto); err != nil {
					return err
				}
			}
			for _, sale := range changes.Sales {
				dto := newSaleDTO(sale)
				if err := r.store.TxInsert(tx, sale.Id, &dto); err != nil {
					return err
				}
			}

			return tx.Commit()
		}()
		if err == nil {
			return nil
		}

		if errors.Is(err, badger.ErrConflict) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		return err
	}

	return err
}

func (r *ledgerRepository) Close() {
	if r.gc != nil {
		r.gc.stop()
	}
	// nolint:all
	r.store.Close()
}

type stateDTO struct {
	Operator      string
	LedgerAddress string
	ListingFee    uint64
	LastTokenId   uint64
	SoldCount     uint64
	UpdatedAt     int64
}

func newStateDTO(state domain.LedgerState) stateDTO {
	return stateDTO{
		Operator:      state.Operator.Hex(),
		LedgerAddress: state.LedgerAddress.Hex(),
		ListingFee:    state.ListingFee,
		LastTokenId:   state.LastTokenId,
		SoldCount:     state.SoldCount,
		UpdatedAt:     state.UpdatedAt.UnixMilli(),
	}
}

func (d stateDTO) toDomain() *domain.LedgerState {
	return &domain.LedgerState{
		Operator:      common.HexToAddress(d.Operator),
		LedgerAddress: common.HexToAddress(d.LedgerAddress),
		ListingFee:    d.ListingFee,
		LastTokenId:   d.LastTokenId,
		SoldCount:     d.SoldCount,
		UpdatedAt:     time.UnixMilli(d.UpdatedAt),
	}
}

type tokenDTO struct {
	Id               uint64 `badgerhold:"key"`
	URI              string
	Creator          string
	Owner            string
	ApprovedOperator string
	MintedAt         int64
}

func newTokenDTO(token domain.Token) tokenDTO {
	var approved string
	if token.HasApprovedOperator() {
		approved = token.ApprovedOperator.Hex()
	}
	return tokenDTO{
		Id:               token.Id,
		URI:              token.URI,
		Creator:          token.Creator.Hex(),
		Owner:            token.Owner.Hex(),
		ApprovedOperator: approved,
		MintedAt:         token.MintedAt.UnixMilli(),
	}
}

func (d tokenDTO) toDomain() domain.Token {
	token := domain.Token{
		Id:       d.Id,
		URI:      d.URI,
		Creator:  common.HexToAddress(d.Creator),
		Owner:    common.HexToAddress(d.Owner),
		MintedAt: time.UnixMilli(d.MintedAt),
	}
	if d.ApprovedOperator != "" {
		token.ApprovedOperator = common.HexToAddress(d.ApprovedOperator)
	}
	return token
}

type listingDTO struct {
	TokenId   uint64 `badgerhold:"key"`
	Custodian string
	Seller    string
	Price     uint64
	IsListed  bool
	UpdatedAt int64
}

func newListingDTO(listing domain.Listing) listingDTO {
	return listingDTO{
		TokenId:   listing.TokenId,
		Custodian: listing.Custodian.Hex(),
		Seller:    listing.Seller.Hex(),
		Price:     listing.Price,
		IsListed:  listing.IsListed,
		UpdatedAt: listing.UpdatedAt.UnixMilli(),
	}
}

func (d listingDTO) toDomain() domain.Listing {
	return domain.Listing{
		TokenId:   d.TokenId,
		Custodian: common.HexToAddress(d.Custodian),
		Seller:    common.HexToAddress(d.Seller),
		Price:     d.Price,
		IsListed:  d.IsListed,
		UpdatedAt: time.UnixMilli(d.UpdatedAt),
	}
}

type balanceDTO struct {
	Address string `badgerhold:"key"`
	Amount  uint64
}

type saleDTO struct {
	Id          uint64 `badgerhold:"key"`
	TokenId     uint64 `badgerhold:"index"`
	Seller      string
	Buyer       string
	Price       uint64
	OperatorFee uint64
	SoldAt      int64
}

func newSaleDTO(sale domain.Sale) saleDTO {
	return saleDTO{
		Id:          sale.Id,
		TokenId:     sale.TokenId,
		Seller:      sale.Seller.Hex(),
		Buyer:       sale.Buyer.Hex(),
		Price:       sale.Price,
		OperatorFee: sale.OperatorFee,
		SoldAt:      sale.SoldAt.UnixMilli(),
	}
}

func (d saleDTO) toDomain() domain.Sale {
	return domain.Sale{
		Id:          d.Id,
		TokenId:     d.TokenId,
		Seller:      common.HexToAddress(d.Seller),
		Buyer:       common.HexToAddress(d.Buyer),
		Price:       d.Price,
		OperatorFee: d.OperatorFee,
		SoldAt:      time.UnixMilli(d.SoldAt),
	}
}
