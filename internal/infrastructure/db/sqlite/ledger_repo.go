package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tokenmarket/marketd/internal/core/domain"
	dbutil "github.com/tokenmarket/marketd/internal/infrastructure/db/dbuitl"
)

const (
	selectStateQuery = `
SELECT operator, ledger_address, listing_fee, last_token_id, sold_count, updated_at
FROM ledger_state WHERE id = 1`
	upsertStateQuery = `
INSERT INTO ledger_state (id, operator, ledger_address, listing_fee, last_token_id, sold_count, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	operator = excluded.operator,
	ledger_address = excluded.ledger_address,
	listing_fee = excluded.listing_fee,
	last_token_id = excluded.last_token_id,
	sold_count = excluded.sold_count,
	updated_at = excluded.updated_at`
	selectListingsQuery = `
SELECT token_id, custodian, seller, price, is_listed, updated_at FROM listing`
	upsertListingQuery = `
INSERT INTO listing (token_id, custodian, seller, price, is_listed, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(token_id) DO UPDATE SET
	custodian = excluded.custodian,
	seller = excluded.seller,
	price = excluded.price,
	is_listed = excluded.is_listed,
	updated_at = excluded.updated_at`
	selectTokenQuery = `
SELECT id, uri, creator, owner, approved_operator, minted_at FROM token WHERE id = ?`
	upsertTokenQuery = `
INSERT INTO token (id, uri, creator, owner, approved_operator, minted_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner = excluded.owner,
	approved_operator = excluded.approved_operator`
	selectBalanceQuery = `SELECT amount FROM balance WHERE address = ?`
	upsertBalanceQuery = `
INSERT INTO balance (address, amount) VALUES (?, ?)
ON CONFLICT(address) DO UPDATE SET amount = excluded.amount`
	selectSalesQuery = `
SELECT id, token_id, seller, buyer, price, operator_fee, sold_at
FROM sale WHERE token_id = ? ORDER BY id ASC`
	insertSaleQuery = `
INSERT INTO sale (id, token_id, seller, buyer, price, operator_fee, sold_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(config ...interface{}) (domain.LedgerRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open ledger repository: invalid config")
	}

	return &ledgerRepository{db}, nil
}

func (r *ledgerRepository) GetState(ctx context.Context) (*domain.LedgerState, error) {
	var (
		operator, ledgerAddress, fee string
		lastTokenId, soldCount       int64
		updatedAt                    int64
	)
	err := r.db.QueryRowContext(ctx, selectStateQuery).Scan(
		&operator, &ledgerAddress, &fee, &lastTokenId, &soldCount, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger state: %w", err)
	}

	listingFee, err := dbutil.ParseAmount(fee)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerState{
		Operator:      common.HexToAddress(operator),
		LedgerAddress: common.HexToAddress(ledgerAddress),
		ListingFee:    listingFee,
		LastTokenId:   uint64(lastTokenId),
		SoldCount:     uint64(soldCount),
		UpdatedAt:     time.UnixMilli(updatedAt),
	}, nil
}

func (r *ledgerRepository) GetListing(
	ctx context.Context, tokenId uint64,
) (*domain.Listing, error) {
	row := r.db.QueryRowContext(ctx, selectListingsQuery+" WHERE token_id = ?", int64(tokenId))
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (r *ledgerRepository) GetListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, selectListingsQuery+" ORDER BY token_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	// nolint:all
	defer rows.Close()

	listings := make([]domain.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list listings: %w", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (r *ledgerRepository) GetToken(ctx context.Context, tokenId uint64) (*domain.Token, error) {
	var (
		id                            int64
		uri, creator, owner, approved string
		mintedAt                      int64
	)
	err := r.db.QueryRowContext(ctx, selectTokenQuery, int64(tokenId)).Scan(
		&id, &uri, &creator, &owner, &approved, &mintedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	token := &domain.Token{
		Id:       uint64(id),
		URI:      uri,
		Creator:  common.HexToAddress(creator),
		Owner:    common.HexToAddress(owner),
		MintedAt: time.UnixMilli(mintedAt),
	}
	if approved != "" {
		token.ApprovedOperator = common.HexToAddress(approved)
	}
	return token, nil
}

func (r *ledgerRepository) GetBalance(ctx context.Context, addr common.Address) (uint64, error) {
	var amount string
	err := r.db.QueryRowContext(ctx, selectBalanceQuery, addr.Hex()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return dbutil.ParseAmount(amount)
}

func (r *ledgerRepository) GetSales(ctx context.Context, tokenId uint64) ([]domain.Sale, error) {
	rows, err := r.db.QueryContext(ctx, selectSalesQuery, int64(tokenId))
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	// nolint:all
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		var (
			id, saleTokenId, soldAt   int64
			seller, buyer, price, fee string
		)
		if err := rows.Scan(&id, &saleTokenId, &seller, &buyer, &price, &fee, &soldAt); err != nil {
			return nil, fmt.Errorf("failed to list sales: %w", err)
		}
		salePrice, err := dbutil.ParseAmount(price)
		if err != nil {
			return nil, err
		}
		operatorFee, err := dbutil.ParseAmount(fee)
		if err != nil {
			return nil, err
		}
		sales = append(sales, domain.Sale{
			Id:          uint64(id),
			TokenId:     uint64(saleTokenId),
			Seller:      common.HexToAddress(seller),
			Buyer:       common.HexToAddress(buyer),
			Price:       salePrice,
			OperatorFee: operatorFee,
			SoldAt:      time.UnixMilli(soldAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

func (r *ledgerRepository) ApplyChanges(ctx context.Context, changes domain.LedgerChanges) error {
	if changes.IsEmpty() {
		return nil
	}

	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		if state := changes.State; state != nil {
			if _, err := tx.ExecContext(
				ctx, upsertStateQuery,
				state.Operator.Hex(), state.LedgerAddress.Hex(),
				dbutil.FormatAmount(state.ListingFee),
				int64(state.LastTokenId), int64(state.SoldCount),
				state.UpdatedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to upsert ledger state: %w", err)
			}
		}
		for _, token := range changes.Tokens {
			var approved string
			if token.HasApprovedOperator() {
				approved = token.ApprovedOperator.Hex()
			}
			if _, err := tx.ExecContext(
				ctx, upsertTokenQuery,
				int64(token.Id), token.URI, token.Creator.Hex(), token.Owner.Hex(),
				approved, token.MintedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to upsert token %d: %w", token.Id, err)
			}
		}
		for _, listing := range changes.Listings {
			if _, err := tx.ExecContext(
				ctx, upsertListingQuery,
				int64(listing.TokenId), listing.Custodian.Hex(), listing.Seller.Hex(),
				dbutil.FormatAmount(listing.Price), listing.IsListed,
				listing.UpdatedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to upsert listing %d: %w", listing.TokenId, err)
			}
		}
		for _, balance := range changes.Balances {
			if _, err := tx.ExecContext(
				ctx, upsertBalanceQuery,
				balance.Address.Hex(), dbutil.FormatAmount(balance.Amount),
			); err != nil {
				return fmt.Errorf("failed to upsert balance: %w", err)
			}
		}
		for _, sale := range changes.Sales {
			if _, err := tx.ExecContext(
				ctx, insertSaleQuery,
				int64(sale.Id), int64(sale.TokenId), sale.Seller.Hex(), sale.Buyer.Hex(),
				dbutil.FormatAmount(sale.Price), dbutil.FormatAmount(sale.OperatorFee),
				sale.SoldAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to insert sale %d: %w", sale.Id, err)
			}
		}
		return nil
	})
}

func (r *ledgerRepository) Close() {
	// nolint:all
	r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var (
		tokenId, updatedAt int64
		custodian, seller  string
		price              string
		isListed           bool
	)
	if err := row.Scan(&tokenId, &custodian, &seller, &price, &isListed, &updatedAt); err != nil {
		return nil, err
	}
	amount, err := dbutil.ParseAmount(price)
	if err != nil {
		return nil, err
	}
	return &domain.Listing{
		TokenId:   uint64(tokenId),
		Custodian: common.HexToAddress(custodian),
		Seller:    common.HexToAddress(seller),
		Price:     amount,
		IsListed:  isListed,
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}
