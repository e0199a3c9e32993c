package application

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"github.com/tokenmarket/marketd/internal/core/ports"
	"github.com/tokenmarket/marketd/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	ledgerLockKey   = "ledger"
	instrumentation = "github.com/tokenmarket/marketd/internal/core/application"
)

var tracer = otel.Tracer(instrumentation)

type Service interface {
	Start() error
	Stop()
	GetInfo(ctx context.Context) (*LedgerInfo, error)
	SetListingFee(ctx context.Context, caller common.Address, fee uint64) error
	GetListingFee(ctx context.Context) (uint64, error)
	MintAndList(
		ctx context.Context, caller, ownerWallet common.Address,
		uri string, price, feePaid uint64,
	) (uint64, error)
	Purchase(
		ctx context.Context, caller common.Address, tokenId, paidAmount uint64,
	) (*domain.Listing, error)
	GetListing(ctx context.Context, tokenId uint64) (*domain.Listing, error)
	GetLatestListing(ctx context.Context) (*domain.Listing, error)
	ListAllListings(ctx context.Context) ([]domain.Listing, error)
	ListMyListings(ctx context.Context, caller common.Address) ([]domain.Listing, error)
	GetToken(ctx context.Context, tokenId uint64) (*domain.Token, error)
	GetBalance(ctx context.Context, addr common.Address) (uint64, error)
	ListSales(ctx context.Context, tokenId uint64) ([]domain.Sale, error)
	GetEventsChannel(ctx context.Context) <-chan domain.Event
}

type service struct {
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	publisher   ports.EventPublisher

	operator      common.Address
	ledgerAddress common.Address
	initialFee    uint64

	// mutations are exclusive, reads are shared
	lock *sync.RWMutex

	mintedCounter metric.Int64Counter
	soldCounter   metric.Int64Counter
	volumeCounter metric.Int64Counter
}

func NewService(
	repoManager ports.RepoManager, liveStore ports.LiveStore, publisher ports.EventPublisher,
	operator, ledgerAddress common.Address, initialListingFee uint64,
) (Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if liveStore == nil {
		return nil, fmt.Errorf("missing live store")
	}
	if operator == (common.Address{}) {
		return nil, fmt.Errorf("missing operator address")
	}
	if ledgerAddress == (common.Address{}) {
		return nil, fmt.Errorf("missing ledger address")
	}
	if operator == ledgerAddress {
		return nil, fmt.Errorf("ledger address must differ from operator")
	}

	meter := otel.Meter(instrumentation)
	mintedCounter, err := meter.Int64Counter(
		"ledger.listings.minted", metric.WithDescription("Number of tokens minted and listed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minted counter: %w", err)
	}
	soldCounter, err := meter.Int64Counter(
		"ledger.listings.sold", metric.WithDescription("Number of purchases"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sold counter: %w", err)
	}
	volumeCounter, err := meter.Int64Counter(
		"ledger.sales.volume", metric.WithDescription("Sum of purchase prices"),
		metric.WithUnit("wei"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create volume counter: %w", err)
	}

	return &service{
		repoManager:   repoManager,
		liveStore:     liveStore,
		publisher:     publisher,
		operator:      operator,
		ledgerAddress: ledgerAddress,
		initialFee:    initialListingFee,
		lock:          &sync.RWMutex{},
		mintedCounter: mintedCounter,
		soldCounter:   soldCounter,
		volumeCounter: volumeCounter,
	}, nil
}

// Start loads the persisted ledger state or initializes it on first run.
func (s *service) Start() error {
	ctx := context.Background()

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.repoManager.Ledger().GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ledger state: %w", err)
	}

	if state == nil {
		state = domain.NewLedgerState(s.operator, s.ledgerAddress, s.initialFee)
		if err := s.repoManager.Ledger().ApplyChanges(ctx, domain.LedgerChanges{
			State: state,
		}); err != nil {
			return fmt.Errorf("failed to initialize ledger state: %w", err)
		}
		log.WithField("operator", state.Operator.Hex()).
			WithField("ledger", state.LedgerAddress.Hex()).
			WithField("listing_fee", state.ListingFee).
			Info("initialized ledger")
		return nil
	}

	if state.Operator != s.operator {
		return fmt.Errorf(
			"operator mismatch: ledger was created with %s, got %s",
			state.Operator.Hex(), s.operator.Hex(),
		)
	}
	if state.LedgerAddress != s.ledgerAddress {
		return fmt.Errorf(
			"ledger address mismatch: ledger was created with %s, got %s",
			state.LedgerAddress.Hex(), s.ledgerAddress.Hex(),
		)
	}

	log.WithField("tokens", state.LastTokenId).
		WithField("sold", state.SoldCount).
		WithField("listing_fee", state.ListingFee).
		Info("loaded ledger")
	return nil
}

func (s *service) Stop() {
	s.repoManager.Close()
	log.Debug("closed connection to db")
	s.liveStore.Close()
	log.Debug("closed live store")
	if s.publisher != nil {
		s.publisher.Close()
		log.Debug("closed event publisher")
	}
}

func (s *service) GetInfo(ctx context.Context) (*LedgerInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	state, err := s.getState(ctx)
	if err != nil {
		return nil, err
	}

	return &LedgerInfo{
		Operator:      state.Operator,
		LedgerAddress: state.LedgerAddress,
		ListingFee:    state.ListingFee,
		TokenCount:    state.LastTokenId,
		SoldCount:     state.SoldCount,
	}, nil
}

func (s *service) SetListingFee(ctx context.Context, caller common.Address, fee uint64) error {
	ctx, span := tracer.Start(ctx, "LedgerService.SetListingFee", trace.WithAttributes(
		attribute.String("caller", caller.Hex()),
	))
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.getState(ctx)
	if err != nil {
		return err
	}

	if err := rejectLedgerCaller(state, caller); err != nil {
		return err
	}
	if !state.IsOperator(caller) {
		return errors.UNAUTHORIZED.New("only the operator can update the listing fee").
			WithMetadata(errors.UnauthorizedMetadata{
				Caller:   caller.Hex(),
				Operator: state.Operator.Hex(),
			})
	}

	state.ListingFee = fee
	state.UpdatedAt = time.Now()

	if err := s.repoManager.Ledger().ApplyChanges(ctx, domain.LedgerChanges{
		State: state,
	}); err != nil {
		return fmt.Errorf("failed to update listing fee: %w", err)
	}

	log.Debugf("listing fee updated to %d", fee)
	return nil
}

func (s *service) GetListingFee(ctx context.Context) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	state, err := s.getState(ctx)
	if err != nil {
		return 0, err
	}
	return state.ListingFee, nil
}

// MintAndList mints a new token for ownerWallet, defaulting to the caller,
// and lists it for sale with the ledger as custodian and the caller as seller.
func (s *service) MintAndList(
	ctx context.Context, caller, ownerWallet common.Address,
	uri string, price, feePaid uint64,
) (uint64, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.MintAndList", trace.WithAttributes(
		attribute.String("caller", caller.Hex()),
	))
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	state, err := s.getState(ctx)
	if err != nil {
		return 0, err
	}

	if err := rejectLedgerCaller(state, caller); err != nil {
		return 0, err
	}
	if ownerWallet == (common.Address{}) {
		ownerWallet = caller
	}
	if state.IsLedger(ownerWallet) {
		return 0, errors.INVALID_ADDRESS.New("owner wallet cannot be the ledger").
			WithMetadata(errors.InvalidAddressMetadata{Address: ownerWallet.Hex()})
	}
	if feePaid != state.ListingFee {
		return 0, errors.FEE_MISMATCH.New(
			"paid fee %d does not match listing fee %d", feePaid, state.ListingFee,
		).WithMetadata(errors.FeeMismatchMetadata{
			ExpectedFee: state.ListingFee,
			PaidFee:     feePaid,
		})
	}
	if price == 0 {
		return 0, errors.INVALID_PRICE.New("price must be greater than zero").
			WithMetadata(errors.InvalidPriceMetadata{Price: price})
	}

	balances := newBalanceSheet(s.repoManager.Ledger())
	if err := balances.credit(ctx, state.LedgerAddress, feePaid); err != nil {
		return 0, err
	}

	tokenId := state.NextTokenId()
	token := domain.NewToken(tokenId, uri, ownerWallet, state.LedgerAddress)
	listing := domain.NewListing(tokenId, state.LedgerAddress, caller, price)

	state.LastTokenId = tokenId
	state.UpdatedAt = time.Now()

	if err := s.repoManager.Ledger().ApplyChanges(ctx, domain.LedgerChanges{
		State:    state,
		Tokens:   []domain.Token{token},
		Listings: []domain.Listing{listing},
		Balances: balances.changes(),
	}); err != nil {
		return 0, fmt.Errorf("failed to mint token %d: %w", tokenId, err)
	}

	log.WithField("token_id", tokenId).
		WithField("seller", caller.Hex()).
		WithField("price", price).
		Debug("minted and listed token")

	span.SetAttributes(attribute.Int64("token_id", int64(tokenId)))
	s.mintedCounter.Add(ctx, 1)

	s.publish(ctx, domain.NewListingCreated(listing))
	return tokenId, nil
}

func (s *service) Purchase(
	ctx context.Context, caller common.Address, tokenId, paidAmount uint64,
) (*domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Purchase", trace.WithAttributes(
		attribute.String("caller", caller.Hex()),
		attribute.Int64("token_id", int64(tokenId)),
	))
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.getState(ctx)
	if err != nil {
		return nil, err
	}

	if err := rejectLedgerCaller(state, caller); err != nil {
		return nil, err
	}

	repo := s.repoManager.Ledger()

	listing, err := repo.GetListing(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", tokenId, err)
	}
	if listing == nil {
		return nil, noSuchListing(tokenId)
	}
	if paidAmount != listing.Price {
		return nil, errors.PRICE_MISMATCH.New(
			"paid amount %d does not match price %d", paidAmount, listing.Price,
		).WithMetadata(errors.PriceMismatchMetadata{
			TokenId:    tokenId,
			Price:      listing.Price,
			PaidAmount: paidAmount,
		})
	}
	// The ledger can only hand over what it holds. Once sold, custody moved
	// to the buyer and further purchases are rejected.
	if !listing.IsHeldBy(state.LedgerAddress) {
		return nil, errors.LISTING_NOT_IN_CUSTODY.New(
			"token %d is not held by the ledger", tokenId,
		).WithMetadata(errors.ListingNotInCustodyMetadata{
			TokenId:   tokenId,
			Custodian: listing.Custodian.Hex(),
		})
	}

	token, err := repo.GetToken(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get token %d: %w", tokenId, err)
	}
	if token == nil {
		return nil, fmt.Errorf("token %d not found for existing listing", tokenId)
	}

	// The operator is paid the current listing fee out of the ledger's own
	// balance, while the seller gets the full paid amount.
	fee := state.ListingFee
	balances := newBalanceSheet(repo)
	ledgerBalance, err := balances.get(ctx, state.LedgerAddress)
	if err != nil {
		return nil, err
	}
	if ledgerBalance < fee {
		return nil, errors.INSUFFICIENT_LEDGER_BALANCE.New(
			"ledger balance %d cannot cover operator fee %d", ledgerBalance, fee,
		).WithMetadata(errors.InsufficientLedgerBalanceMetadata{
			Balance:     ledgerBalance,
			RequiredFee: fee,
		})
	}
	if err := balances.debit(ctx, state.LedgerAddress, fee); err != nil {
		return nil, err
	}
	if err := balances.credit(ctx, state.Operator, fee); err != nil {
		return nil, err
	}
	previousSeller := listing.Seller
	if err := balances.credit(ctx, previousSeller, paidAmount); err != nil {
		return nil, err
	}

	listing.Sell(caller)
	token.Owner = caller
	token.ApprovedOperator = state.LedgerAddress

	state.SoldCount++
	state.UpdatedAt = time.Now()

	sale := domain.Sale{
		Id:          state.SoldCount,
		TokenId:     tokenId,
		Seller:      previousSeller,
		Buyer:       caller,
		Price:       paidAmount,
		OperatorFee: fee,
		SoldAt:      state.UpdatedAt,
	}

	if err := repo.ApplyChanges(ctx, domain.LedgerChanges{
		State:    state,
		Tokens:   []domain.Token{*token},
		Listings: []domain.Listing{*listing},
		Balances: balances.changes(),
		Sales:    []domain.Sale{sale},
	}); err != nil {
		return nil, fmt.Errorf("failed to purchase token %d: %w", tokenId, err)
	}

	log.WithField("token_id", tokenId).
		WithField("seller", previousSeller.Hex()).
		WithField("buyer", caller.Hex()).
		WithField("price", paidAmount).
		Debug("token purchased")

	s.soldCounter.Add(ctx, 1)
	// wei amounts above MaxInt64 are not representable by the counter
	if paidAmount <= math.MaxInt64 {
		s.volumeCounter.Add(ctx, int64(paidAmount))
	}

	s.publish(ctx, domain.NewListingSold(sale))
	return listing, nil
}

func (s *service) GetListing(ctx context.Context, tokenId uint64) (*domain.Listing, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.getListing(ctx, tokenId)
}

func (s *service) GetLatestListing(ctx context.Context) (*domain.Listing, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	state, err := s.getState(ctx)
	if err != nil {
		return nil, err
	}
	if state.LastTokenId == 0 {
		return nil, errors.NO_SUCH_LISTING.New("no token minted yet").
			WithMetadata(errors.ListingMetadata{TokenId: 0})
	}
	return s.getListing(ctx, state.LastTokenId)
}

func (s *service) ListAllListings(ctx context.Context) ([]domain.Listing, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	listings, err := s.repoManager.Ledger().GetListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get listings: %w", err)
	}
	return listings, nil
}

func (s *service) ListMyListings(
	ctx context.Context, caller common.Address,
) ([]domain.Listing, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	listings, err := s.repoManager.Ledger().GetListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get listings: %w", err)
	}

	mine := make([]domain.Listing, 0)
	for _, listing := range listings {
		if listing.Involves(caller) {
			mine = append(mine, listing)
		}
	}
	return mine, nil
}

func (s *service) GetToken(ctx context.Context, tokenId uint64) (*domain.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	token, err := s.repoManager.Ledger().GetToken(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get token %d: %w", tokenId, err)
	}
	if token == nil {
		return nil, noSuchListing(tokenId)
	}
	return token, nil
}

func (s *service) GetBalance(ctx context.Context, addr common.Address) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	balance, err := s.repoManager.Ledger().GetBalance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

func (s *service) ListSales(ctx context.Context, tokenId uint64) ([]domain.Sale, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if _, err := s.getListing(ctx, tokenId); err != nil {
		return nil, err
	}

	sales, err := s.repoManager.Ledger().GetSales(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales of token %d: %w", tokenId, err)
	}
	return sales, nil
}

// acquire takes the process-wide write lock and the live store lease, in this
// order. The returned func releases both.
func (s *service) acquire(ctx context.Context) (func(), error) {
	s.lock.Lock()

	releaseLease, err := s.liveStore.Locks().Acquire(ctx, ledgerLockKey)
	if err != nil {
		s.lock.Unlock()
		return nil, fmt.Errorf("failed to acquire ledger lock: %w", err)
	}

	return func() {
		if err := releaseLease(context.Background()); err != nil {
			log.WithError(err).Warn("failed to release ledger lock")
		}
		s.lock.Unlock()
	}, nil
}

func (s *service) getState(ctx context.Context) (*domain.LedgerState, error) {
	state, err := s.repoManager.Ledger().GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger state: %w", err)
	}
	if state == nil {
		return nil, errors.INTERNAL_ERROR.New("ledger not initialized")
	}
	return state, nil
}

func (s *service) getListing(ctx context.Context, tokenId uint64) (*domain.Listing, error) {
	listing, err := s.repoManager.Ledger().GetListing(ctx, tokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", tokenId, err)
	}
	if listing == nil {
		return nil, noSuchListing(tokenId)
	}
	return listing, nil
}

// GetEventsChannel streams the listing events published after the call until
// ctx is done. Without a publisher the channel is closed with ctx.
func (s *service) GetEventsChannel(ctx context.Context) <-chan domain.Event {
	if s.publisher == nil {
		ch := make(chan domain.Event)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch
	}
	return s.publisher.Subscribe(ctx, domain.ListingTopic)
}

// publish is best effort: changes are already committed when it runs.
func (s *service) publish(ctx context.Context, events ...domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.WithError(err).Warn("failed to publish ledger events")
	}
}
