package main

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tokenmarket/marketd/internal/interface/http/handlers"
	"github.com/urfave/cli/v2"
)

var (
	infoCmd = &cli.Command{
		Name:   "info",
		Usage:  "Get operator, ledger address, listing fee and counters",
		Flags:  []cli.Flag{urlFlag},
		Action: infoAction,
	}
	feeCmd = &cli.Command{
		Name:   "fee",
		Usage:  "Get the current listing fee",
		Flags:  []cli.Flag{urlFlag},
		Action: feeAction,
	}
	setFeeCmd = &cli.Command{
		Name:   "set-fee",
		Usage:  "Update the listing fee, operator only",
		Flags:  []cli.Flag{urlFlag, callerFlag, feeFlag},
		Action: setFeeAction,
	}
	mintCmd = &cli.Command{
		Name:   "mint",
		Usage:  "Mint a token and list it for sale",
		Flags:  []cli.Flag{urlFlag, callerFlag, uriFlag, priceFlag, mintFeeFlag, ownerFlag},
		Action: mintAction,
	}
	buyCmd = &cli.Command{
		Name:   "buy",
		Usage:  "Purchase a listed token",
		Flags:  []cli.Flag{urlFlag, callerFlag, tokenIdFlag, amountFlag},
		Action: buyAction,
	}
	listingCmd = &cli.Command{
		Name:   "listing",
		Usage:  "Get the listing of a token",
		Flags:  []cli.Flag{urlFlag, tokenIdFlag},
		Action: listingAction,
	}
	latestCmd = &cli.Command{
		Name:   "latest",
		Usage:  "Get the listing of the most recently minted token",
		Flags:  []cli.Flag{urlFlag},
		Action: latestAction,
	}
	listingsCmd = &cli.Command{
		Name:   "listings",
		Usage:  "List all listings",
		Flags:  []cli.Flag{urlFlag},
		Action: listingsAction,
	}
	mineCmd = &cli.Command{
		Name:   "mine",
		Usage:  "List the listings where the caller is seller or custodian",
		Flags:  []cli.Flag{urlFlag, callerFlag},
		Action: mineAction,
	}
	tokenCmd = &cli.Command{
		Name:   "token",
		Usage:  "Get uri and owner of a token",
		Flags:  []cli.Flag{urlFlag, tokenIdFlag},
		Action: tokenAction,
	}
	salesCmd = &cli.Command{
		Name:   "sales",
		Usage:  "Get the sale history of a token",
		Flags:  []cli.Flag{urlFlag, tokenIdFlag},
		Action: salesAction,
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the amount credited to an address",
		Flags:  []cli.Flag{urlFlag, addressFlag},
		Action: balanceAction,
	}
)

func infoAction(ctx *cli.Context) error {
	resp, err := get[handlers.InfoResponse](newClient(ctx), "/v1/info")
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func feeAction(ctx *cli.Context) error {
	resp, err := get[handlers.FeeResponse](newClient(ctx), "/v1/fee")
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func setFeeAction(ctx *cli.Context) error {
	c := newClient(ctx)
	if err := c.requireCaller(); err != nil {
		return err
	}

	resp, err := post[handlers.FeeResponse](c, "/v1/fee", handlers.SetListingFeeRequest{
		Fee: strconv.FormatUint(ctx.Uint64(feeFlagName), 10),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func mintAction(ctx *cli.Context) error {
	c := newClient(ctx)
	if err := c.requireCaller(); err != nil {
		return err
	}

	feePaid := strconv.FormatUint(ctx.Uint64(feeFlagName), 10)
	if !ctx.IsSet(feeFlagName) {
		fee, err := get[handlers.FeeResponse](c, "/v1/fee")
		if err != nil {
			return fmt.Errorf("failed to get listing fee: %w", err)
		}
		feePaid = fee.Fee
	}

	owner := ctx.String(ownerFlagName)
	if owner != "" && !common.IsHexAddress(owner) {
		return fmt.Errorf("invalid owner address %s", owner)
	}

	resp, err := post[handlers.MintAndListResponse](c, "/v1/listings", handlers.MintAndListRequest{
		Uri:     ctx.String(uriFlagName),
		Price:   strconv.FormatUint(ctx.Uint64(priceFlagName), 10),
		FeePaid: feePaid,
		Owner:   owner,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func buyAction(ctx *cli.Context) error {
	c := newClient(ctx)
	if err := c.requireCaller(); err != nil {
		return err
	}

	tokenId := ctx.Uint64(tokenIdFlagName)
	amount := strconv.FormatUint(ctx.Uint64(amountFlagName), 10)
	if !ctx.IsSet(amountFlagName) {
		listing, err := get[handlers.Listing](c, fmt.Sprintf("/v1/listings/%d", tokenId))
		if err != nil {
			return fmt.Errorf("failed to get listing: %w", err)
		}
		amount = listing.Price
	}

	resp, err := post[handlers.Listing](
		c, fmt.Sprintf("/v1/listings/%d/purchase", tokenId),
		handlers.PurchaseRequest{Amount: amount},
	)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func listingAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/listings/%d", ctx.Uint64(tokenIdFlagName))
	resp, err := get[handlers.Listing](newClient(ctx), path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func latestAction(ctx *cli.Context) error {
	resp, err := get[handlers.Listing](newClient(ctx), "/v1/listings/latest")
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func listingsAction(ctx *cli.Context) error {
	resp, err := get[handlers.ListingsResponse](newClient(ctx), "/v1/listings")
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func mineAction(ctx *cli.Context) error {
	c := newClient(ctx)
	if err := c.requireCaller(); err != nil {
		return err
	}

	resp, err := get[handlers.ListingsResponse](c, "/v1/listings/mine")
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func tokenAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/tokens/%d", ctx.Uint64(tokenIdFlagName))
	resp, err := get[handlers.Token](newClient(ctx), path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func salesAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/tokens/%d/sales", ctx.Uint64(tokenIdFlagName))
	resp, err := get[handlers.SalesResponse](newClient(ctx), path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func balanceAction(ctx *cli.Context) error {
	addr := ctx.String(addressFlagName)
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid address %s", addr)
	}

	path := fmt.Sprintf("/v1/balances/%s", addr)
	resp, err := get[handlers.BalanceResponse](newClient(ctx), path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}
