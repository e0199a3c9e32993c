package main

import (
	"fmt"

	"github.com/tokenmarket/marketd/internal/config"
	"github.com/urfave/cli/v2"
)

const (
	urlFlagName     = "url"
	callerFlagName  = "caller"
	feeFlagName     = "fee"
	uriFlagName     = "uri"
	priceFlagName   = "price"
	ownerFlagName   = "owner"
	amountFlagName  = "amount"
	tokenIdFlagName = "id"
	addressFlagName = "address"
)

var defaultUrl = fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort)

var (
	urlFlag = &cli.StringFlag{
		Name:        urlFlagName,
		Usage:       "the url where to reach the marketplace ledger",
		DefaultText: fmt.Sprintf("%s or $MARKETD_URL", defaultUrl),
	}
	callerFlag = &cli.StringFlag{
		Name:        callerFlagName,
		Usage:       "address acting as the caller of the request",
		DefaultText: "$MARKETD_CALLER",
	}
	feeFlag = &cli.Uint64Flag{
		Name:     feeFlagName,
		Usage:    "listing fee in wei",
		Required: true,
	}
	mintFeeFlag = &cli.Uint64Flag{
		Name:        feeFlagName,
		Usage:       "listing fee to pay in wei",
		DefaultText: "current listing fee",
	}
	uriFlag = &cli.StringFlag{
		Name:     uriFlagName,
		Usage:    "uri of the token metadata",
		Required: true,
	}
	priceFlag = &cli.Uint64Flag{
		Name:     priceFlagName,
		Usage:    "sale price in wei",
		Required: true,
	}
	ownerFlag = &cli.StringFlag{
		Name:        ownerFlagName,
		Usage:       "wallet the token is minted for",
		DefaultText: "caller",
	}
	amountFlag = &cli.Uint64Flag{
		Name:        amountFlagName,
		Usage:       "amount to pay in wei",
		DefaultText: "listing price",
	}
	tokenIdFlag = &cli.Uint64Flag{
		Name:     tokenIdFlagName,
		Usage:    "id of the token",
		Required: true,
	}
	addressFlag = &cli.StringFlag{
		Name:     addressFlagName,
		Usage:    "address to get the balance of",
		Required: true,
	}
)
