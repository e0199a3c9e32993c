package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/tokenmarket/marketd/pkg/errors"
)

const CallerHeader = "X-Caller"

var validate = validator.New()

func parseAddress(addr string) (common.Address, error) {
	if err := validate.Var(addr, "required,eth_addr"); err != nil {
		return common.Address{}, errors.INVALID_ADDRESS.New("invalid address %q", addr).
			WithMetadata(errors.InvalidAddressMetadata{Address: addr})
	}
	return common.HexToAddress(addr), nil
}

func parseOptionalAddress(addr string) (common.Address, error) {
	if addr == "" {
		return common.Address{}, nil
	}
	return parseAddress(addr)
}

func parseTokenId(id string) (uint64, error) {
	tokenId, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, invalidRequest("invalid token id %q", id)
	}
	return tokenId, nil
}

func parseAmount(name, amount string) (uint64, error) {
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, invalidRequest("invalid %s %q", name, amount)
	}
	return value, nil
}

// parsePrice maps a negative decimal price to zero, which the ledger rejects
// as an invalid price.
func parsePrice(price string) (uint64, error) {
	if abs, ok := strings.CutPrefix(price, "-"); ok {
		if _, err := strconv.ParseUint(abs, 10, 64); err == nil {
			return 0, nil
		}
	}
	return parseAmount("price", price)
}

func invalidRequest(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.INVALID_REQUEST.New("%s", msg).WithMetadata(map[string]any{"reason": msg})
}
