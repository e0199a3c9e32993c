package dbutil

import (
	"fmt"
	"strconv"
)

// FormatAmount encodes an amount for storage. Amounts are kept as decimal
// strings since they may not fit a signed 64-bit column.
func FormatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func ParseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return amount, nil
}
