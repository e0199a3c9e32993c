package dbutil_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	dbutil "github.com/tokenmarket/marketd/internal/infrastructure/db/dbuitl"
)

func TestAmount(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, amount := range []uint64{0, 1, 2500000000000000, math.MaxUint64} {
			got, err := dbutil.ParseAmount(dbutil.FormatAmount(amount))
			require.NoError(t, err)
			require.Equal(t, amount, got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"", "-1", "abc", "18446744073709551616"} {
			_, err := dbutil.ParseAmount(s)
			require.Error(t, err)
		}
	})
}
