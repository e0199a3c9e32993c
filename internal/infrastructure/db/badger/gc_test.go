package badgerdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueLogGC(t *testing.T) {
	store, err := createDB(t.TempDir(), nil)
	require.NoError(t, err)
	// nolint:errcheck
	defer store.Close()

	gc, err := newValueLogGC(store.Badger(), time.Hour)
	require.NoError(t, err)
	defer gc.stop()

	// a fresh store has nothing to rewrite
	require.Zero(t, gc.run())
}
