package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/histori/evm-token-indexer/internal/store"
)

func TestReadAbsentReturnsZero(t *testing.T) {
	db, err := store.OpenTest()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	v, err := s.Read()
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	db, err := store.OpenTest()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	require.NoError(t, s.Write(100))
	v, err := s.Read()
	require.NoError(t, err)
	require.EqualValues(t, 100, v)

	// The driver never moves backward, but the store itself is a plain
	// replace; monotonicity is enforced by the driver, not the store.
	require.NoError(t, s.Write(200))
	v, err = s.Read()
	require.NoError(t, err)
	require.EqualValues(t, 200, v)
}
