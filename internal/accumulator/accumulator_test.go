package accumulator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/store"
)

func newTestService(t *testing.T) *Service {
	db, err := store.OpenTest()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func strPtr(s string) *string { return &s }

// Scenario 1: fungible mint.
func TestFungibleMintAndBalance(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.ApplyBalanceDelta("0xAAA", "0xTOKEN", nil, Increase(big.NewInt(1000)), catalog.Standard20, 100, 0))
	require.NoError(t, svc.ApplySupplyDelta("0xTOKEN", Increase(big.NewInt(1000)), 100, 0))

	bal, err := svc.latestBalance("0xAAA", "0xTOKEN", nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), bal)

	supply, err := svc.latestSupply("0xTOKEN")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), supply)
}

// Scenario 2: fungible transfer after mint.
func TestFungibleTransferPreservesSupply(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.ApplyBalanceDelta("0xAAA", "0xTOKEN", nil, Increase(big.NewInt(1000)), catalog.Standard20, 100, 0))
	require.NoError(t, svc.ApplySupplyDelta("0xTOKEN", Increase(big.NewInt(1000)), 100, 0))

	require.NoError(t, svc.ApplyBalanceDelta("0xAAA", "0xTOKEN", nil, Decrease(big.NewInt(400)), catalog.Standard20, 101, 5))
	require.NoError(t, svc.ApplyBalanceDelta("0xBBB", "0xTOKEN", nil, Increase(big.NewInt(400)), catalog.Standard20, 101, 5))

	aBal, _ := svc.latestBalance("0xAAA", "0xTOKEN", nil)
	bBal, _ := svc.latestBalance("0xBBB", "0xTOKEN", nil)
	require.Equal(t, big.NewInt(600), aBal)
	require.Equal(t, big.NewInt(400), bBal)

	supply, _ := svc.latestSupply("0xTOKEN")
	require.Equal(t, big.NewInt(1000), supply, "a transfer between non-zero addresses must not move supply")
}

// Scenario 3: saturating burn.
func TestSaturatingBurnNeverGoesNegative(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.ApplyBalanceDelta("0xBBB", "0xTOKEN", nil, Increase(big.NewInt(400)), catalog.Standard20, 101, 5))
	require.NoError(t, svc.ApplySupplyDelta("0xTOKEN", Increase(big.NewInt(1000)), 100, 0))

	require.NoError(t, svc.ApplyBalanceDelta("0xBBB", "0xTOKEN", nil, Decrease(big.NewInt(999)), catalog.Standard20, 102, 0))
	require.NoError(t, svc.ApplySupplyDelta("0xTOKEN", Decrease(big.NewInt(999)), 102, 0))

	bal, _ := svc.latestBalance("0xBBB", "0xTOKEN", nil)
	require.Equal(t, big.NewInt(0), bal, "balance must saturate at zero rather than go negative")

	supply, _ := svc.latestSupply("0xTOKEN")
	require.Equal(t, big.NewInt(1), supply)
}

// Scenario 4: NFT transfer keyed by token_id.
func TestNFTTransferKeyedByTokenID(t *testing.T) {
	svc := newTestService(t)
	id := strPtr("7")
	require.NoError(t, svc.ApplyBalanceDelta("0xCCC", "0xNFT", id, Increase(big.NewInt(1)), catalog.Standard721, 200, 0))

	bal, err := svc.latestBalance("0xCCC", "0xNFT", id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bal)

	other, err := svc.latestBalance("0xCCC", "0xNFT", strPtr("8"))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), other, "a different token_id under the same holder/address must be a distinct key")
}

// Scenario 5: ApprovalForAll grant then revoke uses set semantics, never
// additive accumulation.
func TestApprovalForAllSetSemantics(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SetAllowance("0xOwner", "0xOperator", "0xNFT", nil, 1, catalog.Standard1155, 300, 0))
	require.NoError(t, svc.SetAllowance("0xOwner", "0xOperator", "0xNFT", nil, 0, catalog.Standard1155, 301, 0))

	allowance, err := svc.latestAllowance("0xOwner", "0xOperator", "0xNFT", nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), allowance)

	var rows []store.AllowanceRow
	require.NoError(t, svc.db.Order("block_number").Find(&rows).Error)
	require.Len(t, rows, 2, "grant and revoke must each append a row, not merge into one")
	require.Equal(t, "1", rows[0].Allowance)
	require.Equal(t, "0", rows[1].Allowance)
}

// Scenario 6: batch transfer touches four distinct balance keys at the
// same (block, log_index) and does not move supply.
func TestBatchTransferTouchesFourKeys(t *testing.T) {
	svc := newTestService(t)
	ids := []string{"1", "2"}
	values := []int64{10, 20}
	for i, id := range ids {
		v := big.NewInt(values[i])
		require.NoError(t, svc.ApplyBalanceDelta("0xX", "0xNFT", strPtr(id), Decrease(v), catalog.Standard1155, 400, 3))
		require.NoError(t, svc.ApplyBalanceDelta("0xY", "0xNFT", strPtr(id), Increase(v), catalog.Standard1155, 400, 3))
	}

	xID1, _ := svc.latestBalance("0xX", "0xNFT", strPtr("1"))
	xID2, _ := svc.latestBalance("0xX", "0xNFT", strPtr("2"))
	yID1, _ := svc.latestBalance("0xY", "0xNFT", strPtr("1"))
	yID2, _ := svc.latestBalance("0xY", "0xNFT", strPtr("2"))
	require.Equal(t, big.NewInt(0), xID1)
	require.Equal(t, big.NewInt(0), xID2)
	require.Equal(t, big.NewInt(10), yID1)
	require.Equal(t, big.NewInt(20), yID2)
}

// Idempotent replay: re-applying the exact same (key, block, log_index)
// insert must not create a second row or change the latest value.
func TestReplayOfSameEventIsANoOp(t *testing.T) {
	svc := newTestService(t)
	row := store.BalanceRow{Holder: "0xAAA", Address: "0xTOKEN", Balance: "1000", Standard: "20", BlockNumber: 100, LogIndex: 0}
	require.NoError(t, svc.insertIdempotent(&row))

	replay := store.BalanceRow{Holder: "0xAAA", Address: "0xTOKEN", Balance: "1000", Standard: "20", BlockNumber: 100, LogIndex: 0}
	require.NoError(t, svc.insertIdempotent(&replay), "a uniqueness violation on replay must be treated as success")

	var rows []store.BalanceRow
	require.NoError(t, svc.db.Find(&rows).Error)
	require.Len(t, rows, 1)
}
