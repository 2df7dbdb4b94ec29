package dispatch

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/histori/evm-token-indexer/internal/accumulator"
	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/config"
	"github.com/histori/evm-token-indexer/internal/decode"
)

type balanceCall struct {
	holder, address string
	tokenID         *string
	delta           accumulator.Delta
}

type allowanceSetCall struct {
	owner, spender, address string
	tokenID                 *string
	value                   int64
}

type fakeAccumulator struct {
	balanceCalls     []balanceCall
	allowanceDeltas  []balanceCall
	allowanceSets    []allowanceSetCall
	supplyCalls      []accumulator.Delta
}

func (f *fakeAccumulator) ApplyBalanceDelta(holder, address string, tokenID *string, delta accumulator.Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	f.balanceCalls = append(f.balanceCalls, balanceCall{holder, address, tokenID, delta})
	return nil
}

func (f *fakeAccumulator) ApplyAllowanceDelta(owner, spender, address string, tokenID *string, delta accumulator.Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	f.allowanceDeltas = append(f.allowanceDeltas, balanceCall{owner, spender, tokenID, delta})
	return nil
}

func (f *fakeAccumulator) SetAllowance(owner, spender, address string, tokenID *string, value int64, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	f.allowanceSets = append(f.allowanceSets, allowanceSetCall{owner, spender, address, tokenID, value})
	return nil
}

func (f *fakeAccumulator) ApplySupplyDelta(address string, delta accumulator.Delta, blockNumber uint64, logIndex uint32) error {
	f.supplyCalls = append(f.supplyCalls, delta)
	return nil
}

type fakeCatalog struct {
	ensureTokenCalls int
	ensureURICalls   int
}

func (f *fakeCatalog) EnsureToken(ctx context.Context, address common.Address, standard catalog.Standard, firstSeenBlock uint64) error {
	f.ensureTokenCalls++
	return nil
}

func (f *fakeCatalog) EnsureTokenURI(ctx context.Context, address common.Address, tokenID *big.Int, standard catalog.Standard) error {
	f.ensureURICalls++
	return nil
}

func fullGate() config.FeatureGate {
	return config.FeatureGate{
		Standards:   config.StandardGate{ERC20: true, ERC721: true, ERC1155: true, ERC777: true},
		Projections: config.ProjectionGate{Balances: true, Allowances: true, TotalSupplies: true, TokenURIs: true},
	}
}

var contract = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

func TestDispatchAlwaysEnsuresTokenFirst(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(config.FeatureGate{}, accum, cat)

	ev := decode.Event{Kind: decode.KindTransfer, Standard: catalog.Standard20, Contract: contract, Value: big.NewInt(1)}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Equal(t, 1, cat.ensureTokenCalls)
}

func TestFungibleTransferMintSkipsZeroAddressBalance(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{
		Kind: decode.KindTransfer, Standard: catalog.Standard20, Contract: contract,
		From: decode.ZeroAddress, To: common.HexToAddress("0xaaa"), Value: big.NewInt(1000),
	}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))

	require.Len(t, accum.balanceCalls, 1, "the zero address must not receive a balance row")
	require.Equal(t, ev.To.Hex(), accum.balanceCalls[0].holder)
	require.Len(t, accum.supplyCalls, 1)
}

func TestFungibleTransferBetweenHoldersDoesNotTouchSupply(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{
		Kind: decode.KindTransfer, Standard: catalog.Standard20, Contract: contract,
		From: common.HexToAddress("0xaaa"), To: common.HexToAddress("0xbbb"), Value: big.NewInt(400),
	}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.balanceCalls, 2)
	require.Empty(t, accum.supplyCalls)
}

func TestNFTTransferEnsuresURIWhenGated(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{
		Kind: decode.KindTransfer, Standard: catalog.Standard721, Contract: contract,
		From: decode.ZeroAddress, To: common.HexToAddress("0xccc"), TokenID: big.NewInt(7),
	}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Equal(t, 1, cat.ensureURICalls)
	require.Len(t, accum.balanceCalls, 1)
}

func TestApprovalForAllUsesSetSemantics(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	owner := common.HexToAddress("0x01")
	operator := common.HexToAddress("0x02")
	ev := decode.Event{Kind: decode.KindApprovalForAll, Standard: catalog.Standard1155, Contract: contract, Owner: owner, Operator: operator, Approved: true}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.allowanceSets, 1)
	require.EqualValues(t, 1, accum.allowanceSets[0].value)
	require.Empty(t, accum.allowanceDeltas, "ApprovalForAll must never go through the additive path")
}

func TestMintedIncreasesBalanceAndSupply(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{Kind: decode.KindMinted, Standard: catalog.Standard777, Contract: contract, To: common.HexToAddress("0xaaa"), Value: big.NewInt(50)}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.balanceCalls, 1)
	require.Len(t, accum.supplyCalls, 1)
}

func TestBurnedDecreasesBalanceAndSupply(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{Kind: decode.KindBurned, Standard: catalog.Standard777, Contract: contract, From: common.HexToAddress("0xaaa"), Value: big.NewInt(50)}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.balanceCalls, 1)
	require.Len(t, accum.supplyCalls, 1)
}

func TestSentMovesNoSupply(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{Kind: decode.KindSent, Standard: catalog.Standard777, Contract: contract, From: common.HexToAddress("0xaaa"), To: common.HexToAddress("0xbbb"), Value: big.NewInt(1)}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.balanceCalls, 2)
	require.Empty(t, accum.supplyCalls)
}

func TestTransferBatchAppliesEachIDIndependently(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(fullGate(), accum, cat)

	ev := decode.Event{
		Kind: decode.KindTransferBatch, Standard: catalog.Standard1155, Contract: contract,
		From: common.HexToAddress("0xaaa"), To: common.HexToAddress("0xbbb"),
		TokenIDs: []*big.Int{big.NewInt(1), big.NewInt(2)},
		Values:   []*big.Int{big.NewInt(10), big.NewInt(20)},
	}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Len(t, accum.balanceCalls, 4, "two ids x (from,to) = four balance writes")
	require.Equal(t, 2, cat.ensureURICalls)
}

func TestGatesSuppressWritesButStillEnsureToken(t *testing.T) {
	accum := &fakeAccumulator{}
	cat := &fakeCatalog{}
	d := New(config.FeatureGate{}, accum, cat) // every projection off

	ev := decode.Event{Kind: decode.KindApprovalForAll, Standard: catalog.Standard721, Contract: contract, Owner: common.HexToAddress("0x01"), Operator: common.HexToAddress("0x02"), Approved: true}
	require.NoError(t, d.Dispatch(context.Background(), ev, 1))
	require.Empty(t, accum.allowanceSets)
	require.Equal(t, 1, cat.ensureTokenCalls)
}
