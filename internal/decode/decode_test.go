package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/histori/evm-token-indexer/internal/catalog"
)

func addressTopic(addr common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], addr.Bytes())
	return h
}

func wordFromUint64(v uint64) []byte {
	word := make([]byte, 32)
	big.NewInt(0).SetUint64(v).FillBytes(word)
	return word
}

func TestDecodeERC20Transfer(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := types.Log{
		Address:     common.HexToAddress("0xAAAA111111111111111111111111111111AAAA"),
		Topics:      []common.Hash{catalog.TransferTopic, addressTopic(from), addressTopic(to)},
		Data:        wordFromUint64(500),
		BlockNumber: 10,
		Index:       2,
	}
	ev, err := Decode(log, catalog.Standard20)
	require.NoError(t, err)
	require.Equal(t, KindTransfer, ev.Kind)
	require.Equal(t, from, ev.From)
	require.Equal(t, to, ev.To)
	require.EqualValues(t, big.NewInt(500), ev.Value)
	require.EqualValues(t, 2, ev.LogIndex)
}

func TestDecodeERC721TransferUsesIndexedTokenID(t *testing.T) {
	from := common.HexToAddress("0x3333333333333333333333333333333333333333")
	to := common.HexToAddress("0x4444444444444444444444444444444444444444")
	log := types.Log{
		Topics: []common.Hash{
			catalog.TransferTopic,
			addressTopic(from),
			addressTopic(to),
			common.BytesToHash(wordFromUint64(77)),
		},
	}
	ev, err := Decode(log, catalog.Standard721)
	require.NoError(t, err)
	require.EqualValues(t, big.NewInt(77), ev.TokenID)
}

func TestDecodeApprovalForAllShared721And1155(t *testing.T) {
	owner := common.HexToAddress("0x5555555555555555555555555555555555555555")
	operator := common.HexToAddress("0x6666666666666666666666666666666666666666")
	trueWord := make([]byte, 32)
	trueWord[31] = 1
	log := types.Log{
		Topics: []common.Hash{catalog.ApprovalForAllTopic, addressTopic(owner), addressTopic(operator)},
		Data:   trueWord,
	}

	ev721, err := Decode(log, catalog.Standard721)
	require.NoError(t, err)
	require.True(t, ev721.Approved)

	ev1155, err := Decode(log, catalog.Standard1155)
	require.NoError(t, err)
	require.True(t, ev1155.Approved)
}

func TestDecodeTransferSingle(t *testing.T) {
	operator := common.HexToAddress("0x7777777777777777777777777777777777777777")
	from := common.HexToAddress("0x8888888888888888888888888888888888888888")
	to := common.HexToAddress("0x9999999999999999999999999999999999999999")
	data := append(append([]byte{}, wordFromUint64(1)...), wordFromUint64(42)...)
	log := types.Log{
		Topics: []common.Hash{catalog.TransferSingleTopic, addressTopic(operator), addressTopic(from), addressTopic(to)},
		Data:   data,
	}
	ev, err := Decode(log, catalog.Standard1155)
	require.NoError(t, err)
	require.EqualValues(t, big.NewInt(1), ev.TokenID)
	require.EqualValues(t, big.NewInt(42), ev.Value)
}

func TestDecodeTransferBatchRejectsLengthMismatch(t *testing.T) {
	// hand-built ABI encoding of two uint256[] arrays with DIFFERENT
	// lengths (2 ids, 1 value) to exercise the length-mismatch guard.
	operator := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	from := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	to := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	offsetIds := wordFromUint64(64)
	offsetValues := wordFromUint64(160) // 0x40, 0x40 + 32 + 2*32

	idsLen := wordFromUint64(2)
	ids := append(append([]byte{}, wordFromUint64(1)...), wordFromUint64(2)...)
	valuesLen := wordFromUint64(1)
	values := wordFromUint64(10)

	var data []byte
	data = append(data, offsetIds...)
	data = append(data, offsetValues...)
	data = append(data, idsLen...)
	data = append(data, ids...)
	data = append(data, valuesLen...)
	data = append(data, values...)

	log := types.Log{
		Topics: []common.Hash{catalog.TransferBatchTopic, addressTopic(operator), addressTopic(from), addressTopic(to)},
		Data:   data,
	}
	_, err := Decode(log, catalog.Standard1155)
	require.Error(t, err)
}

func TestDecodeTransferBatchHappyPath(t *testing.T) {
	operator := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	from := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	to := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	offsetIds := wordFromUint64(64)
	offsetValues := wordFromUint64(160)

	idsLen := wordFromUint64(2)
	ids := append(append([]byte{}, wordFromUint64(1)...), wordFromUint64(2)...)
	valuesLen := wordFromUint64(2)
	values := append(append([]byte{}, wordFromUint64(10)...), wordFromUint64(20)...)

	var data []byte
	data = append(data, offsetIds...)
	data = append(data, offsetValues...)
	data = append(data, idsLen...)
	data = append(data, ids...)
	data = append(data, valuesLen...)
	data = append(data, values...)

	log := types.Log{
		Topics: []common.Hash{catalog.TransferBatchTopic, addressTopic(operator), addressTopic(from), addressTopic(to)},
		Data:   data,
	}
	ev, err := Decode(log, catalog.Standard1155)
	require.NoError(t, err)
	require.Len(t, ev.TokenIDs, 2)
	require.Len(t, ev.Values, 2)
	require.EqualValues(t, big.NewInt(1), ev.TokenIDs[0])
	require.EqualValues(t, big.NewInt(20), ev.Values[1])
}

func TestDecodeMintedSetsFromToZeroAddress(t *testing.T) {
	operator := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	to := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	data := append(append(append([]byte{}, wordFromUint64(1000)...), wordFromUint64(96)...), wordFromUint64(96)...)
	log := types.Log{
		Topics: []common.Hash{catalog.MintedTopic, addressTopic(operator), addressTopic(to)},
		Data:   data,
	}
	ev, err := Decode(log, catalog.Standard777)
	require.NoError(t, err)
	require.Equal(t, KindMinted, ev.Kind)
	require.Equal(t, ZeroAddress, ev.From)
	require.Equal(t, to, ev.To)
	require.EqualValues(t, big.NewInt(1000), ev.Value)
}
