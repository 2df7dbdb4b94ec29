package decode

import (
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

var transferBatchArgs ethabi.Arguments

func init() {
	uint256Slice, err := ethabi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	transferBatchArgs = ethabi.Arguments{
		{Type: uint256Slice},
		{Type: uint256Slice},
	}
}

// DecodeERC1155 decodes TransferSingle, TransferBatch, or ApprovalForAll.
func DecodeERC1155(log types.Log) (Event, error) {
	switch log.Topics[0] {
	case catalog.TransferSingleTopic:
		return decodeTransferSingle(log)
	case catalog.TransferBatchTopic:
		return decodeTransferBatch(log)
	case catalog.ApprovalForAllTopic:
		return decodeApprovalForAll(log, catalog.Standard1155)
	default:
		return Event{}, errs.New(errs.KindDecode, "erc1155: unrecognized topic0")
	}
}

func decodeTransferSingle(log types.Log) (Event, error) {
	if len(log.Topics) != 4 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "transferSingle: expected 4 topics, got %d", len(log.Topics))
	}
	if err := requireWordCount(log.Data, 2); err != nil {
		return Event{}, err
	}
	id, err := uint256FromWord(log.Data[0:32])
	if err != nil {
		return Event{}, err
	}
	value, err := uint256FromWord(log.Data[32:64])
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        KindTransferSingle,
		Standard:    catalog.Standard1155,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Operator:    addressFromTopic(log.Topics[1]),
		From:        addressFromTopic(log.Topics[2]),
		To:          addressFromTopic(log.Topics[3]),
		TokenID:     id,
		Value:       value,
	}, nil
}

// decodeTransferBatch unpacks the two dynamic uint256[] arrays in the log
// data through accounts/abi rather than hand-rolled offset arithmetic, and
// rejects a length mismatch between ids and values as a decode error
// rather than silently zipping the shorter length.
func decodeTransferBatch(log types.Log) (Event, error) {
	if len(log.Topics) != 4 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "transferBatch: expected 4 topics, got %d", len(log.Topics))
	}
	unpacked, err := transferBatchArgs.Unpack(log.Data)
	if err != nil {
		return Event{}, errs.Wrap(errs.KindDecode, err, "transferBatch: unpack dynamic arrays")
	}
	ids, ok := unpacked[0].([]*big.Int)
	if !ok {
		return Event{}, errs.New(errs.KindDecode, "transferBatch: ids not a uint256[]")
	}
	values, ok := unpacked[1].([]*big.Int)
	if !ok {
		return Event{}, errs.New(errs.KindDecode, "transferBatch: values not a uint256[]")
	}
	if len(ids) != len(values) {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "transferBatch: ids length %d != values length %d", len(ids), len(values))
	}

	return Event{
		Kind:        KindTransferBatch,
		Standard:    catalog.Standard1155,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Operator:    addressFromTopic(log.Topics[1]),
		From:        addressFromTopic(log.Topics[2]),
		To:          addressFromTopic(log.Topics[3]),
		TokenIDs:    ids,
		Values:      values,
	}, nil
}
