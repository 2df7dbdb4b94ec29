package decode

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// DecodeERC20 decodes a Transfer or Approval log emitted by an ERC-20
// contract. Both events share the shape (address, address, uint256): two
// indexed addresses and one non-indexed value word.
func DecodeERC20(log types.Log) (Event, error) {
	if len(log.Topics) != 3 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "erc20: expected 3 topics, got %d", len(log.Topics))
	}
	if err := requireWordCount(log.Data, 1); err != nil {
		return Event{}, err
	}
	value, err := uint256FromWord(log.Data[0:32])
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Standard:    catalog.Standard20,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Value:       value,
	}

	switch log.Topics[0] {
	case catalog.TransferTopic:
		ev.Kind = KindTransfer
		ev.From = addressFromTopic(log.Topics[1])
		ev.To = addressFromTopic(log.Topics[2])
	case catalog.ApprovalTopic:
		ev.Kind = KindApproval
		ev.Owner = addressFromTopic(log.Topics[1])
		ev.Spender = addressFromTopic(log.Topics[2])
	default:
		return Event{}, errs.New(errs.KindDecode, "erc20: unrecognized topic0")
	}
	return ev, nil
}
