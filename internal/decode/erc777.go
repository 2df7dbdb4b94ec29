package decode

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// minAmountDataWords is the minimum word count for Sent/Minted/Burned data:
// the amount itself plus the two dynamic-bytes offset pointers that precede
// their tail-encoded contents. The decoder only needs the amount, which is
// always the first word regardless of how long data and operatorData are.
const minAmountDataWords = 3

// DecodeERC777 decodes Sent, Minted, Burned, AuthorizedOperator, or
// RevokedOperator.
func DecodeERC777(log types.Log) (Event, error) {
	switch log.Topics[0] {
	case catalog.SentTopic:
		return decodeSent(log)
	case catalog.MintedTopic:
		return decodeMintedOrBurned(log, KindMinted)
	case catalog.BurnedTopic:
		return decodeMintedOrBurned(log, KindBurned)
	case catalog.AuthorizedOperatorTopic:
		return decodeOperatorEvent(log, KindAuthorizedOperator)
	case catalog.RevokedOperatorTopic:
		return decodeOperatorEvent(log, KindRevokedOperator)
	default:
		return Event{}, errs.New(errs.KindDecode, "erc777: unrecognized topic0")
	}
}

func decodeSent(log types.Log) (Event, error) {
	if len(log.Topics) != 4 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "sent: expected 4 topics, got %d", len(log.Topics))
	}
	if len(log.Data) < 32*minAmountDataWords {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "sent: data too short (%d bytes)", len(log.Data))
	}
	amount, err := uint256FromWord(log.Data[0:32])
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        KindSent,
		Standard:    catalog.Standard777,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Operator:    addressFromTopic(log.Topics[1]),
		From:        addressFromTopic(log.Topics[2]),
		To:          addressFromTopic(log.Topics[3]),
		Value:       amount,
	}, nil
}

// decodeMintedOrBurned handles Minted(operator, to, amount, data,
// operatorData) and Burned(operator, from, amount, data, operatorData),
// which share a shape differing only in which address is "to" vs "from".
func decodeMintedOrBurned(log types.Log, kind Kind) (Event, error) {
	if len(log.Topics) != 3 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "minted/burned: expected 3 topics, got %d", len(log.Topics))
	}
	if len(log.Data) < 32*minAmountDataWords {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "minted/burned: data too short (%d bytes)", len(log.Data))
	}
	amount, err := uint256FromWord(log.Data[0:32])
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Kind:        kind,
		Standard:    catalog.Standard777,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Operator:    addressFromTopic(log.Topics[1]),
		Value:       amount,
	}
	if kind == KindMinted {
		ev.To = addressFromTopic(log.Topics[2])
		ev.From = ZeroAddress
	} else {
		ev.From = addressFromTopic(log.Topics[2])
		ev.To = ZeroAddress
	}
	return ev, nil
}

func decodeOperatorEvent(log types.Log, kind Kind) (Event, error) {
	if len(log.Topics) != 3 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "operator event: expected 3 topics, got %d", len(log.Topics))
	}
	return Event{
		Kind:        kind,
		Standard:    catalog.Standard777,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Operator:    addressFromTopic(log.Topics[1]),
		Holder:      addressFromTopic(log.Topics[2]),
	}, nil
}
