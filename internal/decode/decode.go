package decode

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// Decode routes log to the decoder for standard. The caller (the
// dispatcher) is responsible for resolving standard first, either from the
// detector's cached classification or, when topic0 already uniquely
// identifies it, from catalog.StandardForTopic.
func Decode(log types.Log, standard catalog.Standard) (Event, error) {
	if len(log.Topics) == 0 {
		return Event{}, errs.New(errs.KindDecode, "log has no topics")
	}
	switch standard {
	case catalog.Standard20:
		return DecodeERC20(log)
	case catalog.Standard721:
		return DecodeERC721(log)
	case catalog.Standard1155:
		return DecodeERC1155(log)
	case catalog.Standard777:
		return DecodeERC777(log)
	default:
		return Event{}, errs.New(errs.KindClassification, "decode: unknown standard")
	}
}
