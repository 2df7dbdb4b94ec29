// Package decode turns a raw log into a typed Event, one file per standard
// (erc20.go, erc721.go, erc777.go, erc1155.go), using accounts/abi for the
// dynamic arrays in TransferBatch and holiman/uint256 for fixed 32-byte
// words so large balances and token ids never get truncated through a
// native int on the way in.
package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// Kind names the decoded event shape, independent of which standard emitted
// it (ApprovalForAll is shared by 721 and 1155; several ERC-777 events
// share an operator/holder shape).
type Kind int

const (
	KindTransfer Kind = iota
	KindApproval
	KindApprovalForAll
	KindSent
	KindMinted
	KindBurned
	KindAuthorizedOperator
	KindRevokedOperator
	KindTransferSingle
	KindTransferBatch
)

// Event is the normalized result of decoding one log, carrying only the
// fields its Kind actually uses.
type Event struct {
	Kind     Kind
	Standard catalog.Standard

	Contract    common.Address
	BlockNumber uint64
	LogIndex    uint32

	From, To, Owner, Spender, Operator, Holder common.Address

	TokenID  *big.Int   // single-id events (721 Transfer/Approval, 1155 TransferSingle)
	TokenIDs []*big.Int // TransferBatch
	Value    *big.Int   // single amount/value (20 Transfer/Approval, 777 Sent/Minted/Burned, 1155 TransferSingle)
	Values   []*big.Int // TransferBatch

	Approved bool // ApprovalForAll
}

// ZeroAddress is the conventional mint/burn sentinel.
var ZeroAddress common.Address

func addressFromTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[12:])
}

func boolFromWord(word []byte) bool {
	for _, b := range word {
		if b != 0 {
			return true
		}
	}
	return false
}

// uint256FromWord decodes a 32-byte big-endian word through uint256.Int
// rather than math/big directly so a corrupt or oversized word fails loudly
// instead of silently wrapping, and converts to *big.Int only at the very
// end for storage and arithmetic.
func uint256FromWord(word []byte) (*big.Int, error) {
	if len(word) != 32 {
		return nil, errs.New(errs.KindDecode, "expected a 32-byte word")
	}
	var v uint256.Int
	v.SetBytes(word)
	return v.ToBig(), nil
}

func requireWordCount(data []byte, words int) error {
	if len(data) != 32*words {
		return errs.Wrapf(errs.KindDecode, errShortData, "expected %d word(s), got %d bytes", words, len(data))
	}
	return nil
}

var errShortData = shortDataErr{}

type shortDataErr struct{}

func (shortDataErr) Error() string { return "log data length mismatch" }
