// Package catalog provides the canonical 32-byte event topic hashes and the
// four token-standard tags. Hashes are computed once, in init(), from the
// canonical event signature strings — an effectively-immutable module-scope
// value rather than a lazily constructed global mutated on first use.
package catalog

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/histori/evm-token-indexer/internal/config"
)

// Standard tags a classified contract.
type Standard int

const (
	StandardUnknown Standard = iota
	Standard20
	Standard721
	Standard1155
	Standard777
)

func (s Standard) String() string {
	switch s {
	case Standard20:
		return "20"
	case Standard721:
		return "721"
	case Standard1155:
		return "1155"
	case Standard777:
		return "777"
	default:
		return "unknown"
	}
}

// Event signature strings, canonical per the respective EIPs.
const (
	sigTransfer           = "Transfer(address,address,uint256)"
	sigApproval            = "Approval(address,address,uint256)"
	sigApprovalForAll      = "ApprovalForAll(address,address,bool)"
	sigSent                = "Sent(address,address,address,uint256,bytes,bytes)"
	sigMinted              = "Minted(address,address,uint256,bytes,bytes)"
	sigBurned              = "Burned(address,address,uint256,bytes,bytes)"
	sigAuthorizedOperator  = "AuthorizedOperator(address,address)"
	sigRevokedOperator     = "RevokedOperator(address,address)"
	sigTransferSingle      = "TransferSingle(address,address,address,uint256,uint256)"
	sigTransferBatch       = "TransferBatch(address,address,address,uint256[],uint256[])"
)

// Topic hashes, computed once at package init.
var (
	TransferTopic           common.Hash
	ApprovalTopic           common.Hash
	ApprovalForAllTopic     common.Hash
	SentTopic               common.Hash
	MintedTopic             common.Hash
	BurnedTopic             common.Hash
	AuthorizedOperatorTopic common.Hash
	RevokedOperatorTopic    common.Hash
	TransferSingleTopic     common.Hash
	TransferBatchTopic      common.Hash
)

func init() {
	TransferTopic = crypto.Keccak256Hash([]byte(sigTransfer))
	ApprovalTopic = crypto.Keccak256Hash([]byte(sigApproval))
	ApprovalForAllTopic = crypto.Keccak256Hash([]byte(sigApprovalForAll))
	SentTopic = crypto.Keccak256Hash([]byte(sigSent))
	MintedTopic = crypto.Keccak256Hash([]byte(sigMinted))
	BurnedTopic = crypto.Keccak256Hash([]byte(sigBurned))
	AuthorizedOperatorTopic = crypto.Keccak256Hash([]byte(sigAuthorizedOperator))
	RevokedOperatorTopic = crypto.Keccak256Hash([]byte(sigRevokedOperator))
	TransferSingleTopic = crypto.Keccak256Hash([]byte(sigTransferSingle))
	TransferBatchTopic = crypto.Keccak256Hash([]byte(sigTransferBatch))
}

// StandardForTopic returns the standard a topic0 unambiguously identifies,
// used by the dispatcher to skip the detector when possible. ApprovalForAll
// is shared between 721 and 1155 and is therefore not resolved here.
func StandardForTopic(topic common.Hash) (Standard, bool) {
	switch topic {
	case TransferSingleTopic, TransferBatchTopic:
		return Standard1155, true
	case SentTopic, MintedTopic, BurnedTopic, AuthorizedOperatorTopic, RevokedOperatorTopic:
		return Standard777, true
	default:
		return StandardUnknown, false
	}
}

// ActiveTopicSet builds the union of topics to fetch for the enabled
// standards and projections.
func ActiveTopicSet(gate config.FeatureGate) []common.Hash {
	set := make(map[common.Hash]struct{})
	add := func(h common.Hash) { set[h] = struct{}{} }

	if gate.Standards.ERC20 {
		add(TransferTopic)
		if gate.Projections.Allowances {
			add(ApprovalTopic)
		}
	}
	if gate.Standards.ERC721 {
		add(TransferTopic)
		if gate.Projections.Allowances {
			add(ApprovalTopic)
			add(ApprovalForAllTopic)
		}
	}
	if gate.Standards.ERC1155 {
		add(TransferSingleTopic)
		add(TransferBatchTopic)
		if gate.Projections.Allowances {
			add(ApprovalForAllTopic)
		}
	}
	if gate.Standards.ERC777 {
		add(SentTopic)
		add(MintedTopic)
		add(BurnedTopic)
		if gate.Projections.Allowances {
			add(AuthorizedOperatorTopic)
			add(RevokedOperatorTopic)
		}
	}

	topics := make([]common.Hash, 0, len(set))
	for h := range set {
		topics = append(topics, h)
	}
	return topics
}
