package decode

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// DecodeERC721 decodes a Transfer, Approval, or ApprovalForAll log emitted
// by an ERC-721 contract. Transfer and Approval carry an indexed token_id
// instead of a data-word value, since the EIP declares all three
// parameters indexed; ApprovalForAll carries a non-indexed bool.
func DecodeERC721(log types.Log) (Event, error) {
	switch log.Topics[0] {
	case catalog.TransferTopic:
		return decodeERC721Transfer(log)
	case catalog.ApprovalTopic:
		return decodeERC721Approval(log)
	case catalog.ApprovalForAllTopic:
		return decodeApprovalForAll(log, catalog.Standard721)
	default:
		return Event{}, errs.New(errs.KindDecode, "erc721: unrecognized topic0")
	}
}

func decodeERC721Transfer(log types.Log) (Event, error) {
	if len(log.Topics) != 4 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "erc721 transfer: expected 4 topics, got %d", len(log.Topics))
	}
	tokenID, err := uint256FromWord(log.Topics[3].Bytes())
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        KindTransfer,
		Standard:    catalog.Standard721,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		From:        addressFromTopic(log.Topics[1]),
		To:          addressFromTopic(log.Topics[2]),
		TokenID:     tokenID,
	}, nil
}

func decodeERC721Approval(log types.Log) (Event, error) {
	if len(log.Topics) != 4 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "erc721 approval: expected 4 topics, got %d", len(log.Topics))
	}
	tokenID, err := uint256FromWord(log.Topics[3].Bytes())
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        KindApproval,
		Standard:    catalog.Standard721,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Owner:       addressFromTopic(log.Topics[1]),
		Spender:     addressFromTopic(log.Topics[2]), // the "approved" address
		TokenID:     tokenID,
	}, nil
}

// decodeApprovalForAll is shared by ERC-721 and ERC-1155, which emit an
// identical ApprovalForAll(address,address,bool) signature.
func decodeApprovalForAll(log types.Log, standard catalog.Standard) (Event, error) {
	if len(log.Topics) != 3 {
		return Event{}, errs.Wrapf(errs.KindDecode, errShortData, "approvalForAll: expected 3 topics, got %d", len(log.Topics))
	}
	if err := requireWordCount(log.Data, 1); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        KindApprovalForAll,
		Standard:    standard,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		Owner:       addressFromTopic(log.Topics[1]),
		Operator:    addressFromTopic(log.Topics[2]),
		Approved:    boolFromWord(log.Data[0:32]),
	}, nil
}
