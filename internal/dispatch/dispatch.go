// Package dispatch implements the event routing table: given a decoded
// event and the emitter's standard, it applies the gated set of balance,
// allowance, supply, and URI-catalog updates the event implies.
package dispatch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/histori/evm-token-indexer/internal/accumulator"
	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/config"
	"github.com/histori/evm-token-indexer/internal/decode"
)

// Accumulator is the subset of *accumulator.Service the dispatcher depends
// on, narrowed to an interface so tests can substitute a fake.
type Accumulator interface {
	ApplyBalanceDelta(holder, address string, tokenID *string, delta accumulator.Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error
	ApplyAllowanceDelta(owner, spender, address string, tokenID *string, delta accumulator.Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error
	SetAllowance(owner, spender, address string, tokenID *string, value int64, standard catalog.Standard, blockNumber uint64, logIndex uint32) error
	ApplySupplyDelta(address string, delta accumulator.Delta, blockNumber uint64, logIndex uint32) error
}

// TokenCatalog is the subset of *metadata.Service the dispatcher depends on.
type TokenCatalog interface {
	EnsureToken(ctx context.Context, address common.Address, standard catalog.Standard, firstSeenBlock uint64) error
	EnsureTokenURI(ctx context.Context, address common.Address, tokenID *big.Int, standard catalog.Standard) error
}

// Dispatcher applies the routing table of §4.H, consulting gate before
// every projection write.
type Dispatcher struct {
	gate  config.FeatureGate
	accum Accumulator
	cat   TokenCatalog
}

func New(gate config.FeatureGate, accum Accumulator, cat TokenCatalog) *Dispatcher {
	return &Dispatcher{gate: gate, accum: accum, cat: cat}
}

// Dispatch applies ev's routing rule. ensure_token runs unconditionally and
// first, regardless of which projections are enabled, since the token
// catalog is populated independent of the projection gates.
func (d *Dispatcher) Dispatch(ctx context.Context, ev decode.Event, firstSeenBlock uint64) error {
	if err := d.cat.EnsureToken(ctx, ev.Contract, ev.Standard, firstSeenBlock); err != nil {
		return err
	}

	contract := ev.Contract.Hex()
	switch ev.Kind {
	case decode.KindTransfer:
		if ev.Standard == catalog.Standard721 {
			return d.transferNFT(ctx, ev, contract)
		}
		return d.transferFungible(ev, contract)

	case decode.KindApproval:
		if ev.Standard == catalog.Standard721 {
			return d.approveNFT(ev, contract)
		}
		return d.approveFungible(ev, contract)

	case decode.KindApprovalForAll:
		return d.setOperator(ev.Owner, ev.Operator, contract, ev.Standard, ev.Approved, ev.BlockNumber, ev.LogIndex)

	case decode.KindSent:
		return d.sent(ev, contract)

	case decode.KindMinted:
		return d.mintedOrBurned(ev, contract, true)

	case decode.KindBurned:
		return d.mintedOrBurned(ev, contract, false)

	case decode.KindAuthorizedOperator:
		return d.setOperator(ev.Holder, ev.Operator, contract, ev.Standard, true, ev.BlockNumber, ev.LogIndex)

	case decode.KindRevokedOperator:
		return d.setOperator(ev.Holder, ev.Operator, contract, ev.Standard, false, ev.BlockNumber, ev.LogIndex)

	case decode.KindTransferSingle:
		return d.transferSingle(ctx, ev, contract)

	case decode.KindTransferBatch:
		return d.transferBatch(ctx, ev, contract)

	default:
		return nil
	}
}

// transferFungible handles ERC-20 Transfer: ±value for (from,to); mint/burn
// (zero-address sentinel) additionally moves total supply. The zero
// address itself never receives a balance row — it is not a holder.
func (d *Dispatcher) transferFungible(ev decode.Event, contract string) error {
	if d.gate.Projections.Balances {
		if !isZero(ev.From) {
			if err := d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, nil, accumulator.Decrease(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
		if !isZero(ev.To) {
			if err := d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, nil, accumulator.Increase(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
	}
	if d.gate.Projections.TotalSupplies {
		if isZero(ev.From) {
			if err := d.accum.ApplySupplyDelta(contract, accumulator.Increase(ev.Value), ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
		if isZero(ev.To) {
			if err := d.accum.ApplySupplyDelta(contract, accumulator.Decrease(ev.Value), ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
	}
	return nil
}

// transferNFT handles ERC-721 Transfer: ±1 for (from,to) at token_id, plus
// ensure_uri on the catalog.
func (d *Dispatcher) transferNFT(ctx context.Context, ev decode.Event, contract string) error {
	tokenID := ev.TokenID.String()
	if d.gate.Projections.Balances {
		if !isZero(ev.From) {
			if err := d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, &tokenID, accumulator.Decrease(big.NewInt(1)), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
		if !isZero(ev.To) {
			if err := d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, &tokenID, accumulator.Increase(big.NewInt(1)), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
	}
	if d.gate.Projections.TokenURIs {
		if err := d.cat.EnsureTokenURI(ctx, ev.Contract, ev.TokenID, ev.Standard); err != nil {
			return err
		}
	}
	return nil
}

// approveFungible handles ERC-20 Approval: despite the table's "set"
// wording, the approved value is added to whatever allowance is already
// on record (routing table: "set(owner,spender) += value").
func (d *Dispatcher) approveFungible(ev decode.Event, contract string) error {
	if !d.gate.Projections.Allowances {
		return nil
	}
	return d.accum.ApplyAllowanceDelta(ev.Owner.Hex(), ev.Spender.Hex(), contract, nil, accumulator.Increase(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex)
}

// approveNFT handles ERC-721 Approval: a per-token-id grant, always
// written as an exact value of 1.
func (d *Dispatcher) approveNFT(ev decode.Event, contract string) error {
	if !d.gate.Projections.Allowances {
		return nil
	}
	tokenID := ev.TokenID.String()
	return d.accum.SetAllowance(ev.Owner.Hex(), ev.Spender.Hex(), contract, &tokenID, 1, ev.Standard, ev.BlockNumber, ev.LogIndex)
}

// setOperator handles ApprovalForAll, AuthorizedOperator, and
// RevokedOperator: all three write an exact 0/1 under (owner, operator,
// null), never an additive delta.
func (d *Dispatcher) setOperator(owner, operator common.Address, contract string, standard catalog.Standard, approved bool, blockNumber uint64, logIndex uint32) error {
	if !d.gate.Projections.Allowances {
		return nil
	}
	var value int64
	if approved {
		value = 1
	}
	return d.accum.SetAllowance(owner.Hex(), operator.Hex(), contract, nil, value, standard, blockNumber, logIndex)
}

// sent handles ERC-777 Sent: ±amount for (from,to), no supply effect (mint
// and burn have their own dedicated events).
func (d *Dispatcher) sent(ev decode.Event, contract string) error {
	if !d.gate.Projections.Balances {
		return nil
	}
	if err := d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, nil, accumulator.Decrease(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
		return err
	}
	return d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, nil, accumulator.Increase(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex)
}

// mintedOrBurned handles ERC-777 Minted/Burned: +amount to `to` and supply
// for mint, −amount from `from` and supply for burn.
func (d *Dispatcher) mintedOrBurned(ev decode.Event, contract string, minted bool) error {
	if d.gate.Projections.Balances {
		var err error
		if minted {
			err = d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, nil, accumulator.Increase(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex)
		} else {
			err = d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, nil, accumulator.Decrease(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex)
		}
		if err != nil {
			return err
		}
	}
	if d.gate.Projections.TotalSupplies {
		delta := accumulator.Increase(ev.Value)
		if !minted {
			delta = accumulator.Decrease(ev.Value)
		}
		return d.accum.ApplySupplyDelta(contract, delta, ev.BlockNumber, ev.LogIndex)
	}
	return nil
}

// transferSingle handles ERC-1155 TransferSingle: ±value for (from,to) at
// id, plus ensure_uri.
func (d *Dispatcher) transferSingle(ctx context.Context, ev decode.Event, contract string) error {
	tokenID := ev.TokenID.String()
	if d.gate.Projections.Balances {
		if !isZero(ev.From) {
			if err := d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, &tokenID, accumulator.Decrease(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
		if !isZero(ev.To) {
			if err := d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, &tokenID, accumulator.Increase(ev.Value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
				return err
			}
		}
	}
	if d.gate.Projections.TokenURIs {
		if err := d.cat.EnsureTokenURI(ctx, ev.Contract, ev.TokenID, ev.Standard); err != nil {
			return err
		}
	}
	return nil
}

// transferBatch handles ERC-1155 TransferBatch: for each (id, value) pair,
// the same rule as transferSingle, all at the batch event's single
// (block_number, log_index).
func (d *Dispatcher) transferBatch(ctx context.Context, ev decode.Event, contract string) error {
	for i, id := range ev.TokenIDs {
		value := ev.Values[i]
		tokenID := id.String()
		if d.gate.Projections.Balances {
			if !isZero(ev.From) {
				if err := d.accum.ApplyBalanceDelta(ev.From.Hex(), contract, &tokenID, accumulator.Decrease(value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
					return err
				}
			}
			if !isZero(ev.To) {
				if err := d.accum.ApplyBalanceDelta(ev.To.Hex(), contract, &tokenID, accumulator.Increase(value), ev.Standard, ev.BlockNumber, ev.LogIndex); err != nil {
					return err
				}
			}
		}
		if d.gate.Projections.TokenURIs {
			if err := d.cat.EnsureTokenURI(ctx, ev.Contract, id, ev.Standard); err != nil {
				return err
			}
		}
	}
	return nil
}

func isZero(addr common.Address) bool {
	return addr == decode.ZeroAddress
}
