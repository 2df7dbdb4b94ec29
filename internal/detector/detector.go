// Package detector classifies a contract address against the four
// supported token standards by probing it with read-only calls in a fixed
// order, memoizing the result for the lifetime of the process with a
// hashicorp/golang-lru cache wrapped around an otherwise plain lookup.
package detector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/chain"
	"github.com/histori/evm-token-indexer/internal/config"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// Prober is the subset of *chain.Client the detector depends on, narrowed
// to an interface so tests can substitute a fake contract.
type Prober interface {
	Decimals(ctx context.Context, address common.Address) (uint8, error)
	SupportsInterface(ctx context.Context, address common.Address, interfaceID [4]byte) (bool, error)
	Granularity(ctx context.Context, address common.Address) (*big.Int, error)
}

// Detector classifies contract addresses and caches the verdict. A single
// Detector is shared by every worker in the pool; golang-lru's Cache is
// internally synchronized so no additional locking is needed.
type Detector struct {
	probe Prober
	gate  config.FeatureGate
	cache *lru.Cache
}

const defaultCacheSize = 100_000

// New builds a Detector bounded to defaultCacheSize distinct addresses.
// Only the standards enabled in gate are ever probed for; everything else
// returns unknown without a round trip.
func New(probe Prober, gate config.FeatureGate) (*Detector, error) {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, err, "detector: allocate cache")
	}
	return &Detector{probe: probe, gate: gate, cache: cache}, nil
}

// Classify returns the standard tag for address, probing the chain only on
// the first call for a given address within the process lifetime.
func (d *Detector) Classify(ctx context.Context, address common.Address) (catalog.Standard, error) {
	if v, ok := d.cache.Get(address); ok {
		return v.(catalog.Standard), nil
	}

	std, err := d.probeChain(ctx, address)
	if err != nil {
		return catalog.StandardUnknown, err
	}
	d.cache.Add(address, std)
	return std, nil
}

// probeChain runs the fixed detection order: decimals() identifies
// ERC-20, supportsInterface(0x80ac58cd) identifies ERC-721,
// supportsInterface(0xd9b67a26) identifies ERC-1155, and granularity()
// identifies ERC-777. Each probe is skipped if its standard is disabled in
// the feature gate. A reverted or missing method is tagged KindMetadata by
// the chain client and treated here as "not this standard", never as a
// hard failure — only a transport-level error aborts classification.
func (d *Detector) probeChain(ctx context.Context, address common.Address) (catalog.Standard, error) {
	if d.gate.Standards.ERC20 {
		if _, err := d.probe.Decimals(ctx, address); err == nil {
			return catalog.Standard20, nil
		} else if errs.Is(err, errs.KindTransport) {
			return catalog.StandardUnknown, err
		}
	}

	if d.gate.Standards.ERC721 {
		ok, err := d.probe.SupportsInterface(ctx, address, chain.InterfaceID721)
		if err != nil && errs.Is(err, errs.KindTransport) {
			return catalog.StandardUnknown, err
		}
		if ok {
			return catalog.Standard721, nil
		}
	}

	if d.gate.Standards.ERC1155 {
		ok, err := d.probe.SupportsInterface(ctx, address, chain.InterfaceID1155)
		if err != nil && errs.Is(err, errs.KindTransport) {
			return catalog.StandardUnknown, err
		}
		if ok {
			return catalog.Standard1155, nil
		}
	}

	if d.gate.Standards.ERC777 {
		if _, err := d.probe.Granularity(ctx, address); err == nil {
			return catalog.Standard777, nil
		} else if errs.Is(err, errs.KindTransport) {
			return catalog.StandardUnknown, err
		}
	}

	return catalog.StandardUnknown, nil
}
