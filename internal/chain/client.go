// Package chain implements a thin wrapper over the raw JSON-RPC transport
// (go-ethereum's *ethclient.Client) that adds bounded exponential backoff
// around idempotent read calls so the driver never sees a transient
// failure.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/histori/evm-token-indexer/internal/errs"
)

// finalizedBlockNumber is the tag go-ethereum's RPC layer translates into
// "finalized" rather than a literal block number.
var finalizedBlockNumber = big.NewInt(rpc.FinalizedBlockNumber.Int64())

// RawClient is the subset of *ethclient.Client this facade depends on,
// narrowed to an interface so tests can substitute a fake.
type RawClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is the facade consumed by the detector, metadata service, decoder,
// and driver: finalized head, log filtering, and read-only contract calls.
type Client struct {
	raw    RawClient
	logger *zap.SugaredLogger

	maxElapsed time.Duration
}

// New wraps an already-dialed ethclient.Client.
func New(raw *ethclient.Client, logger *zap.SugaredLogger) *Client {
	return &Client{raw: raw, logger: logger, maxElapsed: 2 * time.Minute}
}

// NewWithRawClient wraps an arbitrary RawClient, used by tests.
func NewWithRawClient(raw RawClient, logger *zap.SugaredLogger) *Client {
	return &Client{raw: raw, logger: logger, maxElapsed: 2 * time.Minute}
}

func (c *Client) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.maxElapsed
	return b
}

// FinalizedHead returns the highest block number considered irreversible,
// fetched via the "finalized" tag rather than the current chain tip, so a
// range the driver commits can never later be reverted by a reorg. Retried
// with backoff since it is a pure read.
func (c *Client) FinalizedHead(ctx context.Context) (uint64, error) {
	var head uint64
	op := func() error {
		header, err := c.raw.HeaderByNumber(ctx, finalizedBlockNumber)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		head = header.Number.Uint64()
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffPolicy(), ctx)); err != nil {
		return 0, errs.Wrap(errs.KindTransport, err, "finalized head")
	}
	return head, nil
}

// GetLogs fetches logs over [from, to] (inclusive) filtered to topic0 in
// topics. Retried with backoff.
func (c *Client) GetLogs(ctx context.Context, from, to uint64, topics []common.Hash) ([]types.Log, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{topics},
	}

	var logs []types.Log
	op := func() error {
		l, err := c.raw.FilterLogs(ctx, q)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		logs = l
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffPolicy(), ctx)); err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "get logs")
	}
	return logs, nil
}

// Call invokes a read-only contract method with already-ABI-encoded
// calldata and returns the raw return data. Reverts and missing methods
// are NOT retried — those are permanent failures and it is the caller's
// responsibility to interpret them as "absent".
func (c *Client) Call(ctx context.Context, address common.Address, data []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		ret, err := c.raw.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = ret
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffPolicy(), ctx)); err != nil {
		if isPermanent(err) {
			return nil, errs.Wrap(errs.KindMetadata, err, "call reverted")
		}
		return nil, errs.Wrap(errs.KindTransport, err, "call")
	}
	return out, nil
}

// isPermanent reports whether err represents an EVM-level revert or a
// missing method rather than a transient transport failure, in which case
// retrying would never succeed.
func isPermanent(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"revert", "execution reverted", "invalid opcode", "no contract code", "abi:", "unpack"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
