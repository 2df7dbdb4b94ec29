// Package driver implements the single range-processing loop: read the
// durable cursor, cap the next range at the finalized head, fetch the logs
// the active feature gate actually needs, fan them out over a bounded pool
// of worker goroutines, join, and advance the cursor only once the whole
// range has been applied. Within a range, worker goroutines carry no
// ordering guarantee with each other — the accumulator's per-key critical
// section is what makes that safe.
//
// The pool itself is a fixed-size goroutine set reading off a channel and a
// sync.WaitGroup join, the same shape the chain-data fetcher's handler pool
// uses, rather than a third-party worker-pool library.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/config"
	"github.com/histori/evm-token-indexer/internal/decode"
	"github.com/histori/evm-token-indexer/internal/errs"
)

// ChainReader is the subset of *chain.Client the driver depends on.
type ChainReader interface {
	FinalizedHead(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, from, to uint64, topics []common.Hash) ([]types.Log, error)
}

// Cursor is the subset of *cursor.Store the driver depends on.
type Cursor interface {
	Read() (uint64, error)
	Write(blockNumber uint64) error
}

// Classifier is the subset of *detector.Detector the driver depends on.
type Classifier interface {
	Classify(ctx context.Context, address common.Address) (catalog.Standard, error)
}

// Dispatcher is the subset of *dispatch.Dispatcher the driver depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev decode.Event, firstSeenBlock uint64) error
}

// Driver owns the cursor and drives one range at a time.
type Driver struct {
	chain    ChainReader
	cursor   Cursor
	classify Classifier
	dispatch Dispatcher
	gate     config.FeatureGate

	blockRange     uint64
	workerPoolSize int
	pollInterval   time.Duration

	logger *zap.SugaredLogger

	rangesProcessed metrics.Counter
	logsProcessed   metrics.Counter
	logErrors       metrics.Counter
	cursorGauge     metrics.Gauge
}

// New builds a Driver. Zero-valued WorkerPoolSize/BlockRange/PollInterval in
// cfg fall back to the package defaults.
func New(chain ChainReader, cur Cursor, classify Classifier, dispatcher Dispatcher, cfg config.Config, logger *zap.SugaredLogger) *Driver {
	workers := cfg.WorkerPoolSize
	if workers <= 0 {
		workers = config.DefaultWorkerPoolSize
	}
	rng := cfg.BlockRange
	if rng == 0 {
		rng = config.DefaultBlockRange
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = config.DefaultPollInterval
	}

	return &Driver{
		chain:    chain,
		cursor:   cur,
		classify: classify,
		dispatch: dispatcher,
		gate:     cfg.Gate,

		blockRange:     rng,
		workerPoolSize: workers,
		pollInterval:   poll,

		logger: logger,

		rangesProcessed: metrics.NewRegisteredCounter("indexer/ranges_processed", nil),
		logsProcessed:   metrics.NewRegisteredCounter("indexer/logs_processed", nil),
		logErrors:       metrics.NewRegisteredCounter("indexer/log_errors", nil),
		cursorGauge:     metrics.NewRegisteredGauge("indexer/cursor", nil),
	}
}

// Run drives the loop until ctx is cancelled. It returns nil on clean
// cancellation and a non-nil error only when a range could not be
// completed for a reason that is not safely retryable (see errs.Kind):
// in-flight work for that range is abandoned and the cursor is left
// unadvanced, so a restart retries the same range from scratch.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		advanced, err := d.runOnce(ctx)
		if err != nil {
			return err
		}
		if advanced {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.pollInterval):
		}
	}
}

// runOnce processes at most one range and reports whether the cursor moved.
// A transport failure that exhausted its retry budget, or the cursor
// already being caught up to the finalized head, both return (false, nil):
// neither is an error condition for the loop, just "nothing to do yet".
func (d *Driver) runOnce(ctx context.Context) (bool, error) {
	current, err := d.cursor.Read()
	if err != nil {
		return false, errs.Wrap(errs.KindFatal, err, "driver: read cursor")
	}

	head, err := d.chain.FinalizedHead(ctx)
	if err != nil {
		if errs.Is(err, errs.KindTransport) {
			d.logger.Warnw("finalized head unavailable, will retry next tick", "error", err)
			return false, nil
		}
		return false, err
	}

	if current >= head {
		return false, nil
	}

	to := current + d.blockRange
	if to > head {
		to = head
	}

	topics := catalog.ActiveTopicSet(d.gate)
	logs, err := d.chain.GetLogs(ctx, current+1, to, topics)
	if err != nil {
		if errs.Is(err, errs.KindTransport) {
			d.logger.Warnw("get logs failed, will retry next tick", "from", current+1, "to", to, "error", err)
			return false, nil
		}
		return false, err
	}

	if err := d.processRange(ctx, logs); err != nil {
		return false, err
	}

	if err := d.cursor.Write(to); err != nil {
		return false, errs.Wrap(errs.KindFatal, err, "driver: write cursor")
	}

	d.rangesProcessed.Inc(1)
	d.cursorGauge.Update(int64(to))
	d.logger.Infow("range committed", "from", current+1, "to", to, "logs", len(logs))
	return true, nil
}

// processRange fans logs out over a fixed-size pool of worker goroutines
// reading off a shared channel, the same shape as the chain-data fetcher's
// handler pool, and joins on a sync.WaitGroup before returning. By the time
// a worker's error reaches here it is already range-fatal: applyLog itself
// absorbs Decode, Classification, and Metadata/DBIntegrity dispatch errors
// by logging and returning nil, so anything it returns is a Transport,
// exhausted-retry DBTransient, or Fatal error that must abort the whole
// range so the cursor is not advanced past unapplied work. The first such
// error cancels the range context so queued-but-unstarted logs are skipped
// rather than still dispatched after the range is already doomed.
func (d *Driver) processRange(ctx context.Context, logs []types.Log) error {
	if len(logs) == 0 {
		return nil
	}

	workers := d.workerPoolSize
	if workers > len(logs) {
		workers = len(logs)
	}

	rangeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan types.Log)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lg := range jobs {
				if err := d.applyLog(rangeCtx, lg); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
						cancel()
					}
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, lg := range logs {
		select {
		case jobs <- lg:
		case <-rangeCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

// applyLog classifies, decodes, and dispatches one log. Decode and
// classification failures, and a metadata/uniqueness-violation error from
// the dispatcher, are logged and swallowed so the rest of the range keeps
// going; a DB-transient dispatch error is retried a bounded number of times
// before being escalated to the caller as range-fatal.
func (d *Driver) applyLog(ctx context.Context, lg types.Log) error {
	standard, ok := catalog.StandardForTopic(lg.Topics[0])
	if !ok {
		classified, err := d.classify.Classify(ctx, lg.Address)
		if err != nil {
			return err
		}
		standard = classified
	}

	ev, err := decode.Decode(lg, standard)
	if err != nil {
		d.logger.Warnw("skipping undecodable log", "address", lg.Address, "block", lg.BlockNumber, "logIndex", lg.Index, "error", err)
		d.logErrors.Inc(1)
		return nil
	}
	if err := d.dispatchWithRetry(ctx, ev, lg.BlockNumber); err != nil {
		if errs.Is(err, errs.KindMetadata) || errs.Is(err, errs.KindDBIntegrity) {
			d.logger.Warnw("log applied with a recoverable error", "address", lg.Address, "block", lg.BlockNumber, "error", err)
			d.logErrors.Inc(1)
			return nil
		}
		return err
	}
	d.logsProcessed.Inc(1)
	return nil
}

// dispatchWithRetry retries a KindDBTransient dispatch failure (a
// serialization failure or deadlock under concurrent same-key writes) with
// a short bounded backoff before giving up; every other kind is attempted
// only once and returned immediately.
func (d *Driver) dispatchWithRetry(ctx context.Context, ev decode.Event, firstSeenBlock uint64) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 10 * time.Second

	op := func() error {
		err := d.dispatch.Dispatch(ctx, ev, firstSeenBlock)
		if err != nil && !errs.Is(err, errs.KindDBTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
