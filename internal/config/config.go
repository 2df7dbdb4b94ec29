// Package config holds the indexer's feature gate and runtime settings,
// assembled once at startup and threaded explicitly through constructors —
// a single value passed by the caller rather than mutable package-scope
// flag variables.
package config

import "time"

// StandardGate toggles which token standards the indexer classifies and
// decodes events for.
type StandardGate struct {
	ERC20   bool
	ERC721  bool
	ERC1155 bool
	ERC777  bool
}

// ProjectionGate toggles which projections the dispatcher maintains. A
// disabled projection is a routing no-op, never an error.
type ProjectionGate struct {
	Balances      bool
	Allowances    bool
	TotalSupplies bool
	TokenURIs     bool
}

// FeatureGate is the combination of standard and projection toggles
// consulted by the dispatcher on every event.
type FeatureGate struct {
	Standards   StandardGate
	Projections ProjectionGate
}

// AnyStandardEnabled reports whether at least one token standard is active.
func (g FeatureGate) AnyStandardEnabled() bool {
	return g.Standards.ERC20 || g.Standards.ERC721 || g.Standards.ERC1155 || g.Standards.ERC777
}

// Config is the fully resolved runtime configuration for one indexer
// process, combining environment and CLI-derived feature gates.
type Config struct {
	RPCURL      string
	DatabaseURL string

	// BlockRange is the maximum number of blocks fetched per range,
	// default 10,000 per the environment variable BLOCK_RANGE.
	BlockRange uint64

	// WorkerPoolSize bounds per-range log-processing concurrency.
	WorkerPoolSize int

	// PollInterval is how long the driver sleeps when the cursor has
	// caught up to the finalized head.
	PollInterval time.Duration

	// CursorPath is used only by the file-backed cursor store; unused
	// when the cursor lives in the relational store.
	CursorPath string

	Gate FeatureGate
}

const (
	DefaultBlockRange     = 10_000
	DefaultWorkerPoolSize = 64
	DefaultPollInterval   = 15 * time.Second
	DefaultCursorPath     = "lastProcessedBlock.txt"
)

// Validate checks the minimal set of invariants the driver relies on.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errMissing("RPC_URL")
	}
	if c.DatabaseURL == "" {
		return errMissing("DATABASE_URL")
	}
	if c.BlockRange == 0 {
		return errMissing("BLOCK_RANGE must be positive")
	}
	if !c.Gate.AnyStandardEnabled() {
		return errMissing("at least one of --erc20/--erc721/--erc1155/--erc777 must be set")
	}
	return nil
}

type configError string

func (e configError) Error() string { return "config: " + string(e) }

func errMissing(what string) error { return configError(what + " is required") }
