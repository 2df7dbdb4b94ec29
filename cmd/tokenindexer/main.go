// Command tokenindexer runs the token-activity indexer: it classifies
// emitting contracts, decodes their events, and maintains the balances,
// allowances, total-supply, and metadata projections described by the
// internal packages under internal/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"github.com/histori/evm-token-indexer/internal/accumulator"
	"github.com/histori/evm-token-indexer/internal/chain"
	"github.com/histori/evm-token-indexer/internal/config"
	"github.com/histori/evm-token-indexer/internal/cursor"
	"github.com/histori/evm-token-indexer/internal/detector"
	"github.com/histori/evm-token-indexer/internal/dispatch"
	"github.com/histori/evm-token-indexer/internal/driver"
	"github.com/histori/evm-token-indexer/internal/metadata"
	"github.com/histori/evm-token-indexer/internal/store"
)

var (
	logger = zap.Must(zap.NewProduction()).Sugar()

	app = cli.NewApp()

	erc20Flag   = cli.BoolFlag{Name: "erc20", Usage: "classify and index ERC-20 activity"}
	erc721Flag  = cli.BoolFlag{Name: "erc721", Usage: "classify and index ERC-721 activity"}
	erc1155Flag = cli.BoolFlag{Name: "erc1155", Usage: "classify and index ERC-1155 activity"}
	erc777Flag  = cli.BoolFlag{Name: "erc777", Usage: "classify and index ERC-777 activity"}

	processBalancesFlag      = cli.BoolFlag{Name: "process-balances", Usage: "maintain the per-holder balances projection"}
	processAllowancesFlag    = cli.BoolFlag{Name: "process-allowances", Usage: "maintain the per-(owner,spender) allowances projection"}
	processTotalSuppliesFlag = cli.BoolFlag{Name: "process-total-supplies", Usage: "maintain the per-token total-supply projection"}
	processTokenURIFlag      = cli.BoolFlag{Name: "process-token-uri", Usage: "fetch and store per-token-id URIs"}

	workerPoolSizeFlag = cli.IntFlag{Name: "worker-pool-size", Usage: "bounded concurrency for per-log work within a range", Value: config.DefaultWorkerPoolSize}
	pollIntervalFlag   = cli.DurationFlag{Name: "poll-interval", Usage: "how long to sleep when caught up to the finalized head", Value: config.DefaultPollInterval}
)

func init() {
	app.Name = "tokenindexer"
	app.Usage = "index fungible and non-fungible token activity from an EVM-compatible chain"
	app.Flags = []cli.Flag{
		erc20Flag, erc721Flag, erc1155Flag, erc777Flag,
		processBalancesFlag, processAllowancesFlag, processTotalSuppliesFlag, processTokenURIFlag,
		workerPoolSizeFlag, pollIntervalFlag,
	}
	sort.Sort(cli.FlagsByName(app.Flags))
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Config{
		RPCURL:         os.Getenv("RPC_URL"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		BlockRange:     blockRangeFromEnv(),
		WorkerPoolSize: c.Int(workerPoolSizeFlag.Name),
		PollInterval:   c.Duration(pollIntervalFlag.Name),
		Gate: config.FeatureGate{
			Standards: config.StandardGate{
				ERC20:   c.Bool(erc20Flag.Name),
				ERC721:  c.Bool(erc721Flag.Name),
				ERC1155: c.Bool(erc1155Flag.Name),
				ERC777:  c.Bool(erc777Flag.Name),
			},
			Projections: config.ProjectionGate{
				Balances:      c.Bool(processBalancesFlag.Name),
				Allowances:    c.Bool(processAllowancesFlag.Name),
				TotalSupplies: c.Bool(processTotalSuppliesFlag.Name),
				TokenURIs:     c.Bool(processTokenURIFlag.Name),
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rawClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	chainClient := chain.New(rawClient, logger)

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	cursorStore := cursor.New(db)
	classifier, err := detector.New(chainClient, cfg.Gate)
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	catalog := metadata.New(db, chainClient)
	accum := accumulator.New(db)
	dispatcher := dispatch.New(cfg.Gate, accum, catalog)

	d := driver.New(chainClient, cursorStore, classifier, dispatcher, cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Infow("starting indexer", "rpcURL", cfg.RPCURL, "blockRange", cfg.BlockRange, "workerPoolSize", cfg.WorkerPoolSize)
	return d.Run(ctx)
}

func blockRangeFromEnv() uint64 {
	raw := os.Getenv("BLOCK_RANGE")
	if raw == "" {
		return config.DefaultBlockRange
	}
	var n uint64
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n == 0 {
		return config.DefaultBlockRange
	}
	return n
}
