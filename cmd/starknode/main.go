// starknode runs the Starknet full node core: KV storage, block/class/
// contract views, trie commitments, block production, and the L1 gas-price/
// messaging workers, wired together and supervised as a set of cancellable
// services.
//
// Modeled on cmd/evm-node/main.go's urfave/cli.v2 shape (a single App with a
// default Action, flags bound via cli.Context, logging configured in
// app.Before).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lux/starknode/internal/blockproduction"
	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/chainconfig"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
	"github.com/lux/starknode/internal/mempool"
	"github.com/lux/starknode/internal/supervisor"
	"github.com/lux/starknode/internal/trie"
	"github.com/lux/starknode/log"
)

const clientIdentifier = "starknode"

var (
	basePathFlag = &cli.StringFlag{
		Name:  "base-path",
		Usage: "directory the node's column store lives in",
		Value: "./starknode-data",
	}
	chainConfigPathFlag = &cli.StringFlag{
		Name:  "chain-config-path",
		Usage: "path to a YAML chain config; defaults to the built-in mainnet config",
	}
	rpcPortFlag = &cli.IntFlag{
		Name:  "rpc-port",
		Usage: "port the JSON-RPC surface would bind (routing itself is out of this core's scope)",
		Value: 9545,
	}
	gatewayPortFlag = &cli.IntFlag{
		Name:  "gateway-port",
		Usage: "port the feeder-gateway surface would bind (routing itself is out of this core's scope)",
		Value: 8080,
	}
	devnetFlag = &cli.BoolFlag{
		Name:  "devnet",
		Usage: "run against an in-memory store with the default chain config",
	}
	noL1SyncFlag = &cli.BoolFlag{
		Name:  "no-l1-sync",
		Usage: "disable the L1 gas-price and messaging workers",
	}
	chainConfigOverrideFlag = &cli.StringSliceFlag{
		Name:  "chain-config-override",
		Usage: "key=value chain config override, may be repeated; unknown key is fatal",
	}
	feederGatewayEnableFlag = &cli.BoolFlag{
		Name:  "feeder-gateway-enable",
		Usage: "advertise the feeder-gateway surface (no HTTP handler is implemented by this core)",
	}
	gatewayEnableFlag = &cli.BoolFlag{
		Name:  "gateway-enable",
		Usage: "advertise the gateway surface (no HTTP handler is implemented by this core)",
	}

	app = &cli.App{
		Name:  clientIdentifier,
		Usage: "Starknet full node core: storage, execution, mempool, block production, L1 sync",
		Flags: []cli.Flag{
			basePathFlag, chainConfigPathFlag, rpcPortFlag, gatewayPortFlag,
			devnetFlag, noL1SyncFlag, chainConfigOverrideFlag,
			feederGatewayEnableFlag, gatewayEnableFlag,
		},
	}
)

func init() {
	app.Action = run
	app.Before = func(*cli.Context) error {
		log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := resolveChainConfig(cliCtx)
	if err != nil {
		return err
	}

	store, err := openStore(cliCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	view := blockstore.NewView(store)
	mutator := blockstore.NewMutator(store)
	pool := mempool.New(nil, poolNonceSource{view: view}, mempool.Limits{MaxPerAccount: 64, MaxGlobal: 10_000})
	contractTrie := trie.NewContractTrie()
	classTrie := trie.NewClassTrie()

	producer := blockproduction.NewProducer(view, mutator, pool, unimplementedVM{}, contractTrie, classTrie, blockproduction.Config{
		ChainID:          cfg.ChainID,
		SequencerAddress: felt.Zero,
		ProtocolVersion:  cfg.ProtocolVersion,
		L1DAMode:         blockstore.L1DACalldata,
		BatchSize:        100,
		BlockTime:        2 * time.Second,
		Bouncer:          cfg.Bouncer,
	})

	sup := supervisor.NewSupervisor()
	if err := sup.Register(blockProductionService{producer: producer}); err != nil {
		return err
	}

	active := supervisor.BlockProduction
	if cliCtx.Bool(noL1SyncFlag.Name) {
		log.Info("starknode: L1 sync disabled via --no-l1-sync")
	} else {
		log.Warn("starknode: no SettlementClient implementation is wired in this core; L1 sync will not run",
			"see", "internal/l1sync.SettlementClient")
	}

	if cliCtx.Bool(feederGatewayEnableFlag.Name) || cliCtx.Bool(gatewayEnableFlag.Name) {
		log.Warn("starknode: RPC/feeder-gateway HTTP routing is out of this core's scope; flags recorded but no server will bind",
			"rpc_port", cliCtx.Int(rpcPortFlag.Name), "gateway_port", cliCtx.Int(gatewayPortFlag.Name))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Info("starknode: starting", "chain_id", cfg.ChainID, "protocol_version", cfg.ProtocolVersion)
	return sup.Start(ctx, active)
}

func resolveChainConfig(cliCtx *cli.Context) (chainconfig.Config, error) {
	var cfg chainconfig.Config
	var err error
	if path := cliCtx.String(chainConfigPathFlag.Name); path != "" {
		cfg, err = chainconfig.LoadWithEnv(path)
		if err != nil {
			return chainconfig.Config{}, err
		}
	} else {
		cfg = chainconfig.Default()
	}

	for _, raw := range cliCtx.StringSlice(chainConfigOverrideFlag.Name) {
		if err := chainconfig.ApplyOverride(&cfg, raw); err != nil {
			return chainconfig.Config{}, err
		}
	}
	return cfg, nil
}

func openStore(cliCtx *cli.Context) (*kv.Store, error) {
	if cliCtx.Bool(devnetFlag.Name) {
		return kv.OpenMem()
	}
	return kv.Open(cliCtx.String(basePathFlag.Name))
}
