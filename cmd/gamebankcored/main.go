// Command gamebankcored runs a single witness node: it loads the node's
// TOML configuration, opens its durable storage and block log, and drives
// the consensus controller (core.Controller), in the teacher's cmd/nhb
// load-config/open-storage/construct-node shape (cmd/nhb/main.go).
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gamebankcore/config"
	"gamebankcore/contract"
	"gamebankcore/core"
	"gamebankcore/core/blocklog"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
	"gamebankcore/objectstore"
	"gamebankcore/observability/logging"
	"gamebankcore/storage"
)

func main() {
	root := &cobra.Command{
		Use:   "gamebankcored",
		Short: "gamebankcore witness node",
	}

	var configFile string
	root.PersistentFlags().StringVar(&configFile, "config", "./config.toml", "path to the node's TOML configuration file")

	root.AddCommand(newInitCommand(&configFile))
	root.AddCommand(newRunCommand(&configFile))
	root.AddCommand(newReindexCommand(&configFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openNode(cfg *config.Config, logger *slog.Logger) (*objectstore.Store, *blocklog.Log, *core.Controller, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("prepare data directory: %w", err)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state database: %w", err)
	}
	store := objectstore.NewStore(db)

	log, err := blocklog.Open(filepath.Join(cfg.DataDir, "blocks.log"), filepath.Join(cfg.DataDir, "blocks.idx"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open block log: %w", err)
	}

	runtime := contract.NewRuntime()
	chainID := chainIDFor(cfg.ChainName)
	controller := core.NewController(cfg.Consensus, chainID, store, log, runtime, logger)
	return store, log, controller, nil
}

// chainIDFor derives the network's replay-protection domain tag from its
// configured name, mirroring the signing-digest domain separation the
// teacher's consensus/bft package keys off a chain identifier for.
func chainIDFor(name string) [32]byte {
	return [32]byte(crypto.Keccak256([]byte(strings.TrimSpace(name)))[:32])
}

func newInitCommand(configFile *string) *cobra.Command {
	var witnessName string
	var genesisTime int64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "create the node's configuration file and bootstrap genesis state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if witnessName != "" {
				cfg.WitnessName = witnessName
			}

			keyBytes, err := hex.DecodeString(cfg.WitnessKey)
			if err != nil {
				return fmt.Errorf("decode witness key: %w", err)
			}
			key, err := crypto.PrivateKeyFromBytes(keyBytes)
			if err != nil {
				return fmt.Errorf("load witness key: %w", err)
			}

			store, _, controller, err := openNode(cfg, logging.Setup("gamebankcored", ""))
			if err != nil {
				return err
			}
			if store.Revision() != 0 {
				return fmt.Errorf("data directory %q already has chain state", cfg.DataDir)
			}

			if genesisTime == 0 {
				genesisTime = time.Now().Unix()
			}

			genesisAccount := types.Account{
				Name:          cfg.WitnessName,
				Owner:         soloAuthority(key),
				Active:        soloAuthority(key),
				Posting:       soloAuthority(key),
				Balance:       types.NewAsset(types.AssetLiquid, big.NewInt(1_000_000_000)),
				VestingShares: types.NewAsset(types.AssetVesting, big.NewInt(1_000_000_000)),
				CreatedUnix:   genesisTime,
				CanVote:       true,
			}
			genesisWitness := types.Witness{
				Owner:        cfg.WitnessName,
				SigningKey:   key.PubKey().String(),
				MaxBlockSize: cfg.Consensus.MaxBlockSize,
				CreatedUnix:  genesisTime,
			}

			if err := controller.Bootstrap(genesisTime, []types.Account{genesisAccount}, []types.Witness{genesisWitness}); err != nil {
				return fmt.Errorf("bootstrap genesis: %w", err)
			}
			fmt.Printf("initialized %s with genesis witness %q\n", cfg.DataDir, cfg.WitnessName)
			return nil
		},
	}
	cmd.Flags().StringVar(&witnessName, "witness", "", "genesis witness/account name (defaults to the config file's WitnessName)")
	cmd.Flags().Int64Var(&genesisTime, "genesis-time", 0, "genesis unix timestamp (defaults to now)")
	return cmd
}

func soloAuthority(key *crypto.PrivateKey) types.Authority {
	return types.Authority{
		WeightThreshold: 1,
		Entries:         []types.AuthorityEntry{{Key: key.PubKey().String(), Weight: 1}},
	}
}

func newRunCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "produce and ingest blocks as the configured witness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.Setup("gamebankcored", "")

			keyBytes, err := hex.DecodeString(cfg.WitnessKey)
			if err != nil {
				return fmt.Errorf("decode witness key: %w", err)
			}
			key, err := crypto.PrivateKeyFromBytes(keyBytes)
			if err != nil {
				return fmt.Errorf("load witness key: %w", err)
			}

			_, _, controller, err := openNode(cfg, logger)
			if err != nil {
				return err
			}
			controller.SetNotifications(core.Notifications{
				OnIrreversible: func(blockNum uint64) {
					logger.Info("block irreversible", "num", blockNum)
				},
			})

			interval := time.Duration(cfg.Consensus.BlockIntervalSeconds) * time.Second
			if interval <= 0 {
				interval = 3 * time.Second
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			logger.Info("witness node started", "witness", cfg.WitnessName, "interval", interval)
			for range ticker.C {
				target := time.Now().Unix()
				b, err := controller.GenerateBlock(target, cfg.WitnessName, key)
				if err != nil {
					logger.Error("block production failed", "err", err)
					continue
				}
				logger.Info("produced block", "num", b.Header.Number, "txs", len(b.Transactions))
			}
			return nil
		},
	}
	return cmd
}

func newReindexCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild chain state from the durable block log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.Setup("gamebankcored", "")
			_, _, controller, err := openNode(cfg, logger)
			if err != nil {
				return err
			}
			if err := controller.Reindex(); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			fmt.Println("reindex complete")
			return nil
		},
	}
	return cmd
}
