// Command paycalcd supervises the three payout workers — the earnings
// accounting engine, the payout request generator, and the payment
// executor — as goroutines sharing one local database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/engine"
	"github.com/zappool/paycalc/internal/executor"
	"github.com/zappool/paycalc/internal/metrics"
	"github.com/zappool/paycalc/internal/nostrsecret"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/paymethod"
	"github.com/zappool/paycalc/internal/payreq"
	"github.com/zappool/paycalc/internal/rails/lnnode"
	"github.com/zappool/paycalc/internal/source"
	"github.com/zappool/paycalc/internal/store"
)

func main() {
	log := paylog.For("paycalcd")

	app := &cli.App{
		Name:  "paycalcd",
		Usage: "run the earnings engine, payout request generator, and payment executor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional paycalc.toml path"},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"), log)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("paycalcd exited with error", "err", err)
		os.Exit(-1)
	}
}

func run(configPath string, log logger) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()

	workSrc, err := source.Open(cfg.WorkSourceDBPath())
	if err != nil {
		return fmt.Errorf("open work source: %w", err)
	}
	defer workSrc.Close()

	blockSrc, err := source.Open(cfg.BlockSourceDBPath())
	if err != nil {
		return fmt.Errorf("open block source: %w", err)
	}
	defer blockSrc.Close()

	socketPath, err := lnnode.SocketPath(cfg.LnNodeHomeDir, cfg.LnNodeUser)
	if err != nil {
		log.Warn("lightning node socket not found yet, executor will retry on its own", "err", err)
	}
	node := lnnode.NewClient(socketPath)
	if socketPath != "" {
		if info, err := node.GetInfo(); err != nil {
			log.Warn("lightning node not reachable yet, executor will retry on its own", "err", err)
		} else {
			log.Info("lightning node reachable", "getinfo", string(info))
		}
	}

	var nostrSecret []byte
	if cfg.NostrNsecFilePassword != "" {
		secret, err := nostrsecret.Load(cfg.NostrSecretFile, cfg.NostrNsecFilePassword)
		if err != nil {
			log.Warn("nostr secret not loaded, zap rail disabled", "err", err)
		} else {
			nostrSecret = secret[:]
		}
	}

	if err := ensureAllMinerSnapshots(context.Background(), st); err != nil {
		return fmt.Errorf("ensure miner snapshots at startup: %w", err)
	}

	overrides := paymethod.ParseOverrideTable(cfg.UserMethodSettingOverride)

	eng := engine.New(st, workSrc, blockSrc, cfg.BirthTime)
	gen := payreq.New(st, cfg, overrides)
	exe := executor.New(st, node, cfg.RelayList(), nostrSecret)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); metrics.Serve(ctx, cfg.MetricsAddr) }()
	go func() { defer wg.Done(); eng.Run(ctx) }()
	go func() { defer wg.Done(); gen.Run(ctx) }()
	go func() { defer wg.Done(); exe.Run(ctx) }()

	wg.Wait()
	return nil
}

// ensureAllMinerSnapshots creates a zeroed snapshot row for every miner
// with any work on record, including ones silent since before this
// process last ran (the engine's own ensureSnapshots only covers miners
// touched by the current tick).
func ensureAllMinerSnapshots(ctx context.Context, st *store.Store) error {
	now := time.Now().Unix()
	return st.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := store.AllMinerIDs(ctx, tx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			userS, err := store.UserString(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := store.CreateMinerSnapshotIfNeeded(ctx, tx, id, userS, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// logger is the narrow interface paylog.For's return value satisfies,
// named here only so run can be unit-tested with a stub.
type logger interface {
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
}
