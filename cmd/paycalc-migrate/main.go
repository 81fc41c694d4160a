// Command paycalc-migrate creates the local payout database schema on a
// fresh database, or checks that an existing one is at the version this
// build understands. An existing database at another version is reported
// as an error; it is not upgraded.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/store"
)

func main() {
	log := paylog.For(paylog.Migrate)

	app := &cli.App{
		Name:  "paycalc-migrate",
		Usage: "create or upgrade the paycalc database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional paycalc.toml path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadFromFile(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()

			if err := st.CheckVersion(context.Background()); err != nil {
				log.Error("schema version check failed after open/migrate", "err", err)
				os.Exit(-1)
			}
			log.Info("schema up to date", "version", store.LatestDBVersion, "db", cfg.DBPath())
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(-1)
	}
}
