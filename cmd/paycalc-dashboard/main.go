// Command paycalc-dashboard prints the current miner snapshot table:
// committed, estimated, paid, and unpaid totals per miner, plus the id of
// the last pay request linked to the miner, which stays shown after that
// request's payment has reached a terminal status.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/store"
)

func main() {
	log := paylog.For(paylog.Dashboard)

	app := &cli.App{
		Name:  "paycalc-dashboard",
		Usage: "print the current per-miner snapshot table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional paycalc.toml path"},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("dashboard failed", "err", err)
		os.Exit(-1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	st, err := store.OpenReadOnly(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	snapshots, err := store.AllMinerSnapshots(ctx, st.DB())
	if err != nil {
		return fmt.Errorf("list miner snapshots: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Miner", "Committed (msat)", "Estimate (msat)", "Paid (msat)", "Unpaid", "Unpaid Cons.", "Last Req"})
	for _, ss := range snapshots {
		openReq := "-"
		if ss.PayReqID >= 0 {
			openReq = strconv.FormatInt(ss.PayReqID, 10)
		}
		table.Append([]string{
			ss.UserS,
			strconv.FormatInt(ss.TotCommit, 10),
			strconv.FormatInt(ss.TotEstimate, 10),
			strconv.FormatInt(ss.TotPaid, 10),
			strconv.FormatInt(ss.Unpaid, 10),
			strconv.FormatInt(ss.UnpaidCons, 10),
			openReq,
		})
	}
	table.Render()
	return nil
}
