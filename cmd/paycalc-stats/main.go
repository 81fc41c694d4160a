// Command paycalc-stats prints aggregate block and payment statistics:
// total blocks processed, total earnings, and payment outcome counts.
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
	log := paylog.For("stats")

	app := &cli.App{
		Name:  "paycalc-stats",
		Usage: "print block and payment statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional paycalc.toml path"},
			&cli.BoolFlag{Name: "requests", Usage: "also list every pay request"},
			&cli.Int64Flag{Name: "payment", Usage: "print payment detail for one request id", Value: 0},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"), c.Bool("requests"), c.Int64("payment"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("stats failed", "err", err)
		os.Exit(-1)
	}
}

func run(configPath string, withRequests bool, paymentReqID int64) error {
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

	blockStats, err := store.ComputeBlockStats(ctx, st.DB())
	if err != nil {
		return err
	}
	fmt.Printf("Blocks: %d (processed %d)  total earning %d sats  total pool fee %d sats\n",
		blockStats.Count, blockStats.ProcessedCount, blockStats.TotalEarnSats, blockStats.TotalFeeSats)

	payStats, err := store.ComputePayTotalStats(ctx, st.DB())
	if err != nil {
		return err
	}
	fmt.Printf("Payments: %d succeeded (%d msat paid), %d in progress, %d non-final failures, %d final failures\n",
		payStats.SuccessCount, payStats.SuccessAmntMsat, payStats.InProgressCount,
		payStats.NonFinalCount, payStats.FinalFailCount)

	if paymentReqID > 0 {
		p, err := store.GetPaymentByReqID(ctx, st.DB(), paymentReqID)
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Printf("Request %d: no payment row yet\n", paymentReqID)
		} else {
			fmt.Printf("Request %d: status=%s retry_cnt=%d paid=%d msat fee=%d msat error=%q pay_ref=%q\n",
				paymentReqID, p.Status, p.RetryCnt, p.PaidAmnt, p.PaidFee, p.ErrorStr, p.PayRef)
		}
	}

	if !withRequests {
		return nil
	}

	reqs, err := store.ListPayRequests(ctx, st.DB())
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Req ID", "Miner", "Amount (msat)", "Method", "Status", "Req Time"})
	for _, r := range reqs {
		table.Append([]string{
			strconv.FormatInt(r.ReqID, 10), r.MinerS, strconv.FormatInt(r.ReqAmnt, 10),
			r.PayMethod, r.Status, strconv.FormatInt(r.ReqTime, 10),
		})
	}
	table.Render()
	return nil
}
