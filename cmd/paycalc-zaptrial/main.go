// Command paycalc-zaptrial sends one real Zap payment using the
// configured secret file, for operator verification of the Zap rail
// outside the executor's normal retry loop.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/nostrsecret"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/rails/lnnode"
	"github.com/zappool/paycalc/internal/rails/nostrzap"
)

func main() {
	log := paylog.For(paylog.Zaptrial)

	app := &cli.App{
		Name:  "paycalc-zaptrial",
		Usage: "send one trial Zap payment to a recipient npub",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional paycalc.toml path"},
			&cli.StringFlag{Name: "npub", Required: true, Usage: "recipient npub"},
			&cli.Uint64Flag{Name: "amount-msat", Value: 1000, Usage: "amount to zap, in millisatoshi"},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"), c.String("npub"), c.Uint64("amount-msat"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("zap trial failed", "err", err)
		os.Exit(-1)
	}
}

func run(configPath, npub string, amountMsat uint64) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if cfg.NostrNsecFilePassword == "" {
		fmt.Fprintln(os.Stderr, "NOSTR_NSEC_FILE_PASSWORD is not set")
		os.Exit(-1)
	}

	secret, err := nostrsecret.Load(cfg.NostrSecretFile, cfg.NostrNsecFilePassword)
	if err != nil {
		return fmt.Errorf("load secret file: %w", err)
	}

	out := nostrzap.Zap(secret[:], npub, amountMsat, cfg.RelayList())
	if !out.IsSuccess() {
		return fmt.Errorf("resolve zap invoice: %s (code %v)", out.Reason(), out.Code())
	}
	zr := out.Value()
	fmt.Printf("resolved invoice for %s via %s\n", npub, zr.LnAddress)

	socketPath, err := lnnode.SocketPath(cfg.LnNodeHomeDir, cfg.LnNodeUser)
	if err != nil {
		return fmt.Errorf("find lightning node socket: %w", err)
	}
	node := lnnode.NewClient(socketPath)

	payResult := lnnode.Pay(node, zr.Invoice, npub)
	if !payResult.IsSuccess() {
		return fmt.Errorf("pay invoice: %s (code %v)", payResult.Reason(), payResult.Code())
	}
	pr := payResult.Value()
	fmt.Printf("paid %d msat (fee %d msat), ref %s\n", pr.PaidAmountMsat, pr.PaidFeeMsat, pr.PayRef)
	return nil
}
