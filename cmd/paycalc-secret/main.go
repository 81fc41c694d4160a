// Command paycalc-secret creates and inspects the encrypted Nostr
// signing-key file the Zap rail reads at startup.
package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zappool/paycalc/internal/nostrsecret"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/rails/nostrzap"
)

func main() {
	log := paylog.For(paylog.Secret)

	app := &cli.App{
		Name:  "paycalc-secret",
		Usage: "create or inspect the encrypted nostr signing-key file",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "generate a new secret key and write the encrypted file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "output path"},
					&cli.StringFlag{Name: "password", EnvVars: []string{"NOSTR_NSEC_FILE_PASSWORD"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					if _, err := os.Stat(c.String("file")); err == nil {
						fmt.Fprintf(os.Stderr, "refusing to overwrite existing file %q\n", c.String("file"))
						os.Exit(-1)
					}
					var secret [32]byte
					if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
						return fmt.Errorf("generate secret: %w", err)
					}
					if err := nostrsecret.Save(c.String("file"), secret, c.String("password")); err != nil {
						return err
					}
					npub, err := nostrzap.NpubFromSecret(secret[:])
					if err != nil {
						return err
					}
					fmt.Println(npub)
					return nil
				},
			},
			{
				Name:  "show-npub",
				Usage: "decrypt a secret file and print its npub",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"NOSTR_NSEC_FILE_PASSWORD"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					if _, err := os.Stat(c.String("file")); err != nil {
						fmt.Fprintf(os.Stderr, "secret file %q not found\n", c.String("file"))
						os.Exit(-1)
					}
					secret, err := nostrsecret.Load(c.String("file"), c.String("password"))
					if err != nil {
						return err
					}
					npub, err := nostrzap.NpubFromSecret(secret[:])
					if err != nil {
						return err
					}
					fmt.Println(npub)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("secret command failed", "err", err)
		os.Exit(-1)
	}
}
