package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/bank-session-client/cmd/flags"
	"github.com/ruteri/bank-session-client/httpserver"
	"github.com/ruteri/bank-session-client/sandbox"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the bank API",
}
var flagAPISecret = &cli.StringFlag{
	Name:  "api-secret",
	Usage: "only API secret accepted by device registration; empty accepts any",
}
var flagOwnerID = &cli.Int64Flag{
	Name:  "owner-id",
	Value: 1,
	Usage: "id of the user owning every session",
}
var flagDisplayName = &cli.StringFlag{
	Name:  "display-name",
	Value: "Sandbox User",
	Usage: "display name of the user",
}
var flagKeyFile = &cli.StringFlag{
	Name:  "key-file",
	Usage: "PEM file with the response signing key; a fresh key is generated when empty",
}
var flagShareURLBase = &cli.StringFlag{
	Name:  "share-url-base",
	Value: "https://sandbox.invalid/pay/",
	Usage: "prefix of payment request share links",
}
var flagSeedAccounts = &cli.BoolFlag{
	Name:  "seed-accounts",
	Value: true,
	Usage: "open a few accounts at startup",
}

func main() {
	app := &cli.App{
		Name:  "sandbox",
		Usage: "Serve an in-memory bank speaking the signed session protocol",
		Flags: flags.WithEnvPrefix("SANDBOX", append(append([]cli.Flag{
			flagListenAddr,
			flagAPISecret,
			flagOwnerID,
			flagDisplayName,
			flagKeyFile,
			flagShareURLBase,
			flagSeedAccounts,
			flags.LogServiceFlagFn("bank-sandbox"),
		}, flags.LogFlags...), flags.ServerFlags...)),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			var keyPEM []byte
			if keyFile := cCtx.String(flagKeyFile.Name); keyFile != "" {
				data, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("could not read signing key: %w", err)
				}
				keyPEM = data
			}

			bank, err := sandbox.New(sandbox.Config{
				APISecret:     cCtx.String(flagAPISecret.Name),
				OwnerID:       cCtx.Int64(flagOwnerID.Name),
				DisplayName:   cCtx.String(flagDisplayName.Name),
				PrivateKeyPEM: keyPEM,
				ShareURLBase:  cCtx.String(flagShareURLBase.Name),
				Log:           logger,
			})
			if err != nil {
				logger.Error("Failed to create sandbox bank", "err", err)
				return err
			}
			if cCtx.Bool(flagSeedAccounts.Name) {
				bank.SeedDefaultAccounts()
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))
			server, err := httpserver.New(cfg, bank)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			if err := server.Start(); err != nil {
				logger.Error("Failed to start server", "err", err)
				return err
			}
			logger.Info("Sandbox bank listening",
				"address", server.Addr(),
				"ownerID", bank.OwnerID())

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			// a second signal skips the drain
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("Shutdown failed", "err", err)
				return err
			}
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
