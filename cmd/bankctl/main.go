package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagBaseURL = &cli.StringFlag{
	Name:  "base-url",
	Value: "https://api.bunq.com/v1",
	Usage: "API root the client talks to",
}
var flagUserAgent = &cli.StringFlag{
	Name:  "user-agent",
	Value: "bankctl",
	Usage: "User-Agent sent with every request",
}
var flagAPIKey = &cli.StringFlag{
	Name:  "api-key",
	Usage: "account API secret the device is registered with",
}
var flagDeviceDescription = &cli.StringFlag{
	Name:  "device-description",
	Value: "bankctl",
	Usage: "device name shown in the account's device list",
}
var flagStore = &cli.StringSliceFlag{
	Name:  "store",
	Usage: "credential store location, repeatable (file:///path, s3://bucket/prefix, vault://host/mount/path)",
}
var flagStorePassphrase = &cli.StringFlag{
	Name:  "store-passphrase",
	Usage: "seal stored credentials with this passphrase",
}
var flagDumpFile = &cli.StringFlag{
	Name:  "dump-file",
	Usage: "write the last undecodable response body to this file",
}
var flagRateLimitBackoff = &cli.DurationFlag{
	Name:  "rate-limit-backoff",
	Value: messenger.DefaultRateLimitBackoff,
	Usage: "wait between attempts after the server answers 429",
}
var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 2 * time.Minute,
	Usage: "overall deadline for a command, including rate limit retries",
}

var flagAccount = &cli.Int64Flag{
	Name:     "account",
	Required: true,
	Usage:    "monetary account id",
}
var flagRequestID = &cli.Int64Flag{
	Name:     "id",
	Required: true,
	Usage:    "payment request id",
}
var flagAmount = &cli.StringFlag{
	Name:     "amount",
	Required: true,
	Usage:    "amount to request, e.g. 12.50",
}
var flagCurrency = &cli.StringFlag{
	Name:  "currency",
	Value: "EUR",
	Usage: "currency of the amount",
}
var flagDescription = &cli.StringFlag{
	Name:  "description",
	Usage: "payment request description shown to the payer",
}
var flagRedirectURL = &cli.StringFlag{
	Name:  "redirect-url",
	Usage: "where the payer is sent after paying",
}
var flagAll = &cli.BoolFlag{
	Name:  "all",
	Usage: "follow pagination and list every account",
}

const usage string = `Bootstrap a device against the bank API and call it with a signed session.

Credentials are persisted after every bootstrap step, so a later run resumes
from the furthest stage that is still valid.`

func main() {
	globalFlags := flags.WithEnvPrefix("BANKCTL", append([]cli.Flag{
		flagBaseURL,
		flagUserAgent,
		flagAPIKey,
		flagDeviceDescription,
		flagStore,
		flagStorePassphrase,
		flagDumpFile,
		flagRateLimitBackoff,
		flagTimeout,
		flags.LogServiceFlagFn("bankctl"),
	}, flags.LogFlags...))

	app := &cli.App{
		Name:  "bankctl",
		Usage: usage,
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:  "bootstrap",
				Usage: "advance stored credentials to a live session and print a summary",
				Action: func(cCtx *cli.Context) error {
					return run(cCtx, (*Client).Bootstrap)
				},
			},
			{
				Name:  "user",
				Usage: "print the user owning the session",
				Action: func(cCtx *cli.Context) error {
					return run(cCtx, (*Client).User)
				},
			},
			{
				Name:  "accounts",
				Usage: "list monetary accounts",
				Flags: []cli.Flag{flagAll},
				Action: func(cCtx *cli.Context) error {
					return run(cCtx, func(c *Client, ctx context.Context) error {
						return c.Accounts(ctx, cCtx.Bool(flagAll.Name))
					})
				},
			},
			{
				Name:  "payment-request",
				Usage: "create, inspect and close shareable payment requests",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create a payment request and print its id",
						Flags: []cli.Flag{flagAccount, flagAmount, flagCurrency, flagDescription, flagRedirectURL},
						Action: func(cCtx *cli.Context) error {
							return run(cCtx, func(c *Client, ctx context.Context) error {
								return c.CreatePaymentRequest(ctx,
									cCtx.Int64(flagAccount.Name),
									cCtx.String(flagAmount.Name),
									cCtx.String(flagCurrency.Name),
									cCtx.String(flagDescription.Name),
									cCtx.String(flagRedirectURL.Name))
							})
						},
					},
					{
						Name:  "get",
						Usage: "print a payment request",
						Flags: []cli.Flag{flagAccount, flagRequestID},
						Action: func(cCtx *cli.Context) error {
							return run(cCtx, func(c *Client, ctx context.Context) error {
								return c.GetPaymentRequest(ctx, cCtx.Int64(flagAccount.Name), cCtx.Int64(flagRequestID.Name))
							})
						},
					},
					{
						Name:  "close",
						Usage: "cancel a payment request",
						Flags: []cli.Flag{flagAccount, flagRequestID},
						Action: func(cCtx *cli.Context) error {
							return run(cCtx, func(c *Client, ctx context.Context) error {
								return c.ClosePaymentRequest(ctx, cCtx.Int64(flagAccount.Name), cCtx.Int64(flagRequestID.Name))
							})
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context, action func(*Client, context.Context) error) error {
	c, err := NewClientConfig(cCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	return action(c, ctx)
}
