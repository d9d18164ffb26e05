package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/api/clients"
	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cmd/flags"
	"github.com/ruteri/bank-session-client/credentials"
	"github.com/ruteri/bank-session-client/interfaces"
	"github.com/ruteri/bank-session-client/storage"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// Options configures a Client independently of the command line.
type Options struct {
	BaseURL           string
	UserAgent         string
	APIKey            string
	DeviceDescription string
	Stores            []string
	StorePassphrase   string
	DumpFile          string
	RateLimitBackoff  time.Duration
	Log               *slog.Logger
	Out               io.Writer
}

type Client struct {
	log  *slog.Logger
	out  io.Writer
	opts Options

	builder      *credentials.Builder
	bootstrapper *credentials.Bootstrapper
	session      *clients.SessionClient
}

func NewClientConfig(cCtx *cli.Context) (*Client, error) {
	return NewClient(Options{
		BaseURL:           cCtx.String(flagBaseURL.Name),
		UserAgent:         cCtx.String(flagUserAgent.Name),
		APIKey:            cCtx.String(flagAPIKey.Name),
		DeviceDescription: cCtx.String(flagDeviceDescription.Name),
		Stores:            cCtx.StringSlice(flagStore.Name),
		StorePassphrase:   cCtx.String(flagStorePassphrase.Name),
		DumpFile:          cCtx.String(flagDumpFile.Name),
		RateLimitBackoff:  cCtx.Duration(flagRateLimitBackoff.Name),
		Log:               flags.SetupLogger(cCtx),
		Out:               os.Stdout,
	})
}

func NewClient(opts Options) (*Client, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	var store interfaces.CredentialStore
	if len(opts.Stores) > 0 {
		backend, err := storage.NewStorageBackendFactory(opts.Log).CreateMultiBackend(opts.Stores)
		if err != nil {
			return nil, fmt.Errorf("could not open credential store: %w", err)
		}
		store = storage.NewRecordStore(backend, opts.StorePassphrase, opts.Log)
	} else {
		opts.Log.Warn("No --store configured, credentials will not survive this run")
	}

	cfg := messenger.Config{
		BaseURL:          opts.BaseURL,
		UserAgent:        opts.UserAgent,
		RateLimitBackoff: opts.RateLimitBackoff,
		Log:              opts.Log,
	}
	if opts.DumpFile != "" {
		cfg.Sink = storage.NewFileDumpSink(opts.DumpFile, opts.Log)
	}

	builder := credentials.NewBuilder(cfg)
	return &Client{
		log:          opts.Log,
		out:          opts.Out,
		opts:         opts,
		builder:      builder,
		bootstrapper: credentials.NewBootstrapper(builder, store, opts.APIKey, opts.DeviceDescription),
	}, nil
}

// Connect loads stored credentials and drives them to a checked session.
func (c *Client) Connect(ctx context.Context) error {
	start, err := c.bootstrapper.Load(ctx)
	if err != nil {
		return err
	}

	needsRegistration := start.Stage() < credentials.StageRegistered
	if c.opts.APIKey == "" && needsRegistration {
		return errors.New("--api-key is required until the device is registered")
	}

	session, err := c.bootstrapper.Run(ctx, start)
	if err != nil {
		var buildErr *credentials.BuildError
		if errors.As(err, &buildErr) {
			c.log.Error("Could not establish a session",
				slog.String("stage", buildErr.Stage.Stage().String()),
				slog.String("reason", string(buildErr.Reason)),
				"err", buildErr.Err)
		}
		return err
	}

	c.session = clients.NewSessionClient(c.builder, session)
	return nil
}

func (c *Client) print(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(encoded))
	return err
}

type bootstrapSummary struct {
	Stage    string `json:"stage"`
	DeviceID int64  `json:"device_id"`
	OwnerID  int64  `json:"owner_id"`
}

func (c *Client) Bootstrap(ctx context.Context) error {
	session := c.session.Session()
	return c.print(bootstrapSummary{
		Stage:    session.Stage().String(),
		DeviceID: session.DeviceID,
		OwnerID:  session.OwnerID,
	})
}

func (c *Client) User(ctx context.Context) error {
	user, err := c.session.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("user request failed: %w", err)
	}
	return c.print(user)
}

func (c *Client) Accounts(ctx context.Context, all bool) error {
	accounts, pagination, err := c.session.ListMonetaryAccounts(ctx)
	if err != nil {
		return fmt.Errorf("account listing failed: %w", err)
	}

	for all && pagination.OlderURL != nil {
		var page []api.MonetaryAccountBank
		page, pagination, err = c.session.ListMonetaryAccountsPage(ctx, *pagination.OlderURL)
		if err != nil {
			return fmt.Errorf("account listing failed: %w", err)
		}
		accounts = append(accounts, page...)
	}

	return c.print(accounts)
}

type createdPaymentRequest struct {
	ID int64 `json:"id"`
}

func (c *Client) CreatePaymentRequest(ctx context.Context, accountID int64, amount, currency, description, redirectURL string) error {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	id, err := c.session.CreatePaymentRequest(ctx, accountID, api.Amount{Value: value, Currency: currency}, description, redirectURL)
	if err != nil {
		return fmt.Errorf("payment request creation failed: %w", err)
	}
	return c.print(createdPaymentRequest{ID: id})
}

func (c *Client) GetPaymentRequest(ctx context.Context, accountID, requestID int64) error {
	request, err := c.session.GetPaymentRequest(ctx, accountID, requestID)
	if err != nil {
		return fmt.Errorf("payment request lookup failed: %w", err)
	}
	return c.print(request)
}

func (c *Client) ClosePaymentRequest(ctx context.Context, accountID, requestID int64) error {
	if err := c.session.ClosePaymentRequest(ctx, accountID, requestID); err != nil {
		return fmt.Errorf("payment request close failed: %w", err)
	}
	return c.print(map[string]any{"id": requestID, "status": api.PaymentRequestCancelled})
}
