package sandbox

import (
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
)

// Config configures the sandbox bank.
type Config struct {
	// APISecret is the only secret accepted by device registration. Empty
	// accepts any non-empty secret.
	APISecret string

	// OwnerID is the id of the single user owning every session. Defaults to 1.
	OwnerID int64

	// DisplayName of the user. Defaults to "Sandbox User".
	DisplayName string

	// PrivateKeyPEM is the response signing key. A fresh key is generated
	// when empty.
	PrivateKeyPEM []byte

	// ShareURLBase prefixes payment request share links.
	// Defaults to "https://sandbox.invalid/pay/".
	ShareURLBase string

	Log *slog.Logger
}

type installation struct {
	id        int64
	clientKey *rsa.PublicKey
}

type device struct {
	id           int64
	installation string
	secret       string
}

type paymentRequest struct {
	request api.PaymentRequest
	entry   api.PaymentRequestEntry
}

// Bank is an in-memory implementation of the server side of the signed
// session protocol. It is safe for concurrent use.
type Bank struct {
	cfg Config
	log *slog.Logger
	key *rsa.PrivateKey

	nextID           *atomic.Int64
	requests         *atomic.Int64
	pendingRateLimit *atomic.Int64

	mu              sync.Mutex
	installations   map[string]*installation // by installation token
	devices         map[int64]*device
	sessions        map[string]int64 // session token to owner id
	accounts        map[int64]*api.MonetaryAccountBank
	paymentRequests map[int64]*paymentRequest
}

// New creates a sandbox bank with no accounts.
func New(cfg Config) (*Bank, error) {
	if cfg.OwnerID == 0 {
		cfg.OwnerID = 1
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "Sandbox User"
	}
	if cfg.ShareURLBase == "" {
		cfg.ShareURLBase = "https://sandbox.invalid/pay/"
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var key *rsa.PrivateKey
	if len(cfg.PrivateKeyPEM) > 0 {
		parsed, err := cryptoutils.ParsePrivateKeyPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load sandbox signing key: %w", err)
		}
		key = parsed
	} else {
		keyPair, err := cryptoutils.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		key = keyPair.Private
	}

	return &Bank{
		cfg:              cfg,
		log:              cfg.Log,
		key:              key,
		nextID:           atomic.NewInt64(0),
		requests:         atomic.NewInt64(0),
		pendingRateLimit: atomic.NewInt64(0),
		installations:    make(map[string]*installation),
		devices:          make(map[int64]*device),
		sessions:         make(map[string]int64),
		accounts:         make(map[int64]*api.MonetaryAccountBank),
		paymentRequests:  make(map[int64]*paymentRequest),
	}, nil
}

// PublicKey returns the key responses are signed with.
func (b *Bank) PublicKey() *rsa.PublicKey {
	return &b.key.PublicKey
}

// OwnerID returns the id of the sandbox user.
func (b *Bank) OwnerID() int64 {
	return b.cfg.OwnerID
}

// Requests returns the number of API requests served so far, rate limited ones included.
func (b *Bank) Requests() int64 {
	return b.requests.Load()
}

// InjectRateLimit makes the next n API requests fail with HTTP 429.
func (b *Bank) InjectRateLimit(n int) {
	b.pendingRateLimit.Add(int64(n))
}

// ExpireSessions invalidates every session token issued so far.
func (b *Bank) ExpireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	expired := len(b.sessions)
	clear(b.sessions)
	b.log.Info("Expired sessions", slog.Int("count", expired))
}

// AddMonetaryAccount opens an account for the sandbox user.
func (b *Bank) AddMonetaryAccount(description string, balance api.Amount, iban string) api.MonetaryAccountBank {
	now := api.Timestamp{Time: time.Now().UTC()}
	account := &api.MonetaryAccountBank{
		ID:          b.newID(),
		Created:     now,
		Updated:     now,
		Currency:    balance.Currency,
		Description: description,
		Balance:     balance,
		Status:      "ACTIVE",
	}
	if iban != "" {
		account.Alias = []api.Pointer{{Type: "IBAN", Value: iban, Name: b.cfg.DisplayName}}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account.ID] = account
	return *account
}

// SeedDefaultAccounts opens two EUR accounts so a fresh sandbox has data to list.
func (b *Bank) SeedDefaultAccounts() {
	b.AddMonetaryAccount("Main", api.Amount{Value: decimal.RequireFromString("1250.00"), Currency: "EUR"}, "NL00SAND0000000001")
	b.AddMonetaryAccount("Savings", api.Amount{Value: decimal.RequireFromString("5000.00"), Currency: "EUR"}, "NL00SAND0000000002")
}

// SetPaymentRequestStatus changes the status of a payment request, e.g. to
// mark it PAID.
func (b *Bank) SetPaymentRequestStatus(id int64, status api.PaymentRequestStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pr, ok := b.paymentRequests[id]
	if !ok {
		return fmt.Errorf("payment request %d not found", id)
	}
	pr.request.Status = status
	pr.request.Updated = api.Timestamp{Time: time.Now().UTC()}
	return nil
}

func (b *Bank) newID() int64 {
	return b.nextID.Inc()
}

// takeRateLimit consumes one injected 429 if any are pending.
func (b *Bank) takeRateLimit() bool {
	for {
		pending := b.pendingRateLimit.Load()
		if pending <= 0 {
			return false
		}
		if b.pendingRateLimit.CompareAndSwap(pending, pending-1) {
			return true
		}
	}
}

// sortedAccounts returns the accounts newest first. Callers hold b.mu.
func (b *Bank) sortedAccounts() []api.MonetaryAccountBank {
	accounts := make([]api.MonetaryAccountBank, 0, len(b.accounts))
	for _, account := range b.accounts {
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID > accounts[j].ID })
	return accounts
}
