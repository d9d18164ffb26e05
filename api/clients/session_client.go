package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/credentials"
)

// SessionClient exposes the bank's business endpoints over a live session.
//
// A SessionClient is immutable: renewing the session produces a new client
// and leaves the old one untouched.
type SessionClient struct {
	builder   *credentials.Builder
	session   credentials.Session
	messenger *messenger.Messenger
	log       *slog.Logger
}

// NewSessionClient creates a client for session. Requests are signed with
// the session's device key and authenticated with its session token.
func NewSessionClient(builder *credentials.Builder, session credentials.Session) *SessionClient {
	m := builder.Messenger(session)
	return &SessionClient{
		builder:   builder,
		session:   session,
		messenger: m,
		log:       m.Config().Log,
	}
}

// Session returns the credential held by the client, e.g. for persistence.
func (c *SessionClient) Session() credentials.Session {
	return c.session
}

// OwnerID returns the id of the user owning the session.
func (c *SessionClient) OwnerID() int64 {
	return c.session.OwnerID
}

// EnsureSession checks that the session is still live and returns a client
// for the checked session.
//
// When the server rejects the session, the credential falls back to
// Registered and a new session is created. If that fails too, the returned
// *credentials.BuildError carries the Registered credential. Failures that
// falling back cannot fix, such as transport or signature errors, are
// returned unchanged.
func (c *SessionClient) EnsureSession(ctx context.Context) (*SessionClient, error) {
	checked, err := c.builder.CheckSession(ctx, c.session.Unchecked())
	if err == nil {
		return NewSessionClient(c.builder, checked), nil
	}

	var buildErr *credentials.BuildError
	if !errors.As(err, &buildErr) || !buildErr.CanFallBack() {
		return nil, err
	}

	registered, ok := buildErr.Fallback().(credentials.Registered)
	if !ok {
		return nil, err
	}

	c.log.Warn("Session rejected, creating a new one",
		slog.Int64("ownerID", c.session.OwnerID),
		"err", buildErr.Err)

	renewed, err := c.builder.CreateSession(ctx, registered)
	if err != nil {
		return nil, err
	}
	return NewSessionClient(c.builder, renewed), nil
}

// GetUser fetches the user owning the session.
func (c *SessionClient) GetUser(ctx context.Context) (api.User, error) {
	payload, err := c.messenger.Do(ctx, http.MethodGet, api.UserPath, nil)
	if err != nil {
		return api.User{}, err
	}
	return envelope.DecodeSingle[api.User](payload)
}

// ListMonetaryAccounts fetches the first page of the owner's bank accounts.
func (c *SessionClient) ListMonetaryAccounts(ctx context.Context) ([]api.MonetaryAccountBank, envelope.Pagination, error) {
	return c.listMonetaryAccounts(ctx, api.MonetaryAccountsPath(c.session.OwnerID))
}

// ListMonetaryAccountsPage follows a cursor URL taken from a previous page's
// Pagination.
func (c *SessionClient) ListMonetaryAccountsPage(ctx context.Context, cursorURL string) ([]api.MonetaryAccountBank, envelope.Pagination, error) {
	if cursorURL == "" {
		return nil, envelope.Pagination{}, errors.New("empty pagination cursor")
	}
	return c.listMonetaryAccounts(ctx, cursorURL)
}

func (c *SessionClient) listMonetaryAccounts(ctx context.Context, path string) ([]api.MonetaryAccountBank, envelope.Pagination, error) {
	payload, err := c.messenger.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, envelope.Pagination{}, err
	}

	wrappers, pagination, err := envelope.DecodeMultiple[api.MonetaryAccountBankWrapper](payload)
	if err != nil {
		return nil, pagination, err
	}

	accounts := make([]api.MonetaryAccountBank, 0, len(wrappers))
	for i, wrapper := range wrappers {
		if wrapper.MonetaryAccountBank == nil {
			return nil, pagination, &envelope.ShapeError{
				Path:   fmt.Sprintf("%s[%d].MonetaryAccountBank", envelope.ResponseKey, i),
				Reason: "missing",
			}
		}
		accounts = append(accounts, *wrapper.MonetaryAccountBank)
	}
	return accounts, pagination, nil
}

// GetMonetaryAccount fetches a single bank account of the owner.
func (c *SessionClient) GetMonetaryAccount(ctx context.Context, accountID int64) (api.MonetaryAccountBank, error) {
	payload, err := c.messenger.Do(ctx, http.MethodGet, api.MonetaryAccountPath(c.session.OwnerID, accountID), nil)
	if err != nil {
		return api.MonetaryAccountBank{}, err
	}

	wrapper, err := envelope.DecodeSingle[api.MonetaryAccountBankWrapper](payload)
	if err != nil {
		return api.MonetaryAccountBank{}, err
	}
	if wrapper.MonetaryAccountBank == nil {
		return api.MonetaryAccountBank{}, &envelope.ShapeError{Path: envelope.ResponseKey + "[0].MonetaryAccountBank", Reason: "missing"}
	}
	return *wrapper.MonetaryAccountBank, nil
}

// GetPaymentRequest fetches a payment request of one of the owner's accounts.
func (c *SessionClient) GetPaymentRequest(ctx context.Context, accountID, requestID int64) (api.PaymentRequest, error) {
	payload, err := c.messenger.Do(ctx, http.MethodGet, api.PaymentRequestPath(c.session.OwnerID, accountID, requestID), nil)
	if err != nil {
		return api.PaymentRequest{}, err
	}

	wrapper, err := envelope.DecodeSingle[api.PaymentRequestWrapper](payload)
	if err != nil {
		return api.PaymentRequest{}, err
	}
	if wrapper.PaymentRequest == nil {
		return api.PaymentRequest{}, &envelope.ShapeError{Path: envelope.ResponseKey + "[0].BunqMeTab", Reason: "missing"}
	}
	return *wrapper.PaymentRequest, nil
}

// CreatePaymentRequest asks for amount to be paid into the account and returns
// the id of the new request. redirectURL may be empty.
func (c *SessionClient) CreatePaymentRequest(ctx context.Context, accountID int64, amount api.Amount, description, redirectURL string) (int64, error) {
	request := api.CreatePaymentRequestRequest{
		Entry: api.PaymentRequestEntry{
			AmountInquired: amount,
			Description:    description,
			RedirectURL:    redirectURL,
		},
	}

	payload, err := c.messenger.Do(ctx, http.MethodPost, api.PaymentRequestsPath(c.session.OwnerID, accountID), request)
	if err != nil {
		return 0, err
	}
	return decodeID(payload)
}

// ClosePaymentRequest cancels a payment request that is still waiting for payment.
func (c *SessionClient) ClosePaymentRequest(ctx context.Context, accountID, requestID int64) error {
	request := api.UpdatePaymentRequestRequest{Status: api.PaymentRequestCancelled}

	payload, err := c.messenger.Do(ctx, http.MethodPut, api.PaymentRequestPath(c.session.OwnerID, accountID, requestID), request)
	if err != nil {
		return err
	}
	_, err = decodeID(payload)
	return err
}

func decodeID(payload *envelope.Payload) (int64, error) {
	element, err := envelope.DecodeSingle[api.IDResponse](payload)
	if err != nil {
		return 0, err
	}
	if element.ID == nil {
		return 0, &envelope.ShapeError{Path: envelope.ResponseKey + "[0].Id", Reason: "missing"}
	}
	return element.ID.ID, nil
}
