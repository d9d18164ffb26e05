package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cryptoutils"
)

const (
	defaultPageSize = 10
	maxPageSize     = 200
)

// RegisterRoutes mounts the bank API under /v1.
func (b *Bank) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(b.countRequests, b.rateLimit)

		r.Post("/installation", b.handleInstallation)
		r.Post("/device-server", b.handleDeviceServer)
		r.Post("/session-server", b.handleSessionServer)

		r.Group(func(r chi.Router) {
			r.Use(b.requireSession)

			r.Get("/user", b.handleUser)
			r.Route("/user/{ownerID}", func(r chi.Router) {
				r.Use(b.requireOwner)

				r.Get("/monetary-account-bank", b.handleListAccounts)
				r.Get("/monetary-account-bank/{accountID}", b.handleGetAccount)
				r.Post("/monetary-account/{accountID}/bunqme-tab", b.handleCreatePaymentRequest)
				r.Get("/monetary-account/{accountID}/bunqme-tab/{requestID}", b.handleGetPaymentRequest)
				r.Put("/monetary-account/{accountID}/bunqme-tab/{requestID}", b.handleUpdatePaymentRequest)
			})
		})
	})
}

func (b *Bank) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Inc()
		next.ServeHTTP(w, r)
	})
}

func (b *Bank) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.takeRateLimit() {
			b.log.Debug("Injected rate limit", slog.String("path", r.URL.Path))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bank) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		ownerID, ok := b.sessions[r.Header.Get(messenger.ClientAuthenticationHeader)]
		b.mu.Unlock()

		if !ok {
			b.respondError(w, http.StatusUnauthorized, "Insufficient authentication.")
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), ownerID)))
	})
}

func (b *Bank) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := pathID(r, "ownerID")
		if err != nil || ownerID != ownerFrom(r.Context()) {
			b.respondError(w, http.StatusForbidden, "Insufficient authorisation.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bank) handleInstallation(w http.ResponseWriter, r *http.Request) {
	body, ok := b.readBody(w, r)
	if !ok {
		return
	}

	var req api.CreateInstallationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	clientKey, err := cryptoutils.ParsePublicKeyPEM([]byte(req.ClientPublicKey))
	if err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid client public key.")
		return
	}
	if !cryptoutils.VerifyBody(clientKey, body, r.Header.Get(messenger.ClientSignatureHeader)) {
		b.respondError(w, http.StatusBadRequest, "Request signature is invalid.")
		return
	}

	serverPEM, err := cryptoutils.PublicKeyToPEM(b.PublicKey())
	if err != nil {
		b.respondError(w, http.StatusInternalServerError, "Internal error.")
		return
	}

	inst := &installation{id: b.newID(), clientKey: clientKey}
	token := uuid.NewString()

	b.mu.Lock()
	b.installations[token] = inst
	b.mu.Unlock()

	b.log.Info("Installed device", slog.Int64("installationID", inst.id))

	b.respond(w, http.StatusOK, []any{
		map[string]any{"Id": api.ID{ID: inst.id}},
		map[string]any{"Token": b.newToken(token)},
		map[string]any{"ServerPublicKey": api.ServerPublicKey{ServerPublicKey: string(serverPEM)}},
	}, nil)
}

func (b *Bank) handleDeviceServer(w http.ResponseWriter, r *http.Request) {
	token, body, ok := b.authenticateInstallation(w, r)
	if !ok {
		return
	}

	var req api.CreateDeviceServerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if !b.secretAccepted(req.Secret) {
		b.respondError(w, http.StatusBadRequest, "User credentials are incorrect. Incorrect API key or IP address.")
		return
	}

	dev := &device{id: b.newID(), installation: token, secret: req.Secret}

	b.mu.Lock()
	b.devices[dev.id] = dev
	b.mu.Unlock()

	b.log.Info("Registered device", slog.Int64("deviceID", dev.id), slog.String("description", req.Description))
	b.respond(w, http.StatusOK, []any{map[string]any{"Id": api.ID{ID: dev.id}}}, nil)
}

func (b *Bank) handleSessionServer(w http.ResponseWriter, r *http.Request) {
	token, body, ok := b.authenticateInstallation(w, r)
	if !ok {
		return
	}

	var req api.CreateSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	b.mu.Lock()
	registered := false
	for _, dev := range b.devices {
		if dev.installation == token && dev.secret == req.Secret {
			registered = true
			break
		}
	}
	sessionToken := uuid.NewString()
	if registered {
		b.sessions[sessionToken] = b.cfg.OwnerID
	}
	b.mu.Unlock()

	if !registered {
		b.respondError(w, http.StatusBadRequest, "User credentials are incorrect. Incorrect API key or IP address.")
		return
	}

	b.log.Info("Created session", slog.Int64("ownerID", b.cfg.OwnerID))
	b.respond(w, http.StatusOK, []any{
		map[string]any{"Id": api.ID{ID: b.newID()}},
		map[string]any{"Token": b.newToken(sessionToken)},
		map[string]any{"UserPerson": b.user()},
	}, nil)
}

func (b *Bank) handleUser(w http.ResponseWriter, r *http.Request) {
	b.respond(w, http.StatusOK, []any{map[string]any{"UserPerson": b.user()}}, nil)
}

func (b *Bank) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	count := defaultPageSize
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPageSize {
			b.respondError(w, http.StatusBadRequest, "Invalid count.")
			return
		}
		count = parsed
	}

	var olderThan int64
	if raw := r.URL.Query().Get("older_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			b.respondError(w, http.StatusBadRequest, "Invalid older_id.")
			return
		}
		olderThan = parsed
	}

	b.mu.Lock()
	all := b.sortedAccounts()
	b.mu.Unlock()

	page := make([]any, 0, count)
	var last int64
	remaining := false
	for _, account := range all {
		if olderThan != 0 && account.ID >= olderThan {
			continue
		}
		if len(page) == count {
			remaining = true
			break
		}
		page = append(page, api.MonetaryAccountBankWrapper{MonetaryAccountBank: &account})
		last = account.ID
	}

	pagination := &envelope.Pagination{}
	if remaining {
		older := fmt.Sprintf("/v1/%s?count=%d&older_id=%d", api.MonetaryAccountsPath(b.cfg.OwnerID), count, last)
		pagination.OlderURL = &older
	}
	b.respond(w, http.StatusOK, page, pagination)
}

func (b *Bank) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid account id.")
		return
	}

	b.mu.Lock()
	account, ok := b.accounts[accountID]
	var found api.MonetaryAccountBank
	if ok {
		found = *account
	}
	b.mu.Unlock()

	if !ok {
		b.respondError(w, http.StatusNotFound, "Monetary account not found.")
		return
	}
	b.respond(w, http.StatusOK, []any{api.MonetaryAccountBankWrapper{MonetaryAccountBank: &found}}, nil)
}

func (b *Bank) handleCreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	accountID, ok := b.existingAccount(w, r)
	if !ok {
		return
	}
	body, ok := b.readSignedSessionBody(w, r)
	if !ok {
		return
	}

	var req api.CreatePaymentRequestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if !req.Entry.AmountInquired.Value.IsPositive() {
		b.respondError(w, http.StatusBadRequest, "Amount must be positive.")
		return
	}

	now := time.Now().UTC()
	id := b.newID()
	pr := &paymentRequest{
		entry: req.Entry,
		request: api.PaymentRequest{
			ID:                id,
			Created:           api.Timestamp{Time: now},
			Updated:           api.Timestamp{Time: now},
			TimeExpiry:        api.Timestamp{Time: now.Add(30 * 24 * time.Hour)},
			MonetaryAccountID: accountID,
			Status:            api.PaymentRequestWaiting,
			ShareURL:          fmt.Sprintf("%s%d", b.cfg.ShareURLBase, id),
		},
	}

	b.mu.Lock()
	b.paymentRequests[id] = pr
	b.mu.Unlock()

	b.log.Info("Created payment request",
		slog.Int64("id", id),
		slog.String("amount", req.Entry.AmountInquired.String()))
	b.respond(w, http.StatusOK, []any{map[string]any{"Id": api.ID{ID: id}}}, nil)
}

func (b *Bank) handleGetPaymentRequest(w http.ResponseWriter, r *http.Request) {
	pr, ok := b.existingPaymentRequest(w, r)
	if !ok {
		return
	}
	b.respond(w, http.StatusOK, []any{api.PaymentRequestWrapper{PaymentRequest: &pr}}, nil)
}

func (b *Bank) handleUpdatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	existing, ok := b.existingPaymentRequest(w, r)
	if !ok {
		return
	}
	body, ok := b.readSignedSessionBody(w, r)
	if !ok {
		return
	}

	var req api.UpdatePaymentRequestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Status != api.PaymentRequestCancelled {
		b.respondError(w, http.StatusBadRequest, "Only cancelling a payment request is supported.")
		return
	}

	b.mu.Lock()
	pr := b.paymentRequests[existing.ID]
	allowed := pr.request.Status == api.PaymentRequestWaiting
	if allowed {
		pr.request.Status = api.PaymentRequestCancelled
		pr.request.Updated = api.Timestamp{Time: time.Now().UTC()}
	}
	b.mu.Unlock()

	if !allowed {
		b.respondError(w, http.StatusBadRequest, "Payment request is no longer open.")
		return
	}
	b.respond(w, http.StatusOK, []any{map[string]any{"Id": api.ID{ID: existing.ID}}}, nil)
}

// authenticateInstallation resolves the installation token and checks the
// body signature against the installed client key.
func (b *Bank) authenticateInstallation(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	token := r.Header.Get(messenger.ClientAuthenticationHeader)

	b.mu.Lock()
	inst, ok := b.installations[token]
	b.mu.Unlock()

	if !ok {
		b.respondError(w, http.StatusUnauthorized, "Insufficient authentication.")
		return "", nil, false
	}

	body, ok := b.readBody(w, r)
	if !ok {
		return "", nil, false
	}
	if !cryptoutils.VerifyBody(inst.clientKey, body, r.Header.Get(messenger.ClientSignatureHeader)) {
		b.respondError(w, http.StatusBadRequest, "Request signature is invalid.")
		return "", nil, false
	}
	return token, body, true
}

// readSignedSessionBody checks the body signature of a session request. Any
// installed client key may have signed it, since sessions are not bound to a
// single installation here.
func (b *Bank) readSignedSessionBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, ok := b.readBody(w, r)
	if !ok {
		return nil, false
	}

	signature := r.Header.Get(messenger.ClientSignatureHeader)

	b.mu.Lock()
	verified := false
	for _, inst := range b.installations {
		if cryptoutils.VerifyBody(inst.clientKey, body, signature) {
			verified = true
			break
		}
	}
	b.mu.Unlock()

	if !verified {
		b.respondError(w, http.StatusBadRequest, "Request signature is invalid.")
		return nil, false
	}
	return body, true
}

func (b *Bank) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		b.respondError(w, http.StatusBadRequest, "Cannot read request body.")
		return nil, false
	}
	return body, true
}

func (b *Bank) existingAccount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid account id.")
		return 0, false
	}

	b.mu.Lock()
	_, ok := b.accounts[accountID]
	b.mu.Unlock()

	if !ok {
		b.respondError(w, http.StatusNotFound, "Monetary account not found.")
		return 0, false
	}
	return accountID, true
}

func (b *Bank) existingPaymentRequest(w http.ResponseWriter, r *http.Request) (api.PaymentRequest, bool) {
	accountID, ok := b.existingAccount(w, r)
	if !ok {
		return api.PaymentRequest{}, false
	}
	requestID, err := pathID(r, "requestID")
	if err != nil {
		b.respondError(w, http.StatusBadRequest, "Invalid payment request id.")
		return api.PaymentRequest{}, false
	}

	b.mu.Lock()
	pr, ok := b.paymentRequests[requestID]
	var found api.PaymentRequest
	if ok && pr.request.MonetaryAccountID == accountID {
		found = pr.request
		entry := pr.entry
		found.Entry = &entry
	} else {
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		b.respondError(w, http.StatusNotFound, "Payment request not found.")
		return api.PaymentRequest{}, false
	}
	return found, true
}

func (b *Bank) secretAccepted(secret string) bool {
	if secret == "" {
		return false
	}
	return b.cfg.APISecret == "" || secret == b.cfg.APISecret
}

func (b *Bank) newToken(token string) api.Token {
	now := api.Timestamp{Time: time.Now().UTC()}
	return api.Token{ID: b.newID(), Created: now, Updated: now, Token: token}
}

func (b *Bank) user() api.UserPerson {
	return api.UserPerson{
		ID:          b.cfg.OwnerID,
		DisplayName: b.cfg.DisplayName,
		Status:      "ACTIVE",
	}
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
