/*
Package clients provides the session client for the bank API.

SessionClient holds a live credentials.Session and a verified messenger
authenticated with its session token. Every call is a verified send: the
response signature is checked against the server key before the body is
decoded.

# Endpoints

  - GetUser - the user owning the session
  - ListMonetaryAccounts / ListMonetaryAccountsPage - bank accounts, paginated
  - GetMonetaryAccount - a single bank account
  - CreatePaymentRequest / GetPaymentRequest / ClosePaymentRequest - shareable payment requests

# Session Renewal

EnsureSession checks the session against the user endpoint. When the server
rejects it, the credential falls back to Registered and a new session is
created; the result is a new SessionClient and the receiver is left as it
was.

	client := clients.NewSessionClient(builder, session)
	client, err := client.EnsureSession(ctx)
	if err != nil {
		var buildErr *credentials.BuildError
		if errors.As(err, &buildErr) {
			// buildErr.Stage is the furthest credential still believed valid
		}
		return err
	}
	accounts, pagination, err := client.ListMonetaryAccounts(ctx)
*/
package clients
