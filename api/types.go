package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Endpoint templates, relative to the API base URL.
const (
	InstallationPath  = "installation"
	DeviceServerPath  = "device-server"
	SessionServerPath = "session-server"
	UserPath          = "user"
)

// MonetaryAccountsPath lists the bank accounts of an owner.
func MonetaryAccountsPath(ownerID int64) string {
	return fmt.Sprintf("user/%d/monetary-account-bank", ownerID)
}

// MonetaryAccountPath addresses a single bank account.
func MonetaryAccountPath(ownerID, accountID int64) string {
	return fmt.Sprintf("user/%d/monetary-account-bank/%d", ownerID, accountID)
}

// PaymentRequestsPath addresses the payment requests of an account.
func PaymentRequestsPath(ownerID, accountID int64) string {
	return fmt.Sprintf("user/%d/monetary-account/%d/bunqme-tab", ownerID, accountID)
}

// PaymentRequestPath addresses a single payment request.
func PaymentRequestPath(ownerID, accountID, requestID int64) string {
	return fmt.Sprintf("user/%d/monetary-account/%d/bunqme-tab/%d", ownerID, accountID, requestID)
}

// CreateInstallationRequest is the POST installation body.
type CreateInstallationRequest struct {
	// ClientPublicKey is the PEM encoded device public key.
	ClientPublicKey string `json:"client_public_key"`
}

// CreateDeviceServerRequest is the POST device-server body.
type CreateDeviceServerRequest struct {
	Description  string   `json:"description"`
	Secret       string   `json:"secret"`
	PermittedIPs []string `json:"permitted_ips"`
}

// CreateSessionRequest is the POST session-server body.
type CreateSessionRequest struct {
	Secret string `json:"secret"`
}

// CreatePaymentRequestRequest is the POST bunqme-tab body.
type CreatePaymentRequestRequest struct {
	Entry PaymentRequestEntry `json:"bunqme_tab_entry"`
}

// PaymentRequestEntry describes what a payment request asks for.
type PaymentRequestEntry struct {
	AmountInquired Amount `json:"amount_inquired"`
	Description    string `json:"description"`
	RedirectURL    string `json:"redirect_url,omitempty"`
}

// UpdatePaymentRequestRequest is the PUT bunqme-tab body.
type UpdatePaymentRequestRequest struct {
	Status PaymentRequestStatus `json:"status"`
}

// ID is the object under "Id" returned by create and update calls.
type ID struct {
	ID int64 `json:"id"`
}

// IDResponse is the {"Id": {...}} element.
type IDResponse struct {
	ID *ID `json:"Id"`
}

// Token is the {"Token": {...}} element of installation and session responses.
type Token struct {
	ID      int64     `json:"id"`
	Created Timestamp `json:"created"`
	Updated Timestamp `json:"updated"`
	Token   string    `json:"token"`
}

// ServerPublicKey is the {"ServerPublicKey": {...}} element of the installation response.
type ServerPublicKey struct {
	ServerPublicKey string `json:"server_public_key"`
}

// User is the tagged union the server uses for user objects; exactly one
// member is set.
type User struct {
	UserPerson  *UserPerson  `json:"UserPerson,omitempty"`
	UserCompany *UserCompany `json:"UserCompany,omitempty"`
	UserAPIKey  *UserAPIKey  `json:"UserApiKey,omitempty"`
}

// OwnerID returns the id of whichever user kind is set, and false when none is.
func (u User) OwnerID() (int64, bool) {
	switch {
	case u.UserPerson != nil:
		return u.UserPerson.ID, true
	case u.UserCompany != nil:
		return u.UserCompany.ID, true
	case u.UserAPIKey != nil:
		return u.UserAPIKey.ID, true
	default:
		return 0, false
	}
}

// DisplayName returns the display name of whichever user kind is set.
func (u User) DisplayName() string {
	switch {
	case u.UserPerson != nil:
		return u.UserPerson.DisplayName
	case u.UserCompany != nil:
		return u.UserCompany.DisplayName
	default:
		return ""
	}
}

type UserPerson struct {
	ID          int64     `json:"id"`
	Created     Timestamp `json:"created"`
	Updated     Timestamp `json:"updated"`
	PublicUUID  string    `json:"public_uuid"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
}

type UserCompany struct {
	ID          int64     `json:"id"`
	Created     Timestamp `json:"created"`
	Updated     Timestamp `json:"updated"`
	PublicUUID  string    `json:"public_uuid"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
}

type UserAPIKey struct {
	ID      int64     `json:"id"`
	Created Timestamp `json:"created"`
	Updated Timestamp `json:"updated"`
}

// MonetaryAccountBankWrapper is the {"MonetaryAccountBank": {...}} element.
type MonetaryAccountBankWrapper struct {
	MonetaryAccountBank *MonetaryAccountBank `json:"MonetaryAccountBank"`
}

// MonetaryAccountBank is a regular bank account.
type MonetaryAccountBank struct {
	ID          int64     `json:"id"`
	Created     Timestamp `json:"created"`
	Updated     Timestamp `json:"updated"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Balance     Amount    `json:"balance"`
	Status      string    `json:"status"`
	Alias       []Pointer `json:"alias"`
}

// IBAN returns the IBAN alias of the account, if it has one.
func (a MonetaryAccountBank) IBAN() string {
	for _, alias := range a.Alias {
		if alias.Type == "IBAN" {
			return alias.Value
		}
	}
	return ""
}

// Pointer is an account alias (IBAN, email, phone number).
type Pointer struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// PaymentRequestWrapper is the {"BunqMeTab": {...}} element.
type PaymentRequestWrapper struct {
	PaymentRequest *PaymentRequest `json:"BunqMeTab"`
}

// PaymentRequest is a shareable request for payment into an account.
type PaymentRequest struct {
	ID                int64                `json:"id"`
	Created           Timestamp            `json:"created"`
	Updated           Timestamp            `json:"updated"`
	TimeExpiry        Timestamp            `json:"time_expiry"`
	MonetaryAccountID int64                `json:"monetary_account_id"`
	Status            PaymentRequestStatus `json:"status"`
	ShareURL          string               `json:"bunqme_tab_share_url"`
	Entry             *PaymentRequestEntry `json:"bunqme_tab_entry,omitempty"`
}

// PaymentRequestStatus is the lifecycle state of a payment request.
type PaymentRequestStatus string

const (
	PaymentRequestWaiting   PaymentRequestStatus = "WAITING_FOR_PAYMENT"
	PaymentRequestCancelled PaymentRequestStatus = "CANCELLED"
	PaymentRequestExpired   PaymentRequestStatus = "EXPIRED"
	PaymentRequestPaid      PaymentRequestStatus = "PAID"
)

func (s *PaymentRequestStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch status := PaymentRequestStatus(raw); status {
	case PaymentRequestWaiting, PaymentRequestCancelled, PaymentRequestExpired, PaymentRequestPaid:
		*s = status
		return nil
	default:
		return fmt.Errorf("invalid payment request status %q", raw)
	}
}

// Amount is a monetary value. The server exchanges values as decimal strings.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

type amountJSON struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// MarshalJSON always writes two fractional digits, as the server expects.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Value: a.Value.StringFixed(2), Currency: a.Currency})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw amountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// a missing or null value is zero, as is a null amount
	if raw.Value == "" {
		a.Value = decimal.Zero
		a.Currency = raw.Currency
		return nil
	}

	value, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("invalid amount value %q: %w", raw.Value, err)
	}

	a.Value = value
	a.Currency = raw.Currency
	return nil
}

// String renders the amount as "12.50 EUR".
func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// TimestampLayout is the server's timestamp format (UTC, microseconds).
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Timestamp is a time in the server's layout.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		t.Time = time.Time{}
		return nil
	}

	// Fractional seconds are optional on input
	parsed, err := time.Parse("2006-01-02 15:04:05.999999", raw)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}
