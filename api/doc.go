/*
Package api defines the wire types and endpoint paths of the bank API.

Subpackages implement the protocol on top of them:

 1. envelope - decoding of the Response/Error/Pagination envelope
 2. messenger - signed request/response exchange with rate limit retries
 3. clients - the session client used by applications

Request bodies are plain structs (CreateInstallationRequest,
CreateDeviceServerRequest, CreateSessionRequest, CreatePaymentRequestRequest,
UpdatePaymentRequestRequest). Response elements are wrapped in a single key
naming their type, e.g. {"MonetaryAccountBank": {...}}, and are decoded into
the matching *Wrapper types.

Amounts travel as decimal strings and are held as shopspring/decimal values.
Timestamps use the server layout "2006-01-02 15:04:05.000000" in UTC.
*/
package api
