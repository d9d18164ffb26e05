package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cryptoutils"
)

type ownerKey struct{}

func withOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

func ownerFrom(ctx context.Context) int64 {
	ownerID, _ := ctx.Value(ownerKey{}).(int64)
	return ownerID
}

type responseEnvelope struct {
	Response   []any                `json:"Response"`
	Pagination *envelope.Pagination `json:"Pagination,omitempty"`
}

type errorEnvelope struct {
	Error []envelope.ErrorDescription `json:"Error"`
}

func (b *Bank) respond(w http.ResponseWriter, status int, elements []any, pagination *envelope.Pagination) {
	b.writeSigned(w, status, responseEnvelope{Response: elements, Pagination: pagination})
}

func (b *Bank) respondError(w http.ResponseWriter, status int, description string) {
	b.writeSigned(w, status, errorEnvelope{Error: []envelope.ErrorDescription{{
		Description:           description,
		TranslatedDescription: description,
	}}})
}

// writeSigned encodes v and signs the exact bytes written.
func (b *Bank) writeSigned(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		b.log.Error("Failed to encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	signature, err := cryptoutils.SignBody(b.key, body)
	if err != nil {
		b.log.Error("Failed to sign response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(messenger.ServerSignatureHeader, signature)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		b.log.Debug("Failed to write response", slog.String("err", err.Error()))
	}
}
