// Package httputil provides the response helpers and HTTP client shared by
// fleet services and fleet tooling.
package httputil

import (
	"encoding/json"
	"net/http"
	"strings"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error *svcerrors.ServiceError `json:"error"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRawJSON writes pre-encoded JSON with the given status.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteText writes a plain text body with the given status.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// WriteError answers with err's HTTP status and a structured body. Errors that
// are not ServiceErrors become a 500 without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	se, ok := svcerrors.As(err)
	if !ok {
		se = svcerrors.Internal(err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorResponse{Error: se})
}

// BadRequest answers 400 with message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, svcerrors.BadRequest(message))
}

// InternalError answers 500.
func InternalError(w http.ResponseWriter, err error) {
	WriteError(w, svcerrors.Internal(err))
}

// WantsPlainText reports whether the caller prefers text/plain over JSON.
func WantsPlainText(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	return mediaRank(accept, "text/plain") > mediaRank(accept, "application/json")
}

// mediaRank returns a rough preference for media type in an Accept header:
// its position from the front, or -1 when absent. Quality values are ignored.
func mediaRank(accept, media string) int {
	parts := strings.Split(accept, ",")
	for i, part := range parts {
		if j := strings.IndexByte(part, ';'); j >= 0 {
			part = part[:j]
		}
		if strings.EqualFold(strings.TrimSpace(part), media) {
			return len(parts) - i
		}
	}
	return -1
}
