// Package status answers liveness queries for a service instance.
package status

import (
	"net/http"

	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/identity"
)

// State is the reported liveness state. A live process always reports UP;
// an instance that cannot answer is detected by the caller's transport.
type State string

const StateUp State = "UP"

// Response is the body of the status endpoint.
type Response struct {
	Service string `json:"service" jsonschema:"required"`
	State   State  `json:"state" jsonschema:"required,enum=UP"`
	Message string `json:"message" jsonschema:"required"`
}

// Source produces status responses. Reporter is the standard implementation.
type Source interface {
	Status() Response
}

// Reporter builds a fresh Response per call from an immutable identity.
type Reporter struct {
	id identity.Identity
}

// NewReporter returns a reporter for id.
func NewReporter(id identity.Identity) *Reporter {
	return &Reporter{id: id}
}

// Status returns the current status. It has no side effects.
func (r *Reporter) Status() Response {
	return Response{
		Service: r.id.Name(),
		State:   StateUp,
		Message: r.id.RunningMessage(),
	}
}

// Handler serves src as JSON, or as the bare message when the caller asks for
// text/plain.
func Handler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := src.Status()
		if httputil.WantsPlainText(r) {
			httputil.WriteText(w, http.StatusOK, resp.Message)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
