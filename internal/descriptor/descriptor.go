// Package descriptor builds the capability descriptor a service instance
// publishes: the ordered list of operations it exposes, validated once at
// startup and served unchanged for the rest of the process lifetime.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/identity"
)

// Method is an HTTP method an operation may be registered under.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
	MethodPatch  Method = http.MethodPatch
)

// Methods lists the accepted methods in canonical order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// Operation describes one externally callable operation.
type Operation struct {
	Method  Method `json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH" jsonschema:"enum=GET,enum=POST,enum=PUT,enum=DELETE,enum=PATCH"`
	Path    string `json:"path" validate:"required,startswith=/,excludesall=?#" jsonschema:"minLength=1,pattern=^/"`
	Summary string `json:"summary" validate:"max=200"`
}

// Key returns the (method, route) pair that must be unique per instance.
// Path variables are reduced to "{}" because the router matches
// "/widgets/{id}" and "/widgets/{name}" identically.
func (o Operation) Key() string {
	path, err := canonicalPath(o.Path)
	if err != nil {
		path = o.Path
	}
	return string(o.Method) + " " + path
}

func (o Operation) String() string {
	return string(o.Method) + " " + o.Path
}

// canonicalPath replaces every {name} or {name:pattern} section with {}.
// Braces inside a pattern must balance.
func canonicalPath(path string) (string, error) {
	var b strings.Builder
	depth := 0
	for _, c := range path {
		switch {
		case c == '{':
			if depth == 0 {
				b.WriteString("{}")
			}
			depth++
		case c == '}':
			if depth == 0 {
				return "", errors.New("unbalanced } in path template")
			}
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	if depth != 0 {
		return "", errors.New("unterminated { in path template")
	}
	return b.String(), nil
}

// CapabilityDescriptor is the wire form of a descriptor.
type CapabilityDescriptor struct {
	Service    string      `json:"service"`
	Version    string      `json:"version"`
	Operations []Operation `json:"operations"`
}

// Options constrain what Build accepts.
type Options struct {
	// Prefix every operation path must start with.
	Prefix string
	// Reserved operations belong to the fleet (status, describe, ...) and may
	// not be shadowed by service operations.
	Reserved []Operation
}

// Descriptor is immutable once built and safe for concurrent reads.
type Descriptor struct {
	id      identity.Identity
	ops     []Operation
	encoded []byte
}

var validate = validator.New()

// Build validates ops and returns the descriptor. Any invalid or duplicate
// operation is a configuration error; nothing is returned in that case.
func Build(id identity.Identity, ops []Operation, opts Options) (*Descriptor, error) {
	if id.IsZero() {
		return nil, svcerrors.Configuration("descriptor requires a service identity")
	}

	reserved := make(map[string]struct{}, len(opts.Reserved))
	for _, op := range opts.Reserved {
		reserved[normalize(op).Key()] = struct{}{}
	}

	seen := make(map[string]int, len(ops))
	normalized := make([]Operation, 0, len(ops))
	var problems []error

	for i, raw := range ops {
		op := normalize(raw)
		if err := checkOperation(op, opts.Prefix); err != nil {
			problems = append(problems, fmt.Errorf("operation %d (%s): %w", i, op, err))
			continue
		}
		if _, ok := reserved[op.Key()]; ok {
			problems = append(problems, fmt.Errorf("operation %d (%s): collides with a fleet route", i, op))
			continue
		}
		if prev, ok := seen[op.Key()]; ok {
			problems = append(problems, fmt.Errorf("operation %d (%s): duplicates operation %d", i, op, prev))
			continue
		}
		seen[op.Key()] = i
		normalized = append(normalized, op)
	}

	if len(problems) > 0 {
		return nil, svcerrors.WrapConfiguration(errors.Join(problems...),
			fmt.Sprintf("invalid operations for %s", id.Name()))
	}

	encoded, err := json.Marshal(CapabilityDescriptor{
		Service:    id.Name(),
		Version:    id.Version(),
		Operations: normalized,
	})
	if err != nil {
		return nil, svcerrors.WrapConfiguration(err, "encode capability descriptor")
	}

	return &Descriptor{id: id, ops: normalized, encoded: encoded}, nil
}

// Identity returns the identity the descriptor was built for.
func (d *Descriptor) Identity() identity.Identity {
	return d.id
}

// Describe returns a copy of the operations in registration order.
func (d *Descriptor) Describe() CapabilityDescriptor {
	ops := make([]Operation, len(d.ops))
	copy(ops, d.ops)
	return CapabilityDescriptor{
		Service:    d.id.Name(),
		Version:    d.id.Version(),
		Operations: ops,
	}
}

// Len returns the number of operations.
func (d *Descriptor) Len() int {
	return len(d.ops)
}

// JSON returns the encoding computed at build time. Callers must not modify
// the returned slice.
func (d *Descriptor) JSON() []byte {
	return d.encoded
}

// Handler serves the cached descriptor encoding.
func Handler(d *Descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteRawJSON(w, http.StatusOK, d.encoded)
	}
}

func normalize(op Operation) Operation {
	op.Method = Method(strings.ToUpper(strings.TrimSpace(string(op.Method))))
	op.Path = strings.TrimSpace(op.Path)
	op.Summary = strings.TrimSpace(op.Summary)
	return op
}

func checkOperation(op Operation, prefix string) error {
	if err := validate.Struct(op); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(fields, ", "))
		}
		return err
	}
	if strings.ContainsAny(op.Path, " \t\r\n") {
		return errors.New("path contains whitespace")
	}
	if _, err := canonicalPath(op.Path); err != nil {
		return err
	}
	if strings.Contains(op.Path, "//") {
		return errors.New("path contains an empty segment")
	}
	if prefix != "" && !strings.HasPrefix(op.Path, prefix) {
		return fmt.Errorf("path must start with %q", prefix)
	}
	return nil
}
