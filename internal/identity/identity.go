// Package identity holds the immutable name and version of a service instance.
package identity

import (
	"strings"
	"unicode"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
)

const nameSuffix = "Service"

// Identity names one deployable service. It is built once at process start
// and never changes.
type Identity struct {
	name    string
	version string
}

// New validates and returns an Identity. Missing fields are configuration
// errors.
func New(name, version string) (Identity, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)

	if name == "" {
		return Identity{}, svcerrors.Configuration("service name is required")
	}
	if version == "" {
		return Identity{}, svcerrors.Configuration("service version is required for %s", name)
	}
	if slugOf(name) == "" {
		return Identity{}, svcerrors.Configuration("service name %q has no usable characters", name)
	}
	return Identity{name: name, version: version}, nil
}

// MustNew is New for package-level definitions that are known to be valid.
func MustNew(name, version string) Identity {
	id, err := New(name, version)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identity) Name() string    { return i.name }
func (i Identity) Version() string { return i.version }

// IsZero reports whether the identity was never initialised.
func (i Identity) IsZero() bool {
	return i.name == ""
}

// Slug is the lower-case path segment for the service: "OrderService" -> "order".
func (i Identity) Slug() string {
	return slugOf(i.name)
}

// SlugFor returns the path segment for a service name without building an
// Identity.
func SlugFor(name string) string {
	return slugOf(strings.TrimSpace(name))
}

// Title is the API document title, "<Name> API".
func (i Identity) Title() string {
	return i.name + " API"
}

// RunningMessage is the status message for the service.
func (i Identity) RunningMessage() string {
	return i.name + " is running..."
}

func (i Identity) String() string {
	return i.name + "@" + i.version
}

func slugOf(name string) string {
	base := name
	if trimmed := strings.TrimSuffix(name, nameSuffix); trimmed != "" {
		base = trimmed
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
