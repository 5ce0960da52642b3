// Package services lists every service in the fleet and builds instances of
// them.
package services

import (
	"sort"

	"github.com/shopfleet/service_layer/internal/fleet"
	"github.com/shopfleet/service_layer/internal/identity"
	"github.com/shopfleet/service_layer/internal/logging"
	"github.com/shopfleet/service_layer/services/common/service"
	"github.com/shopfleet/service_layer/services/order"
	"github.com/shopfleet/service_layer/services/product"
	"github.com/shopfleet/service_layer/services/user"
)

// Definition is the static description of one service.
type Definition struct {
	ID      string
	Name    string
	Version string
	Routes  func() []service.Route
}

var catalog = map[string]Definition{
	order.ID:   {ID: order.ID, Name: order.Name, Version: order.Version, Routes: order.Routes},
	product.ID: {ID: product.ID, Name: product.Name, Version: product.Version, Routes: product.Routes},
	user.ID:    {ID: user.ID, Name: user.Name, Version: user.Version, Routes: user.Routes},
}

// Lookup returns the definition registered under id.
func Lookup(id string) (Definition, bool) {
	def, ok := catalog[id]
	return def, ok
}

// IDs returns every registered service ID, sorted.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options are the deployment settings applied on top of a Definition.
type Options struct {
	// Name and Version override the definition's identity when set.
	Name    string
	Version string

	Convention  fleet.Convention
	Logger      *logging.Logger
	Environment string
	DocsEnabled bool
	RateLimit   service.RateLimitConfig
	Addr        string
}

// Build creates an instance of def in the Initializing state.
func Build(def Definition, opts Options) (*service.Instance, error) {
	name := def.Name
	if opts.Name != "" {
		name = opts.Name
	}
	version := def.Version
	if opts.Version != "" {
		version = opts.Version
	}

	id, err := identity.New(name, version)
	if err != nil {
		return nil, err
	}

	var routes []service.Route
	if def.Routes != nil {
		routes = def.Routes()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefault(id.Name())
	}

	return service.New(service.Config{
		Identity:    id,
		Routes:      routes,
		Convention:  opts.Convention,
		Logger:      logger,
		Environment: opts.Environment,
		DocsEnabled: opts.DocsEnabled,
		RateLimit:   opts.RateLimit,
		Addr:        opts.Addr,
	})
}

// Members builds every catalog service without starting it and returns their
// fleet declarations.
func Members(conv fleet.Convention, logger *logging.Logger) ([]fleet.Member, error) {
	members := make([]fleet.Member, 0, len(catalog))
	for _, id := range IDs() {
		inst, err := Build(catalog[id], Options{Convention: conv, Logger: logger})
		if err != nil {
			return nil, err
		}
		members = append(members, inst.FleetMember())
	}
	return members, nil
}
