// Package product defines ProductService. It exposes only the fleet routes.
package product

import "github.com/shopfleet/service_layer/services/common/service"

const (
	ID      = "product"
	Name    = "ProductService"
	Version = "v1"
)

// Routes returns ProductService's routing table, which is empty.
func Routes() []service.Route {
	return nil
}
