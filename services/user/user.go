// Package user defines UserService. It exposes only the fleet routes.
package user

import "github.com/shopfleet/service_layer/services/common/service"

const (
	ID      = "user"
	Name    = "UserService"
	Version = "v1"
)

// Routes returns UserService's routing table, which is empty.
func Routes() []service.Route {
	return nil
}
