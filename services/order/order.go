// Package order defines OrderService.
package order

import (
	"net/http"

	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/services/common/service"
)

const (
	ID      = "order"
	Name    = "OrderService"
	Version = "v1"
)

// MagicNumber is what the diagnostics operation answers with.
const MagicNumber = 42

// Routes returns OrderService's routing table.
func Routes() []service.Route {
	return []service.Route{
		{
			Method:  http.MethodGet,
			Path:    "/api/test/getmagicnumber",
			Summary: "Returns a fixed number for smoke tests",
			Handler: handleGetMagicNumber,
		},
	}
}

func handleGetMagicNumber(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, MagicNumber)
}
