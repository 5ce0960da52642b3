package fleet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfleet/service_layer/internal/descriptor"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/identity"
	"github.com/shopfleet/service_layer/internal/status"
)

func newMemberServer(t *testing.T, conv Convention, name string, ops []descriptor.Operation) *httptest.Server {
	t.Helper()
	id := identity.MustNew(name, "v1")
	d, err := descriptor.Build(id, ops, descriptor.Options{})
	require.NoError(t, err)

	r := mux.NewRouter()
	r.HandleFunc(conv.StatusPath, status.Handler(status.NewReporter(id))).Methods(http.MethodGet)
	r.HandleFunc(conv.DescriptorPath(name), descriptor.Handler(d)).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestProber_ConformingMembers(t *testing.T) {
	conv := DefaultConvention()
	order := newMemberServer(t, conv, "OrderService", []descriptor.Operation{
		{Method: descriptor.MethodGet, Path: "/api/test/getmagicnumber"},
	})
	user := newMemberServer(t, conv, "UserService", nil)

	results := NewProber(conv, ProberConfig{}).Probe(context.Background(), []Target{
		{Name: "OrderService", BaseURL: order.URL},
		{Name: "UserService", BaseURL: user.URL},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Healthy())
	assert.Equal(t, "OrderService is running...", results[0].Message)
	assert.Equal(t, 1, results[0].Operations)
	assert.Equal(t, 0, results[1].Operations)
	assert.Equal(t, []string{"message", "service", "state"}, results[1].StatusFields)
	assert.NoError(t, CheckConsistency(results))
}

func TestProber_UnreachableMember(t *testing.T) {
	conv := DefaultConvention()
	srv := newMemberServer(t, conv, "OrderService", nil)
	url := srv.URL
	srv.Close()

	results := NewProber(conv, ProberConfig{}).Probe(context.Background(), []Target{{Name: "OrderService", BaseURL: url}})
	require.Error(t, results[0].Err)
	assert.False(t, results[0].Healthy())
	assert.Error(t, CheckConsistency(results))
}

func TestProber_NonConformingMember(t *testing.T) {
	conv := DefaultConvention()
	good := newMemberServer(t, conv, "OrderService", nil)

	odd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case conv.StatusPath:
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": "UP", "message": "UserService is running...", "uptime": "1s"})
		case conv.DescriptorPath("UserService"):
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"service": "UserService", "version": "v1", "operations": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer odd.Close()

	results := NewProber(conv, ProberConfig{}).Probe(context.Background(), []Target{
		{Name: "OrderService", BaseURL: good.URL},
		{Name: "UserService", BaseURL: odd.URL},
	})

	err := CheckConsistency(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserService: status fields")
}

func TestProber_MissingDescriptor(t *testing.T) {
	conv := DefaultConvention()
	srv := newMemberServer(t, conv, "OrderService", nil)

	// Probing under the wrong name hits a descriptor path the member does not serve.
	results := NewProber(conv, ProberConfig{}).Probe(context.Background(), []Target{{Name: "ProductService", BaseURL: srv.URL}})
	assert.Equal(t, http.StatusNotFound, results[0].DescribeCode)
	assert.False(t, results[0].Healthy())
}
