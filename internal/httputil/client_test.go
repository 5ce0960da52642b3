package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopfleet/service_layer/internal/logging"
)

// =============================================================================
// ServiceClient Tests
// =============================================================================

func TestNewServiceClient_Defaults(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{BaseURL: "http://localhost:8080/"})

	if client.BaseURL() != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.BaseURL())
	}
	if client.maxRetries != 0 {
		t.Errorf("default maxRetries = %d, want 0", client.maxRetries)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("default timeout = %v", client.httpClient.Timeout)
	}
}

func TestServiceClient_GetForwardsTraceID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("X-Trace-ID"); got != "trace-xyz" {
			t.Errorf("X-Trace-ID = %q", got)
		}
		WriteJSON(w, http.StatusOK, map[string]string{"state": "UP"})
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})
	ctx := logging.WithTraceID(context.Background(), "trace-xyz")

	resp, err := client.Get(ctx, "/api/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var body map[string]string
	if err := DecodeResponse(resp, &body); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if body["state"] != "UP" {
		t.Errorf("state = %q, want UP", body["state"])
	}
}

func TestServiceClient_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		rec := httptest.NewRecorder()
		WriteText(rec, http.StatusOK, "ok")
		return rec.Result(), nil
	})

	client := NewServiceClient(ServiceClientConfig{
		BaseURL:    "http://member",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Transport:  transport,
	})

	resp, err := client.Get(context.Background(), "/api/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestServiceClient_GivesUpAfterRetries(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client := NewServiceClient(ServiceClientConfig{
		BaseURL:    "http://member",
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Transport:  transport,
	})

	if _, err := client.Get(context.Background(), "/api/health"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeResponse_ErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusServiceUnavailable, map[string]string{"error": "draining"})

	err := DecodeResponse(rec.Result(), &map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status 503", err)
	}
}

func TestReadAllStrict_TooLarge(t *testing.T) {
	_, err := ReadAllStrict(strings.NewReader("abcdef"), 3)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}

	body, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 3)
	if err != nil || !truncated || string(body) != "abc" {
		t.Fatalf("ReadAllWithLimit = %q, %v, %v", body, truncated, err)
	}
}

func TestDecodeResponse_NilTarget(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = json.NewEncoder(rec).Encode(map[string]string{"a": "b"})
	if err := DecodeResponse(rec.Result(), nil); err != nil {
		t.Fatalf("err = %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
