package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shopfleet/service_layer/internal/logging"
	"github.com/shopfleet/service_layer/services"
)

func missingManifest(t *testing.T) string {
	return filepath.Join(t.TempDir(), "services.yaml")
}

func TestRun_Schema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--schema"}, &out))
	assert.True(t, gjson.Get(out.String(), "StatusResponse").Exists())
	assert.True(t, gjson.Get(out.String(), "CapabilityDescriptor").Exists())
}

func TestRun_ValidatesCatalog(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--manifest", missingManifest(t)}, &out))
	assert.Contains(t, out.String(), "OrderService")
	assert.Contains(t, out.String(), "/api/product/describe")
	assert.Contains(t, out.String(), "UserService")
}

func TestRun_BadFlag(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run([]string{"--nope"}, &out))
}

func TestRun_Probe(t *testing.T) {
	logger := logging.New("test", logging.LoggingConfig{Level: "error"})
	logger.SetOutput(io.Discard)

	var probeArg string
	for _, id := range []string{"order", "user"} {
		def, _ := services.Lookup(id)
		inst, err := services.Build(def, services.Options{Addr: "127.0.0.1:0", Logger: logger})
		require.NoError(t, err)
		require.NoError(t, inst.Start(context.Background()))
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = inst.Shutdown(ctx)
		})
		if probeArg != "" {
			probeArg += ","
		}
		probeArg += id + "=http://" + inst.Addr()
	}

	var out bytes.Buffer
	require.NoError(t, run([]string{"--manifest", missingManifest(t), "--probe", probeArg}, &out))
	assert.Contains(t, out.String(), "up    OrderService")
	assert.Regexp(t, `up    OrderService\s+UP ops=1 `, out.String())
	assert.Regexp(t, `up    UserService\s+UP ops=0 `, out.String())
	assert.Contains(t, out.String(), "up    UserService")
}

func TestRun_ProbeUnreachable(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{
		"--manifest", missingManifest(t),
		"--probe", "order=http://127.0.0.1:1",
		"--timeout", "200ms",
		"--retries", "0",
	}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "down  OrderService")
}
