// Package main provides the generic entry point for every fleet service.
// The service is selected by the SERVICE_TYPE environment variable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopfleet/service_layer/internal/config"
	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/logging"
	"github.com/shopfleet/service_layer/services"
	"github.com/shopfleet/service_layer/services/common/service"
)

const defaultPort = 8080

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault("service").WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inst, enabled, err := build(cfg, func(service string) *logging.Logger {
		return logging.New(service, cfg.Logging())
	})
	if err != nil {
		logging.New("service", cfg.Logging()).WithError(err).WithField("service_type", cfg.ServiceType).
			Error("service failed to initialize")
		stop()
		os.Exit(1)
	}
	if !enabled {
		logging.New("service", cfg.Logging()).WithField("service_type", cfg.ServiceType).
			Info("service is disabled in configuration, exiting")
		return
	}

	if err := run(ctx, inst, cfg.ShutdownTimeout); err != nil {
		inst.Logger().Entry().WithError(err).Error("service failed")
		stop()
		os.Exit(1)
	}
}

// run serves inst until ctx is cancelled or the server fails, then shuts it
// down. A server failure is returned after shutdown so the process exits
// non-zero.
func run(ctx context.Context, inst *service.Instance, shutdownTimeout time.Duration) error {
	logger := inst.Logger()
	if err := inst.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Entry().Info("shutdown signal received")
	case serveErr = <-inst.Errors():
		logger.Entry().WithError(serveErr).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := inst.Shutdown(shutdownCtx)

	if serveErr != nil {
		return errors.Join(fmt.Errorf("serve: %w", serveErr), shutdownErr)
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Entry().Info("service stopped")
	return nil
}

// build resolves SERVICE_TYPE against the catalog and the fleet manifest.
// A service disabled in the manifest is not an error.
// The logger is named after the resolved service name.
func build(cfg *config.Config, newLogger func(service string) *logging.Logger) (*service.Instance, bool, error) {
	if cfg.ServiceType == "" {
		return nil, false, svcerrors.Configuration("SERVICE_TYPE is required; available services: %v", services.IDs())
	}
	def, ok := services.Lookup(cfg.ServiceType)
	if !ok {
		return nil, false, svcerrors.Configuration("unknown service %q; available services: %v", cfg.ServiceType, services.IDs())
	}

	manifest, err := config.LoadServicesConfigOrDefault(cfg.ServicesConfig)
	if err != nil {
		return nil, false, err
	}
	settings, listed := manifest.GetSettings(def.ID)
	if !listed || !settings.Enabled {
		return nil, false, nil
	}

	port := defaultPort
	if settings.Port > 0 {
		port = settings.Port
	}

	name := def.Name
	if cfg.ServiceName != "" {
		name = cfg.ServiceName
	}

	inst, err := services.Build(def, services.Options{
		Name:        name,
		Version:     cfg.ServiceVersion,
		Convention:  manifest.FleetConvention(),
		Logger:      newLogger(name),
		Environment: cfg.Environment,
		DocsEnabled: cfg.DocsEnabled,
		RateLimit: service.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Addr: cfg.Addr(port),
	})
	if err != nil {
		return nil, false, fmt.Errorf("build %s: %w", def.ID, err)
	}
	return inst, true, nil
}
