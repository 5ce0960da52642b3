// Package service provides the shared builder and lifecycle for every fleet
// service instance.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/shopfleet/service_layer/internal/descriptor"
	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/fleet"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/identity"
	"github.com/shopfleet/service_layer/internal/logging"
	"github.com/shopfleet/service_layer/internal/metrics"
	"github.com/shopfleet/service_layer/internal/middleware"
	"github.com/shopfleet/service_layer/internal/status"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Route is one entry of a service's static routing table.
type Route struct {
	Method  string
	Path    string
	Summary string
	Handler http.HandlerFunc
}

// RateLimitConfig enables per-client rate limiting when RequestsPerSecond > 0.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// Config describes an instance. Only Identity is required.
type Config struct {
	Identity identity.Identity
	Routes   []Route

	// Convention defaults to fleet.DefaultConvention.
	Convention fleet.Convention
	// Status defaults to a status.Reporter for Identity.
	Status status.Source
	// Stats adds service-specific values to the info endpoint.
	Stats func() map[string]any

	Logger      *logging.Logger
	Environment string
	DocsEnabled bool
	RateLimit   RateLimitConfig

	// Addr is the listen address, for example ":8081" or "127.0.0.1:0".
	Addr         string
	// Listener, when set, is served instead of listening on Addr.
	Listener     net.Listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Instance is one running copy of a service.
type Instance struct {
	id          identity.Identity
	instanceID  string
	conv        fleet.Convention
	environment string

	status     status.Source
	descriptor *descriptor.Descriptor
	document   []byte
	statsFn    func() map[string]any

	logger  *logging.Logger
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	proc    *process.Process

	router  *mux.Router
	handler http.Handler
	server  *http.Server

	state     atomic.Uint32
	listener  net.Listener
	preset    net.Listener
	addr      string
	startTime time.Time
	errCh     chan error

	mu       sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// New validates cfg and builds an instance in the Initializing state. Any
// configuration problem is returned as a configuration error and nothing is
// bound.
func New(cfg Config) (*Instance, error) {
	id := cfg.Identity
	if id.IsZero() {
		return nil, svcerrors.Configuration("service identity is required")
	}

	conv := cfg.Convention.WithDefaults()
	if err := conv.Validate(); err != nil {
		return nil, err
	}

	if cfg.DocsEnabled && cfg.Environment == "production" {
		return nil, svcerrors.Configuration("%s: API document must not be served in production", id.Name())
	}

	ops := make([]descriptor.Operation, 0, len(cfg.Routes))
	for i, r := range cfg.Routes {
		if r.Handler == nil {
			return nil, svcerrors.Configuration("%s: route %d (%s %s) has no handler", id.Name(), i, r.Method, r.Path)
		}
		ops = append(ops, descriptor.Operation{
			Method:  descriptor.Method(r.Method),
			Path:    r.Path,
			Summary: r.Summary,
		})
	}

	desc, err := descriptor.Build(id, ops, descriptor.Options{
		Prefix:   conv.OperationPrefix,
		Reserved: conv.Reserved(id),
	})
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault(id.Name())
	}

	s := &Instance{
		id:          id,
		instanceID:  uuid.NewString(),
		conv:        conv,
		environment: cfg.Environment,
		status:      cfg.Status,
		descriptor:  desc,
		statsFn:     cfg.Stats,
		logger:      logger,
		metrics:     metrics.New(id.Name()),
		addr:        cfg.Addr,
		preset:      cfg.Listener,
		errCh:       make(chan error, 1),
	}
	if s.status == nil {
		s.status = status.NewReporter(id)
	}

	if cfg.DocsEnabled {
		doc, err := descriptor.BuildDocument(desc, conv.Standard(id))
		if err != nil {
			return nil, err
		}
		s.document = doc
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			SkipPaths:         []string{conv.StatusPath, conv.MetricsPath},
			OnReject:          func(*http.Request) { s.metrics.RecordRejection("rate_limited") },
		}, logger)
		if err != nil {
			return nil, err
		}
		s.limiter = limiter
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}

	s.router = mux.NewRouter()
	if err := s.registerRoutes(cfg.Routes); err != nil {
		return nil, err
	}
	s.handler = s.buildChain()

	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  durationOr(cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout: durationOr(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  durationOr(cfg.IdleTimeout, defaultIdleTimeout),
	}

	s.setState(StateInitializing)
	return s, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// buildChain wraps the router with the instance-wide middleware. Recovery is
// outermost so a panic anywhere below only fails its own request.
func (s *Instance) buildChain() http.Handler {
	var h http.Handler = s.router
	if s.limiter != nil {
		h = s.limiter.Handler(h)
	}
	h = s.gate(h)
	h = middleware.LoggingMiddleware(s.logger)(h)
	return middleware.Recovery(s.logger)(h)
}

// gate rejects requests that arrive while the instance is not Ready.
func (s *Instance) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := s.State()
		if !current.Serving() {
			s.metrics.RecordRejection(current.String())
			w.Header().Set("Connection", "close")
			httputil.WriteError(w, svcerrors.Unavailable(current.String()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Identity returns the instance identity.
func (s *Instance) Identity() identity.Identity { return s.id }

// InstanceID is unique per process start.
func (s *Instance) InstanceID() string { return s.instanceID }

// Convention returns the convention the instance was built with.
func (s *Instance) Convention() fleet.Convention { return s.conv }

// Descriptor returns the capability descriptor built at startup.
func (s *Instance) Descriptor() *descriptor.Descriptor { return s.descriptor }

// Metrics returns the instance metrics.
func (s *Instance) Metrics() *metrics.Metrics { return s.metrics }

// Logger returns the instance logger.
func (s *Instance) Logger() *logging.Logger { return s.logger }

// Router exposes the mux router for tests and embedding.
func (s *Instance) Router() *mux.Router { return s.router }

// Handler returns the full middleware chain in front of the router.
func (s *Instance) Handler() http.Handler { return s.handler }

// DocsEnabled reports whether the API document is served.
func (s *Instance) DocsEnabled() bool { return s.document != nil }

// State returns the current lifecycle state.
func (s *Instance) State() State {
	return State(s.state.Load())
}

func (s *Instance) setState(next State) {
	s.state.Store(uint32(next))
	s.metrics.SetState(next.String(), stateNames)
}

// transition moves from one state to the next and reports whether it did.
func (s *Instance) transition(from, to State) bool {
	if !s.state.CompareAndSwap(uint32(from), uint32(to)) {
		return false
	}
	s.metrics.SetState(to.String(), stateNames)
	s.logger.Entry().WithField("state", to.String()).Info("instance state changed")
	return true
}

// FleetMember describes the instance for fleet.Validate.
func (s *Instance) FleetMember() fleet.Member {
	return fleet.Member{
		Identity:       s.id,
		StatusPath:     s.conv.StatusPath,
		DescriptorPath: s.conv.DescriptorPath(s.id.Name()),
		Schemas:        descriptor.SharedSchemas(),
	}
}

// Start binds the listener and begins serving. It returns once the listener
// is bound; serve errors are reported on Errors.
func (s *Instance) Start(ctx context.Context) error {
	if s.State() != StateInitializing {
		return fmt.Errorf("%s: start called in state %s", s.id.Name(), s.State())
	}

	ln := s.preset
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("%s: listen on %q: %w", s.id.Name(), s.addr, err)
		}
	}

	s.mu.Lock()
	s.listener = ln
	s.startTime = time.Now()
	s.mu.Unlock()

	// Requests must outlive a cancelled start context so draining can finish.
	base := context.WithoutCancel(ctx)
	s.server.BaseContext = func(net.Listener) context.Context { return base }

	if s.limiter != nil {
		s.limiter.Start()
	}

	if !s.transition(StateInitializing, StateReady) {
		_ = ln.Close()
		return fmt.Errorf("%s: instance stopped during start", s.id.Name())
	}

	s.logger.Entry().WithFields(map[string]interface{}{
		"addr":        ln.Addr().String(),
		"version":     s.id.Version(),
		"instance_id": s.instanceID,
	}).Info("service listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Entry().WithError(err).Error("server stopped unexpectedly")
			s.errCh <- err
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Instance) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors delivers an unexpected serve failure.
func (s *Instance) Errors() <-chan error {
	return s.errCh
}

// Drain stops admitting new requests. Requests already admitted run to
// completion. It reports whether the instance moved to Draining.
func (s *Instance) Drain() bool {
	if !s.transition(StateReady, StateDraining) {
		return false
	}
	s.server.SetKeepAlivesEnabled(false)
	return true
}

// Shutdown drains the instance, waits for in-flight requests until ctx is
// done, and closes the listener. It is safe to call more than once.
func (s *Instance) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.Drain()

		s.mu.Lock()
		started := s.listener != nil
		s.mu.Unlock()

		if started {
			if err := s.server.Shutdown(ctx); err != nil {
				s.stopErr = fmt.Errorf("%s: shutdown: %w", s.id.Name(), err)
				_ = s.server.Close()
			}
		}
		if s.limiter != nil {
			s.limiter.Stop()
		}

		prev := s.State()
		s.setState(StateStopped)
		s.logger.Entry().WithFields(map[string]interface{}{
			"from":  prev.String(),
			"state": StateStopped.String(),
		}).Info("instance state changed")
	})
	return s.stopErr
}
