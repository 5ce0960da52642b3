package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"github.com/shopfleet/service_layer/internal/descriptor"
	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/middleware"
	"github.com/shopfleet/service_layer/internal/status"
)

// InfoResponse is the body of the info endpoint.
type InfoResponse struct {
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	InstanceID    string         `json:"instance_id"`
	State         string         `json:"state"`
	Environment   string         `json:"environment,omitempty"`
	Operations    int            `json:"operations"`
	StartedAt     string         `json:"started_at,omitempty"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Timestamp     string         `json:"timestamp"`
	Process       ProcessStats   `json:"process"`
	Statistics    map[string]any `json:"statistics,omitempty"`
}

// ProcessStats are host-level figures for the serving process.
type ProcessStats struct {
	PID        int     `json:"pid"`
	Goroutines int     `json:"goroutines"`
	Threads    int32   `json:"threads,omitempty"`
	RSSBytes   uint64  `json:"rss_bytes,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
}

// registerRoutes installs the fleet routes followed by the service's own
// routing table. A route the router cannot compile is a configuration error.
func (s *Instance) registerRoutes(routes []Route) error {
	r := s.router
	// Metrics wraps recovery so a panicking handler is still counted as a 500.
	r.Use(middleware.MetricsMiddleware(s.metrics), middleware.Recovery(s.logger))

	registered := []*mux.Route{
		r.HandleFunc(s.conv.StatusPath, status.Handler(s.status)).Methods(http.MethodGet),
		r.HandleFunc(s.conv.DescriptorPath(s.id.Name()), descriptor.Handler(s.descriptor)).Methods(http.MethodGet),
		r.HandleFunc(s.conv.InfoPath(s.id.Name()), s.infoHandler).Methods(http.MethodGet),
		r.Handle(s.conv.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet),
	}
	if s.document != nil {
		registered = append(registered,
			r.HandleFunc(s.conv.DocsPath(s.id), descriptor.DocumentHandler(s.document)).Methods(http.MethodGet))
	}

	// Build keeps every route in order or fails, so operations line up with
	// routes by index.
	for i, op := range s.descriptor.Describe().Operations {
		registered = append(registered,
			r.HandleFunc(op.Path, routes[i].Handler).Methods(string(op.Method)))
	}

	for _, route := range registered {
		if err := route.GetError(); err != nil {
			tpl, _ := route.GetPathTemplate()
			return svcerrors.WrapConfiguration(err, fmt.Sprintf("%s: route %q", s.id.Name(), tpl))
		}
	}

	unmatched := middleware.MetricsMiddleware(s.metrics)
	r.NotFoundHandler = unmatched(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, svcerrors.NotFound(req.URL.Path))
	}))
	r.MethodNotAllowedHandler = unmatched(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, svcerrors.MethodNotAllowed(req.Method, req.URL.Path))
	}))
	return nil
}

func (s *Instance) infoHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	resp := InfoResponse{
		Service:     s.id.Name(),
		Version:     s.id.Version(),
		InstanceID:  s.instanceID,
		State:       s.State().String(),
		Environment: s.environment,
		Operations:  s.descriptor.Len(),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Process:     s.processStats(),
	}
	if !started.IsZero() {
		resp.StartedAt = started.UTC().Format(time.RFC3339)
		resp.UptimeSeconds = now.Sub(started).Seconds()
	}
	if s.statsFn != nil {
		resp.Statistics = s.statsFn()
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Instance) processStats() ProcessStats {
	stats := ProcessStats{
		Goroutines: runtime.NumGoroutine(),
	}
	if s.proc == nil {
		return stats
	}
	stats.PID = int(s.proc.Pid)
	if mem, err := s.proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		stats.Threads = threads
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
