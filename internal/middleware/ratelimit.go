package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/logging"
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
	// CleanupSpec is the cron schedule for dropping idle limiters.
	CleanupSpec string
	// SkipPaths are never limited; orchestrator probes must always get through.
	SkipPaths []string
	// OnReject is called for every rejected request.
	OnReject func(r *http.Request)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client address.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	skipPaths map[string]bool
	onReject  func(r *http.Request)
	logger    *logging.Logger

	cron *cron.Cron
	now  func() time.Time
}

// NewRateLimiter creates a rate limiter. It does not schedule cleanup until
// Start is called.
func NewRateLimiter(cfg RateLimiterConfig, logger *logging.Logger) (*RateLimiter, error) {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	spec := cfg.CleanupSpec
	if spec == "" {
		spec = "@every 1m"
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	rl := &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Limit(cfg.RequestsPerSecond),
		burst:     burst,
		idleTTL:   idle,
		skipPaths: skip,
		onReject:  cfg.OnReject,
		logger:    logger,
		cron:      cron.New(),
		now:       time.Now,
	}
	if _, err := rl.cron.AddFunc(spec, rl.Cleanup); err != nil {
		return nil, svcerrors.WrapConfiguration(err, "invalid rate limiter cleanup schedule")
	}
	return rl, nil
}

// Start schedules periodic cleanup.
func (rl *RateLimiter) Start() {
	rl.cron.Start()
}

// Stop halts the cleanup schedule and waits for a running cleanup to finish.
func (rl *RateLimiter) Stop() {
	<-rl.cron.Stop().Done()
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter.Allow()
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		if !rl.allow(key) {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			if rl.onReject != nil {
				rl.onReject(r)
			}
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, svcerrors.RateLimitExceeded(int(rl.rate), "1s"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops limiters that have been idle longer than the TTL.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Size returns the number of tracked clients.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
