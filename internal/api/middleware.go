package api

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/inferloop/modelregistry/internal/api/responses"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
	"github.com/inferloop/modelregistry/pkg/errors"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// MiddlewareConfig holds configuration for all middleware
type MiddlewareConfig struct {
	EnableLogging   bool
	EnableSecurity  bool
	EnableRateLimit bool

	// RateLimitRequests is the sustained per-client rate per second
	RateLimitRequests float64
	RateLimitBurst    int

	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Other peers are keyed by RemoteAddr.
	TrustedProxies []string

	// JWTSecret enables bearer authentication of mutating requests
	JWTSecret string
}

// DefaultMiddlewareConfig returns default middleware configuration
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		EnableLogging:     true,
		EnableSecurity:    true,
		EnableRateLimit:   false,
		RateLimitRequests: 50,
		RateLimitBurst:    100,
	}
}

// ApplyMiddleware installs the enabled middleware on r. Request ids and
// panic recovery are always on.
func ApplyMiddleware(r *mux.Router, config *MiddlewareConfig, pm *metrics.PrometheusMetrics, logger *logrus.Logger) {
	proxies, err := ParseTrustedProxies(config.TrustedProxies)
	if err != nil {
		logger.WithError(err).Warn("Ignoring trusted proxies, forwarded headers will not be used")
		proxies = nil
	}
	clients := NewClientResolver(proxies)

	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(logger))

	if config.EnableLogging {
		r.Use(LoggingMiddleware(clients, logger))
	}
	if pm != nil {
		r.Use(MetricsMiddleware(pm))
	}
	if config.EnableSecurity {
		r.Use(SecurityMiddleware)
	}
	if config.EnableRateLimit {
		r.Use(RateLimitMiddleware(config.RateLimitRequests, config.RateLimitBurst, clients, logger))
	}
	if config.JWTSecret != "" {
		r.Use(AuthMiddleware([]byte(config.JWTSecret), logger))
	}
}

// RequestIDMiddleware propagates X-Request-ID, minting a UUID when absent
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(responses.WithRequestID(r.Context(), id)))
	})
}

// RecoveryMiddleware turns handler panics into 500 responses
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.WithFields(logrus.Fields{
						"request_id": responses.RequestID(r.Context()),
						"panic":      fmt.Sprint(p),
						"stack":      string(debug.Stack()),
					}).Error("Handler panicked")
					responses.WriteError(w, r, errors.NewInternalError("internal server error"), nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs every request with its status and latency
func LoggingMiddleware(clients *ClientResolver, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			logger.WithFields(logrus.Fields{
				"request_id":  responses.RequestID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapper.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": clients.ClientIP(r),
			}).Info("HTTP request")
		})
	}
}

// MetricsMiddleware records request counts and latencies per route template
func MetricsMiddleware(pm *metrics.PrometheusMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			pm.RecordHTTPRequest(r.Method, routeTemplate(r), strconv.Itoa(wrapper.statusCode), time.Since(start))
		})
	}
}

// SecurityMiddleware adds security headers
func SecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// limiterIdleTTL is the minimum time an idle client's bucket is kept
const limiterIdleTTL = 10 * time.Minute

// RateLimitMiddleware applies a token bucket per client address. Buckets
// idle for longer than they take to refill are evicted.
func RateLimitMiddleware(requestsPerSecond float64, burst int, clients *ClientResolver, logger *logrus.Logger) func(http.Handler) http.Handler {
	ttl := limiterIdleTTL
	if requestsPerSecond > 0 {
		if refill := time.Duration(float64(burst) / requestsPerSecond * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	limiters := cache.New(ttl, ttl/2)

	var mu sync.Mutex
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters.Get(key)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
		// re-set on every hit so only idle buckets expire
		limiters.Set(key, limiter, cache.DefaultExpiration)
		return limiter.(*rate.Limiter)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clients.ClientIP(r)
			if !limiterFor(ip).Allow() {
				logger.WithFields(logrus.Fields{
					"request_id": responses.RequestID(r.Context()),
					"ip":         ip,
					"path":       r.URL.Path,
				}).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", "1")
				responses.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ParseTrustedProxies parses CIDRs and bare addresses
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

// ClientResolver attributes a request to an address. Forwarding headers
// are honored only when the direct peer is a trusted proxy.
type ClientResolver struct {
	trusted []*net.IPNet
}

// NewClientResolver trusts forwarding headers from the given networks
func NewClientResolver(trusted []*net.IPNet) *ClientResolver {
	return &ClientResolver{trusted: trusted}
}

func (c *ClientResolver) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !c.trusts(peer) {
		return peer
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return peer
}

func (c *ClientResolver) trusts(peer string) bool {
	ip := net.ParseIP(peer)
	if c == nil || ip == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
