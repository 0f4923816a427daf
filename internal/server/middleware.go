package server

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/metrics"
	"golang.org/x/time/rate"
)

// GetRealIP returns the client address of r. With trustProxy set, the first
// valid address from CF-Connecting-IP or X-Forwarded-For wins over the socket peer.
func GetRealIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("CF-Connecting-IP"))); ip != nil {
			return ip.String()
		}
		if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); first != "" {
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// RealIPMiddleware rewrites RemoteAddr to the proxied client address, so that
// peers behind a trusted proxy are registered under their own IP.
func (s *Server) RealIPMiddleware(next http.Handler) http.Handler {
	if !s.trustProxy {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, port, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			port = "0"
		}

		r2 := r.Clone(r.Context())
		r2.RemoteAddr = net.JoinHostPort(GetRealIP(r, true), port)

		next.ServeHTTP(w, r2)
	})
}

// ipLimiters holds one token bucket per client address.
type ipLimiters struct {
	entries map[string]*ipLimiter
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(count int, window time.Duration) *ipLimiters {
	limit := rate.Inf
	if count > 0 && window > 0 {
		limit = rate.Limit(float64(count) / window.Seconds())
	}

	return &ipLimiters{entries: make(map[string]*ipLimiter), limit: limit, burst: max(count, 1)}
}

// allow takes one token from the bucket of ip, creating it on first use.
func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	entry, ok := l.entries[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// prune forgets addresses not seen within idle and returns how many were dropped.
func (l *ipLimiters) prune(now time.Time, idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for ip, entry := range l.entries {
		if now.Sub(entry.lastSeen) > idle {
			delete(l.entries, ip)
			dropped++
		}
	}

	return dropped
}

// RateLimitMiddleware caps connection attempts per client address and answers
// "429 Too Many Requests" once the bucket is empty. Idle buckets are pruned until shutdown.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	limiters := newIPLimiters(s.hardLimitCount, s.hardLimitWin)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-s.shutdown:
				return
			case now := <-ticker.C:
				if n := limiters.prune(now, 10*time.Minute); n > 0 {
					log.Debug().Int("addresses", n).Msg("Pruned idle rate limiters")
				}
			}
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetRealIP(r, s.trustProxy)

		if !limiters.allow(ip, time.Now()) {
			metrics.HTTPRejected.WithLabelValues("rate_limit").Inc()
			log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code. Hijack is passed through for the WebSocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols

	return h.Hijack()
}

// LoggingMiddleware logs each request with its status, client address and duration.
// Server errors are logged at warn level.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		event := log.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("ip", GetRealIP(r, s.trustProxy)).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// AdminAuthMiddleware protects endpoints by requiring a valid Bearer token in the Authorization header.
// With no token configured the endpoints are disabled.
func AdminAuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
