package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/terra-clan/assessment-engine/internal/config"
)

// UserHeader carries the caller's id when header identity is enabled
const UserHeader = "X-User-ID"

var errNoIdentity = errors.New("no identity")

// IdentityMiddleware resolves the calling user from a bearer token
// issued by the external identity provider
type IdentityMiddleware struct {
	secret      []byte
	allowHeader bool
	parser      *jwt.Parser
}

// NewIdentityMiddleware creates identity middleware
func NewIdentityMiddleware(cfg config.AuthConfig) *IdentityMiddleware {
	return &IdentityMiddleware{
		secret:      []byte(cfg.JWTSecret),
		allowHeader: cfg.AllowHeaderIdentity,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Authenticate verifies the caller and stores the user id in the context.
// Supports "Authorization: Bearer <jwt>" and, in development, X-User-ID.
func (m *IdentityMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.resolve(r)
		if err != nil {
			slog.Warn("unauthenticated request",
				"error", err,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			respondError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required", nil)
			return
		}

		slog.Debug("authenticated request", "user", userID)
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
	})
}

func (m *IdentityMiddleware) resolve(r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		return m.verify(token)
	}
	if m.allowHeader {
		if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
			return id, nil
		}
	}
	return "", errNoIdentity
}

func (m *IdentityMiddleware) verify(token string) (string, error) {
	if len(m.secret) == 0 {
		return "", errors.New("token verification is not configured")
	}

	parsed, err := m.parser.Parse(token, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(sub) == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RateLimiter applies a token bucket per authenticated user
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdleTTL = 10 * time.Minute

// NewRateLimiter creates a per-user limiter. A non-positive RPS disables it.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(cfg.RPS)))
	}
	return &RateLimiter{
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Limit rejects requests above the caller's budget with 429
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := UserFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		if !l.allow(key, time.Now()) {
			slog.Warn("rate limit exceeded", "user", key)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) retryAfter() int {
	return int(math.Max(1, math.Ceil(1/float64(l.limit))))
}
