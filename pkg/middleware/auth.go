// Package middleware provides HTTP middleware for the promptflow API.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Key type for context values
type contextKey string

// Context keys
const (
	SubjectKey contextKey = "subject"
)

// TokenValidator validates a bearer token and returns its subject
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// ErrorWriter writes an error response in the API's format
type ErrorWriter func(w http.ResponseWriter, status int, kind string, message string)

// AuthMiddleware provides authentication middleware for HTTP handlers
type AuthMiddleware struct {
	validator   TokenValidator
	failures    *FailureLimiter
	writeError  ErrorWriter
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, writeError ErrorWriter) *AuthMiddleware {
	if writeError == nil {
		writeError = func(w http.ResponseWriter, status int, _ string, message string) {
			http.Error(w, message, status)
		}
	}

	return &AuthMiddleware{
		validator:   validator,
		failures:    NewFailureLimiter(5, time.Minute),
		writeError:  writeError,
	}
}

// Authenticate is middleware that authenticates requests with a bearer token
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := clientAddr(r)
		if m.failures.IsLimited(clientIP) {
			m.writeError(w, http.StatusTooManyRequests, "RateLimited", "Too many authentication attempts, please try again later")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			m.writeError(w, http.StatusUnauthorized, "Unauthorized", "Unsupported authentication method")
			return
		}

		subject, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			m.failures.Record(clientIP)
			m.writeError(w, http.StatusUnauthorized, "Unauthorized", "Authentication failed")
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubject retrieves the authenticated subject from the request context
func GetSubject(r *http.Request) (string, bool) {
	subject, ok := r.Context().Value(SubjectKey).(string)
	return subject, ok
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FailureLimiter counts failed authentication attempts per client over a
// sliding window. Expired attempts are pruned whenever a client is touched,
// and a client with none left is forgotten.
type FailureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewFailureLimiter allows up to limit failures per client within window
func NewFailureLimiter(limit int, window time.Duration) *FailureLimiter {
	return &FailureLimiter{
		failures: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// IsLimited reports whether the client has used up its failures
func (l *FailureLimiter) IsLimited(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.prune(clientID)) >= l.limit
}

// Record adds a failed attempt for the client
func (l *FailureLimiter) Record(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[clientID] = append(l.prune(clientID), l.now())
}

// Tracked returns the number of clients with unexpired failures
func (l *FailureLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for clientID := range l.failures {
		l.prune(clientID)
	}
	return len(l.failures)
}

// prune drops the client's expired failures and returns the rest.
// Failures are appended in time order, so the live ones are a suffix.
func (l *FailureLimiter) prune(clientID string) []time.Time {
	failures := l.failures[clientID]
	cutoff := l.now().Add(-l.window)

	i := 0
	for i < len(failures) && !failures[i].After(cutoff) {
		i++
	}
	failures = failures[i:]

	if len(failures) == 0 {
		delete(l.failures, clientID)
		return nil
	}
	l.failures[clientID] = failures
	return failures
}
