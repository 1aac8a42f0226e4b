// Package middleware holds the small HTTP middlewares the front-end chains
// ahead of its handlers: service-key auth, access logging, and request tracing.
package middleware

import (
	"crypto/subtle"
	"net/http"
)

// publicPaths never require the service key, even when one is configured.
var publicPaths = map[string]bool{
	"/health": true,
	"/version": true,
	"/test":    true,
}

// ServiceKeyAuth enforces the single shared SERVICE_API_KEY via the
// x-service-key header. Enforcement is a no-op when no key is configured,
// matching the "enforced only if the server has the expected key
// configured" admission rule.
type ServiceKeyAuth struct {
	expected string
}

func NewServiceKeyAuth(expected string) *ServiceKeyAuth {
	return &ServiceKeyAuth{expected: expected}
}

func (a *ServiceKeyAuth) Enabled() bool { return a.expected != "" }

func (a *ServiceKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get("x-service-key")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.expected)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
