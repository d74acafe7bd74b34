package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/sha1n/relic-gitindex/internal/config"
)

// DefaultPublicPaths bypass authentication.
var DefaultPublicPaths = []string{"/health"}

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// NewMiddleware creates an authentication middleware based on settings.
// Requests for publicPaths are passed through unauthenticated; nil selects
// DefaultPublicPaths.
func NewMiddleware(settings config.AuthSettings, publicPaths ...string) (Middleware, error) {
	if publicPaths == nil {
		publicPaths = DefaultPublicPaths
	}

	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return withPublicPaths(basicAuth(settings.Basic), publicPaths), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return withPublicPaths(apiKeyAuth(settings.APIKeys), publicPaths), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

func withPublicPaths(authenticate Middleware, paths []string) Middleware {
	public := make(map[string]bool, len(paths))
	for _, p := range paths {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		authed := authenticate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

func basicAuth(settings config.BasicAuthSettings) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(settings.Username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(settings.Password)) == 1
			if !ok || !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="relic-gitindex"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyAuth accepts a key in the X-API-Key header or as a bearer token.
func apiKeyAuth(apiKeys []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			if key == "" || !validKey(key, apiKeys) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="relic-gitindex"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// validKey compares against every key so timing does not reveal which matched.
func validKey(key string, apiKeys []string) bool {
	valid := false
	for _, k := range apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			valid = true
		}
	}
	return valid
}
