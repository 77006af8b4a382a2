package httpapi

import (
	"net/http"
	"strings"

	"referral_dashboard/internal/config"
)

const (
	corsAllowHeaders = "Content-Type, Authorization"
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

type corsPolicy struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
}

func newCORSPolicy(cfg config.CorsConfig) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}, len(cfg.AllowOrigins)), credentials: cfg.AllowCredentials}
	for _, o := range cfg.AllowOrigins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			p.any = true
			continue
		}
		if o != "" {
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// allow returns the value for Access-Control-Allow-Origin, or "" when the origin is not listed.
func (p corsPolicy) allow(origin string) string {
	if origin == "" {
		return ""
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin
	}
	if p.any {
		// a wildcard cannot be combined with credentials, so echo the origin instead
		if p.credentials {
			return origin
		}
		return "*"
	}
	return ""
}

func corsMiddleware(cfg config.CorsConfig, next http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")
		if allowed := policy.allow(r.Header.Get("Origin")); allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
