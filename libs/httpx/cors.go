package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes which browser origins may call the API.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// PublicCORS is the policy for the embeddable booking page: reads, booking
// submissions with an Idempotency-Key, and the request id echoed back.
func PublicCORS(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	origins     []string
	wildcard    bool
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
}

func (p CORSPolicy) compile() corsRules {
	rules := corsRules{
		credentials: p.AllowCredentials,
		methods:     strings.Join(trimAll(p.AllowedMethods), ", "),
		headers:     strings.Join(trimAll(p.AllowedHeaders), ", "),
		exposed:     strings.Join(trimAll(p.ExposedHeaders), ", "),
	}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.wildcard = true
			continue
		}
		rules.origins = append(rules.origins, strings.TrimRight(o, "/"))
	}
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or "".
// A wildcard with credentials echoes the origin.
func (c corsRules) allowOrigin(origin string) string {
	for _, o := range c.origins {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	if c.wildcard {
		if c.credentials {
			return origin
		}
		return "*"
	}
	return ""
}

// WithCORS answers preflights and decorates responses for allowed origins. Requests from
// other origins pass through untouched. With no origins configured it is a no-op.
func WithCORS(p CORSPolicy) Middleware {
	rules := p.compile()
	if len(rules.origins) == 0 && !rules.wildcard {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allow := ""
			if origin != "" {
				allow = rules.allowOrigin(origin)
			}
			if allow == "" {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allow)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if rules.methods != "" {
					h.Set("Access-Control-Allow-Methods", rules.methods)
				}
				if rules.headers != "" {
					h.Set("Access-Control-Allow-Headers", rules.headers)
				}
				if rules.maxAge != "" {
					h.Set("Access-Control-Max-Age", rules.maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if rules.exposed != "" {
				h.Set("Access-Control-Expose-Headers", rules.exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
