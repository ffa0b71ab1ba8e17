package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the extension origin through. The contract is a wildcard
// allowance; narrower origins can be configured without code changes.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	wildcard := false
	for _, origin := range origins {
		if origin == "*" {
			wildcard = true
			break
		}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		MaxAge:           3600,
		AllowCredentials: false,
	})

	return func(next http.Handler) http.Handler {
		wrapped := handler.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// rs/cors only answers requests that carry an Origin header.
			// With a wildcard allowance every response carries it, so
			// non-browser callers see the same headers as browsers.
			if wildcard && r.Header.Get("Origin") == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
