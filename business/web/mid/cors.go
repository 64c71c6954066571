package mid

import (
	"context"
	"net/http"
	"strings"

	"github.com/ardanlabs/blocknode/foundation/web"
)

// Cors sets the Cross-Origin Resource Sharing headers for the node's API.
// The allowed origins are a comma separated list and "*" allows any origin.
// A request from an origin not in the list gets no CORS headers.
func Cors(origins string) web.Middleware {
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.Header().Add("Vary", "Origin")

			if origin := allowOrigin(allowed, r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}

// allowOrigin returns the value for the Allow-Origin header, empty when the
// origin isn't allowed.
func allowOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		switch {
		case a == "*":
			return "*"
		case origin != "" && a == origin:
			return origin
		}
	}

	return ""
}
