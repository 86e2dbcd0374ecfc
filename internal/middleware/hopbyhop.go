package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are connection-scoped headers that must not travel
// through the proxy (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop returns an Echo middleware that removes hop-by-hop
// headers from the inbound request, including any headers named by its
// Connection header, before the request reaches the dispatcher. End-to-
// end headers are left alone so they can be forwarded verbatim.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header

			// Connection may name additional per-hop headers.
			for _, v := range h["Connection"] {
				for _, name := range strings.Split(v, ",") {
					h.Del(strings.TrimSpace(name))
				}
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}

			return next(c)
		}
	}
}
