package rewrite

import (
	"net/http"
	"strings"
)

// allowedMethods is the value advertised in Access-Control-Allow-Methods.
const allowedMethods = "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS"

// strippedResponseHeaders would prevent rewritten content from rendering
// under the proxy's origin and are always removed.
var strippedResponseHeaders = []string{
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
	"X-Frame-Options",
	"X-Content-Type-Options",
}

// SanitizeHeaders derives the outbound response header set from the
// upstream one. It strips the headers that would block rendering under
// the proxy's origin, force-sets permissive CORS headers, and, when the
// body is re-served as HTML, normalizes the Content-Type. Everything
// else (caching, encoding, custom headers) is preserved so the origin's
// semantics still reach the client.
//
// The input is never mutated; the function is pure and idempotent.
func SanitizeHeaders(src http.Header, asHTML bool) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[key] = append([]string(nil), vals...)
	}

	for _, key := range strippedResponseHeaders {
		dst.Del(key)
	}

	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Access-Control-Allow-Headers", "*")
	dst.Set("Access-Control-Allow-Methods", allowedMethods)

	if asHTML && !strings.Contains(strings.ToLower(dst.Get("Content-Type")), "text/html") {
		dst.Set("Content-Type", "text/html; charset=utf-8")
	}

	return dst
}
