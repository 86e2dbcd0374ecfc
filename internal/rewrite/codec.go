// Package rewrite implements the URL rewriting engine: encoding target
// URLs into the proxy's path space, resolving references against the
// target origin, sanitizing response headers, and rewriting HTML and
// CSS bodies so every resource reference flows back through the proxy.
package rewrite

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingTarget is returned when a proxied path carries no target URL.
var ErrMissingTarget = errors.New("missing target URL")

// ErrBadEncodedTarget is returned when a proxied path cannot be decoded
// into a target URL.
var ErrBadEncodedTarget = errors.New("malformed encoded target URL")

// Codec translates between absolute target URLs and the proxy's own
// path scheme: <route prefix> + percent-encoded target URL.
type Codec struct {
	prefix string
}

// NewCodec creates a Codec for the given route prefix (e.g. "/service/").
func NewCodec(prefix string) Codec {
	return Codec{prefix: prefix}
}

// Prefix returns the route prefix the codec was built with.
func (c Codec) Prefix() string {
	return c.prefix
}

// Encode converts an absolute target URL into a proxied path.
// Decode(Encode(u)) == u for every URL string u.
func (c Codec) Encode(target string) string {
	return c.prefix + url.QueryEscape(target)
}

// Decode extracts the target URL from a proxied path. It returns
// ErrMissingTarget when nothing follows the prefix and
// ErrBadEncodedTarget when the remainder is not valid percent-encoding.
func (c Codec) Decode(path string) (string, error) {
	encoded, ok := strings.CutPrefix(path, c.prefix)
	if !ok || encoded == "" {
		return "", ErrMissingTarget
	}
	target, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", ErrBadEncodedTarget
	}
	if target == "" {
		return "", ErrMissingTarget
	}
	return target, nil
}
