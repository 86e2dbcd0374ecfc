package rewrite

import (
	"net/url"
	"strings"
)

// Context carries the per-response rewrite state: the target's origin,
// used as the base for resolving relative references, and the codec
// that maps absolute URLs back into the proxy's path space. A Context
// is built once per upstream response and never mutated, so concurrent
// requests stay independent.
type Context struct {
	base  *url.URL
	codec Codec
}

// NewContext creates a Context from the fetched target URL. Only the
// target's scheme and host are retained as the resolution base.
func NewContext(target *url.URL, codec Codec) *Context {
	return &Context{
		base:  &url.URL{Scheme: target.Scheme, Host: target.Host},
		codec: codec,
	}
}

// Resolve resolves ref against the context's origin, following standard
// URL resolution semantics: absolute references come back unchanged,
// scheme-relative and path references pick up the missing parts from
// the base. A ref that does not parse is returned verbatim; a broken
// link is preserved rather than aborting the transform.
func (c *Context) Resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// ProxifyURL resolves ref to an absolute URL and re-encodes it as a
// proxied path. data: URIs and fragment-only references pass through
// untouched.
func (c *Context) ProxifyURL(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return ref
	}
	return c.codec.Encode(c.Resolve(ref))
}
