// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ContentClass is the result of classifying an upstream response body.
type ContentClass string

// Content classes routed to the markup rewriter, the CSS rewriter, or
// straight-through streaming.
const (
	ClassHTML ContentClass = "html"
	ClassCSS  ContentClass = "css"
	ClassRaw  ContentClass = "raw"
)

// ProxyRequest represents a client request to be forwarded to the
// decoded target. Path is the escaped request path, route prefix
// included; ProxyScheme and ProxyHost identify the proxy's own origin
// for the recursion guard.
type ProxyRequest struct {
	Ctx         context.Context
	Method      string
	Path        string
	RawQuery    string
	Header      http.Header
	Body        io.ReadCloser
	ProxyScheme string
	ProxyHost   string
}

// ProxyResponse represents the upstream response to be rewritten and
// streamed back. Target is the fetched URL, the base for the rewrite
// context.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Class      ContentClass
	Target     *url.URL
}
