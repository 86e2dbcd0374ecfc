// Package service implements the request dispatcher: target decoding,
// the recursion guard, the upstream fetch, and response classification.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"rewrite-proxy-go/internal/client"
	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/rewrite"
)

// ErrRefusedSelfProxy is returned when the decoded target points back at
// the proxy's own origin, which would loop forever.
var ErrRefusedSelfProxy = errors.New("refusing to proxy own origin")

// ErrOpaqueUpstream is returned when the upstream response carries no
// readable status, so nothing can be relayed.
var ErrOpaqueUpstream = errors.New("opaque upstream response")

// droppedRequestHeaders are removed before forwarding. Host is set by the
// transport from the target URL; Accept-Encoding is left to the transport
// so compressed bodies are transparently decoded before rewriting.
var droppedRequestHeaders = []string{
	"Host",
	"Accept-Encoding",
}

// bodylessMethods never forward a request body.
var bodylessMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodHead: true,
}

// ProxyService decodes proxied paths and forwards requests to the target.
type ProxyService struct {
	client *client.UpstreamClient
	cfg    *config.Config
	logger *slog.Logger
	codec  rewrite.Codec
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, codec rewrite.Codec, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
		codec:  codec,
	}
}

// Forward decodes the target from the proxied path, refuses self-proxy
// loops, fetches the target, and classifies the response body. The
// caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.decodeTarget(pr)
	if err != nil {
		return nil, err
	}

	if sameOrigin(target, pr.ProxyScheme, pr.ProxyHost) {
		return nil, fmt.Errorf("%w: %s", ErrRefusedSelfProxy, target.Host)
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target_host", target.Host,
	)

	var body io.Reader
	if !bodylessMethods[pr.Method] && pr.Body != nil {
		body = pr.Body
	}

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target.String(), s.forwardHeaders(pr.Header), body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target.Host, err)
	}

	if resp.StatusCode == 0 {
		_ = resp.Body.Close()
		return nil, ErrOpaqueUpstream
	}

	resp.Target = target
	resp.Class = classify(resp.Header.Get("Content-Type"))
	return resp, nil
}

// decodeTarget extracts and validates the absolute target URL from the
// proxied path, merging any inbound query string into it.
func (s *ProxyService) decodeTarget(pr *model.ProxyRequest) (*url.URL, error) {
	raw, err := s.codec.Decode(pr.Path)
	if err != nil {
		return nil, err
	}

	// Query params appended by the client (e.g. form GET submissions)
	// belong to the target, not to the proxy.
	if pr.RawQuery != "" {
		if strings.Contains(raw, "?") {
			raw += "&" + pr.RawQuery
		} else {
			raw += "?" + pr.RawQuery
		}
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rewrite.ErrBadEncodedTarget, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: target must be an absolute http(s) URL", rewrite.ErrBadEncodedTarget)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("%w: target has no host", rewrite.ErrBadEncodedTarget)
	}
	return target, nil
}

// forwardHeaders copies the inbound headers for the outbound fetch,
// dropping only what the transport must own.
func (s *ProxyService) forwardHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[key] = append([]string(nil), vals...)
	}
	for _, key := range droppedRequestHeaders {
		dst.Del(key)
	}
	return dst
}

// sameOrigin reports whether the target shares the proxy's own origin.
func sameOrigin(target *url.URL, scheme, host string) bool {
	return target.Scheme == scheme && strings.EqualFold(target.Host, host)
}

// classify maps an upstream Content-Type onto a rewriter path.
func classify(contentType string) model.ContentClass {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return model.ClassHTML
	case strings.HasPrefix(ct, "text/css"):
		return model.ClassCSS
	default:
		return model.ClassRaw
	}
}
