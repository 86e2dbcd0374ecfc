package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/metrics"
	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/rewrite"
	"rewrite-proxy-go/internal/service"
)

// ProxyHandler serves proxied pages: it hands the request to the
// dispatcher and routes the response body through the markup rewriter,
// the CSS rewriter, or straight-through streaming.
type ProxyHandler struct {
	service *service.ProxyService
	cfg     *config.Config
	codec   rewrite.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is
// optional; pass nil to disable response classification metrics.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, codec rewrite.Codec, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cfg:     cfg,
		codec:   codec,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle proxies the request to the decoded target and relays the
// response. The upstream status code is always propagated unchanged;
// only headers and, for HTML and CSS bodies, the content are
// transformed.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:         req.Context(),
		Method:      req.Method,
		Path:        req.URL.EscapedPath(),
		RawQuery:    req.URL.RawQuery,
		Header:      req.Header,
		Body:        req.Body,
		ProxyScheme: c.Scheme(),
		ProxyHost:   req.Host,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if h.metrics != nil {
		h.metrics.ProxiedResponses.WithLabelValues(string(resp.Class)).Inc()
	}

	outHeader := rewrite.SanitizeHeaders(resp.Header, resp.Class == model.ClassHTML)
	if resp.Class != model.ClassRaw {
		// The rewritten body will not match the upstream length.
		outHeader.Del("Content-Length")
	}
	for key, vals := range outHeader {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	rc := rewrite.NewContext(resp.Target, h.codec)

	// Once the status line is out, a mid-stream failure can only truncate
	// the response; we log it for observability and move on.
	switch resp.Class {
	case model.ClassHTML:
		if err := rc.RewriteHTML(c.Response(), resp.Body); err != nil {
			h.logger.Error("rewriting html stream",
				"err", err,
				"target_host", resp.Target.Host,
			)
		}
	case model.ClassCSS:
		css, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.Upstream.CSSMaxBytes))
		if err != nil {
			h.logger.Error("reading css body",
				"err", err,
				"target_host", resp.Target.Host,
			)
			return nil
		}
		if _, err := c.Response().Write(rc.RewriteCSS(css)); err != nil {
			h.logger.Error("writing css body", "err", err)
		}
	default:
		if _, err := io.Copy(c.Response(), resp.Body); err != nil {
			h.logger.Error("streaming response body",
				"err", err,
				"target_host", resp.Target.Host,
			)
		}
	}

	return nil
}

// Usage answers requests outside the route prefix with a short
// human-readable description of the addressing scheme.
func (h *ProxyHandler) Usage(c echo.Context) error {
	return c.String(http.StatusOK, fmt.Sprintf(
		"rewrite-proxy: streaming rewriting reverse proxy\n\nusage: %s<percent-encoded absolute URL>\nexample: %s\n",
		h.codec.Prefix(),
		h.codec.Encode("https://example.com/"),
	))
}

// mapError converts dispatcher errors into the plain-text error
// responses of the proxy's contract: client errors for anything caught
// before the outbound call, 502 for upstream failures.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, rewrite.ErrMissingTarget):
		return c.String(http.StatusBadRequest, "missing target URL\n")
	case errors.Is(err, rewrite.ErrBadEncodedTarget):
		return c.String(http.StatusBadRequest, "malformed encoded target URL\n")
	case errors.Is(err, service.ErrRefusedSelfProxy):
		return c.String(http.StatusBadRequest, "refusing to proxy own origin\n")
	case errors.Is(err, service.ErrOpaqueUpstream):
		return c.String(http.StatusBadGateway, "opaque upstream response\n")
	default:
		return c.String(http.StatusBadGateway, "upstream fetch error: "+err.Error()+"\n")
	}
}
