package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"rewrite-proxy-go/internal/client"
	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/rewrite"
)

func testService(t *testing.T) *ProxyService {
	t.Helper()
	cfg := &config.Config{
		Proxy: config.ProxyConfig{RoutePrefix: "/service/"},
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, nil)
	return NewProxyService(uc, cfg, rewrite.NewCodec("/service/"), logger)
}

func proxiedPath(target string) string {
	return "/service/" + url.QueryEscape(target)
}

func TestForward_DecodeErrors(t *testing.T) {
	s := testService(t)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"empty target", "/service/", rewrite.ErrMissingTarget},
		{"bad percent encoding", "/service/%zz", rewrite.ErrBadEncodedTarget},
		{"non-http scheme", proxiedPath("ftp://example.com/file"), rewrite.ErrBadEncodedTarget},
		{"relative target", proxiedPath("/just/a/path"), rewrite.ErrBadEncodedTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := &model.ProxyRequest{
				Ctx:    context.Background(),
				Method: http.MethodGet,
				Path:   tt.path,
				Header: http.Header{},
			}
			_, err := s.Forward(pr)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Forward() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestForward_SelfProxyRefusedWithoutFetch(t *testing.T) {
	var fetched atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetched.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	s := testService(t)
	pr := &model.ProxyRequest{
		Ctx:         context.Background(),
		Method:      http.MethodGet,
		Path:        proxiedPath("http://proxy.local/service/x"),
		Header:      http.Header{},
		ProxyScheme: "http",
		ProxyHost:   "proxy.local",
	}

	_, err := s.Forward(pr)
	if !errors.Is(err, ErrRefusedSelfProxy) {
		t.Fatalf("Forward() error = %v, want ErrRefusedSelfProxy", err)
	}
	if fetched.Load() {
		t.Error("outbound fetch was issued for a self-proxy target")
	}
}

func TestForward_HappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if got := r.Header.Get("X-Custom"); got != "forwarded" {
			t.Errorf("X-Custom = %q, want %q", got, "forwarded")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer upstream.Close()

	s := testService(t)
	header := http.Header{}
	header.Set("X-Custom", "forwarded")
	pr := &model.ProxyRequest{
		Ctx:         context.Background(),
		Method:      http.MethodGet,
		Path:        proxiedPath(upstream.URL + "/page"),
		Header:      header,
		ProxyScheme: "http",
		ProxyHost:   "proxy.local",
	}

	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("StatusCode = %d, want %d (propagated unchanged)", resp.StatusCode, http.StatusTeapot)
	}
	if resp.Class != model.ClassHTML {
		t.Errorf("Class = %q, want %q", resp.Class, model.ClassHTML)
	}
	if resp.Target == nil || resp.Target.Path != "/page" {
		t.Errorf("Target = %v, want path /page", resp.Target)
	}
}

func TestForward_MergesInboundQuery(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "hello" {
			t.Errorf("q = %q, want %q", got, "hello")
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %q, want %q", got, "2")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	s := testService(t)
	pr := &model.ProxyRequest{
		Ctx:         context.Background(),
		Method:      http.MethodGet,
		Path:        proxiedPath(upstream.URL + "/search?page=2"),
		RawQuery:    "q=hello",
		Header:      http.Header{},
		ProxyScheme: "http",
		ProxyHost:   "proxy.local",
	}

	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_BodyForwardedForPost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "field=value" {
			t.Errorf("body = %q, want %q", string(body), "field=value")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	s := testService(t)
	pr := &model.ProxyRequest{
		Ctx:         context.Background(),
		Method:      http.MethodPost,
		Path:        proxiedPath(upstream.URL + "/submit"),
		Header:      http.Header{},
		Body:        io.NopCloser(strings.NewReader("field=value")),
		ProxyScheme: "http",
		ProxyHost:   "proxy.local",
	}

	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_UpstreamFetchError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	target := upstream.URL
	upstream.Close() // dead port

	s := testService(t)
	pr := &model.ProxyRequest{
		Ctx:         context.Background(),
		Method:      http.MethodGet,
		Path:        proxiedPath(target),
		Header:      http.Header{},
		ProxyScheme: "http",
		ProxyHost:   "proxy.local",
	}

	_, err := s.Forward(pr)
	if err == nil {
		t.Fatal("Forward() expected transport error, got nil")
	}
	if errors.Is(err, rewrite.ErrBadEncodedTarget) || errors.Is(err, ErrRefusedSelfProxy) {
		t.Errorf("Forward() error = %v, want a transport error", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		want model.ContentClass
	}{
		{"html", "text/html", model.ClassHTML},
		{"html with charset", "text/html; charset=utf-8", model.ClassHTML},
		{"html mixed case", "Text/HTML", model.ClassHTML},
		{"css", "text/css", model.ClassCSS},
		{"json", "application/json", model.ClassRaw},
		{"plain text", "text/plain", model.ClassRaw},
		{"empty", "", model.ClassRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.ct); got != tt.want {
				t.Errorf("classify(%q) = %q, want %q", tt.ct, got, tt.want)
			}
		})
	}
}

func TestForwardHeaders(t *testing.T) {
	s := testService(t)
	src := http.Header{
		"Accept":          {"text/html"},
		"Accept-Encoding": {"br"},
		"Cookie":          {"session=abc"},
		"User-Agent":      {"test-agent"},
	}

	dst := s.forwardHeaders(src)

	if got := dst.Get("Accept"); got != "text/html" {
		t.Errorf("Accept = %q, want forwarded", got)
	}
	if got := dst.Get("Cookie"); got != "session=abc" {
		t.Errorf("Cookie = %q, want forwarded verbatim", got)
	}
	if got := dst.Get("User-Agent"); got != "test-agent" {
		t.Errorf("User-Agent = %q, want forwarded verbatim", got)
	}
	if got := dst.Get("Accept-Encoding"); got != "" {
		t.Errorf("Accept-Encoding = %q, want dropped (transport negotiates)", got)
	}
	if got := src.Get("Accept-Encoding"); got != "br" {
		t.Errorf("input header mutated: Accept-Encoding = %q", got)
	}
}
