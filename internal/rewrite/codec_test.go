package rewrite

import (
	"errors"
	"testing"
)

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec("/service/")

	tests := []struct {
		name   string
		target string
	}{
		{"plain https URL", "https://example.com/"},
		{"path and query", "https://example.com/a/b?x=1&y=two"},
		{"port and fragmentless path", "http://example.com:8080/assets/app.css"},
		{"already percent-encoded path", "https://example.com/a%20b"},
		{"unicode path", "https://example.com/ünïcode"},
		{"query with spaces", "https://example.com/search?q=hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := c.Encode(tt.target)
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", encoded, err)
			}
			if decoded != tt.target {
				t.Errorf("round trip = %q, want %q", decoded, tt.target)
			}
		})
	}
}

func TestCodec_EncodeExact(t *testing.T) {
	c := NewCodec("/service/")
	got := c.Encode("https://example.com/x")
	want := "/service/https%3A%2F%2Fexample.com%2Fx"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	c := NewCodec("/service/")

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"empty remainder", "/service/", ErrMissingTarget},
		{"prefix only, no slash", "/service", ErrMissingTarget},
		{"invalid percent encoding", "/service/%zz", ErrBadEncodedTarget},
		{"truncated escape", "/service/https%3", ErrBadEncodedTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestCodec_Prefix(t *testing.T) {
	if got := NewCodec("/p/").Prefix(); got != "/p/" {
		t.Errorf("Prefix() = %q, want %q", got, "/p/")
	}
}
