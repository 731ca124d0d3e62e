package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "untrusted peer ignores XFF", remoteAddr: "203.0.113.5:4000", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "203.0.113.5"},
		{name: "trusted proxy XFF", remoteAddr: "10.0.0.2:80", headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, want: "198.51.100.1"},
		{name: "trusted proxy X-Real-IP", remoteAddr: "127.0.0.1:80", headers: map[string]string{"X-Real-IP": "198.51.100.9"}, want: "198.51.100.9"},
		{name: "trusted proxy invalid XFF", remoteAddr: "192.168.1.1:80", headers: map[string]string{"X-Forwarded-For": "garbage"}, want: "192.168.1.1"},
		{name: "no port", remoteAddr: "203.0.113.5", want: "203.0.113.5"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{name: "tool call", method: http.MethodPost, target: "/mcp", agent: "mcp-client/1.0", want: false},
		{name: "path traversal", method: http.MethodGet, target: "/../../etc/passwd", want: true},
		{name: "dotenv lookup", method: http.MethodGet, target: "/.env", want: true},
		{name: "scanner agent", method: http.MethodGet, target: "/", agent: "sqlmap/1.7", want: true},
		{name: "trace method", method: "TRACE", target: "/mcp", want: true},
	}

	d := NewDetector()
	flagged := int64(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.agent)
			if got := d.DetectSuspiciousRequest(r); got != tt.want {
				t.Errorf("DetectSuspiciousRequest() = %v, want %v", got, tt.want)
			}
		})
		if tt.want {
			flagged++
		}
	}
	if got := d.GetMetrics().SuspiciousRequests; got != flagged {
		t.Errorf("SuspiciousRequests = %d, want %d", got, flagged)
	}
}

func TestDetectorMiddlewarePassesThrough(t *testing.T) {
	called := false
	h := NewDetector().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	if !called {
		t.Fatal("suspicious requests are logged, not blocked")
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("add: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.10:1234"
	r.Header.Set("X-Forwarded-For", "198.51.100.3")
	if got := d.ExtractClientIP(r); got != "198.51.100.3" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") != "max-age=31536000; includeSubDomains" {
		t.Errorf("unexpected HSTS header %q", rec.Header().Get("Strict-Transport-Security"))
	}
}
