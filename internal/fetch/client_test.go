package fetch

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		c, err := NewClient()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
		}
		if c.maxBodySize != DefaultMaxBodySize {
			t.Errorf("max body = %d, want %d", c.maxBodySize, DefaultMaxBodySize)
		}
		if c.ProxyAddress() != "" {
			t.Errorf("expected direct client, got proxy %q", c.ProxyAddress())
		}
	})

	t.Run("valid proxy", func(t *testing.T) {
		t.Parallel()
		c, err := NewClient(WithProxy("127.0.0.1:9050"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ProxyAddress() != "127.0.0.1:9050" {
			t.Errorf("ProxyAddress() = %q", c.ProxyAddress())
		}
	})

	t.Run("invalid proxies", func(t *testing.T) {
		t.Parallel()
		for _, addr := range []string{"127.0.0.1", ":9050", "host:", "host:0", "host:70000", "host:abc"} {
			if _, err := NewClient(WithProxy(addr)); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("WithProxy(%q) error = %v, want ErrInvalidProxyAddress", addr, err)
			}
		}
	})
}

func TestClientGet(t *testing.T) {
	t.Parallel()

	t.Run("sends user agent and returns body", func(t *testing.T) {
		t.Parallel()

		uaCh := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uaCh <- r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		}))
		defer server.Close()

		c, err := NewClient(WithUserAgent("PagesnapBot/1.0"))
		if err != nil {
			t.Fatal(err)
		}
		resp, err := c.Get(t.Context(), server.URL+"/robots.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotUA := <-uaCh; gotUA != "PagesnapBot/1.0" {
			t.Errorf("User-Agent = %q", gotUA)
		}
		if !resp.OK() || resp.ContentType != "text/plain" {
			t.Errorf("unexpected response %+v", resp)
		}
		if !strings.Contains(string(resp.Body), "Disallow: /private") {
			t.Errorf("unexpected body %q", resp.Body)
		}
	})

	t.Run("non-2xx is not an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c, _ := NewClient()
		resp, err := c.Get(t.Context(), server.URL+"/robots.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.OK() || resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("body is truncated", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("a", 100)))
		}))
		defer server.Close()

		c, _ := NewClient(WithMaxBodySize(10))
		resp, err := c.Get(t.Context(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Body) != 10 {
			t.Errorf("body length = %d, want 10", len(resp.Body))
		}
	})

	t.Run("transport failure is an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		c, _ := NewClient(WithTimeout(time.Second))
		if _, err := c.Get(t.Context(), url); err == nil {
			t.Error("expected error for closed server")
		}
	})
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, reply []byte) string {
		t.Helper()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = ln.Close() })
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write(reply)
		}()
		return ln.Addr().String()
	}

	t.Run("accepts SOCKS5 without auth", func(t *testing.T) {
		t.Parallel()
		addr := serve(t, []byte{0x05, 0x00})
		if err := CheckProxy(t.Context(), addr); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects auth-required proxy", func(t *testing.T) {
		t.Parallel()
		addr := serve(t, []byte{0x05, 0xFF})
		if err := CheckProxy(t.Context(), addr); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("error = %v, want ErrProxyNotSOCKS5", err)
		}
	})

	t.Run("rejects HTTP server", func(t *testing.T) {
		t.Parallel()
		addr := serve(t, []byte("HT"))
		if err := CheckProxy(t.Context(), addr); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("error = %v, want ErrProxyNotSOCKS5", err)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(t.Context(), "nope"); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("error = %v", err)
		}
	})
}
