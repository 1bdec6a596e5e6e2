package http

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTextResponse(t *testing.T) {
	r := NewTextResponse("pong", StatusOK, Headers{})
	if string(r.Body) != "pong" || r.Status != StatusOK || r.Stream {
		t.Errorf("unexpected response: %+v", r)
	}
	if r.Headers.Value("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", r.Headers.Value("Content-Type"))
	}

	custom := NewHeaders()
	custom.Set("Content-Type", "text/html")
	r = NewTextResponse("<b>x</b>", StatusOK, custom)
	if r.Headers.Value("Content-Type") != "text/html" {
		t.Error("supplied Content-Type should override the default")
	}
}

func TestJSONResponse(t *testing.T) {
	r := NewJSONResponse(map[string]string{"message": "hi"}, StatusCreated, Headers{})
	if r.Headers.Value("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", r.Headers.Value("Content-Type"))
	}
	if !strings.Contains(string(r.Body), `"message":"hi"`) {
		t.Errorf("body = %q", r.Body)
	}
	if r.Status != StatusCreated {
		t.Errorf("status = %d", r.Status)
	}
}

func TestFileResponse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewFileResponse(path, StatusOK, Headers{})
	if !r.Stream {
		t.Fatal("file response should stream")
	}
	if r.Headers.Value("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", r.Headers.Value("Content-Type"))
	}
	if r.Headers.Value("Content-Length") != "11" {
		t.Errorf("Content-Length = %q", r.Headers.Value("Content-Length"))
	}
	etag := r.Headers.Value("ETag")
	if !strings.HasPrefix(etag, `"`) || !strings.HasSuffix(etag, `-11"`) {
		t.Errorf("ETag = %q", etag)
	}

	var out bytes.Buffer
	if err := r.Callback(context.Background(), NewChunkWriter(&out)); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got := out.String(); got != "B\r\nhello world\r\n" {
		t.Errorf("chunk framing = %q", got)
	}
}

func TestFileResponseMissing(t *testing.T) {
	r := NewFileResponse(filepath.Join(t.TempDir(), "nope.txt"), StatusOK, Headers{})
	if r.Status != StatusNotFound || r.Stream {
		t.Errorf("missing file: status=%d stream=%v", r.Status, r.Stream)
	}

	r = NewFileResponse(t.TempDir(), StatusOK, Headers{})
	if r.Status != StatusBadRequest {
		t.Errorf("non-regular file: status=%d", r.Status)
	}
}

func TestStreamResponse(t *testing.T) {
	cb := func(ctx context.Context, w *ChunkWriter) error { return w.WriteString("x") }

	r := NewStreamResponse(cb, "text/event-stream", StatusOK, Headers{})
	if !r.Stream {
		t.Fatal("stream flag unset")
	}
	if r.Headers.Value("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", r.Headers.Value("Cache-Control"))
	}
	if r.Headers.Value("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q", r.Headers.Value("Content-Type"))
	}

	r = NewStreamResponse(cb, "", StatusOK, Headers{})
	if r.Headers.Value("Content-Type") != DefaultMIMEType {
		t.Errorf("default Content-Type = %q", r.Headers.Value("Content-Type"))
	}
}

func TestRedirectResponse(t *testing.T) {
	r := NewRedirectResponse("/other", StatusOK, Headers{})
	if r.Status != StatusFound {
		t.Errorf("non-redirect status should coerce to 302, got %d", r.Status)
	}
	if r.Headers.Value("Location") != "/other" {
		t.Errorf("Location = %q", r.Headers.Value("Location"))
	}
	if r.Headers.Value("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", r.Headers.Value("Content-Type"))
	}
	if len(r.Body) != 0 {
		t.Errorf("redirect body should be empty, got %q", r.Body)
	}

	for _, status := range []int{301, 302, 303, 307, 308} {
		if r := NewRedirectResponse("/", status, Headers{}); r.Status != status {
			t.Errorf("redirect status %d not preserved, got %d", status, r.Status)
		}
	}
}

func TestSetCookieSerialization(t *testing.T) {
	r := NewTextResponse("", StatusOK, Headers{})

	c := NewCookie("sid", "abc123")
	c.Domain = "example.com"
	c.Secure = true
	c.HTTPOnly = true
	c.SameSite = "Lax"
	if err := r.SetCookie(c); err != nil {
		t.Fatal(err)
	}

	line := r.Cookies[0]
	wantOrder := []string{"sid=abc123", "; Domain=example.com", "; Path=/", "; Max-Age=86400", "; Expires=", "; Secure", "; HttpOnly", "; SameSite=Lax"}
	pos := -1
	for _, part := range wantOrder {
		i := strings.Index(line, part)
		if i < 0 {
			t.Fatalf("cookie line %q missing %q", line, part)
		}
		if i < pos {
			t.Fatalf("cookie line %q: %q out of order", line, part)
		}
		pos = i
	}
}

func TestSetCookieNoExpiresWithoutMaxAge(t *testing.T) {
	r := NewTextResponse("", StatusOK, Headers{})
	c := NewCookie("a", "b")
	c.MaxAge = 0
	if err := r.SetCookie(c); err != nil {
		t.Fatal(err)
	}
	line := r.Cookies[0]
	if strings.Contains(line, "Max-Age") || strings.Contains(line, "Expires") {
		t.Errorf("cookie without Max-Age should omit expiry: %q", line)
	}
}

func TestSetCookiePrefixRules(t *testing.T) {
	r := NewTextResponse("", StatusOK, Headers{})

	c := NewCookie("__Secure-token", "v")
	if err := r.SetCookie(c); err == nil {
		t.Error("__Secure- without Secure must fail")
	}
	c.Secure = true
	if err := r.SetCookie(c); err != nil {
		t.Errorf("__Secure- with Secure: %v", err)
	}

	h := NewCookie("__Host-token", "v")
	h.Secure = true
	h.Domain = "example.com"
	if err := r.SetCookie(h); err == nil {
		t.Error("__Host- with Domain must fail")
	}

	h = NewCookie("__Host-token", "v")
	h.Secure = true
	if err := r.SetCookie(h); err != nil {
		t.Fatalf("__Host- compliant cookie: %v", err)
	}

	line := r.Cookies[len(r.Cookies)-1]
	if !strings.Contains(line, "; Secure") {
		t.Errorf("__Host- line missing Secure: %q", line)
	}
	if strings.Contains(line, "; Domain=") {
		t.Errorf("__Host- line must not carry Domain: %q", line)
	}
	if !strings.Contains(line, "; Path=/") {
		t.Errorf("__Host- line must carry Path=/: %q", line)
	}
}

func TestCookieExpiresFormat(t *testing.T) {
	c := NewCookie("a", "b")
	c.MaxAge = time.Hour

	now := time.Date(2026, time.August, 5, 12, 0, 0, 0, time.UTC)
	line := c.serialize(now)
	if !strings.Contains(line, "; Expires=2026-Aug-05 13:00:00") {
		t.Errorf("Expires formatting: %q", line)
	}
}

func TestChunkWriter(t *testing.T) {
	var out bytes.Buffer
	cw := NewChunkWriter(&out)

	if err := cw.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	if err := cw.WriteChunk(nil); err != nil {
		t.Fatal(err)
	}
	if err := cw.Terminate(); err != nil {
		t.Fatal(err)
	}

	if got := out.String(); got != "5\r\nhello\r\n0\r\n\r\n" {
		t.Errorf("chunk stream = %q", got)
	}
}
