package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/goapi/config"
	"github.com/searchktools/goapi/core/http"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = strconv.Itoa(freePort(t))
	cfg.Server.Workers = 4
	cfg.Server.TmpDir = t.TempDir()
	cfg.Logger.Level = "none"
	return cfg
}

func startEngine(t *testing.T, e *Engine, cfg config.Config) {
	t.Helper()
	if err := e.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		e.Stop()
		e.Wait()
	})
}

func dialServer(t *testing.T, cfg config.Config) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", addr, err)
	return nil
}

func roundTrip(t *testing.T, conn net.Conn, br *bufio.Reader, raw string) (*stdhttp.Response, string) {
	t.Helper()
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := stdhttp.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, string(body)
}

func TestEngineStaticRoute(t *testing.T) {
	e := New()
	if err := e.GET("/ping", func(c *http.Context) *http.Response {
		return http.NewTextResponse("pong", http.StatusOK, http.Headers{})
	}); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()
	br := bufio.NewReader(conn)

	resp, body := roundTrip(t, conn, br, "GET /ping HTTP/1.1\r\nHost: x\r\n\r\n")

	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if body != "pong" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("Connection") != "keep-alive" {
		t.Errorf("Connection = %q", resp.Header.Get("Connection"))
	}
	if resp.Header.Get("Keep-Alive") != "timeout=30" {
		t.Errorf("Keep-Alive = %q", resp.Header.Get("Keep-Alive"))
	}

	// keep-alive: same connection serves a second request
	resp, body = roundTrip(t, conn, br, "GET /ping HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 200 || body != "pong" {
		t.Errorf("second request: status=%d body=%q", resp.StatusCode, body)
	}
}

func TestEngineDynamicRoute(t *testing.T) {
	e := New()
	err := e.GET("/user/{id}/post/{post_id}", func(c *http.Context) *http.Response {
		return http.NewTextResponse(c.Param("id")+":"+c.Param("post_id"), http.StatusOK, http.Headers{})
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	_, body := roundTrip(t, conn, bufio.NewReader(conn), "GET /user/123/post/456 HTTP/1.1\r\nHost: x\r\n\r\n")
	if body != "123:456" {
		t.Errorf("params body = %q", body)
	}
}

func TestEngineNotFoundDefault(t *testing.T) {
	e := New()
	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	resp, body := roundTrip(t, conn, bufio.NewReader(conn), "GET /missing HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 404 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body != "Not found" {
		t.Errorf("body = %q", body)
	}
}

func TestEngineJSONResponseClass(t *testing.T) {
	e := New()
	cfg := testConfig(t)
	cfg.HTTP.ResponseClass = config.ResponseClassJSON
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	resp, body := roundTrip(t, conn, bufio.NewReader(conn), "GET /missing HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 404 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"message":"Not found"`) {
		t.Errorf("json body = %q", body)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestEngineConnectionClose(t *testing.T) {
	e := New()
	e.GET("/", func(c *http.Context) *http.Response {
		return http.NewTextResponse("ok", http.StatusOK, http.Headers{})
	})
	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()
	br := bufio.NewReader(conn)

	resp, _ := roundTrip(t, conn, br, "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	// net/http removes "Connection: close" from a parsed response and
	// reports it through resp.Close instead
	if !resp.Close {
		t.Error("response should carry Connection: close")
	}

	// server closes its half after the response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := br.ReadByte(); err != io.EOF {
		t.Errorf("expected EOF after Connection: close, got %v", err)
	}
}

func TestEngineAsyncRouteAndStreaming(t *testing.T) {
	e := New()
	err := e.HandleAsync(http.MethodGet, "/stream", func(ctx context.Context, c *http.Context) (*http.Response, error) {
		cb := func(ctx context.Context, w *http.ChunkWriter) error {
			for i := 0; i < 3; i++ {
				if err := w.WriteString(fmt.Sprintf("part%d", i)); err != nil {
					return err
				}
			}
			return nil
		}
		return http.NewStreamResponse(cb, "text/plain", http.StatusOK, http.Headers{}), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	resp, body := roundTrip(t, conn, bufio.NewReader(conn), "GET /stream HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.TransferEncoding == nil || resp.TransferEncoding[0] != "chunked" {
		t.Errorf("Transfer-Encoding = %v", resp.TransferEncoding)
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
	}
	if body != "part0part1part2" {
		t.Errorf("streamed body = %q", body)
	}
}

func TestEngineMultipartUpload(t *testing.T) {
	got := make(chan [4]string, 1)

	e := New()
	e.POST("/upload", func(c *http.Context) *http.Response {
		f := c.File("f")
		if f == nil {
			got <- [4]string{}
			return http.NewTextResponse("missing", http.StatusBadRequest, http.Headers{})
		}
		got <- [4]string{f.Name(), f.ContentType(), strconv.FormatInt(f.Size(), 10), strconv.FormatBool(f.InMemory())}
		return http.NewTextResponse("ok", http.StatusCreated, http.Headers{})
	})

	cfg := testConfig(t)
	startEngine(t, e, cfg)

	body := "--b\r\n" +
		"Content-Disposition: form-data; name=\"f\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--b--\r\n"
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\n" +
		"Content-Type: multipart/form-data; boundary=b\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"\r\n" + body

	conn := dialServer(t, cfg)
	defer conn.Close()

	resp, respBody := roundTrip(t, conn, bufio.NewReader(conn), raw)
	if resp.StatusCode != 201 || respBody != "ok" {
		t.Fatalf("upload response: %d %q", resp.StatusCode, respBody)
	}

	file := <-got
	if file[0] != "a.txt" || file[1] != "text/plain" || file[2] != "5" {
		t.Errorf("file = %v", file)
	}

	// the spilled request body is consumed and removed
	entries, err := os.ReadDir(cfg.Server.TmpDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		t.Errorf("leftover temp file %q", entry.Name())
	}
}

func TestEngineMultipartRequiresContentLength(t *testing.T) {
	e := New()
	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	raw := "POST /upload HTTP/1.1\r\nHost: x\r\n" +
		"Content-Type: multipart/form-data; boundary=b\r\n" +
		"\r\n"
	resp, body := roundTrip(t, conn, bufio.NewReader(conn), raw)
	if resp.StatusCode != 400 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body != "Bad request" {
		t.Errorf("body = %q", body)
	}
}

func TestEngineHandlerPanicIs500(t *testing.T) {
	e := New()
	e.GET("/boom", func(c *http.Context) *http.Response {
		panic("kaboom")
	})
	cfg := testConfig(t)
	startEngine(t, e, cfg)

	conn := dialServer(t, cfg)
	defer conn.Close()

	resp, body := roundTrip(t, conn, bufio.NewReader(conn), "GET /boom HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 500 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body != "Internal server error" {
		t.Errorf("body = %q", body)
	}
}

func TestEngineFreezeAfterStart(t *testing.T) {
	e := New()
	cfg := testConfig(t)
	startEngine(t, e, cfg)

	if err := e.GET("/late", func(c *http.Context) *http.Response { return nil }); err != ErrAlreadyStarted {
		t.Errorf("route registration after start: %v", err)
	}
	if err := e.Use(nil); err != ErrAlreadyStarted {
		t.Errorf("middleware registration after start: %v", err)
	}
}

func TestEngineGracefulShutdown(t *testing.T) {
	e := New()
	cfg := testConfig(t)
	if err := e.Start(cfg); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	go e.Stop()
	e.Stop() // second call is a no-op

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}

	// listener is closed
	if conn, err := net.DialTimeout("tcp", net.JoinHostPort(cfg.Host, cfg.Port), 200*time.Millisecond); err == nil {
		conn.Close()
		t.Error("dial should fail after shutdown")
	}
}
