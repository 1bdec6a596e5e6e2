package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/searchktools/goapi/core/http"
	"github.com/searchktools/goapi/core/multipart"
)

// maxHeaderBytes caps the request line plus headers.
const maxHeaderBytes = 64 * 1024

// errConnDone marks wire conditions the pipeline exits on silently:
// end-of-stream, reset, closed socket, idle timeout.
var errConnDone = errors.New("connection done")

// serveConn runs the per-connection pipeline: requests on one connection
// are handled strictly sequentially, and the loop re-checks the running
// flag at the top of every iteration.
func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		s.untrack(conn)
		conn.Close()
	}()

	br := bufio.NewReaderSize(conn, int(minInt64(int64(s.opts.MaxChunkSize), 64*1024)))

	for s.running.Load() {
		closeConn, err := s.serveOne(conn, br)
		if err != nil {
			if errors.Is(err, errConnDone) {
				return
			}
			s.metrics.PipelineErrors.Inc()
			s.log.Error().Err(err).Str("client", conn.RemoteAddr().String()).Msg("error while handling client")

			status := http.StatusFor(err)
			resp := s.errorResponse(status)
			s.metrics.ObserveStatus(status)
			if werr := writeBuffered(conn, resp, true, s.opts.KeepAliveTimeout); werr != nil {
				return
			}
			continue
		}
		if closeConn {
			return
		}
	}
}

// serveOne handles a single request/response cycle. The returned flag
// asks the caller to close the connection; errConnDone means the peer is
// gone and nothing more should be written.
func (s *Server) serveOne(conn net.Conn, br *bufio.Reader) (bool, error) {
	if s.opts.KeepAliveTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(time.Duration(s.opts.KeepAliveTimeout) * time.Second))
	}

	req, err := readRequestHead(br)
	if err != nil {
		if isConnDone(err) {
			return true, errConnDone
		}
		if ce := new(http.ClientError); errors.As(err, &ce) {
			return false, err
		}
		return false, http.NewServerError("failed to read request head", err)
	}
	conn.SetReadDeadline(time.Time{})

	if isWebSocketUpgrade(req) {
		// upgrade negotiation happens elsewhere; this pipeline is done
		// with the socket
		return true, errConnDone
	}

	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		req.Client = http.ClientInfo{RemoteAddr: addr.IP.String(), RemotePort: uint16(addr.Port)}
	}

	contentType := req.Headers.Value("Content-Type")
	if hasPrefixFold(contentType, "multipart/form-data") {
		if err := s.streamBody(req, br); err != nil {
			return false, err
		}
	} else if err := s.readBody(req, br); err != nil {
		return false, err
	}

	return s.handleRequest(conn, req)
}

// streamBody spills a multipart request body to a temp file under the
// configured temp dir, alternating between draining the parser's buffer
// and reading the socket in MaxChunkSize blocks.
func (s *Server) streamBody(req *http.Request, br *bufio.Reader) error {
	clenValue, ok := req.Headers.Get("Content-Length")
	if !ok {
		return http.NewClientError("missing Content-Length for multipart")
	}
	clen, err := strconv.ParseInt(clenValue, 10, 64)
	if err != nil || clen < 0 {
		return http.NewClientError("invalid Content-Length %q", clenValue)
	}
	if clen > s.opts.MaxRequestSize {
		return http.NewClientError("max request size reached")
	}

	f, err := multipart.CreateTemp(s.opts.TmpDir, multipart.UploadFilePrefix)
	if err != nil {
		return http.NewServerError("can't open temp file", err)
	}
	path := f.Name()

	buf := make([]byte, s.opts.MaxChunkSize)
	var remaining = clen
	for remaining > 0 {
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		read, rerr := br.Read(buf[:n])
		if read > 0 {
			if _, werr := f.Write(buf[:read]); werr != nil {
				f.Close()
				os.Remove(path)
				return http.NewServerError("incomplete write to file", werr)
			}
			remaining -= int64(read)
		}
		if remaining == 0 {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(path)
			return http.NewServerError("connection closed unexpectedly", rerr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return http.NewServerError("error closing temp file", err)
	}

	s.metrics.MultipartSpills.Inc()
	req.ParsePath = path
	return nil
}

// readBody reads a Content-Length body into the request buffer.
func (s *Server) readBody(req *http.Request, br *bufio.Reader) error {
	clenValue, ok := req.Headers.Get("Content-Length")
	if !ok {
		return nil
	}
	clen, err := strconv.ParseInt(clenValue, 10, 64)
	if err != nil || clen < 0 {
		return http.NewClientError("invalid Content-Length %q", clenValue)
	}
	if clen == 0 {
		return nil
	}
	if clen > s.opts.MaxRequestSize {
		return http.NewClientError("body limit exceeded")
	}

	body := make([]byte, clen)
	if _, err := io.ReadFull(br, body); err != nil {
		return http.NewServerError("connection closed unexpectedly", err)
	}
	req.Body = body
	return nil
}

// handleRequest runs the middleware chain and serializes the response,
// buffered or chunked. Chain errors surface as a 500 and force close.
func (s *Server) handleRequest(conn net.Conn, req *http.Request) (bool, error) {
	keepAlive := req.KeepAlive()
	closeConn := !keepAlive

	resp, err := s.dispatch(s.ctx, req)
	if err != nil {
		s.metrics.PipelineErrors.Inc()
		s.log.Error().Err(err).Str("client", conn.RemoteAddr().String()).Msg("error while handling client request")

		s.metrics.ObserveStatus(http.StatusInternalServerError)
		if werr := writeBuffered(conn, s.errorResponse(http.StatusInternalServerError), false, 0); werr != nil {
			return true, errConnDone
		}
		return true, nil
	}

	s.metrics.ObserveStatus(resp.Status)

	if resp.Stream {
		if err := s.writeStream(conn, resp, keepAlive); err != nil {
			return true, errConnDone
		}
		if closeConn {
			shutdownWrite(conn)
		}
		return closeConn, nil
	}

	if err := writeBuffered(conn, resp, keepAlive, s.opts.KeepAliveTimeout); err != nil {
		return true, errConnDone
	}
	if closeConn {
		shutdownWrite(conn)
	}
	return closeConn, nil
}

// writeStream emits the chunked header prelude, runs the streaming
// callback and writes the zero-chunk terminator.
func (s *Server) writeStream(conn net.Conn, resp *http.Response, keepAlive bool) error {
	head := resp.Headers.Clone()
	head.Del("Content-Length")
	head.Set("Transfer-Encoding", "chunked")
	setConnectionHeaders(&head, keepAlive, s.opts.KeepAliveTimeout)

	if err := writeHead(conn, resp.Status, &head, resp.Cookies); err != nil {
		return err
	}

	cw := http.NewChunkWriter(conn)
	if resp.Callback != nil {
		if err := resp.Callback(s.ctx, cw); err != nil {
			s.log.Error().Err(err).Msg("streaming callback failed")
			return err
		}
	}
	return cw.Terminate()
}

func (s *Server) errorResponse(status int) *http.Response {
	var message string
	switch status {
	case http.StatusBadRequest:
		message = "Bad request"
	case http.StatusNotFound:
		message = "Not found"
	default:
		message = "Internal server error"
	}
	return http.ErrorResponse(status, message, s.opts.JSONErrors)
}

func isConnDone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isWebSocketUpgrade(req *http.Request) bool {
	if !strings.EqualFold(req.Headers.Value("Upgrade"), "websocket") {
		return false
	}
	for _, token := range strings.Split(req.Headers.Value("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func shutdownWrite(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
