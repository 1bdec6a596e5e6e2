package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/valyala/bytebufferpool"
)

// StreamFunc writes a streaming response body as chunked frames. The
// callback owns its resources and must release them on every exit path;
// the pipeline writes the zero-chunk terminator after it returns.
type StreamFunc func(ctx context.Context, w *ChunkWriter) error

// Response is the single response shape the pipeline serializes. The
// typed constructors below cover the plain/JSON/file/stream/redirect
// variants.
type Response struct {
	Body    []byte
	Headers Headers

	// Cookies holds fully formatted Set-Cookie lines in emission order.
	Cookies []string

	Status int

	Callback StreamFunc
	Stream   bool
}

func newResponse(status int, headers Headers) *Response {
	r := &Response{Headers: NewHeaders(), Status: status}
	headers.Range(r.Headers.Set)
	return r
}

// SetCookie validates and appends a Set-Cookie line. Cookies named
// __Secure-* must carry Secure; __Host-* must carry Secure, an empty
// domain and Path=/.
func (r *Response) SetCookie(c Cookie) error {
	if err := c.validate(); err != nil {
		return err
	}
	r.Cookies = append(r.Cookies, c.serialize(time.Now()))
	return nil
}

// NewTextResponse builds a plain-text response. Content-Type stays
// text/plain unless headers overrides it.
func NewTextResponse(body string, status int, headers Headers) *Response {
	r := newResponse(status, headers)
	r.Body = []byte(body)
	r.Headers.SetIfAbsent("Content-Type", "text/plain")
	return r
}

// NewJSONResponse serializes v and sets Content-Type: application/json.
// Serialization failure degrades to an empty body; handlers pass
// marshalable values.
func NewJSONResponse(v any, status int, headers Headers) *Response {
	r := newResponse(status, headers)
	if v != nil {
		if data, err := json.Marshal(v); err == nil {
			r.Body = data
		}
	}
	r.Headers.SetIfAbsent("Content-Type", "application/json")
	return r
}

// NewFileResponse streams a file from disk. A missing path yields 404, a
// non-regular file 400. Otherwise the response carries the MIME-table
// Content-Type, Content-Length and an ETag of "<mtime>-<size>", and the
// callback reads the file in fixed chunks.
func NewFileResponse(path string, status int, headers Headers) *Response {
	info, err := os.Stat(path)
	if err != nil {
		return NewTextResponse("File not found", StatusNotFound, Headers{})
	}
	if !info.Mode().IsRegular() {
		return NewTextResponse("Bad request", StatusBadRequest, Headers{})
	}

	r := newResponse(status, headers)
	r.Stream = true
	r.Headers.SetIfAbsent("Content-Type", MIMEType(path))
	r.Headers.SetIfAbsent("Content-Length", fmt.Sprintf("%d", info.Size()))
	r.Headers.Set("ETag", fmt.Sprintf("\"%d-%d\"", info.ModTime().Unix(), info.Size()))

	size := info.Size()
	r.Callback = func(ctx context.Context, w *ChunkWriter) error {
		f, err := os.Open(path)
		if err != nil {
			return NewServerError("failed to open file", err)
		}
		defer f.Close()

		buf := make([]byte, 8192)
		var sent int64
		for sent < size {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := f.Read(buf)
			if n > 0 {
				if werr := w.WriteChunk(buf[:n]); werr != nil {
					return werr
				}
				sent += int64(n)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
	return r
}

// NewStreamResponse wraps a user callback in a chunked response with
// Cache-Control: no-cache and the given content type
// (application/octet-stream when empty).
func NewStreamResponse(cb StreamFunc, contentType string, status int, headers Headers) *Response {
	r := newResponse(status, headers)
	r.Stream = true
	r.Callback = cb
	if contentType == "" {
		contentType = DefaultMIMEType
	}
	r.Headers.SetIfAbsent("Cache-Control", "no-cache")
	r.Headers.SetIfAbsent("Content-Type", contentType)
	return r
}

// NewRedirectResponse sets Location and coerces the status into the
// redirect set {301, 302, 303, 307, 308}, defaulting to 302. The body is
// empty.
func NewRedirectResponse(location string, status int, headers Headers) *Response {
	switch status {
	case StatusMovedPermanently, StatusFound, StatusSeeOther,
		StatusTemporaryRedirect, StatusPermanentRedirect:
	default:
		status = StatusFound
	}
	r := newResponse(status, headers)
	r.Headers.SetIfAbsent("Location", location)
	r.Headers.SetIfAbsent("Content-Type", "text/plain")
	return r
}

// ChunkWriter frames writes as HTTP/1.1 chunked transfer encoding:
// <hex-size>\r\n<bytes>\r\n per chunk.
type ChunkWriter struct {
	w io.Writer
}

// NewChunkWriter wraps w.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w}
}

// WriteChunk writes one chunk frame. Empty payloads are skipped: a
// zero-size frame would terminate the stream.
func (c *ChunkWriter) WriteChunk(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "%X\r\n", len(p))
	buf.Write(p)
	buf.WriteString("\r\n")

	_, err := c.w.Write(buf.B)
	return err
}

// WriteString writes s as one chunk frame.
func (c *ChunkWriter) WriteString(s string) error {
	return c.WriteChunk([]byte(s))
}

// Terminate writes the zero-chunk terminator.
func (c *ChunkWriter) Terminate() error {
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}
