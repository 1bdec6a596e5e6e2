package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/searchktools/goapi/core/http"
)

// readRequestHead parses the request line and headers up to CRLFCRLF.
// Malformed input is a client error; wire failures pass through for the
// pipeline to classify.
func readRequestHead(br *bufio.Reader) (*http.Request, error) {
	req := http.NewRequest()

	line, err := readHeadLine(br)
	if err != nil {
		return nil, err
	}

	sp1 := strings.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, http.NewClientError("malformed request line")
	}
	sp2 := strings.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return nil, http.NewClientError("malformed request line")
	}
	sp2 += sp1 + 1

	req.Method = http.ParseMethod(line[:sp1])
	req.URI = line[sp1+1 : sp2]
	if req.URI == "" {
		return nil, http.NewClientError("empty request target")
	}
	if proto := line[sp2+1:]; !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, http.NewClientError("unsupported protocol %q", proto)
	}

	total := len(line)
	for {
		line, err := readHeadLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return req, nil
		}
		total += len(line)
		if total > maxHeaderBytes {
			return nil, http.NewClientError("request head too large")
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, http.NewClientError("malformed header line")
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		req.Headers.Set(key, value)
	}
}

// readHeadLine reads one CRLF-terminated line, returning it without the
// line ending.
func readHeadLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			if len(line) > maxHeaderBytes {
				return "", http.NewClientError("request head too large")
			}
			continue
		}
		return "", err
	}

	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n = len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

// setConnectionHeaders stamps the keep-alive outcome on a response head.
func setConnectionHeaders(h *http.Headers, keepAlive bool, timeout int) {
	if keepAlive {
		h.Set("Connection", "keep-alive")
		h.Set("Keep-Alive", fmt.Sprintf("timeout=%d", timeout))
	} else {
		h.Set("Connection", "close")
	}
}

// writeHead serializes the status line, headers and Set-Cookie lines.
func writeHead(w io.Writer, status int, headers *http.Headers, cookies []string) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	headers.Range(func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
	for _, cookie := range cookies {
		buf.WriteString("Set-Cookie: ")
		buf.WriteString(cookie)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")

	_, err := w.Write(buf.B)
	return err
}

// writeBuffered serializes a non-streaming response as one message with
// an explicit Content-Length.
func writeBuffered(w io.Writer, resp *http.Response, keepAlive bool, timeout int) error {
	head := resp.Headers.Clone()
	head.Set("Content-Length", fmt.Sprintf("%d", len(resp.Body)))
	setConnectionHeaders(&head, keepAlive, timeout)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", resp.Status, http.StatusText(resp.Status))
	head.Range(func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
	for _, cookie := range resp.Cookies {
		buf.WriteString("Set-Cookie: ")
		buf.WriteString(cookie)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(resp.Body)

	_, err := w.Write(buf.B)
	return err
}
