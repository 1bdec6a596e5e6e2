package multipart

import (
	"bytes"
	"io"
	"os"
)

// ParseFile scans a multipart body previously spilled to path.
//
// Headers are consumed line by line; part content is scanned through a
// rolling search buffer so memory stays bounded by the delimiter window
// regardless of part size. Parts with a filename go straight to disk;
// nameless parts fail the parse. An in-memory part that outgrows
// MaxFileInMemory is spilled mid-stream.
func ParseFile(path, boundary string, opts Options) (Files, error) {
	opts.normalize()

	if err := validateBoundary(boundary); err != nil {
		return nil, err
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Reason: "can't open input file", Err: err}
	}
	defer src.Close()

	dashBoundary := "--" + boundary
	delimiter := []byte("\r\n" + dashBoundary)
	closingDelimiter := []byte("\r\n" + dashBoundary + "--")

	// rolling window large enough that a delimiter split across reads is
	// always found
	maxWindow := 2 * len(closingDelimiter)

	ret := make(Files)

	fail := func(err error) (Files, error) {
		ret.Close()
		return nil, err
	}

	if err := skipToInitialBoundary(src, dashBoundary, opts.ChunkSize); err != nil {
		return fail(err)
	}

	for {
		blob, err := readHeaderBlob(src, opts.ChunkSize)
		if err != nil {
			return fail(err)
		}
		name, filename, ctype := parsePartHeaders(blob)
		if name == "" {
			return fail(&ParseError{Reason: "missing name parameter in Content-Disposition header"})
		}

		part := partWriter{opts: opts}
		if filename != "" {
			if err := part.spill(); err != nil {
				return fail(err)
			}
		}

		searchBuf := make([]byte, 0, maxWindow+opts.ChunkSizeDisk)
		readBuf := make([]byte, opts.ChunkSizeDisk)

		boundaryFound := false
		finalBoundary := false

		for !boundaryFound {
			n, readErr := src.Read(readBuf)
			if readErr != nil && readErr != io.EOF {
				part.discard()
				return fail(&ParseError{Reason: "error reading file", Err: readErr})
			}
			if n == 0 && readErr == nil {
				readErr = io.EOF
			}
			searchBuf = append(searchBuf, readBuf[:n]...)

			normalPos := bytes.Index(searchBuf, delimiter)
			endPos := bytes.Index(searchBuf, closingDelimiter)

			switch {
			case normalPos >= 0 || endPos >= 0:
				boundaryPos := normalPos
				if endPos >= 0 && (normalPos < 0 || endPos <= normalPos) {
					boundaryPos = endPos
					finalBoundary = true
				}

				if boundaryPos > 0 {
					if err := part.write(searchBuf[:boundaryPos]); err != nil {
						return fail(err)
					}
				}

				matchedLen := len(delimiter)
				if finalBoundary {
					matchedLen = len(closingDelimiter)
				}
				rewind := len(searchBuf) - (boundaryPos + matchedLen)
				if rewind > 0 {
					if _, err := src.Seek(int64(-rewind), io.SeekCurrent); err != nil {
						part.discard()
						return fail(&ParseError{Reason: "error seeking in file", Err: err})
					}
				}
				boundaryFound = true

			case len(searchBuf) > maxWindow:
				flush := len(searchBuf) - maxWindow
				if err := part.write(searchBuf[:flush]); err != nil {
					return fail(err)
				}
				searchBuf = append(searchBuf[:0], searchBuf[flush:]...)
			}

			if readErr == io.EOF {
				if !boundaryFound && len(searchBuf) > 0 {
					if err := part.write(searchBuf); err != nil {
						return fail(err)
					}
				}
				break
			}
		}

		if err := part.finish(); err != nil {
			return fail(err)
		}

		if _, dup := ret[name]; dup {
			part.discard()
		} else if part.inDisk() {
			ret[name] = NewTempFile(filename, ctype, part.tempPath)
		} else {
			ret[name] = NewMemoryFile(name, ctype, part.data)
		}

		if finalBoundary {
			break
		}
	}

	return ret, nil
}

// ParseError reports a violation of the multipart grammar or an I/O
// failure while scanning a spilled body.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "multipart: " + e.Reason + ": " + e.Err.Error()
	}
	return "multipart: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// partWriter accumulates one part's content in memory and transparently
// spills to a temp file when the in-memory ceiling is crossed.
type partWriter struct {
	opts Options

	data     []byte
	tempPath string
	tmp      *os.File
	written  int64
}

func (p *partWriter) inDisk() bool { return p.tempPath != "" }

func (p *partWriter) spill() error {
	f, err := CreateTemp(p.opts.TempDir, TempFilePrefix)
	if err != nil {
		return &ParseError{Reason: "can't create temp file", Err: err}
	}
	p.tmp = f
	p.tempPath = f.Name()

	if len(p.data) > 0 {
		if _, err := f.Write(p.data); err != nil {
			p.discard()
			return &ParseError{Reason: "can't write temp file", Err: err}
		}
		p.data = nil
	}
	return nil
}

func (p *partWriter) write(b []byte) error {
	if p.tmp == nil && p.written+int64(len(b)) > p.opts.MaxFileInMemory {
		if err := p.spill(); err != nil {
			return err
		}
	}
	if p.tmp != nil {
		if _, err := p.tmp.Write(b); err != nil {
			p.discard()
			return &ParseError{Reason: "can't write temp file", Err: err}
		}
	} else {
		p.data = append(p.data, b...)
	}
	p.written += int64(len(b))
	return nil
}

func (p *partWriter) finish() error {
	if p.tmp == nil {
		return nil
	}
	err := p.tmp.Close()
	p.tmp = nil
	if err != nil {
		os.Remove(p.tempPath)
		p.tempPath = ""
		return &ParseError{Reason: "error closing temp file", Err: err}
	}
	return nil
}

func (p *partWriter) discard() {
	if p.tmp != nil {
		p.tmp.Close()
		p.tmp = nil
	}
	if p.tempPath != "" {
		os.Remove(p.tempPath)
		p.tempPath = ""
	}
	p.data = nil
}

// skipToInitialBoundary consumes lines until one equals "--<boundary>".
func skipToInitialBoundary(src *os.File, dashBoundary string, chunkSize int) error {
	for {
		line, err := readLine(src, chunkSize)
		if err != nil {
			return &ParseError{Reason: "error reading file", Err: err}
		}
		if line == "" {
			return &ParseError{Reason: "invalid format, initial boundary not found"}
		}
		if trimLineEnding(line) == dashBoundary {
			return nil
		}
	}
}

// readHeaderBlob consumes header lines up to the blank separator and
// returns them joined with CRLF. A single blank line right at the start
// is the delimiter's own line ending and is skipped, not the separator.
func readHeaderBlob(src *os.File, chunkSize int) (string, error) {
	var blob []byte
	first := true
	for {
		line, err := readLine(src, chunkSize)
		if err != nil {
			return "", &ParseError{Reason: "error reading file", Err: err}
		}
		if line == "" {
			return "", &ParseError{Reason: "headers section is not properly terminated"}
		}
		normalized := trimLineEnding(line)
		if normalized == "" {
			if first {
				first = false
				continue
			}
			return string(blob), nil
		}
		first = false
		blob = append(blob, normalized...)
		blob = append(blob, '\r', '\n')
	}
}

func trimLineEnding(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// readLine reads up to and including the next '\n', one byte at a time,
// capped at chunkSize bytes. Returns "" at end of stream.
func readLine(src *os.File, chunkSize int) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for len(buf) < chunkSize {
		n, err := src.Read(b)
		if n > 0 {
			buf = append(buf, b[0])
			if b[0] == '\n' {
				return string(buf), nil
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return string(buf), nil
}
