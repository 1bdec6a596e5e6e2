// Package multipart streams multipart/form-data bodies with a bounded
// memory footprint. Two entry points share the part grammar: Parse scans
// an in-memory body, ParseFile walks a temp file the pipeline spilled the
// request body to. Parts above the configured thresholds land in temp
// files of their own.
package multipart

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strings"
)

var (
	errEmptyBoundary      = errors.New("multipart: empty boundary")
	errBoundaryWhitespace = errors.New("multipart: boundary ends with whitespace")
)

// yieldThreshold is the in-memory part size above which the parser yields
// the scheduler between parts.
const yieldThreshold = 64 * 1024

// Options bound the engine's memory and disk behavior.
type Options struct {
	// ChunkSize caps the length of one boundary or header line read from
	// a spilled body.
	ChunkSize int

	// ChunkSizeDisk is the write granularity for disk spills and the read
	// size for part content in a spilled body.
	ChunkSizeDisk int

	// MaxFileInMemory is the per-part in-memory ceiling.
	MaxFileInMemory int64

	// MaxFilesInMemory caps the combined size of in-memory parts.
	MaxFilesInMemory int64

	// TempDir receives spilled part files. Defaults to os.TempDir().
	TempDir string
}

// DefaultOptions mirrors the engine's built-in thresholds.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        16 * 1024,
		ChunkSizeDisk:    64 * 1024,
		MaxFileInMemory:  1 << 20,
		MaxFilesInMemory: 10 << 20,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkSizeDisk <= 0 {
		o.ChunkSizeDisk = d.ChunkSizeDisk
	}
	if o.MaxFileInMemory <= 0 {
		o.MaxFileInMemory = d.MaxFileInMemory
	}
	if o.MaxFilesInMemory <= 0 {
		o.MaxFilesInMemory = d.MaxFilesInMemory
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
}

// Parse scans an in-memory multipart body delimited by boundary.
//
// Only parts carrying both a name and a filename become files; the first
// occurrence of a field name wins. If the closing delimiter
// "--<boundary>--" never appears the whole parse yields zero files.
// Errors come from an empty or whitespace-terminated boundary and from a
// failed disk spill.
func Parse(body []byte, boundary string, opts Options) (Files, error) {
	opts.normalize()

	if err := validateBoundary(boundary); err != nil {
		return nil, err
	}

	ret := make(Files)

	dashBoundary := []byte("--" + boundary)
	delimiter := []byte("\r\n--" + boundary)

	if !bytes.Contains(body, dashBoundary) {
		return ret, nil
	}

	var inMemoryTotal int64
	sawClosing := false

	pos := bytes.Index(body, dashBoundary)
	for pos >= 0 {
		pos += len(dashBoundary)

		if bytes.HasPrefix(body[pos:], []byte("--")) {
			sawClosing = true
			break
		}
		if bytes.HasPrefix(body[pos:], []byte("\r\n")) {
			pos += 2
		}

		headerEnd := bytes.Index(body[pos:], []byte("\r\n\r\n"))
		if headerEnd < 0 {
			break
		}
		name, filename, ctype := parsePartHeaders(string(body[pos : pos+headerEnd]))
		pos += headerEnd + 4

		partEnd := bytes.Index(body[pos:], delimiter)
		if partEnd < 0 {
			break
		}
		content := body[pos : pos+partEnd]

		if name != "" && filename != "" {
			if _, dup := ret[name]; !dup {
				contentLen := int64(len(content))

				if contentLen <= opts.MaxFileInMemory && inMemoryTotal+contentLen <= opts.MaxFilesInMemory {
					data := make([]byte, contentLen)
					copy(data, content)
					inMemoryTotal += contentLen

					if contentLen > yieldThreshold {
						runtime.Gosched()
					}
					ret[name] = NewMemoryFile(filename, ctype, data)
				} else {
					path, err := spillContent(content, opts)
					if err != nil {
						ret.Close()
						return nil, err
					}
					ret[name] = NewTempFile(filename, ctype, path)
				}
			}
		}

		// step past the part's trailing CRLF so the next scan lands on
		// the delimiter's dashes
		pos += partEnd + 2
		next := bytes.Index(body[pos:], dashBoundary)
		if next < 0 {
			break
		}
		pos += next
	}

	if !sawClosing {
		ret.Close()
		return make(Files), nil
	}
	return ret, nil
}

func spillContent(content []byte, opts Options) (string, error) {
	f, err := CreateTemp(opts.TempDir, TempFilePrefix)
	if err != nil {
		return "", err
	}
	path := f.Name()

	for w := 0; w < len(content); w += opts.ChunkSizeDisk {
		end := w + opts.ChunkSizeDisk
		if end > len(content) {
			end = len(content)
		}
		if _, err := f.Write(content[w:end]); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		runtime.Gosched()
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// parsePartHeaders extracts name, filename and content type from a part's
// header blob. Header names match case-insensitively.
func parsePartHeaders(blob string) (name, filename, ctype string) {
	for _, line := range strings.Split(blob, "\r\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "content-disposition"):
			name = extractBetween(line, `name="`, `"`)
			filename = extractBetween(line, `filename="`, `"`)
		case strings.Contains(lower, "content-type"):
			if i := strings.IndexByte(line, ':'); i >= 0 {
				ctype = strings.TrimSpace(line[i+1:])
			}
		}
	}
	return name, filename, ctype
}

// extractBetween returns the substring between the first occurrence of
// start and the next occurrence of end, or "".
func extractBetween(s, start, end string) string {
	first := strings.Index(s, start)
	if first < 0 {
		return ""
	}
	first += len(start)
	last := strings.Index(s[first:], end)
	if last < 0 {
		return ""
	}
	return s[first : first+last]
}
