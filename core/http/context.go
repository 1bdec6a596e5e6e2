package http

import (
	"os"
	"strings"

	"github.com/searchktools/goapi/core/multipart"
)

// Context bundles everything a handler sees for one request: the parsed
// request, the route's named parameters, and any multipart files. It is
// built once per request and not shared.
type Context struct {
	Request *Request
	Params  map[string]string
	Files   multipart.Files
}

// NewContext builds the handler context, running multipart parsing when
// the request carries a form-data body. Bodies the pipeline spilled to
// disk are parsed from their temp file, which is removed afterwards.
func NewContext(req *Request, params map[string]string, opts multipart.Options) (*Context, error) {
	ctx := &Context{Request: req, Params: params}

	ct, ok := req.Headers.Get("Content-Type")
	if !ok {
		return ctx, nil
	}
	boundary := multipart.ExtractBoundary(ct)
	if boundary == "" {
		return ctx, nil
	}

	if req.ParsePath != "" {
		files, err := multipart.ParseFile(req.ParsePath, boundary, opts)
		// the spilled body is consumed either way; unlink errors are not
		// surfaced to the request
		os.Remove(req.ParsePath)
		if err != nil {
			return nil, NewProcessingError("multipart parse failed: %v", err)
		}
		ctx.Files = files
		return ctx, nil
	}

	if hasMultipartPrefix(ct) {
		files, err := multipart.Parse(req.Body, boundary, opts)
		if err != nil {
			return nil, NewProcessingError("multipart parse failed: %v", err)
		}
		ctx.Files = files
	}
	return ctx, nil
}

func hasMultipartPrefix(contentType string) bool {
	const prefix = "multipart/form-data"
	return len(contentType) >= len(prefix) && strings.EqualFold(contentType[:len(prefix)], prefix)
}

// Param returns the named route parameter or "".
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// File returns the uploaded file for a form field, or nil.
func (c *Context) File(field string) *multipart.File {
	if c.Files == nil {
		return nil
	}
	return c.Files[field]
}

// Close releases any disk-backed uploads owned by the context.
func (c *Context) Close() error {
	if c.Files == nil {
		return nil
	}
	return c.Files.Close()
}
