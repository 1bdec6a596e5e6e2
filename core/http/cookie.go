package http

import (
	"fmt"
	"strings"
	"time"
)

// expiresLayout is the human-readable UTC timestamp appended alongside
// Max-Age ("2026-Aug-05 17:04:05").
const expiresLayout = "2006-Jan-02 15:04:05"

// Cookie describes one Set-Cookie line before serialization.
type Cookie struct {
	Name  string
	Value string

	Path   string // default "/"
	Domain string // default empty

	Secure   bool
	HTTPOnly bool

	// MaxAge defaults to 24h. When positive, the serialized cookie also
	// carries an Expires attribute computed from current UTC + MaxAge.
	MaxAge time.Duration

	SameSite string
}

// NewCookie returns a cookie with the framework defaults applied.
func NewCookie(name, value string) Cookie {
	return Cookie{
		Name:   name,
		Value:  value,
		Path:   "/",
		MaxAge: 24 * time.Hour,
	}
}

func (c *Cookie) validate() error {
	if strings.HasPrefix(c.Name, "__Secure-") && !c.Secure {
		return NewClientError("__Secure- cookies require the Secure flag")
	}
	if strings.HasPrefix(c.Name, "__Host-") {
		if !c.Secure || c.Domain != "" || c.Path != "/" {
			return NewClientError("__Host- cookies require Secure, no Domain and Path=/")
		}
	}
	return nil
}

// serialize renders the Set-Cookie line. Attribute order: Name=Value,
// Domain, Path, Max-Age, Expires (only when Max-Age > 0), Secure,
// HttpOnly, SameSite.
func (c *Cookie) serialize(now time.Time) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.MaxAge > 0 {
		fmt.Fprintf(&b, "; Max-Age=%d", int64(c.MaxAge/time.Second))
		b.WriteString("; Expires=")
		b.WriteString(now.UTC().Add(c.MaxAge).Format(expiresLayout))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}
