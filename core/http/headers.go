package http

import "strings"

type headerEntry struct {
	canonical string
	value     string
}

// Headers is a header map with ASCII case-insensitive keys. The key's
// spelling from the most recent Set is preserved for serialization;
// lookups fold case. Last write wins.
type Headers struct {
	m map[string]headerEntry
}

// NewHeaders returns an empty header map.
func NewHeaders() Headers {
	return Headers{m: make(map[string]headerEntry)}
}

func foldKey(key string) string {
	return strings.ToLower(key)
}

// Set stores value under key, replacing any previous value whose key
// matches case-insensitively.
func (h *Headers) Set(key, value string) {
	if h.m == nil {
		h.m = make(map[string]headerEntry)
	}
	h.m[foldKey(key)] = headerEntry{canonical: key, value: value}
}

// SetIfAbsent stores value only when no case-insensitive match exists.
func (h *Headers) SetIfAbsent(key, value string) {
	if h.Has(key) {
		return
	}
	h.Set(key, value)
}

// Get returns the value stored under key, folding case.
func (h *Headers) Get(key string) (string, bool) {
	e, ok := h.m[foldKey(key)]
	return e.value, ok
}

// Value returns the value stored under key or "" when absent.
func (h *Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Has reports whether key is present, folding case.
func (h *Headers) Has(key string) bool {
	_, ok := h.m[foldKey(key)]
	return ok
}

// Del removes key, folding case.
func (h *Headers) Del(key string) {
	delete(h.m, foldKey(key))
}

// Len returns the number of distinct headers.
func (h *Headers) Len() int {
	return len(h.m)
}

// Range calls fn for every header with its canonical key spelling.
// Iteration order is unspecified.
func (h *Headers) Range(fn func(key, value string)) {
	for _, e := range h.m {
		fn(e.canonical, e.value)
	}
}

// Clone returns a deep copy.
func (h *Headers) Clone() Headers {
	c := Headers{m: make(map[string]headerEntry, len(h.m))}
	for k, e := range h.m {
		c.m[k] = e
	}
	return c
}
