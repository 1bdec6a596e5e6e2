// Package router stores handlers in a path-segment trie keyed by method
// and pattern. Dynamic segments use the {name} syntax and bind the
// matched segment under that name.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/searchktools/goapi/core/http"
)

// ErrRouteExists is returned when a (method, pattern) pair is registered
// twice.
var ErrRouteExists = errors.New("router: route already exists")

type node struct {
	values   map[http.Method]*Route
	children map[string]*node

	// one dynamic child per node; param holds its most recently
	// registered name
	dynamic *node
	param   string
}

func newNode() *node {
	return &node{
		values:   make(map[http.Method]*Route),
		children: make(map[string]*node),
	}
}

// Trie resolves request paths to routes. It is populated before the
// server starts and read-only afterwards.
type Trie struct {
	root *node
}

// NewTrie returns an empty trie.
func NewTrie() *Trie {
	return &Trie{root: newNode()}
}

// Insert registers rt under (method, pattern). Patterns are normalized
// (one trailing '/' collapsed, except root), split on '/', and walked
// segment by segment. Empty and half-braced segments fail; so does a
// duplicate (method, pattern) registration.
func (t *Trie) Insert(method http.Method, pattern string, rt *Route) error {
	segments, err := splitPath(normalizePath(pattern))
	if err != nil {
		return err
	}

	n := t.root
	for _, seg := range segments {
		if isBrokenSegment(seg) {
			return fmt.Errorf("router: malformed dynamic segment %q", seg)
		}
		if isDynamicSegment(seg) {
			name := seg[1 : len(seg)-1]
			if name == "" {
				return fmt.Errorf("router: dynamic segment without name in %q", pattern)
			}
			if n.dynamic == nil {
				n.dynamic = newNode()
			}
			n.param = name
			n = n.dynamic
			continue
		}
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}

	if _, exists := n.values[method]; exists {
		return fmt.Errorf("%w: %s %s", ErrRouteExists, method, pattern)
	}
	n.values[method] = rt
	return nil
}

// Find resolves (method, path) to a route, binding each dynamic segment
// under its parameter name. Literal children win over the dynamic child.
// The params map is nil when the pattern has no dynamic segments.
func (t *Trie) Find(method http.Method, path string) (*Route, map[string]string, bool) {
	segments, err := splitPath(normalizePath(path))
	if err != nil {
		return nil, nil, false
	}

	n := t.root
	var params map[string]string

	for _, seg := range segments {
		if child, ok := n.children[seg]; ok {
			n = child
			continue
		}
		if n.dynamic != nil {
			if params == nil {
				params = make(map[string]string)
			}
			params[n.param] = seg
			n = n.dynamic
			continue
		}
		return nil, nil, false
	}

	rt, ok := n.values[method]
	if !ok {
		return nil, nil, false
	}
	return rt, params, true
}

// normalizePath collapses a single trailing '/' except on the root.
// Normalization is string-level only; segments are never percent-decoded.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

// splitPath splits a normalized path into segments. The root has zero
// segments; empty segments ("//") fail.
func splitPath(path string) ([]string, error) {
	if path == "/" {
		return nil, nil
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("router: empty segment in path %q", path)
		}
	}
	return segments, nil
}

func isDynamicSegment(seg string) bool {
	return len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func isBrokenSegment(seg string) bool {
	return (seg[0] == '{' && seg[len(seg)-1] != '}') ||
		(seg[0] != '{' && seg[len(seg)-1] == '}')
}
