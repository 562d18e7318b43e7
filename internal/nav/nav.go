// Package nav models the console's current location so the rest of the
// client can redirect without knowing how routes are rendered.
package nav

import (
	"strings"
	"sync"
)

type Navigator interface {
	Location() string
	Navigate(path string)
}

// History is an in-process Navigator that remembers every location visited.
type History struct {
	mu      sync.Mutex
	visited []string
	onMove  []func(string)
}

func NewHistory(start string) *History {
	return &History{visited: []string{Clean(start)}}
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visited[len(h.visited)-1]
}

// Navigate moves to path. Navigating to the current location is a no-op.
func (h *History) Navigate(path string) {
	path = Clean(path)
	h.mu.Lock()
	if h.visited[len(h.visited)-1] == path {
		h.mu.Unlock()
		return
	}
	h.visited = append(h.visited, path)
	listeners := append([]func(string)(nil), h.onMove...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(path)
	}
}

// Visited returns every location in order, starting location first.
func (h *History) Visited() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.visited...)
}

// OnNavigate registers fn to run after every location change.
func (h *History) OnNavigate(fn func(path string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMove = append(h.onMove, fn)
}

// Clean drops any query or fragment and trailing slash, keeping "/" for the
// root.
func Clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
