// Package navigation tracks where the shell is. Page consumers read the
// location; the teardown procedure moves it to the login entry point.
package navigation

import "sync"

// History records the shell's location and every navigation made.
type History struct {
	mu       sync.RWMutex
	location string
	entries  []string
	limit    int
}

// NewHistory starts at initial and keeps at most limit entries (0 = 100).
func NewHistory(initial string, limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{location: initial, limit: limit}
}

// Navigate moves to path.
func (h *History) Navigate(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.location = path
	h.entries = append(h.entries, path)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]string(nil), h.entries[over:]...)
	}
}

// Location is the current path.
func (h *History) Location() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.location
}

// Entries returns the recorded navigations, oldest first.
func (h *History) Entries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.entries...)
}
