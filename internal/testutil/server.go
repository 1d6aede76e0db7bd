package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MediaServer serves fixed bodies and counts requests. A body registered
// with a query string matches only that query; otherwise the path alone
// is matched. Unknown paths answer 404.
type MediaServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string][]byte
	hits   map[string]int
}

// NewMediaServer starts a MediaServer that is closed when the test ends.
func NewMediaServer(t *testing.T) *MediaServer {
	t.Helper()

	s := &MediaServer{
		bodies: make(map[string][]byte),
		hits:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *MediaServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	key := r.URL.RequestURI()
	if _, ok := s.bodies[key]; !ok {
		key = r.URL.Path
	}
	s.hits[key]++
	body, ok := s.bodies[key]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(body)
}

// Set serves body at path, which may carry a query, and returns the
// absolute URL.
func (s *MediaServer) Set(path string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
	return s.URL + path
}

// Hits returns the number of requests matched to path.
func (s *MediaServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Remove stops serving path, so later requests answer 404.
func (s *MediaServer) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bodies, path)
}
