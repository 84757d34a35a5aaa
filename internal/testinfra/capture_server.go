// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Capture is one recorded request.
type Capture struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// CaptureServer is an httptest server that records every request before
// dispatching it to the registered handlers. Unregistered paths get 404.
type CaptureServer struct {
	server *httptest.Server
	mux    *http.ServeMux

	mu       sync.Mutex
	captures []Capture
}

// NewCaptureServer starts a capture server closed at test cleanup.
func NewCaptureServer(t *testing.T) *CaptureServer {
	t.Helper()

	cs := &CaptureServer{mux: http.NewServeMux()}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
		}

		cs.mu.Lock()
		cs.captures = append(cs.captures, Capture{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		cs.mu.Unlock()

		cs.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

// Handle registers handler for pattern (http.ServeMux syntax).
// Register handlers before issuing requests.
func (c *CaptureServer) Handle(pattern string, handler http.HandlerFunc) {
	c.mux.HandleFunc(pattern, handler)
}

// JSON registers a handler answering pattern with status and body.
func (c *CaptureServer) JSON(pattern string, status int, body string) {
	c.Handle(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

// URL returns the server base URL.
func (c *CaptureServer) URL() string {
	return c.server.URL
}

// Captures returns a copy of the recorded requests.
func (c *CaptureServer) Captures() []Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Capture, len(c.captures))
	copy(out, c.captures)
	return out
}

// Count returns the number of recorded requests matching method and path.
// An empty method matches any method.
func (c *CaptureServer) Count(method, path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cp := range c.captures {
		if (method == "" || cp.Method == method) && cp.Path == path {
			n++
		}
	}
	return n
}

// WaitForCaptures waits until at least n requests are recorded or timeout elapses.
func (c *CaptureServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		count := len(c.captures)
		c.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
