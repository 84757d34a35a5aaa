// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := Options{
		Name:           "test-" + t.Name(),
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		RetryBaseDelay: time.Millisecond,
		Header:         http.Header{"X-Api-Key": []string{"secret"}},
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts)
}

func TestClient_DoDecodesJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("q") != "boards of canada" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok","count":3}`))
	}, nil)

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	status, err := c.Do(context.Background(), Request{Path: "/search", Query: url.Values{"q": {"boards of canada"}}}, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status != http.StatusOK || out.Name != "ok" || out.Count != 3 {
		t.Errorf("got status=%d out=%+v", status, out)
	}
}

func TestClient_PostsJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	status, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/download",
		Body:   map[string]string{"artist": "a"},
		Expect: []int{http.StatusCreated},
	}, nil)
	if err != nil || status != http.StatusCreated {
		t.Fatalf("status=%d err=%v", status, err)
	}
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	if _, err := c.Do(context.Background(), Request{Path: "/"}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_RateLimitExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(o *Options) { o.MaxRetries = 2 })

	_, err := c.Do(context.Background(), Request{Path: "/"}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("already queued"))
	}, nil)

	status, err := c.Do(context.Background(), Request{Path: "/"}, nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d", status)
	}
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409 StatusError, got %v", err)
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, func(o *Options) {
		o.Breaker = BreakerSettings{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Hour}
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Do(context.Background(), Request{Path: "/"}, nil); err == nil {
			t.Fatal("expected failure")
		}
	}
	if c.Breaker().State() != "open" {
		t.Fatalf("breaker state = %s, want open", c.Breaker().State())
	}

	_, err := c.Do(context.Background(), Request{Path: "/"}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from open breaker, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestClient_ClientErrorsDoNotTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) {
		o.Breaker = BreakerSettings{MinRequests: 2, FailureRatio: 0.5}
	})

	for i := 0; i < 5; i++ {
		_, _ = c.Do(context.Background(), Request{Path: "/"}, nil)
	}
	if c.Breaker().State() != "closed" {
		t.Errorf("breaker state = %s, want closed", c.Breaker().State())
	}
}

func TestClient_SkipDecodeKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) {
		o.Breaker = BreakerSettings{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Hour}
	})

	var out struct{ ID string }
	for i := 0; i < 4; i++ {
		status, err := c.Do(context.Background(), Request{
			Path:       "/",
			Expect:     []int{http.StatusOK, http.StatusNotFound},
			SkipDecode: []int{http.StatusNotFound},
		}, &out)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if status != http.StatusNotFound {
			t.Fatalf("call %d: status = %d, want 404", i, status)
		}
	}
	if got := c.Breaker().State(); got != "closed" {
		t.Errorf("breaker = %s, want closed", got)
	}
}

func TestClient_DecodeErrorKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}, nil)

	var out struct{ ID string }
	status, err := c.Do(context.Background(), Request{Path: "/"}, &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200 alongside the decode error", status)
	}
}

func TestUnavailable(t *testing.T) {
	transport := &url.Error{Op: "Get", URL: "http://plex.invalid", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"breaker open", fmt.Errorf("plex search: %w", ErrUnavailable), true},
		{"deadline", context.DeadlineExceeded, true},
		{"transport", transport, true},
		{"server error", &StatusError{Provider: "plex", Code: http.StatusBadGateway}, true},
		{"rate limited", &StatusError{Provider: "plex", Code: http.StatusTooManyRequests}, true},
		{"not found", fmt.Errorf("deezer: %w", &StatusError{Provider: "deezer", Code: http.StatusNotFound}), false},
		{"bad request", &StatusError{Provider: "plex", Code: http.StatusBadRequest}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unavailable(tt.err); got != tt.want {
				t.Errorf("Unavailable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
