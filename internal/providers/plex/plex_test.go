// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/config"
)

// fakePlex records the mutating calls it receives.
type fakePlex struct {
	mu        sync.Mutex
	playlists string
	calls     []string
}

func (f *fakePlex) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
}

func (f *fakePlex) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlex) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Plex-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"MediaContainer":{"machineIdentifier":"abc123","friendlyName":"Home"}}`))
	})
	mux.HandleFunc("/library/sections/3/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "9" {
			t.Errorf("search type = %q", r.URL.Query().Get("type"))
		}
		_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[
			{"ratingKey":"10","type":"album","title":"Daydreamer","parentTitle":"Someone Else"},
			{"ratingKey":"11","type":"album","title":"Daydreamer (Deluxe Edition)","parentTitle":"Ballyhoo!","year":2026}]}}`))
	})
	mux.HandleFunc("/library/metadata/11/children", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[
			{"ratingKey":"111","type":"track","title":"Intro","index":1},
			{"ratingKey":"112","type":"track","title":"Outro","index":2}]}}`))
	})
	mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			f.mu.Lock()
			body := f.playlists
			f.mu.Unlock()
			_, _ = w.Write([]byte(body))
		case http.MethodPost:
			f.record(r)
			_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"900","title":"New Music_2026-03-02"}]}}`))
		}
	})
	mux.HandleFunc("/playlists/77/items", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakePlex) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(config.PlexConfig{URL: srv.URL, Token: "tok", MusicSectionID: "3", Timeout: 5 * time.Second})
}

func TestFindAlbum(t *testing.T) {
	c := newTestClient(t, &fakePlex{})

	album, found, err := c.FindAlbum(context.Background(), "ballyhoo", "Daydreamer")
	if err != nil {
		t.Fatalf("FindAlbum: %v", err)
	}
	if !found || album.RatingKey != "11" || album.Year != 2026 {
		t.Errorf("got found=%v album=%+v", found, album)
	}

	ok, err := c.HasAlbum(context.Background(), "Tycho", "Daydreamer")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("HasAlbum should be false for a different artist")
	}
}

func TestAlbumTracks(t *testing.T) {
	c := newTestClient(t, &fakePlex{})
	tracks, err := c.AlbumTracks(context.Background(), "11")
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 || tracks[0].RatingKey != "111" || tracks[1].Index != 2 {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestPublishPlaylist_Create(t *testing.T) {
	f := &fakePlex{playlists: `{"MediaContainer":{"Metadata":[]}}`}
	c := newTestClient(t, f)

	key, err := c.PublishPlaylist(context.Background(), "New Music_2026-03-02", []string{"111", "112"})
	if err != nil {
		t.Fatalf("PublishPlaylist: %v", err)
	}
	if key != "900" {
		t.Errorf("key = %q", key)
	}
	calls := f.recorded()
	if len(calls) != 1 || !strings.HasPrefix(calls[0], "POST /playlists?") {
		t.Fatalf("calls = %v", calls)
	}
	if !strings.Contains(calls[0], "server%3A%2F%2Fabc123%2Fcom.plexapp.plugins.library%2Flibrary%2Fmetadata%2F111%2C112") {
		t.Errorf("create call missing item uri: %s", calls[0])
	}
}

func TestPublishPlaylist_UpdateExisting(t *testing.T) {
	f := &fakePlex{playlists: `{"MediaContainer":{"Metadata":[{"ratingKey":"77","title":"New Music_2026-03-02"}]}}`}
	c := newTestClient(t, f)

	key, err := c.PublishPlaylist(context.Background(), "New Music_2026-03-02", []string{"111"})
	if err != nil {
		t.Fatalf("PublishPlaylist: %v", err)
	}
	if key != "77" {
		t.Errorf("key = %q, want 77", key)
	}
	calls := f.recorded()
	if len(calls) != 2 || !strings.HasPrefix(calls[0], "DELETE") || !strings.HasPrefix(calls[1], "PUT") {
		t.Errorf("calls = %v, want DELETE then PUT", calls)
	}
}

func TestPublishPlaylist_Empty(t *testing.T) {
	c := newTestClient(t, &fakePlex{})
	if _, err := c.PublishPlaylist(context.Background(), "x", nil); !errors.Is(err, ErrNoTracks) {
		t.Errorf("expected ErrNoTracks, got %v", err)
	}
}

func TestTitleKey(t *testing.T) {
	tests := map[string]string{
		"Daydreamer (Deluxe Edition)": "daydreamer",
		"Summer [Remastered]":         "summer",
		"(What's the Story)":          "whats the story",
		"Plain":                       "plain",
	}
	for in, want := range tests {
		if got := titleKey(in); got != want {
			t.Errorf("titleKey(%q) = %q, want %q", in, got, want)
		}
	}
}
