// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package testinfra

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestCaptureServer(t *testing.T) {
	srv := NewCaptureServer(t)
	srv.JSON("/api/status", http.StatusOK, `{"ok":true}`)

	resp, err := http.Post(srv.URL()+"/api/status?x=1", "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"ok":true}` {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL() + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unregistered path status = %d", resp.StatusCode)
	}

	if !srv.WaitForCaptures(2, time.Second) {
		t.Fatal("captures not recorded")
	}
	caps := srv.Captures()
	if caps[0].Method != http.MethodPost || caps[0].Query != "x=1" || string(caps[0].Body) != `{"a":1}` {
		t.Errorf("first capture = %+v", caps[0])
	}
	if srv.Count(http.MethodPost, "/api/status") != 1 || srv.Count("", "/missing") != 1 {
		t.Error("Count mismatch")
	}
}

func TestNewTestDBAndKV(t *testing.T) {
	db := NewTestDB(t)
	if err := db.Ping(t.Context()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	kv := NewTestKV(t)
	if err := kv.SetJSON("k", map[string]int{"v": 1}, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
}
