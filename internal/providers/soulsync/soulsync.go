// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package soulsync is the acquisition backend client.
//
// Endpoints:
//
//	POST /api/download       queue an album (409 = already queued)
//	GET  /api/download/{id}  job status
//	GET  /api/status         health check
package soulsync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

// Client talks to a SoulSync instance.
type Client struct {
	http *providers.Client
}

// New creates a SoulSync client from configuration.
func New(cfg config.SoulSyncConfig) *Client {
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("X-API-Key", cfg.APIKey)
	}
	return &Client{
		http: providers.NewClient(providers.Options{
			Name:    "soulsync",
			BaseURL: cfg.URL,
			Timeout: cfg.Timeout,
			Header:  header,
		}),
	}
}

// Breaker exposes the client circuit breaker.
func (c *Client) Breaker() *providers.Breaker {
	return c.http.Breaker()
}

type downloadRequest struct {
	Source     string `json:"source"`
	ArtistName string `json:"artist_name"`
	AlbumName  string `json:"album_name"`
	RecordType string `json:"record_type,omitempty"`
}

type downloadResponse struct {
	ID    flexID `json:"id"`
	JobID flexID `json:"job_id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// flexID accepts string or numeric job ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*f = flexID(s)
	return nil
}

// Submit asks SoulSync to acquire the album described by item.
// A 409 answer is reported as AlreadyQueued.
func (c *Client) Submit(ctx context.Context, item models.QueueItem) (models.Submission, error) {
	var resp downloadResponse
	status, err := c.http.Do(ctx, providers.Request{
		Method: http.MethodPost,
		Path:   "/api/download",
		Body: downloadRequest{
			Source:     "cruisecontrol",
			ArtistName: item.Artist,
			AlbumName:  item.Album,
			RecordType: string(item.Kind),
		},
		Expect:     []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusConflict},
		SkipDecode: []int{http.StatusConflict},
	}, &resp)
	if err != nil {
		return models.Submission{}, fmt.Errorf("soulsync submit %s / %s: %w", item.Artist, item.Album, err)
	}
	if status == http.StatusConflict {
		logging.Debug().Str("artist", item.Artist).Str("album", item.Album).Msg("SoulSync reports album already queued")
		return models.Submission{AlreadyQueued: true}, nil
	}

	ref := string(resp.ID)
	if ref == "" {
		ref = string(resp.JobID)
	}
	return models.Submission{Ref: ref}, nil
}

// Job states reported by SoulSync.
const (
	StateQueued      = "queued"
	StateDownloading = "downloading"
	StateCompleted   = "completed"
	StateFailed      = "failed"
	StateNotFound    = "not_found"
	StateDeclined    = "declined"
)

// MapState maps a SoulSync job state onto a queue status. ok is false for
// states the queue does not know.
func MapState(state string) (models.QueueStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case StateQueued, StateDownloading:
		return models.QueueSubmitted, true
	case StateCompleted:
		return models.QueueFound, true
	case StateFailed:
		return models.QueueFailed, true
	case StateNotFound, StateDeclined:
		return models.QueueSkipped, true
	default:
		return "", false
	}
}

// Status queries the job ref. A 404 is reported as not_found.
func (c *Client) Status(ctx context.Context, ref string) (models.JobStatus, error) {
	var resp statusResponse
	status, err := c.http.Do(ctx, providers.Request{
		Path:       "/api/download/" + url.PathEscape(ref),
		Expect:     []int{http.StatusOK, http.StatusNotFound},
		SkipDecode: []int{http.StatusNotFound},
	}, &resp)
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("soulsync status %s: %w", ref, err)
	}
	if status == http.StatusNotFound {
		return models.JobStatus{State: StateNotFound, Status: models.QueueSkipped, Detail: "job not found"}, nil
	}
	state := resp.Status
	if state == "" {
		state = resp.State
	}
	state = strings.ToLower(strings.TrimSpace(state))
	mapped, _ := MapState(state)
	return models.JobStatus{State: state, Status: mapped, Detail: resp.Message}, nil
}

// Ping verifies SoulSync is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.http.Do(ctx, providers.Request{Path: "/api/status"}, nil); err != nil {
		return fmt.Errorf("soulsync ping: %w", err)
	}
	return nil
}
