// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package pipeline

import (
	"context"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
)

// HistoryProvider supplies scrobble history and artist similarity.
type HistoryProvider interface {
	TopArtists(ctx context.Context, period models.SeedPeriod) ([]models.ArtistPlayCount, error)
	SimilarArtists(ctx context.Context, artist string, limit int) ([]models.SimilarArtist, error)
}

// ReleaseSource resolves an artist's releases, normally through the release cache.
type ReleaseSource interface {
	GetOrRefresh(ctx context.Context, artist string) (releasecache.Result, error)
	ForceRefreshAll() error
}

// LibraryOracle answers ownership questions against the personal library.
type LibraryOracle interface {
	FindAlbum(ctx context.Context, artist, album string) (models.LibraryAlbum, bool, error)
	AlbumTracks(ctx context.Context, albumKey string) ([]models.LibraryTrack, error)
}

// Publisher pushes a playlist to the media server and returns its id there.
type Publisher interface {
	PublishPlaylist(ctx context.Context, name string, ratingKeys []string) (string, error)
}

// Store is the persistence the coordinator writes through.
type Store interface {
	FindQueueItem(ctx context.Context, artist, album string, kind models.ReleaseKind) (*models.QueueItem, error)
	Enqueue(ctx context.Context, req models.EnqueueRequest) (models.EnqueueResult, error)
	LatestLedger(ctx context.Context, engine models.Engine) (*models.Ledger, error)
	ReplaceLedger(ctx context.Context, l *models.Ledger) error
	RecordRun(ctx context.Context, st models.RunStatus, finishedAt time.Time) error
	RecentRuns(ctx context.Context, engine models.Engine, limit int) ([]models.RunStatus, error)
	SavePlaylist(ctx context.Context, p *models.Playlist) (int64, error)
	SetPlaylistPublished(ctx context.Context, id int64, publishedID string) error
	GetJSONSetting(ctx context.Context, key string, dst any) error
	SetJSONSetting(ctx context.Context, key string, v any) error
}

// ProgressPublisher receives every status snapshot the coordinator publishes.
type ProgressPublisher interface {
	PublishStatus(st models.RunStatus)
}

// Deps bundles a coordinator's collaborators. Publisher and Progress may be nil.
type Deps struct {
	History   HistoryProvider
	Releases  ReleaseSource
	Library   LibraryOracle
	Publisher Publisher
	Store     Store
	Progress  ProgressPublisher
}
