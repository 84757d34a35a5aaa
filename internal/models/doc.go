// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package models defines the data structures shared across Cruise Control.

Model Categories:

 1. Run models: RunConfig (validated per-run snapshot), RunStatus (atomic
    snapshot published by the coordinator) and Summary.
 2. Catalog models: ArtistPlayCount, SimilarArtist, ReleaseCandidate and
    ReleaseCacheEntry.
 3. Persistence models: QueueItem, HistoryEntry, Ledger and Playlist, which
    map one-to-one onto the DuckDB tables in internal/database.
 4. API models: APIResponse, APIError and Metadata, the envelope every HTTP
    handler writes.

Models carry json tags for the HTTP surface, koanf tags where they are loaded
from configuration, and validate tags consumed by internal/validation.
*/
package models
