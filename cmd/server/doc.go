// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package main is the entry point for the Cruise Control server.

Cruise Control turns a listener's scrobble history into weekly playlists of
new releases and an acquisition queue for releases the library does not
hold yet. Two engines share the pipeline: "releases" seeds from recent top
artists, "discovery" expands the top artists through similar-artist lookups.

# Application Architecture

Long-running components run under a Suture v4 supervisor tree:

	RootSupervisor ("cruisecontrol")
	├── storage-layer
	│   ├── Badger value-log GC
	│   └── audit logger (buffered writes, retention purge)
	├── pipeline-layer
	│   ├── Scheduler (weekly run and cache refresh slots)
	│   ├── Acquisition reconciler
	│   └── Artwork resolver
	├── messaging-layer
	│   ├── WebSocket hub
	│   └── Event relay (Watermill GoChannel to hub)
	└── api-layer
	    └── HTTP server (chi)

Component initialization order:

 1. Configuration: Koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog with JSON or console output
 3. Storage: DuckDB (queue, ledgers, playlists, settings, audit events) and Badger (caches)
 4. Providers: Last.fm, Deezer, Plex, iTunes and optional SoulSync, each
    behind a circuit breaker
 5. Coordinators: one per engine, restored from persisted settings
 6. Scheduler, reconciler, artwork resolver, event bus and websocket hub
 7. Authentication: JWT with Casbin authorization, or none
 8. HTTP server and supervisor tree

# Configuration

	HTTP_PORT=8009                 # HTTP server port
	LOG_LEVEL=info                 # trace, debug, info, warn, error
	LOG_FORMAT=json                # json or console

	LASTFM_API_KEY=<key>           # scrobble history (required)
	LASTFM_USERNAME=<user>
	PLEX_URL=http://plex:32400     # library oracle and playlist target (required)
	PLEX_TOKEN=<token>
	SOULSYNC_ENABLED=true          # acquisition backend (optional)
	SOULSYNC_URL=http://soulsync:8008

	CC_ENABLED=true                # automatic weekly runs
	AUTH_MODE=jwt                  # jwt or none
	JWT_SECRET=<32+ chars>
	ADMIN_USERNAME=admin
	ADMIN_PASSWORD_HASH=<bcrypt>

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the layers
in reverse order; an in-flight run finishes its current stage work before
the database is closed.
*/
package main
