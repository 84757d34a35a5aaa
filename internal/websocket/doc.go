// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package websocket streams live updates to browser clients.

A Hub owns the set of connected clients and broadcasts typed messages to
them. Each Client runs a read pump (keepalive, client pings) and a write
pump (outbound messages, server pings) over a gorilla/websocket connection.

	┌──────────┐
	│   Hub    │ ← events.Relay calls BroadcastJSON
	└────┬─────┘
	     │
	┌────┴─────┬─────────┐
	│ Client1  │ Client2 │ ...
	└──────────┴─────────┘

Message types:

  - run_progress: a RunStatus snapshot (engine, stage, summary)
  - queue_reconciled: a reconciliation pass report
  - cache_refreshed: a release cache refresh report
  - ping / pong: application-level keepalive

Every message is {"type": "...", "data": {...}}.

The hub runs as a supervised service (Serve) and closes every client when
its context is canceled. Slow clients whose send buffer is full are
dropped rather than blocking the broadcast.
*/
package websocket
