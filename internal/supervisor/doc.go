// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package supervisor runs every long-lived service under a suture v4 tree.

	RootSupervisor ("cruisecontrol")
	├── StorageSupervisor ("storage-layer")
	│   └── kvstore value-log GC
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── scheduler
	│   ├── acquisition-reconciler
	│   └── artwork-resolver
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   └── event-relay
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer counts failures independently, so a crashing reconciler does not
take the HTTP API down with it. Supervisor events are logged through
sutureslog onto the zerolog-backed slog handler.

Return values follow suture's conventions: nil stops the service for good,
an error restarts it with backoff, and ctx.Err() signals a requested
shutdown.
*/
package supervisor
