// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package audit records operator actions taken through the API.

Events cover logins, run config writes, manual runs, queue edits, release
cache clears and schedule toggles. Automatic work (scheduled runs, background
reconciliation) is visible in the run log and the queue itself and is not
audited.

Log never blocks a request: events go through a buffered channel drained by
the Logger's Serve loop, which also deletes events older than the retention
window. Events are dropped, and counted, when the buffer is full.

	GET /api/v1/audit?type=queue.overridden&limit=50
*/
package audit
