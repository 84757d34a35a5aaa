// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package api serves the HTTP interface using the chi router.

Every JSON endpoint writes a models.APIResponse envelope. Errors map as:

	*models.ConfigError, validation failures  400 VALIDATION_ERROR
	pipeline.ErrRunInProgress                 409 RUN_IN_PROGRESS
	database.ErrNotFound                      404 NOT_FOUND
	anything else                             500 INTERNAL_ERROR

Routes (engine is releases or discovery):

	GET    /api/v1/health
	POST   /api/v1/auth/login
	GET    /api/v1/engines/{engine}/status
	GET    /api/v1/engines/{engine}/config
	PUT    /api/v1/engines/{engine}/config
	POST   /api/v1/engines/{engine}/run?mode=build|fetch|dry&force_refresh=true
	GET    /api/v1/engines/{engine}/history?limit=N
	GET    /api/v1/engines/{engine}/playlists/latest
	POST   /api/v1/release-cache/clear
	POST   /api/v1/release-cache/refresh
	GET    /api/v1/acquisition/queue?status=
	POST   /api/v1/acquisition/queue
	PATCH  /api/v1/acquisition/queue/{id}
	DELETE /api/v1/acquisition/queue/{id}
	GET    /api/v1/acquisition/stats
	POST   /api/v1/acquisition/check-now
	POST   /api/v1/images/resolve
	GET    /api/v1/schedule
	PUT    /api/v1/schedule/enabled
	GET    /api/v1/audit?type=&since=&limit=
	GET    /api/v1/ws
	GET    /metrics

Middleware order: request id, real IP, recoverer, CORS, then per group rate
limiting, Prometheus instrumentation, authentication and Casbin
authorization.
*/
package api
