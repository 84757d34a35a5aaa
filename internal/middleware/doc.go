// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package middleware provides infrastructure middleware for the HTTP API.

  - RequestID: accepts or generates X-Request-ID and seeds the logging context
    with request_id and correlation_id.
  - PrometheusMetrics: counts requests and observes latency by method, chi
    route pattern and status code.

Both have the chi signature func(http.Handler) http.Handler:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Authentication and authorization live in internal/auth; CORS and rate
limiting come from go-chi/cors and go-chi/httprate in internal/api.
*/
package middleware
