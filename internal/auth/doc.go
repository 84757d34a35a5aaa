// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package auth protects the HTTP API.

Two modes are supported, selected by AUTH_MODE:

  - none: every request is treated as the admin user.
  - jwt: requests carry an HS256 token issued by POST /api/v1/auth/login,
    either as "Authorization: Bearer <token>" or in the "token" cookie.

Authorization uses a Casbin RBAC model with two roles. viewer may read
(GET, HEAD) every API route; admin inherits viewer and may also mutate.
The single admin account is checked against a bcrypt hash from the
configuration.

Usage:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	enforcer, err := auth.NewEnforcer()
	mw := auth.NewMiddleware(jwtManager, enforcer, cfg.Security.AuthMode)
	r.Use(mw.Authenticate, mw.Authorize)
*/
package auth
