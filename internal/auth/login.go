// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticator checks the admin account and issues tokens.
type Authenticator struct {
	username     string
	passwordHash []byte
	jwt          *JWTManager
}

// NewAuthenticator creates an authenticator for the admin account. hash is a
// bcrypt hash as produced by htpasswd -B or bcrypt.GenerateFromPassword.
func NewAuthenticator(username, hash string, jwtManager *JWTManager) (*Authenticator, error) {
	if username == "" || hash == "" {
		return nil, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD_HASH are required in jwt mode")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
	}
	return &Authenticator{username: username, passwordHash: []byte(hash), jwt: jwtManager}, nil
}

// Login returns a token for the admin account when the credentials match.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	// Both checks run regardless of the username result.
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	if !userMatch || !passwordMatch {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.jwt.GenerateToken(a.username, RoleAdmin)
}
