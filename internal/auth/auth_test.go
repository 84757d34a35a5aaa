// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/cruisecontrol/internal/config"
)

const testSecret = "test-secret-with-at-least-32-characters!"

func newTestJWT(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, SessionTimeout: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestNewJWTManager_RequiresSecret(t *testing.T) {
	if _, err := NewJWTManager(&config.SecurityConfig{}); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := newTestJWT(t)
	token, expires, err := m.GenerateToken("admin", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expires in the past: %v", expires)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := newTestJWT(t)

	t.Run("expired", func(t *testing.T) {
		token, _, err := m.GenerateToken("admin", RoleAdmin)
		if err != nil {
			t.Fatal(err)
		}
		later := *m
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := later.ValidateToken(token); err == nil {
			t.Error("expired token accepted")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewJWTManager(&config.SecurityConfig{JWTSecret: strings.Repeat("x", 40)})
		token, _, _ := other.GenerateToken("admin", RoleAdmin)
		if _, err := m.ValidateToken(token); err == nil {
			t.Error("token signed with another secret accepted")
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "admin", Role: RoleAdmin})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.ValidateToken(signed); err == nil {
			t.Error("unsigned token accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.ValidateToken("not.a.token"); err == nil {
			t.Error("garbage accepted")
		}
	})
}

func TestAuthenticator_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAuthenticator("admin", string(hash), newTestJWT(t))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	token, _, err := a.Login("admin", "hunter2")
	if err != nil || token == "" {
		t.Fatalf("Login: token=%q err=%v", token, err)
	}

	for _, tc := range []struct{ user, pass string }{
		{"admin", "wrong"},
		{"root", "hunter2"},
		{"", ""},
	} {
		if _, _, err := a.Login(tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) err = %v", tc.user, tc.pass, err)
		}
	}
}

func TestNewAuthenticator_RejectsBadHash(t *testing.T) {
	if _, err := NewAuthenticator("admin", "plaintext", newTestJWT(t)); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
	if _, err := NewAuthenticator("", "x", newTestJWT(t)); err == nil {
		t.Error("expected error for empty username")
	}
}

func TestEnforcer(t *testing.T) {
	e, err := NewEnforcer()
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	tests := []struct {
		role, path, method string
		want               bool
	}{
		{RoleViewer, "/api/v1/engines/releases/status", http.MethodGet, true},
		{RoleViewer, "/api/v1/engines/releases/run", http.MethodPost, false},
		{RoleViewer, "/api/v1/acquisition/queue/abc", http.MethodDelete, false},
		{RoleAdmin, "/api/v1/engines/releases/run", http.MethodPost, true},
		{RoleAdmin, "/api/v1/engines/discovery/config", http.MethodGet, true},
		{RoleAdmin, "/api/v1/acquisition/queue/abc", http.MethodPatch, true},
		{"stranger", "/api/v1/engines/releases/status", http.MethodGet, false},
		{RoleAdmin, "/internal", http.MethodGet, false},
	}
	for _, tt := range tests {
		got, err := e.Enforce(tt.role, tt.path, tt.method)
		if err != nil {
			t.Fatalf("Enforce: %v", err)
		}
		if got != tt.want {
			t.Errorf("Enforce(%s, %s, %s) = %v, want %v", tt.role, tt.path, tt.method, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	jm := newTestJWT(t)
	e, err := NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			t.Error("claims missing in handler")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	adminToken, _, _ := jm.GenerateToken("admin", RoleAdmin)
	viewerToken, _, _ := jm.GenerateToken("guest", RoleViewer)

	tests := []struct {
		name   string
		mode   string
		method string
		header string
		cookie string
		want   int
	}{
		{"none mode passes", ModeNone, http.MethodPost, "", "", http.StatusNoContent},
		{"missing token", ModeJWT, http.MethodGet, "", "", http.StatusUnauthorized},
		{"malformed header", ModeJWT, http.MethodGet, "Token abc", "", http.StatusUnauthorized},
		{"invalid token", ModeJWT, http.MethodGet, "Bearer abc", "", http.StatusUnauthorized},
		{"admin post", ModeJWT, http.MethodPost, "Bearer " + adminToken, "", http.StatusNoContent},
		{"viewer get", ModeJWT, http.MethodGet, "Bearer " + viewerToken, "", http.StatusNoContent},
		{"viewer post", ModeJWT, http.MethodPost, "Bearer " + viewerToken, "", http.StatusForbidden},
		{"cookie token", ModeJWT, http.MethodPost, "", adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewMiddleware(jm, e, tt.mode)
			h := mw.Authenticate(mw.Authorize(ok))

			req := httptest.NewRequest(tt.method, "/api/v1/engines/releases/run", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
