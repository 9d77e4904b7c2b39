// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth facade over HTTP. Requests are form
// encoded and responses are JSON.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/observability"
)

// Options configures the handler. Service and Verifier are required.
type Options struct {
	Service  *auth.Service
	Verifier auth.Verifier
	// CookieName carries the session identifier. Empty means
	// auth.DefaultCookieName.
	CookieName    string
	ExcludedPaths []string
	Logger        *slog.Logger
	// Metrics is optional.
	Metrics *observability.Metrics
}

type server struct {
	svc        *auth.Service
	verifier   auth.Verifier
	guarded    bool
	cookieName string
	excluded   []string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewHandler builds the routed, middleware-wrapped API handler.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Service == nil {
		return nil, oops.Code("HTTPAPI_INVALID_OPTIONS").Errorf("auth service is required")
	}
	if opts.Verifier == nil {
		return nil, oops.Code("HTTPAPI_INVALID_OPTIONS").Errorf("verifier is required")
	}

	s := &server{
		svc:        opts.Service,
		verifier:   opts.Verifier,
		cookieName: opts.CookieName,
		excluded:   opts.ExcludedPaths,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if s.cookieName == "" {
		s.cookieName = auth.DefaultCookieName
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	// With the none verifier nothing is protected.
	_, none := opts.Verifier.(auth.NoneVerifier)
	s.guarded = !none

	return s.requestID(s.observe(s.routes())), nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleWelcome)
	handle(mux, "POST /users", s.handleRegister)
	handle(mux, "POST /sessions", s.handleLogin)
	handle(mux, "DELETE /sessions", s.handleLogout)
	handle(mux, "GET /profile", s.handleProfile)
	handle(mux, "POST /reset_password", s.handleResetToken)
	handle(mux, "PUT /reset_password", s.handleUpdatePassword)

	handle(mux, "GET /api/v1/status", s.guard(s.handleStatus))
	handle(mux, "GET /api/v1/unauthorized", s.guard(s.handleUnauthorized))
	handle(mux, "GET /api/v1/forbidden", s.guard(s.handleForbidden))
	handle(mux, "GET /api/v1/users/me", s.guard(s.handleMe))
	handle(mux, "POST /api/v1/auth_session/login", s.guard(s.handleSessionLogin))
	handle(mux, "DELETE /api/v1/auth_session/logout", s.guard(s.handleSessionLogout))

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// handle registers pattern with and without a trailing slash.
func handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, h)
	mux.HandleFunc(pattern+"/{$}", h)
}
