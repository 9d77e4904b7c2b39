// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for auth metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// AuthAttempts counts credential checks by method and result.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_auth_attempts_total",
		Help: "Total number of credential checks by method and result",
	},
	[]string{"method", "result"},
)

// SessionEvents counts session lifecycle events.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_sessions_total",
		Help: "Total number of session lifecycle events",
	},
	[]string{"event"},
)

// PasswordResets counts reset requests and redemptions.
// Use RegisterMetrics to register this with a Prometheus registry.
var PasswordResets = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_password_resets_total",
		Help: "Total number of password reset operations by stage and result",
	},
	[]string{"stage", "result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthAttempts)
	reg.MustRegister(SessionEvents)
	reg.MustRegister(PasswordResets)
}

func recordAttempt(method, result string) {
	AuthAttempts.WithLabelValues(method, result).Inc()
}

func recordSession(event string) {
	SessionEvents.WithLabelValues(event).Inc()
}

func recordReset(stage, result string) {
	PasswordResets.WithLabelValues(stage, result).Inc()
}
