// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"net/http"

	"github.com/holomush/gatekeeper/internal/auth"
)

// credentials adapts *http.Request to auth.Request.
type credentials struct{ r *http.Request }

func (c credentials) Authorization() string { return c.r.Header.Get("Authorization") }
func (c credentials) Path() string          { return c.r.URL.Path }

func (c credentials) Cookie(name string) string {
	ck, err := c.r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

func withUser(ctx context.Context, u *auth.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the user the guard identified for this request.
func UserFrom(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userKey).(*auth.User)
	return u, ok && u != nil
}

// RequestIDFrom returns the request's correlation id.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
