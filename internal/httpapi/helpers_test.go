// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/gomega" //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/httpapi"
)

type fixture struct {
	handler http.Handler
	svc     *auth.Service
	users   *memory.UserStore
}

func newFixture(kind, cookieName string, excluded []string) *fixture {
	users := memory.NewUserStore()
	sessions := auth.NewMemoryRegistry()
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := auth.NewService(users, sessions, hasher, auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	verifier, err := auth.NewVerifier(kind, auth.VerifierDeps{
		Users:      users,
		Sessions:   sessions,
		Hasher:     hasher,
		CookieName: cookieName,
		Logger:     logger,
	})
	Expect(err).NotTo(HaveOccurred())

	h, err := httpapi.NewHandler(httpapi.Options{
		Service:       svc,
		Verifier:      verifier,
		CookieName:    cookieName,
		ExcludedPaths: excluded,
		Logger:        logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return &fixture{handler: h, svc: svc, users: users}
}

type call struct {
	method string
	path   string
	form   url.Values
	cookie *http.Cookie
	header http.Header
}

func (f *fixture) do(c call) *httptest.ResponseRecorder {
	var body io.Reader
	if c.form != nil {
		body = strings.NewReader(c.form.Encode())
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed(), rec.Body.String())
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func form(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func basic(user, pass string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	return h
}

func ctxBG() context.Context { return context.Background() }
