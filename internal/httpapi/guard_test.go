// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
)

var _ = Describe("API guard", func() {
	const cookieName = "_my_session_id"

	Context("with the session verifier", func() {
		var f *fixture

		BeforeEach(func() {
			f = newFixture(auth.KindSession, cookieName, config.DefaultExcludedPaths)
			_, err := f.svc.Register(ctxBG(), "bob@hbtn.io", "H0lbertonSchool98!")
			Expect(err).NotTo(HaveOccurred())
		})

		sessionLogin := func() *http.Cookie {
			rec := f.do(call{method: http.MethodPost, path: "/api/v1/auth_session/login",
				form: form("email", "bob@hbtn.io", "password", "H0lbertonSchool98!")})
			Expect(rec.Code).To(Equal(http.StatusOK))
			c := sessionCookie(rec, cookieName)
			Expect(c).NotTo(BeNil())
			return c
		}

		It("lets excluded paths through", func() {
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/status"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("status", "OK"))

			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/status/"}).Code).To(Equal(http.StatusOK))
			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/unauthorized"}).Code).To(Equal(http.StatusUnauthorized))
			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/forbidden"}).Code).To(Equal(http.StatusForbidden))
		})

		It("answers 401 without credentials", func() {
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me"})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "Unauthorized"))
		})

		It("answers 403 for unknown credentials", func() {
			bogus := &http.Cookie{Name: cookieName, Value: "bogus"}
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me", cookie: bogus})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "Forbidden"))
		})

		It("ignores a cookie with the default name", func() {
			c := sessionLogin()
			wrong := &http.Cookie{Name: auth.DefaultCookieName, Value: c.Value}
			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/users/me", cookie: wrong}).Code).
				To(Equal(http.StatusUnauthorized))
		})

		It("identifies the session owner", func() {
			c := sessionLogin()
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me", cookie: c})
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("email", "bob@hbtn.io"))
			Expect(body).To(HaveKey("id"))
		})

		It("validates session login input", func() {
			cases := []struct {
				values []string
				status int
				msg    string
			}{
				{[]string{"password", "x"}, http.StatusBadRequest, "email missing"},
				{[]string{"email", "bob@hbtn.io"}, http.StatusBadRequest, "password missing"},
				{[]string{"email", "who@hbtn.io", "password", "x"}, http.StatusNotFound, "no user found for this email"},
				{[]string{"email", "bob@hbtn.io", "password", "x"}, http.StatusUnauthorized, "wrong password"},
			}
			for _, tc := range cases {
				rec := f.do(call{method: http.MethodPost, path: "/api/v1/auth_session/login/", form: form(tc.values...)})
				Expect(rec.Code).To(Equal(tc.status), tc.msg)
				Expect(decode(rec)).To(HaveKeyWithValue("error", tc.msg))
			}
		})

		It("logs out through the API", func() {
			c := sessionLogin()
			rec := f.do(call{method: http.MethodDelete, path: "/api/v1/auth_session/logout", cookie: c})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(BeEmpty())

			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/users/me", cookie: c}).Code).
				To(Equal(http.StatusForbidden))
		})

		It("rejects API logout with a dead session", func() {
			c := sessionLogin()
			Expect(f.do(call{method: http.MethodDelete, path: "/sessions", cookie: c}).Code).To(Equal(http.StatusOK))
			// The guard rejects the dead cookie before the handler runs.
			Expect(f.do(call{method: http.MethodDelete, path: "/api/v1/auth_session/logout", cookie: c}).Code).
				To(Equal(http.StatusForbidden))
		})
	})

	Context("with the basic verifier", func() {
		var f *fixture

		BeforeEach(func() {
			f = newFixture(auth.KindBasic, "", config.DefaultExcludedPaths)
			_, err := f.svc.Register(ctxBG(), "bob@hbtn.io", "H0lbertonSchool98!")
			Expect(err).NotTo(HaveOccurred())
		})

		It("identifies valid credentials", func() {
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me", header: basic("bob@hbtn.io", "H0lbertonSchool98!")})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("email", "bob@hbtn.io"))
		})

		It("forbids a wrong password", func() {
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me", header: basic("bob@hbtn.io", "nope")})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("forbids a malformed header", func() {
			h := http.Header{}
			h.Set("Authorization", "Basic %%%")
			Expect(f.do(call{method: http.MethodGet, path: "/api/v1/users/me", header: h}).Code).To(Equal(http.StatusForbidden))
		})
	})

	Context("with the none verifier", func() {
		It("guards nothing", func() {
			f := newFixture(auth.KindNone, "", config.DefaultExcludedPaths)
			rec := f.do(call{method: http.MethodGet, path: "/api/v1/users/me"})
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
