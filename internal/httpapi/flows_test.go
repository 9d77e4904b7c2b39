// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/httpapi"
)

var _ = Describe("user authentication flows", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(auth.KindSession, "", config.DefaultExcludedPaths)
	})

	register := func(email, password string) {
		rec := f.do(call{method: http.MethodPost, path: "/users", form: form("email", email, "password", password)})
		Expect(rec.Code).To(Equal(http.StatusOK))
	}

	login := func(email, password string) *http.Cookie {
		rec := f.do(call{method: http.MethodPost, path: "/sessions", form: form("email", email, "password", password)})
		Expect(rec.Code).To(Equal(http.StatusOK))
		c := sessionCookie(rec, auth.DefaultCookieName)
		Expect(c).NotTo(BeNil())
		return c
	}

	It("welcomes visitors", func() {
		rec := f.do(call{method: http.MethodGet, path: "/"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)).To(HaveKeyWithValue("message", "Bienvenue"))
	})

	It("answers unknown routes with a JSON 404", func() {
		rec := f.do(call{method: http.MethodGet, path: "/nope"})
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(decode(rec)).To(HaveKeyWithValue("error", "Not found"))
	})

	Describe("POST /users", func() {
		It("creates a user", func() {
			rec := f.do(call{method: http.MethodPost, path: "/users", form: form("email", "bob@me.com", "password", "mySuperPwd")})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]any{"email": "bob@me.com", "message": "user created"}))
		})

		It("rejects a duplicate email", func() {
			register("bob@me.com", "mySuperPwd")
			rec := f.do(call{method: http.MethodPost, path: "/users", form: form("email", "bob@me.com", "password", "other")})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("message", "email already registered"))
		})

		It("rejects missing fields", func() {
			rec := f.do(call{method: http.MethodPost, path: "/users", form: form("email", "bob@me.com")})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("accepts a trailing slash", func() {
			rec := f.do(call{method: http.MethodPost, path: "/users/", form: form("email", "a@me.com", "password", "pw")})
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("sessions", func() {
		BeforeEach(func() { register("bob@me.com", "mySuperPwd") })

		It("logs in and serves the profile", func() {
			rec := f.do(call{method: http.MethodPost, path: "/sessions", form: form("email", "bob@me.com", "password", "mySuperPwd")})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]any{"email": "bob@me.com", "message": "logged in"}))

			c := sessionCookie(rec, auth.DefaultCookieName)
			Expect(c).NotTo(BeNil())
			Expect(c.HttpOnly).To(BeTrue())

			rec = f.do(call{method: http.MethodGet, path: "/profile", cookie: c})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]any{"email": "bob@me.com"}))
		})

		It("rejects a wrong password", func() {
			rec := f.do(call{method: http.MethodPost, path: "/sessions", form: form("email", "bob@me.com", "password", "nope")})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(sessionCookie(rec, auth.DefaultCookieName)).To(BeNil())
		})

		It("rejects an unknown email", func() {
			rec := f.do(call{method: http.MethodPost, path: "/sessions", form: form("email", "who@me.com", "password", "x")})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("logs out and forgets the session", func() {
			c := login("bob@me.com", "mySuperPwd")

			rec := f.do(call{method: http.MethodDelete, path: "/sessions", cookie: c})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("message", "Bienvenue"))

			Expect(f.do(call{method: http.MethodGet, path: "/profile", cookie: c}).Code).To(Equal(http.StatusForbidden))
			Expect(f.do(call{method: http.MethodDelete, path: "/sessions", cookie: c}).Code).To(Equal(http.StatusForbidden))
		})

		It("forbids the profile without a session", func() {
			Expect(f.do(call{method: http.MethodGet, path: "/profile"}).Code).To(Equal(http.StatusForbidden))
			bogus := &http.Cookie{Name: auth.DefaultCookieName, Value: "bogus"}
			Expect(f.do(call{method: http.MethodGet, path: "/profile", cookie: bogus}).Code).To(Equal(http.StatusForbidden))
		})

		It("revokes the previous session on a new login", func() {
			first := login("bob@me.com", "mySuperPwd")
			second := login("bob@me.com", "mySuperPwd")
			Expect(first.Value).NotTo(Equal(second.Value))

			Expect(f.do(call{method: http.MethodGet, path: "/profile", cookie: first}).Code).To(Equal(http.StatusForbidden))
			Expect(f.do(call{method: http.MethodGet, path: "/profile", cookie: second}).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() { register("bob@me.com", "mySuperPwd") })

		It("issues a token and updates the password once", func() {
			rec := f.do(call{method: http.MethodPost, path: "/reset_password", form: form("email", "bob@me.com")})
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("email", "bob@me.com"))
			token, ok := body["reset_token"].(string)
			Expect(ok).To(BeTrue())
			Expect(token).To(HaveLen(2 * auth.TokenBytes))

			update := form("email", "bob@me.com", "reset_token", token, "new_password", "n3w")
			rec = f.do(call{method: http.MethodPut, path: "/reset_password", form: update})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]any{"email": "bob@me.com", "message": "Password updated"}))

			Expect(f.do(call{method: http.MethodPut, path: "/reset_password", form: update}).Code).
				To(Equal(http.StatusForbidden), "token is single use")

			login("bob@me.com", "n3w")
			rec = f.do(call{method: http.MethodPost, path: "/sessions", form: form("email", "bob@me.com", "password", "mySuperPwd")})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("forbids a token for an unknown email", func() {
			rec := f.do(call{method: http.MethodPost, path: "/reset_password", form: form("email", "who@me.com")})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("forbids an invalid token", func() {
			rec := f.do(call{method: http.MethodPut, path: "/reset_password",
				form: form("email", "bob@me.com", "reset_token", "bogus", "new_password", "x")})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})

	It("sets a request id on every response", func() {
		rec := f.do(call{method: http.MethodGet, path: "/"})
		Expect(rec.Header().Get(httpapi.RequestIDHeader)).To(HaveLen(36))

		const id = "6f1c1d4e-8a55-4f0e-9a24-1f1a2b3c4d5e"
		h := http.Header{}
		h.Set(httpapi.RequestIDHeader, id)
		rec = f.do(call{method: http.MethodGet, path: "/", header: h})
		Expect(rec.Header().Get(httpapi.RequestIDHeader)).To(Equal(id))
	})

	It("never exposes digests", func() {
		register("bob@me.com", "mySuperPwd")
		rec := f.do(call{method: http.MethodPost, path: "/api/v1/auth_session/login",
			form: form("email", "bob@me.com", "password", "mySuperPwd")})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("argon2id"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("hashed_password"))
	})
})

var _ = Describe("NewHandler", func() {
	It("requires a service and verifier", func() {
		_, err := httpapi.NewHandler(httpapi.Options{})
		Expect(err).To(HaveOccurred())
		_, err = httpapi.NewHandler(httpapi.Options{Service: newFixture(auth.KindNone, "", nil).svc})
		Expect(err).To(HaveOccurred())
	})
})
