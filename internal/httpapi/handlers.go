// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

var welcome = map[string]string{"message": "Bienvenue"}

func (s *server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, welcome)
}

func (s *server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound)
}

// internalError logs err and answers 500.
func (s *server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, msg, err)
	writeError(w, http.StatusInternalServerError)
}

func (s *server) setSessionCookie(w http.ResponseWriter, r *http.Request, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *server) sessionCookie(r *http.Request) string {
	return credentials{r}.Cookie(s.cookieName)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	if email == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email and password are required"})
		return
	}

	user, err := s.svc.Register(r.Context(), email, password)
	switch {
	case errors.Is(err, auth.ErrAlreadyRegistered):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid email or password"})
	case err != nil:
		s.internalError(w, r, "register failed", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": user.Email, "message": "user created"})
	}
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")

	valid, err := s.svc.ValidLogin(r.Context(), email, password)
	if err != nil {
		s.internalError(w, r, "login check failed", err)
		return
	}
	if !valid {
		writeError(w, http.StatusUnauthorized)
		return
	}

	sid, ok, err := s.svc.CreateSessionFor(r.Context(), email)
	if err != nil {
		s.internalError(w, r, "session creation failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized)
		return
	}
	s.setSessionCookie(w, r, sid)
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "logged in"})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok, err := s.svc.UserForSession(r.Context(), s.sessionCookie(r))
	if err != nil {
		s.internalError(w, r, "session lookup failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden)
		return
	}
	if err := s.svc.Logout(r.Context(), user.ID); err != nil {
		s.internalError(w, r, "logout failed", err)
		return
	}
	writeJSON(w, http.StatusOK, welcome)
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok, err := s.svc.UserForSession(r.Context(), s.sessionCookie(r))
	if err != nil {
		s.internalError(w, r, "session lookup failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

func (s *server) handleResetToken(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token, err := s.svc.RequestPasswordReset(r.Context(), email)
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		writeError(w, http.StatusForbidden)
	case err != nil:
		s.internalError(w, r, "reset token request failed", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "reset_token": token})
	}
}

func (s *server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token, password := r.PostFormValue("reset_token"), r.PostFormValue("new_password")

	err := s.svc.ApplyPasswordReset(r.Context(), token, password)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusForbidden)
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "new password cannot be empty"})
	case err != nil:
		s.internalError(w, r, "password update failed", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "Password updated"})
	}
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *server) handleUnauthorized(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusUnauthorized)
}

func (s *server) handleForbidden(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusForbidden)
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(user))
}

func (s *server) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	if email == "" {
		writeMessage(w, http.StatusBadRequest, "email missing")
		return
	}
	if password == "" {
		writeMessage(w, http.StatusBadRequest, "password missing")
		return
	}

	user, found, err := s.svc.FindUser(r.Context(), email)
	if err != nil {
		s.internalError(w, r, "user lookup failed", err)
		return
	}
	if !found {
		writeMessage(w, http.StatusNotFound, "no user found for this email")
		return
	}

	valid, err := s.svc.ValidLogin(r.Context(), user.Email, password)
	if err != nil {
		s.internalError(w, r, "login check failed", err)
		return
	}
	if !valid {
		writeMessage(w, http.StatusUnauthorized, "wrong password")
		return
	}

	sid, ok, err := s.svc.CreateSessionFor(r.Context(), user.Email)
	if err != nil {
		s.internalError(w, r, "session creation failed", err)
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, "no user found for this email")
		return
	}
	s.setSessionCookie(w, r, sid)
	writeJSON(w, http.StatusOK, toUserJSON(user))
}

func (s *server) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	destroyed, err := s.svc.DestroySession(r.Context(), s.sessionCookie(r))
	if err != nil {
		s.internalError(w, r, "session destroy failed", err)
		return
	}
	if !destroyed {
		writeError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
