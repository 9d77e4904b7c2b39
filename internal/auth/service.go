// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

var tracer = otel.Tracer("gatekeeper/auth")

// Service is the entry point used by the routing layer for registration,
// login, sessions and password resets.
type Service struct {
	users    UserStore
	sessions SessionRegistry
	hasher   PasswordHasher
	resets   *ResetTokenManager
	logger   *slog.Logger
	locks    userLocks
	dummy    *dummyDigest
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResetManager replaces the reset token manager built from the user store.
func WithResetManager(m *ResetTokenManager) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.resets = m
		}
	}
}

// NewService creates a Service. Returns an error if any dependency is nil.
func NewService(users UserStore, sessions SessionRegistry, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session registry is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		resets:   NewResetTokenManager(users),
		logger:   slog.Default(),
		dummy:    newDummyDigest(hasher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// Register creates a user. The email is stored in its normalized form.
// Returns ErrAlreadyRegistered if the email exists.
func (s *Service) Register(ctx context.Context, email, password string) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer endSpan(span, &err)

	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email cannot be empty")
	}

	_, exists, err := s.users.FindOne(ctx, ByEmail(email))
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	if exists {
		return nil, oops.Code("AUTH_ALREADY_REGISTERED").With("email", email).Wrap(ErrAlreadyRegistered)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err = s.users.Create(ctx, email, digest)
	if errors.Is(err, ErrAlreadyExists) {
		return nil, oops.Code("AUTH_ALREADY_REGISTERED").With("email", email).Wrap(ErrAlreadyRegistered)
	}
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "email", user.Email, "user_id", user.ID.String())
	return user, nil
}

// ValidLogin reports whether password is correct for email. An unknown
// email is (false, nil) and costs the same as a wrong password.
func (s *Service) ValidLogin(ctx context.Context, email, password string) (ok bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.valid_login")
	defer endSpan(span, &err)

	email = NormalizeEmail(email)
	if email == "" {
		s.hasher.Verify(password, s.dummy.get())
		recordAttempt("password", ResultFailure)
		return false, nil
	}

	user, found, err := s.users.FindOne(ctx, ByEmail(email))
	if err != nil {
		recordAttempt("password", ResultError)
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	if !found {
		s.hasher.Verify(password, s.dummy.get())
		recordAttempt("password", ResultFailure)
		return false, nil
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		recordAttempt("password", ResultFailure)
		s.logger.InfoContext(ctx, "login rejected", "email", user.Email)
		return false, nil
	}

	recordAttempt("password", ResultSuccess)
	s.upgradeDigest(ctx, user, password)
	return true, nil
}

// upgradeDigest re-hashes a legacy or weak digest. Failures are logged;
// the login still succeeds.
func (s *Service) upgradeDigest(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.HashedPassword) {
		return
	}
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.Update(ctx, user.ID, UserUpdate{HashedPassword: Set(digest)})
	}
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password digest upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password digest upgraded", "user_id", user.ID.String())
}

// FindUser looks up a user by normalized email.
func (s *Service) FindUser(ctx context.Context, email string) (*User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, nil
	}
	user, ok, err := s.users.FindOne(ctx, ByEmail(email))
	if err != nil {
		return nil, false, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	return user, ok, nil
}

// User looks up a user by ID.
func (s *Service) User(ctx context.Context, id ulid.ULID) (*User, bool, error) {
	user, ok, err := s.users.FindOne(ctx, ByID(id))
	if err != nil {
		return nil, false, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, ok, nil
}

// CreateSessionFor starts a session for email, revoking any previous one.
// An unknown email is ("", false, nil).
func (s *Service) CreateSessionFor(ctx context.Context, email string) (sid string, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.create_session")
	defer endSpan(span, &err)

	user, found, err := s.FindUser(ctx, email)
	if err != nil || !found {
		return "", false, err
	}

	unlock := s.locks.lock(user.ID.String())
	defer unlock()

	sid, err = s.sessions.Create(ctx, user.ID.String())
	if err != nil {
		return "", false, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	recordSession("created")
	s.logger.InfoContext(ctx, "session created", "email", user.Email, "user_id", user.ID.String())
	return sid, true, nil
}

// UserForSession returns the user bound to sessionID.
func (s *Service) UserForSession(ctx context.Context, sessionID string) (*User, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}
	userID, ok, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, false, oops.Code("AUTH_SESSION_RESOLVE_FAILED").
			With("operation", "resolve session").
			Wrap(err)
	}
	if !ok {
		return nil, false, nil
	}
	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, false, oops.Code("AUTH_SESSION_RESOLVE_FAILED").
			With("user_id", userID).
			Wrapf(ErrInvalidField, "session bound to malformed user id: %v", err)
	}
	return s.User(ctx, id)
}

// Logout clears userID's session. Logging out without a session is not an
// error.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer endSpan(span, &err)

	unlock := s.locks.lock(userID.String())
	defer unlock()

	destroyed, err := s.sessions.DestroyUser(ctx, userID.String())
	if err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "destroy user session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if destroyed {
		recordSession("destroyed")
		s.logger.InfoContext(ctx, "session destroyed", "user_id", userID.String())
	}
	return nil
}

// DestroySession ends the session identified by sessionID and reports
// whether it existed.
func (s *Service) DestroySession(ctx context.Context, sessionID string) (destroyed bool, err error) {
	ctx, span := tracer.Start(ctx, "auth.destroy_session")
	defer endSpan(span, &err)

	userID, ok, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return false, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "resolve session").
			Wrap(err)
	}
	if !ok {
		return false, nil
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	// Destroy re-checks the binding, so a session replaced since Resolve
	// is left alone.
	destroyed, err = s.sessions.Destroy(ctx, sessionID)
	if err != nil {
		return false, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "destroy session").
			With("user_id", userID).
			Wrap(err)
	}
	if destroyed {
		recordSession("destroyed")
		s.logger.InfoContext(ctx, "session destroyed", "user_id", userID)
	}
	return destroyed, nil
}

// RequestPasswordReset issues a reset token for email. Returns
// ErrUnknownUser when no user has that email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (token string, err error) {
	ctx, span := tracer.Start(ctx, "auth.request_password_reset")
	defer endSpan(span, &err)

	user, found, err := s.FindUser(ctx, email)
	if err != nil {
		recordReset("request", ResultError)
		return "", err
	}
	if !found {
		recordReset("request", ResultFailure)
		return "", oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrUnknownUser)
	}

	unlock := s.locks.lock(user.ID.String())
	defer unlock()

	token, err = s.resets.Issue(ctx, user.ID)
	if err != nil {
		recordReset("request", ResultError)
		return "", err
	}

	recordReset("request", ResultSuccess)
	s.logger.InfoContext(ctx, "password reset requested", "email", user.Email, "user_id", user.ID.String())
	return token, nil
}

// ApplyPasswordReset sets a new password using a reset token and consumes
// the token. Returns ErrInvalidToken for an unknown or used token.
func (s *Service) ApplyPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.apply_password_reset")
	defer endSpan(span, &err)

	user, found, err := s.resets.Lookup(ctx, token)
	if err != nil {
		recordReset("apply", ResultError)
		return err
	}
	if !found {
		recordReset("apply", ResultFailure)
		return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	// Hash outside the lock; it is the slow part.
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		recordReset("apply", ResultError)
		return oops.Code("RESET_APPLY_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	unlock := s.locks.lock(user.ID.String())
	defer unlock()

	if _, err := s.resets.Redeem(ctx, token, digest); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			recordReset("apply", ResultFailure)
		} else {
			recordReset("apply", ResultError)
		}
		return err
	}

	recordReset("apply", ResultSuccess)
	s.logger.InfoContext(ctx, "password reset applied", "user_id", user.ID.String())
	return nil
}
