// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Verifier kinds accepted by NewVerifier.
const (
	KindNone    = "none"
	KindBasic   = "basic"
	KindSession = "session"
)

// DefaultCookieName is the session cookie read when none is configured.
const DefaultCookieName = "session_id"

// Request is the per-request credential material a Verifier inspects.
// Absent values are the empty string.
type Request interface {
	Authorization() string
	Cookie(name string) string
	Path() string
}

// Verifier turns request credentials into an identity.
type Verifier interface {
	// Identify returns the authenticated user, or (nil, false). It never
	// fails with an error; lookup problems are logged and treated as
	// unauthenticated.
	Identify(ctx context.Context, r Request) (*User, bool)

	// RequiresAuth reports whether path needs credentials.
	RequiresAuth(path string, excluded []string) bool
}

// VerifierDeps are the collaborators a Verifier may need.
type VerifierDeps struct {
	Users      UserStore
	Sessions   SessionRegistry
	Hasher     PasswordHasher
	CookieName string
	Logger     *slog.Logger
}

// NewVerifier builds the verifier named by kind.
func NewVerifier(kind string, deps VerifierDeps) (Verifier, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch kind {
	case KindNone, "":
		return NoneVerifier{}, nil
	case KindBasic:
		if deps.Users == nil || deps.Hasher == nil {
			return nil, oops.Code("VERIFIER_INVALID_DEPS").With("kind", kind).Errorf("basic verifier needs a user store and hasher")
		}
		return NewBasicVerifier(deps.Users, deps.Hasher, logger), nil
	case KindSession:
		if deps.Users == nil || deps.Sessions == nil {
			return nil, oops.Code("VERIFIER_INVALID_DEPS").With("kind", kind).Errorf("session verifier needs a user store and session registry")
		}
		return NewSessionVerifier(deps.CookieName, deps.Sessions, deps.Users, logger), nil
	default:
		return nil, oops.Code("VERIFIER_UNKNOWN_KIND").With("kind", kind).Errorf("unknown verifier kind %q", kind)
	}
}

// RequiresAuth returns false iff path matches an excluded entry exactly or
// up to a single trailing slash. Entries ending in '*' match any path with
// that prefix. An empty path or empty exclusion list requires auth.
func RequiresAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}
	for _, e := range excluded {
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "*") {
			if g := compileExclusion(e); g != nil && (g.Match(path) || g.Match(path+"/")) {
				return false
			}
			continue
		}
		if e == path || e == path+"/" || e+"/" == path {
			return false
		}
	}
	return true
}

var exclusionGlobs sync.Map // pattern -> glob.Glob

func compileExclusion(pattern string) glob.Glob {
	if g, ok := exclusionGlobs.Load(pattern); ok {
		return g.(glob.Glob) //nolint:forcetypeassert // only globs are stored
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil
	}
	exclusionGlobs.Store(pattern, g)
	return g
}

// NoneVerifier never authenticates.
type NoneVerifier struct{}

// Identify always reports unauthenticated.
func (NoneVerifier) Identify(context.Context, Request) (*User, bool) { return nil, false }

// RequiresAuth delegates to the package-level RequiresAuth.
func (NoneVerifier) RequiresAuth(path string, excluded []string) bool {
	return RequiresAuth(path, excluded)
}

const basicPrefix = "Basic "

// ExtractBase64Authorization returns the encoded part of a Basic
// authorization header.
func ExtractBase64Authorization(header string) (string, bool) {
	if !strings.HasPrefix(header, basicPrefix) {
		return "", false
	}
	return header[len(basicPrefix):], true
}

// DecodeBase64Authorization decodes the encoded part of a Basic header.
// The result must be valid UTF-8.
func DecodeBase64Authorization(encoded string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// ExtractCredentials splits decoded Basic credentials on the first colon.
func ExtractCredentials(decoded string) (username, password string, ok bool) {
	return strings.Cut(decoded, ":")
}

// BasicVerifier authenticates with HTTP Basic credentials checked against
// the user store.
type BasicVerifier struct {
	users  UserStore
	hasher PasswordHasher
	logger *slog.Logger
	dummy  *dummyDigest
}

// NewBasicVerifier creates a BasicVerifier.
func NewBasicVerifier(users UserStore, hasher PasswordHasher, logger *slog.Logger) *BasicVerifier {
	return &BasicVerifier{users: users, hasher: hasher, logger: logger, dummy: newDummyDigest(hasher)}
}

// Identify authenticates the request's Basic credentials.
func (v *BasicVerifier) Identify(ctx context.Context, r Request) (*User, bool) {
	encoded, ok := ExtractBase64Authorization(r.Authorization())
	if !ok {
		return nil, false
	}
	decoded, ok := DecodeBase64Authorization(encoded)
	if !ok {
		return nil, false
	}
	email, password, ok := ExtractCredentials(decoded)
	if !ok || email == "" {
		return nil, false
	}

	user, found, err := v.users.FindOne(ctx, ByEmail(email))
	if err != nil {
		recordAttempt(KindBasic, ResultError)
		errutil.LogErrorContext(ctx, v.logger, "basic auth lookup failed", err)
		return nil, false
	}
	if !found {
		v.hasher.Verify(password, v.dummy.get())
		recordAttempt(KindBasic, ResultFailure)
		return nil, false
	}
	if !v.hasher.Verify(password, user.HashedPassword) {
		recordAttempt(KindBasic, ResultFailure)
		return nil, false
	}
	recordAttempt(KindBasic, ResultSuccess)
	return user, true
}

// RequiresAuth delegates to the package-level RequiresAuth.
func (v *BasicVerifier) RequiresAuth(path string, excluded []string) bool {
	return RequiresAuth(path, excluded)
}

// SessionVerifier authenticates with a session cookie.
type SessionVerifier struct {
	cookieName string
	sessions   SessionRegistry
	users      UserStore
	logger     *slog.Logger
}

// NewSessionVerifier creates a SessionVerifier reading cookieName
// (DefaultCookieName when empty).
func NewSessionVerifier(cookieName string, sessions SessionRegistry, users UserStore, logger *slog.Logger) *SessionVerifier {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &SessionVerifier{cookieName: cookieName, sessions: sessions, users: users, logger: logger}
}

// CookieName returns the cookie this verifier reads.
func (v *SessionVerifier) CookieName() string { return v.cookieName }

// Identify resolves the request's session cookie to a user.
func (v *SessionVerifier) Identify(ctx context.Context, r Request) (*User, bool) {
	sid := r.Cookie(v.cookieName)
	if sid == "" {
		return nil, false
	}
	userID, ok, err := v.sessions.Resolve(ctx, sid)
	if err != nil {
		errutil.LogErrorContext(ctx, v.logger, "session resolve failed", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, false
	}
	user, found, err := v.users.FindOne(ctx, ByID(id))
	if err != nil {
		errutil.LogErrorContext(ctx, v.logger, "session user lookup failed", err)
		return nil, false
	}
	return user, found
}

// RequiresAuth delegates to the package-level RequiresAuth.
func (v *SessionVerifier) RequiresAuth(path string, excluded []string) bool {
	return RequiresAuth(path, excluded)
}
