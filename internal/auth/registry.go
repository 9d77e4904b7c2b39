// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionRegistry maps opaque session identifiers to user IDs. Each user has
// at most one live session; creating a new one revokes the previous.
type SessionRegistry interface {
	// Create binds a fresh session identifier to userID and returns it.
	Create(ctx context.Context, userID string) (string, error)

	// Resolve returns the user bound to sessionID. Empty or unknown
	// identifiers resolve to ("", false, nil).
	Resolve(ctx context.Context, sessionID string) (string, bool, error)

	// Destroy removes the binding for sessionID and reports whether it existed.
	Destroy(ctx context.Context, sessionID string) (bool, error)

	// DestroyUser removes userID's binding, if any.
	DestroyUser(ctx context.Context, userID string) (bool, error)
}

func errEmptyUserID(op string) error {
	return oops.Code("SESSION_INVALID_USER").
		With("operation", op).
		Wrapf(ErrInvalidInput, "user id cannot be empty")
}

// MemoryRegistry is an in-process SessionRegistry. Sessions are lost on
// restart and are not shared between instances.
//
// Only token hashes are kept, keyed both ways so that a user's previous
// session can be revoked in O(1).
type MemoryRegistry struct {
	mu       sync.Mutex
	byDigest map[string]string // session hash -> user id
	byUser   map[string]string // user id -> session hash
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byDigest: make(map[string]string),
		byUser:   make(map[string]string),
	}
}

// Create binds a fresh session identifier to userID.
func (r *MemoryRegistry) Create(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errEmptyUserID("create session")
	}

	token, digest, err := GenerateToken()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byUser[userID]; ok {
		delete(r.byDigest, old)
	}
	r.byDigest[digest] = userID
	r.byUser[userID] = digest
	return token, nil
}

// Resolve returns the user bound to sessionID.
func (r *MemoryRegistry) Resolve(_ context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	digest := HashToken(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byDigest[digest]
	return userID, ok, nil
}

// Destroy removes the binding for sessionID.
func (r *MemoryRegistry) Destroy(_ context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	digest := HashToken(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byDigest[digest]
	if !ok {
		return false, nil
	}
	delete(r.byDigest, digest)
	delete(r.byUser, userID)
	return true, nil
}

// DestroyUser removes userID's binding.
func (r *MemoryRegistry) DestroyUser(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	digest, ok := r.byUser[userID]
	if !ok {
		return false, nil
	}
	delete(r.byUser, userID)
	delete(r.byDigest, digest)
	return true, nil
}

// Len returns the number of live sessions.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byDigest)
}

// StoreRegistry keeps sessions in the user store's session column, so every
// instance sharing the store sees the same sessions.
type StoreRegistry struct {
	users UserStore
}

// NewStoreRegistry creates a StoreRegistry over users.
func NewStoreRegistry(users UserStore) *StoreRegistry {
	return &StoreRegistry{users: users}
}

// Create binds a fresh session identifier to userID.
func (r *StoreRegistry) Create(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errEmptyUserID("create session")
	}
	id, err := ulid.Parse(userID)
	if err != nil {
		return "", oops.Code("SESSION_INVALID_USER").
			With("user_id", userID).
			Wrapf(ErrInvalidInput, "malformed user id: %v", err)
	}

	token, digest, err := GenerateToken()
	if err != nil {
		return "", err
	}

	if err := r.users.Update(ctx, id, UserUpdate{SessionID: Set(digest)}); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", userID).
			Wrap(err)
	}
	return token, nil
}

// Resolve returns the user whose stored session matches sessionID.
func (r *StoreRegistry) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	user, ok, err := r.users.FindOne(ctx, BySessionID(HashToken(sessionID)))
	if err != nil {
		return "", false, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "find user by session").
			Wrap(err)
	}
	if !ok {
		return "", false, nil
	}
	return user.ID.String(), true, nil
}

// Destroy clears the session column of the user owning sessionID.
func (r *StoreRegistry) Destroy(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	digest := HashToken(sessionID)
	user, ok, err := r.users.FindOne(ctx, BySessionID(digest))
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "find user by session").
			Wrap(err)
	}
	if !ok {
		return false, nil
	}
	return r.clear(ctx, user.ID, digest)
}

// DestroyUser clears userID's session column. Unknown users are a no-op.
func (r *StoreRegistry) DestroyUser(ctx context.Context, userID string) (bool, error) {
	id, err := ulid.Parse(userID)
	if err != nil {
		return false, nil //nolint:nilerr // a malformed id names no user
	}
	user, ok, err := r.users.FindOne(ctx, ByID(id))
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "find user by id").
			With("user_id", userID).
			Wrap(err)
	}
	if !ok || user.SessionID == nil {
		return false, nil
	}
	return r.clear(ctx, id, *user.SessionID)
}

// clear nulls the session column only while it still holds digest, so a
// session created by another instance after the lookup survives.
func (r *StoreRegistry) clear(ctx context.Context, id ulid.ULID, digest string) (bool, error) {
	err := r.users.Update(ctx, id, UserUpdate{SessionID: Clear(), If: BySessionID(digest)})
	if errors.Is(err, ErrStale) || errors.Is(err, ErrUnknownUser) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "clear session").
			With("user_id", id.String()).
			Wrap(err)
	}
	return true, nil
}
