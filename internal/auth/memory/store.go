// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.UserStore.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// UserStore keeps users in maps guarded by a RWMutex. Stored users are
// copied in and out so callers cannot mutate them.
type UserStore struct {
	mu        sync.RWMutex
	users     map[ulid.ULID]*auth.User
	byEmail   map[string]ulid.ULID
	bySession map[string]ulid.ULID
	byReset   map[string]ulid.ULID
	now       func() time.Time
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users:     make(map[ulid.ULID]*auth.User),
		byEmail:   make(map[string]ulid.ULID),
		bySession: make(map[string]ulid.ULID),
		byReset:   make(map[string]ulid.ULID),
		now:       time.Now,
	}
}

// FindOne returns the user matching all criteria.
func (s *UserStore) FindOne(_ context.Context, c auth.Criteria) (*auth.User, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidate, ok := s.candidate(c)
	if !ok || !c.Matches(candidate) {
		return nil, false, nil
	}
	return candidate.Clone(), true, nil
}

// candidate narrows the search with the most selective index available.
func (s *UserStore) candidate(c auth.Criteria) (*auth.User, bool) {
	var id ulid.ULID
	var ok bool
	switch {
	case c.ID != nil:
		id, ok = *c.ID, true
	case c.SessionID != nil:
		id, ok = s.bySession[*c.SessionID]
	case c.ResetToken != nil:
		id, ok = s.byReset[*c.ResetToken]
	default:
		id, ok = s.byEmail[auth.NormalizeEmail(*c.Email)]
	}
	if !ok {
		return nil, false
	}
	u, ok := s.users[id]
	return u, ok
}

// Create stores a new user.
func (s *UserStore) Create(_ context.Context, email, hashedPassword string) (*auth.User, error) {
	if err := (auth.UserUpdate{Email: auth.Set(email), HashedPassword: auth.Set(hashedPassword)}).Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := auth.NormalizeEmail(email)
	if _, taken := s.byEmail[key]; taken {
		return nil, oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrAlreadyExists)
	}

	now := s.now()
	u := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u.Clone(), nil
}

// Update applies u to the user with the given id.
func (s *UserStore) Update(_ context.Context, id ulid.ULID, u auth.UserUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		if !u.If.IsEmpty() {
			return oops.Code("USER_UPDATE_STALE").With("user_id", id.String()).Wrap(auth.ErrStale)
		}
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrUnknownUser)
	}
	if !u.If.IsEmpty() && !u.If.Matches(current) {
		return oops.Code("USER_UPDATE_STALE").With("user_id", id.String()).Wrap(auth.ErrStale)
	}
	if u.IsEmpty() {
		return nil
	}

	next := current.Clone()
	u.Apply(next)

	if err := s.checkUnique(id, next); err != nil {
		return err
	}

	s.reindex(current, next)
	next.UpdatedAt = s.now()
	s.users[id] = next
	return nil
}

func (s *UserStore) checkUnique(id ulid.ULID, next *auth.User) error {
	if owner, ok := s.byEmail[auth.NormalizeEmail(next.Email)]; ok && owner != id {
		return oops.Code("USER_EMAIL_TAKEN").With("email", next.Email).Wrap(auth.ErrAlreadyExists)
	}
	if next.SessionID != nil {
		if owner, ok := s.bySession[*next.SessionID]; ok && owner != id {
			return oops.Code("USER_SESSION_TAKEN").Wrap(auth.ErrAlreadyExists)
		}
	}
	if next.ResetToken != nil {
		if owner, ok := s.byReset[*next.ResetToken]; ok && owner != id {
			return oops.Code("USER_RESET_TOKEN_TAKEN").Wrap(auth.ErrAlreadyExists)
		}
	}
	return nil
}

func (s *UserStore) reindex(prev, next *auth.User) {
	delete(s.byEmail, auth.NormalizeEmail(prev.Email))
	s.byEmail[auth.NormalizeEmail(next.Email)] = next.ID

	if prev.SessionID != nil {
		delete(s.bySession, *prev.SessionID)
	}
	if next.SessionID != nil {
		s.bySession[*next.SessionID] = next.ID
	}

	if prev.ResetToken != nil {
		delete(s.byReset, *prev.ResetToken)
	}
	if next.ResetToken != nil {
		s.byReset[*next.ResetToken] = next.ID
	}
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
