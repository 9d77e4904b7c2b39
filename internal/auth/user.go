// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is a registered account.
//
// SessionID and ResetToken hold SHA-256 digests of the live tokens, never
// the tokens themselves.
type User struct {
	ID             ulid.ULID
	Email          string
	HashedPassword string
	SessionID      *string
	ResetToken     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.SessionID != nil {
		s := *u.SessionID
		c.SessionID = &s
	}
	if u.ResetToken != nil {
		s := *u.ResetToken
		c.ResetToken = &s
	}
	return &c
}

// NormalizeEmail returns the canonical form used for email comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Criteria selects a user in UserStore.FindOne. Every non-nil field must
// match.
type Criteria struct {
	ID         *ulid.ULID
	Email      *string
	SessionID  *string
	ResetToken *string
}

// ByID selects a user by ID.
func ByID(id ulid.ULID) Criteria { return Criteria{ID: &id} }

// ByEmail selects a user by email.
func ByEmail(email string) Criteria { return Criteria{Email: &email} }

// BySessionID selects a user by stored session digest.
func BySessionID(digest string) Criteria { return Criteria{SessionID: &digest} }

// ByResetToken selects a user by stored reset token digest.
func ByResetToken(digest string) Criteria { return Criteria{ResetToken: &digest} }

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	return c.ID == nil && c.Email == nil && c.SessionID == nil && c.ResetToken == nil
}

// Validate rejects empty criteria and empty string values.
func (c Criteria) Validate() error {
	if c.IsEmpty() {
		return oops.Code("USER_CRITERIA_EMPTY").Wrapf(ErrInvalidField, "at least one criterion is required")
	}
	if c.ID != nil && c.ID.Compare(ulid.ULID{}) == 0 {
		return oops.Code("USER_CRITERIA_INVALID").With("field", "id").Wrapf(ErrInvalidField, "id cannot be zero")
	}
	for name, v := range map[string]*string{"email": c.Email, "session_id": c.SessionID, "reset_token": c.ResetToken} {
		if v != nil && *v == "" {
			return oops.Code("USER_CRITERIA_INVALID").With("field", name).Wrapf(ErrInvalidField, "%s cannot be empty", name)
		}
	}
	return nil
}

// Matches reports whether u satisfies every supplied criterion.
func (c Criteria) Matches(u *User) bool {
	if c.ID != nil && u.ID != *c.ID {
		return false
	}
	if c.Email != nil && NormalizeEmail(u.Email) != NormalizeEmail(*c.Email) {
		return false
	}
	if c.SessionID != nil && (u.SessionID == nil || *u.SessionID != *c.SessionID) {
		return false
	}
	if c.ResetToken != nil && (u.ResetToken == nil || *u.ResetToken != *c.ResetToken) {
		return false
	}
	return true
}

// Field is an optional update to a single string attribute. The zero value
// leaves the attribute untouched.
type Field struct {
	set   bool
	value *string
}

// Set returns a Field that assigns v.
func Set(v string) Field { return Field{set: true, value: &v} }

// Clear returns a Field that sets the attribute to null.
func Clear() Field { return Field{set: true} }

// IsSet reports whether the field carries an update.
func (f Field) IsSet() bool { return f.set }

// IsClear reports whether the field clears the attribute.
func (f Field) IsClear() bool { return f.set && f.value == nil }

// Value returns the assigned value, or nil for a clear.
func (f Field) Value() *string {
	if f.value == nil {
		return nil
	}
	v := *f.value
	return &v
}

// UserUpdate enumerates the updatable user attributes.
//
// If is an optional precondition checked atomically with the write: the
// update only lands when the stored user still matches it. A store returns
// ErrStale when the precondition no longer holds.
type UserUpdate struct {
	Email          Field
	HashedPassword Field
	SessionID      Field
	ResetToken     Field

	If Criteria
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return !u.Email.IsSet() && !u.HashedPassword.IsSet() && !u.SessionID.IsSet() && !u.ResetToken.IsSet()
}

// Validate checks every field before any is applied.
func (u UserUpdate) Validate() error {
	required := []struct {
		name string
		f    Field
	}{{"email", u.Email}, {"hashed_password", u.HashedPassword}}
	for _, r := range required {
		if r.f.IsClear() || (r.f.IsSet() && *r.f.value == "") {
			return oops.Code("USER_UPDATE_INVALID").With("field", r.name).Wrapf(ErrInvalidField, "%s cannot be empty", r.name)
		}
	}

	nullable := []struct {
		name string
		f    Field
	}{{"session_id", u.SessionID}, {"reset_token", u.ResetToken}}
	for _, n := range nullable {
		if n.f.IsSet() && !n.f.IsClear() && *n.f.value == "" {
			return oops.Code("USER_UPDATE_INVALID").With("field", n.name).Wrapf(ErrInvalidField, "%s cannot be empty; clear it instead", n.name)
		}
	}

	if !u.If.IsEmpty() {
		return u.If.Validate()
	}
	return nil
}

// Apply writes the update into u. Callers validate first.
func (u UserUpdate) Apply(user *User) {
	if u.Email.IsSet() {
		user.Email = *u.Email.value
	}
	if u.HashedPassword.IsSet() {
		user.HashedPassword = *u.HashedPassword.value
	}
	if u.SessionID.IsSet() {
		user.SessionID = u.SessionID.Value()
	}
	if u.ResetToken.IsSet() {
		user.ResetToken = u.ResetToken.Value()
	}
}

// UserStore persists users.
type UserStore interface {
	// FindOne returns the single user matching all criteria. A miss is
	// (nil, false, nil), never an error.
	FindOne(ctx context.Context, c Criteria) (*User, bool, error)

	// Create stores a new user. Returns ErrAlreadyExists if the email is taken.
	Create(ctx context.Context, email, hashedPassword string) (*User, error)

	// Update applies a validated partial update atomically. Returns
	// ErrUnknownUser for a missing id, ErrStale when u.If no longer matches,
	// ErrInvalidField for a bad field and ErrAlreadyExists on a uniqueness
	// conflict.
	Update(ctx context.Context, id ulid.ULID, u UserUpdate) error
}
