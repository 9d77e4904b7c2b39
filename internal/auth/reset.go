// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ResetTokenManager issues and redeems single-use password reset tokens.
// Only token hashes are stored on the user record.
type ResetTokenManager struct {
	users UserStore
}

// NewResetTokenManager creates a ResetTokenManager over users.
func NewResetTokenManager(users UserStore) *ResetTokenManager {
	return &ResetTokenManager{users: users}
}

// Issue generates a token for userID, replacing any earlier one.
// The plaintext token is returned for delivery to the user.
func (m *ResetTokenManager) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := m.users.Update(ctx, userID, UserUpdate{ResetToken: Set(hash)}); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "store reset token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, nil
}

// Lookup returns the user holding token.
func (m *ResetTokenManager) Lookup(ctx context.Context, token string) (*User, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	user, ok, err := m.users.FindOne(ctx, ByResetToken(HashToken(token)))
	if err != nil {
		return nil, false, oops.Code("RESET_LOOKUP_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}
	return user, ok, nil
}

// Redeem consumes token, storing newDigest as the password in the same
// update that clears the token. The update is conditional on the stored
// token, so concurrent redemptions of one token succeed at most once. A
// consumed or unknown token yields ErrInvalidToken.
func (m *ResetTokenManager) Redeem(ctx context.Context, token, newDigest string) (*User, error) {
	user, ok, err := m.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	update := UserUpdate{
		HashedPassword: Set(newDigest),
		ResetToken:     Clear(),
		If:             ByResetToken(HashToken(token)),
	}
	err = m.users.Update(ctx, user.ID, update)
	if errors.Is(err, ErrStale) || errors.Is(err, ErrUnknownUser) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	update.Apply(user)
	return user, nil
}
