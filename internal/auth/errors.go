// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Sentinel errors. Callers branch on these with errors.Is; the returned
// errors are oops-wrapped and carry a code and operation context.
var (
	// ErrUnknownUser is returned when no user matches the given email.
	ErrUnknownUser = errors.New("unknown user")

	// ErrAlreadyRegistered is returned when registering an email that exists.
	ErrAlreadyRegistered = errors.New("user already registered")

	// ErrAlreadyExists is returned by a UserStore when a unique attribute
	// (email, session id, reset token) is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidToken is returned when a reset token matches no user.
	ErrInvalidToken = errors.New("invalid reset token")

	// ErrInvalidField is returned for unrecognized or invalid user fields.
	ErrInvalidField = errors.New("invalid field")

	// ErrStale is returned by a UserStore when a conditional update finds
	// the user no longer matching its precondition.
	ErrStale = errors.New("stale update")

	// ErrInvalidInput is returned for empty required arguments.
	ErrInvalidInput = errors.New("invalid input")
)
