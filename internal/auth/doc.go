// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth is the authentication core of Gatekeeper.
//
// # Components
//
//   - PasswordHasher - salted argon2id digests, constant-time verification
//   - UserStore - persistence contract (see the memory and postgres packages)
//   - SessionRegistry - opaque session identifiers bound 1:1 to users
//   - Verifier - turns request credentials into a User (none, basic, session)
//   - ResetTokenManager - single-use password reset tokens
//   - Service - the facade the routing layer talks to
//
// Lookup misses are reported as (nil, false, nil), never as errors.
// Business-rule failures wrap the sentinels in errors.go; branch on them
// with errors.Is.
//
// Session identifiers and reset tokens are 256-bit random values. Only
// their SHA-256 hashes are stored.
package auth
