// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindOne(ctx context.Context, c auth.Criteria) (*auth.User, bool, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*auth.User), args.Bool(1), args.Error(2)
}

func (m *mockUserStore) Create(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	args := m.Called(ctx, email, hashedPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *mockUserStore) Update(ctx context.Context, id ulid.ULID, u auth.UserUpdate) error {
	args := m.Called(ctx, id, u)
	return args.Error(0)
}

// hookStore runs beforeUpdate once, ahead of the first Update. It stands in
// for a second server writing to the shared store between this server's
// lookup and its write.
type hookStore struct {
	*memory.UserStore
	beforeUpdate func()
	once         sync.Once
}

func (h *hookStore) Update(ctx context.Context, id ulid.ULID, u auth.UserUpdate) error {
	if h.beforeUpdate != nil {
		h.once.Do(h.beforeUpdate)
	}
	return h.UserStore.Update(ctx, id, u)
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Create(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockRegistry) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockRegistry) Destroy(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRegistry) DestroyUser(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Verify(password, digest string) bool {
	args := m.Called(password, digest)
	return args.Bool(0)
}

func (m *mockHasher) NeedsUpgrade(digest string) bool {
	args := m.Called(digest)
	return args.Bool(0)
}

// fastHasher keeps argon2id cheap enough for table tests.
func fastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1})
}

type request struct {
	authorization string
	cookies       map[string]string
	path          string
}

func (r request) Authorization() string     { return r.authorization }
func (r request) Cookie(name string) string { return r.cookies[name] }
func (r request) Path() string              { return r.path }
