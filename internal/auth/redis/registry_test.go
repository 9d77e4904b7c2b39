// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/redis"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func newRegistry(t *testing.T) (*redis.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewRegistry(client, "test"), mr
}

func TestRegistry_CreateResolve(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	userID := ulid.Make().String()

	sid, err := reg.Create(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, sid, 2*auth.TokenBytes)

	got, ok, err := reg.Resolve(ctx, sid)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, got)

	digest := auth.HashToken(sid)
	assert.Equal(t, userID, mustGet(t, mr, "{test}:sid:"+digest))
	assert.Equal(t, digest, mustGet(t, mr, "{test}:user:"+userID))
	assert.False(t, mr.Exists("{test}:sid:"+sid), "raw identifier must not be stored")
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err, key)
	return v
}

func TestRegistry_ReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	userID := ulid.Make().String()

	first, err := reg.Create(ctx, userID)
	require.NoError(t, err)
	second, err := reg.Create(ctx, userID)
	require.NoError(t, err)

	_, ok, err := reg.Resolve(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = reg.Resolve(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, mr.Keys(), 2)
}

func TestRegistry_Destroy(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	userID := ulid.Make().String()

	sid, err := reg.Create(ctx, userID)
	require.NoError(t, err)

	existed, err := reg.Destroy(ctx, sid)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Empty(t, mr.Keys())

	existed, err = reg.Destroy(ctx, sid)
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = reg.Destroy(ctx, "")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRegistry_DestroyStaleKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	userID := ulid.Make().String()

	first, err := reg.Create(ctx, userID)
	require.NoError(t, err)

	second, err := reg.Create(ctx, userID)
	require.NoError(t, err)
	// Stale session key left behind by an interrupted writer.
	_ = mr.Set("{test}:sid:"+auth.HashToken(first), userID)

	existed, err := reg.Destroy(ctx, first)
	require.NoError(t, err)
	assert.True(t, existed)

	got, ok, err := reg.Resolve(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok, "destroying a stale session must not unbind the live one")
	assert.Equal(t, userID, got)
}

func TestRegistry_DestroyUser(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	userID := ulid.Make().String()

	sid, err := reg.Create(ctx, userID)
	require.NoError(t, err)

	existed, err := reg.DestroyUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Empty(t, mr.Keys())

	existed, err = reg.DestroyUser(ctx, userID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, ok, err := reg.Resolve(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_InvalidInput(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Create(context.Background(), "")
	errutil.AssertErrorIs(t, err, auth.ErrInvalidInput)

	got, ok, err := reg.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	userID := ulid.Make().String()

	const n = 16
	sids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid, err := reg.Create(ctx, userID)
			assert.NoError(t, err)
			sids[i] = sid
		}()
	}
	wg.Wait()

	live := 0
	for _, sid := range sids {
		if _, ok, err := reg.Resolve(ctx, sid); err == nil && ok {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestRegistry_BackendFailure(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)
	mr.Close()

	_, err := reg.Create(ctx, ulid.Make().String())
	errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")

	_, _, err = reg.Resolve(ctx, "sid")
	errutil.AssertErrorCode(t, err, "SESSION_RESOLVE_FAILED")

	_, err = reg.Destroy(ctx, "sid")
	errutil.AssertErrorCode(t, err, "SESSION_DESTROY_FAILED")

	_, err = reg.DestroyUser(ctx, "u")
	errutil.AssertErrorCode(t, err, "SESSION_DESTROY_FAILED")
}

func TestNewRegistry_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg := redis.NewRegistry(client, "")
	userID := ulid.Make().String()
	_, err := reg.Create(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("{"+redis.DefaultPrefix+"}:user:"+userID))
}

func TestRegistry_KeysShareOneHashTag(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRegistry(t)

	for range 3 {
		userID := ulid.Make().String()
		_, err := reg.Create(ctx, userID)
		require.NoError(t, err)
		sid, err := reg.Create(ctx, userID)
		require.NoError(t, err)
		_, err = reg.Destroy(ctx, sid)
		require.NoError(t, err)
		_, err = reg.Create(ctx, userID)
		require.NoError(t, err)
	}

	keys := mr.Keys()
	require.Len(t, keys, 6)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "{test}:"), "key %q must carry the hash tag", k)
	}
}

func TestKeyspace(t *testing.T) {
	assert.Equal(t, "{gatekeeper}", redis.Keyspace(""))
	assert.Equal(t, "{gk}", redis.Keyspace("gk"))
}
