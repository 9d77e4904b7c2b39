// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements auth.SessionRegistry on Redis so that sessions
// survive restarts and are shared between instances.
//
// Two keys describe a binding:
//
//	{<prefix>}:sid:<session hash>  -> user id
//	{<prefix>}:user:<user id>      -> session hash
//
// Every mutation runs as a Lua script, so the pair never diverges. The
// scripts derive some keys from stored values, which cannot be declared in
// KEYS ahead of the call. The prefix is therefore a hash tag: every key of a
// registry maps to one Redis Cluster slot, and the scripts run unchanged on
// a cluster.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DefaultPrefix namespaces keys when none is configured.
const DefaultPrefix = "gatekeeper"

// KEYS[1] user key, KEYS[2] new session key, ARGV[1] digest, ARGV[2] user id, ARGV[3] keyspace.
var createScript = goredis.NewScript(`
local old = redis.call("GET", KEYS[1])
if old then
  redis.call("DEL", ARGV[3] .. ":sid:" .. old)
end
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// KEYS[1] session key, ARGV[1] digest, ARGV[2] keyspace.
var destroyScript = goredis.NewScript(`
local uid = redis.call("GET", KEYS[1])
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
local ukey = ARGV[2] .. ":user:" .. uid
if redis.call("GET", ukey) == ARGV[1] then
  redis.call("DEL", ukey)
end
return 1
`)

// KEYS[1] user key, ARGV[1] keyspace.
var destroyUserScript = goredis.NewScript(`
local digest = redis.call("GET", KEYS[1])
if not digest then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. ":sid:" .. digest)
return 1
`)

// Registry is a Redis-backed auth.SessionRegistry.
type Registry struct {
	client   goredis.Cmdable
	keyspace string
}

// NewRegistry creates a Registry. An empty prefix uses DefaultPrefix.
func NewRegistry(client goredis.Cmdable, prefix string) *Registry {
	return &Registry{client: client, keyspace: Keyspace(prefix)}
}

// Keyspace returns the hash-tagged key prefix used for prefix.
func Keyspace(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return "{" + prefix + "}"
}

func (r *Registry) sessionKey(digest string) string { return r.keyspace + ":sid:" + digest }
func (r *Registry) userKey(userID string) string    { return r.keyspace + ":user:" + userID }

// Create binds a fresh session identifier to userID, revoking any earlier one.
func (r *Registry) Create(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", oops.Code("SESSION_INVALID_USER").
			With("operation", "create session").
			Wrapf(auth.ErrInvalidInput, "user id cannot be empty")
	}

	token, digest, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}

	keys := []string{r.userKey(userID), r.sessionKey(digest)}
	if err := createScript.Run(ctx, r.client, keys, digest, userID, r.keyspace).Err(); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("backend", "redis").
			With("user_id", userID).
			Wrap(err)
	}
	return token, nil
}

// Resolve returns the user bound to sessionID.
func (r *Registry) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	userID, err := r.client.Get(ctx, r.sessionKey(auth.HashToken(sessionID))).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, oops.Code("SESSION_RESOLVE_FAILED").With("backend", "redis").Wrap(err)
	}
	return userID, true, nil
}

// Destroy removes the binding for sessionID.
func (r *Registry) Destroy(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	digest := auth.HashToken(sessionID)
	n, err := destroyScript.Run(ctx, r.client, []string{r.sessionKey(digest)}, digest, r.keyspace).Int()
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").With("backend", "redis").Wrap(err)
	}
	return n == 1, nil
}

// DestroyUser removes userID's binding.
func (r *Registry) DestroyUser(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	n, err := destroyUserScript.Run(ctx, r.client, []string{r.userKey(userID)}, r.keyspace).Int()
	if err != nil {
		return false, oops.Code("SESSION_DESTROY_FAILED").
			With("backend", "redis").
			With("user_id", userID).
			Wrap(err)
	}
	return n == 1, nil
}

var _ auth.SessionRegistry = (*Registry)(nil)
