// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, hashed_password, session_id, reset_token, created_at, updated_at`

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	db  DB
	now func() time.Time
}

// NewUserStore creates a new UserStore.
func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FindOne retrieves the user matching every criterion. Email comparison is
// case-insensitive.
func (s *UserStore) FindOne(ctx context.Context, c auth.Criteria) (*auth.User, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, err
	}

	conds, args := criteriaConds(c, nil)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") + ` LIMIT 1`
	user, err := scanUser(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			Wrap(err)
	}
	return user, true, nil
}

// criteriaConds renders c as WHERE conditions, numbering placeholders after
// the existing args.
func criteriaConds(c auth.Criteria, args []any) ([]string, []any) {
	var conds []string
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if c.ID != nil {
		add("id = $%d", c.ID.String())
	}
	if c.Email != nil {
		add("LOWER(email) = LOWER($%d)", *c.Email)
	}
	if c.SessionID != nil {
		add("session_id = $%d", *c.SessionID)
	}
	if c.ResetToken != nil {
		add("reset_token = $%d", *c.ResetToken)
	}
	return conds, args
}

// Create stores a new user.
func (s *UserStore) Create(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	if err := (auth.UserUpdate{Email: auth.Set(email), HashedPassword: auth.Set(hashedPassword)}).Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID.String(), user.Email, user.HashedPassword, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// Update applies a partial update in a single statement. The precondition
// in u.If becomes part of the WHERE clause, so a stale update touches no
// rows.
func (s *UserStore) Update(ctx context.Context, id ulid.ULID, u auth.UserUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	args := []any{id.String()}
	var sets []string
	add := func(column string, f auth.Field) {
		if !f.IsSet() {
			return
		}
		args = append(args, f.Value())
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("email", u.Email)
	add("hashed_password", u.HashedPassword)
	add("session_id", u.SessionID)
	add("reset_token", u.ResetToken)

	args = append(args, s.now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	where := []string{"id = $1"}
	if !u.If.IsEmpty() {
		var conds []string
		conds, args = criteriaConds(u.If, args)
		where = append(where, conds...)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	result, err := s.db.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return oops.Code("USER_UPDATE_CONFLICT").
			With("user_id", id.String()).
			Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 && !u.If.IsEmpty() {
		return oops.Code("USER_UPDATE_STALE").
			With("user_id", id.String()).
			Wrap(auth.ErrStale)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrUnknownUser)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	if err := row.Scan(
		&idStr,
		&user.Email,
		&user.HashedPassword,
		&user.SessionID,
		&user.ResetToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap and inspect pgx.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}
