package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
	"github.com/jsedeno/anitrack/internal/repository"
	"github.com/rs/xid"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user together with a zeroed stats row in one
// transaction. If either insert fails, neither survives — a user without a
// stats row is never observable.
//
// The email uniqueness check runs inside the same transaction (exact,
// case-sensitive match) and returns apperror.Conflict; the UNIQUE constraint
// on the column is the backstop against anything slipping past it.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = ?`, user.Email,
	).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: checking email %s: %w", user.Email, err)
	}
	if existing != "" {
		return apperror.Conflict("user", user.Email)
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, avatar_path, bio, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.AvatarPath,
		user.Bio,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	// Empty library, zeroed aggregate.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO stats (user_id) VALUES (?)`, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting stats row for user %s: %w", user.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user create: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
//
// The user-prefixed names keep these methods from colliding with the library
// entry accessors on the same *DB receiver.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email, exact match.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, avatar_path, bio, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.AvatarPath,
		&u.Bio,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("%v", arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}

	return &u, nil
}

// UpdateProfile persists the mutable profile fields (username, bio, avatar
// path) and refreshes updated_at. Credentials and email are not touched here.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET username = ?, bio = ?, avatar_path = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.Bio,
		user.AvatarPath,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile for user %s: %w", user.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking profile update for user %s: %w", user.ID, err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// DeleteUser removes the user and everything they own — library entries,
// stats row, account — in one transaction. Children go first; the cascade is
// explicit application code, not an ON DELETE clause.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM library_entries WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting library entries for user %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stats WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting stats for user %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking user delete %s: %w", id, err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user delete: %w", err)
	}
	return nil
}
