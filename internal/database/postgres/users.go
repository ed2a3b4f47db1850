package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// UserRepository provides PostgreSQL-backed API account storage.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUserByUsername retrieves an account by username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	query := `
		SELECT id, username, password_hash, role, full_name, email, student_id, created_at
		FROM users
		WHERE username = $1
	`

	var user database.User
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.FullName,
		&user.Email,
		&user.StudentID,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// CreateUser stores a new account and returns its ID.
func (r *UserRepository) CreateUser(ctx context.Context, user *database.User) (int64, error) {
	query := `
		INSERT INTO users (username, password_hash, role, full_name, email, student_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		user.Username, user.PasswordHash, user.Role, user.FullName, user.Email, user.StudentID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, database.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return id, nil
}
