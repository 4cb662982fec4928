package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, name, email, password_hash, role, is_verified, otp, otp_expires_at,
	reset_token_hash, reset_expires_at, uploads_this_month, monthly_reset_date,
	login_count, last_login_at, created_at, updated_at`

// UserRepository persists user accounts.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsVerified,
		&u.OTP,
		&u.OTPExpiresAt,
		&u.ResetTokenHash,
		&u.ResetExpiresAt,
		&u.UploadsThisMonth,
		&u.MonthlyResetDate,
		&u.LoginCount,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// Create inserts a new user. It returns ErrDuplicate when the email is taken.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsVerified, u.OTP, u.OTPExpiresAt,
		u.ResetTokenHash, u.ResetExpiresAt, u.UploadsThisMonth, u.MonthlyResetDate,
		u.LoginCount, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, wrapGet("user", err)
	}
	return u, nil
}

// GetByEmail looks a user up case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, wrapGet("user", err)
	}
	return u, nil
}

// GetByResetTokenHash finds the user holding a password-reset token hash,
// regardless of whether the token has expired.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, hash string) (*User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, hash))
	if err != nil {
		return nil, wrapGet("user", err)
	}
	return u, nil
}

// Update writes every mutable field of u back as a single-row update.
func (r *UserRepository) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET
			name = $2, email = $3, password_hash = $4, role = $5, is_verified = $6,
			otp = $7, otp_expires_at = $8, reset_token_hash = $9, reset_expires_at = $10,
			uploads_this_month = $11, monthly_reset_date = $12, login_count = $13,
			last_login_at = $14, updated_at = $15
		WHERE id = $1
	`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsVerified,
		u.OTP, u.OTPExpiresAt, u.ResetTokenHash, u.ResetExpiresAt,
		u.UploadsThisMonth, u.MonthlyResetDate, u.LoginCount,
		u.LastLoginAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users newest first.
func (r *UserRepository) List(ctx context.Context, page Page) ([]*User, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
