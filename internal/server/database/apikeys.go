package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const apiKeyColumns = `id, user_id, key, name, is_active, usage_count, last_used_at, created_at, expires_at`

// APIKeyRepository persists API keys.
type APIKeyRepository struct {
	db *DB
}

func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func scanAPIKey(row rowScanner, extra ...any) (*APIKey, error) {
	k := &APIKey{}
	dest := append([]any{
		&k.ID,
		&k.UserID,
		&k.Key,
		&k.Name,
		&k.IsActive,
		&k.UsageCount,
		&k.LastUsedAt,
		&k.CreatedAt,
		&k.ExpiresAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return k, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, k *APIKey) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, k.ID, k.UserID, k.Key, k.Name, k.IsActive, k.UsageCount, k.LastUsedAt, k.CreatedAt, k.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	k, err := scanAPIKey(r.db.Pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if err != nil {
		return nil, wrapGet("api key", err)
	}
	return k, nil
}

func (r *APIKeyRepository) GetByKey(ctx context.Context, secret string) (*APIKey, error) {
	k, err := scanAPIKey(r.db.Pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key = $1`, secret))
	if err != nil {
		return nil, wrapGet("api key", err)
	}
	return k, nil
}

// ListByUser returns a user's keys newest first.
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*APIKey, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM api_keys WHERE user_id = $1", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	return n, nil
}

// SetActive flips the activation flag of exactly one key.
func (r *APIKeyRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE api_keys SET is_active = $2 WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUsage atomically bumps the usage counter and last-used time.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $2
		WHERE id = $1
		RETURNING usage_count
	`, id, at).Scan(&count)
	if err != nil {
		return 0, wrapGet("api key", notFound(err))
	}
	return count, nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM api_keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *APIKeyRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM api_keys WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete api keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAll returns every key with its owner, newest first.
func (r *APIKeyRepository) ListAll(ctx context.Context, page Page) ([]*APIKeyWithOwner, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count api keys: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT k.id, k.user_id, k.key, k.name, k.is_active, k.usage_count, k.last_used_at,
			   k.created_at, k.expires_at, u.name, u.email
		FROM api_keys k JOIN users u ON u.id = k.user_id
		ORDER BY k.created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKeyWithOwner
	for rows.Next() {
		var owner APIKeyWithOwner
		k, err := scanAPIKey(rows, &owner.OwnerName, &owner.OwnerEmail)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan api key: %w", err)
		}
		owner.APIKey = *k
		out = append(out, &owner)
	}
	return out, total, rows.Err()
}
