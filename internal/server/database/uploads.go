package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const uploadColumns = `id, user_id, api_key_id, file_name, original_name, file_type, file_size,
	mime_type, local_path, public_url, upload_method, is_public, views, downloads,
	uploaded_at, expires_at`

// UploadRepository persists upload metadata.
type UploadRepository struct {
	db *DB
}

func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func scanUpload(row rowScanner, extra ...any) (*Upload, error) {
	u := &Upload{}
	dest := append([]any{
		&u.ID,
		&u.UserID,
		&u.APIKeyID,
		&u.FileName,
		&u.OriginalName,
		&u.FileType,
		&u.FileSize,
		&u.MimeType,
		&u.LocalPath,
		&u.PublicURL,
		&u.UploadMethod,
		&u.IsPublic,
		&u.Views,
		&u.Downloads,
		&u.UploadedAt,
		&u.ExpiresAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// Create inserts a new upload record.
func (r *UploadRepository) Create(ctx context.Context, u *Upload) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO uploads (`+uploadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		u.ID, u.UserID, u.APIKeyID, u.FileName, u.OriginalName, u.FileType, u.FileSize,
		u.MimeType, u.LocalPath, u.PublicURL, u.UploadMethod, u.IsPublic, u.Views, u.Downloads,
		u.UploadedAt, u.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByID retrieves an upload by its ID.
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*Upload, error) {
	u, err := scanUpload(r.db.Pool.QueryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id))
	if err != nil {
		return nil, wrapGet("upload", err)
	}
	return u, nil
}

// ListByUser returns a user's uploads newest first.
func (r *UploadRepository) ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]*Upload, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM uploads WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count uploads: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, total, rows.Err()
}

// CountByUser counts a user's uploads, optionally restricted to one method.
func (r *UploadRepository) CountByUser(ctx context.Context, userID uuid.UUID, method string) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM uploads
		WHERE user_id = $1 AND ($2 = '' OR upload_method = $2)
	`, userID, method).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}

// ListAll returns every upload with owner and key name, newest first.
func (r *UploadRepository) ListAll(ctx context.Context, page Page) ([]*UploadWithOwner, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	out, err := r.listWithOwner(ctx, page.Limit, page.Offset)
	return out, total, err
}

// Recent returns the n most recent uploads with their owners.
func (r *UploadRepository) Recent(ctx context.Context, n int) ([]*UploadWithOwner, error) {
	return r.listWithOwner(ctx, n, 0)
}

func (r *UploadRepository) listWithOwner(ctx context.Context, limit, offset int) ([]*UploadWithOwner, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT up.id, up.user_id, up.api_key_id, up.file_name, up.original_name, up.file_type,
			   up.file_size, up.mime_type, up.local_path, up.public_url, up.upload_method,
			   up.is_public, up.views, up.downloads, up.uploaded_at, up.expires_at,
			   u.name, u.email, k.name
		FROM uploads up
		JOIN users u ON u.id = up.user_id
		LEFT JOIN api_keys k ON k.id = up.api_key_id
		ORDER BY up.uploaded_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var out []*UploadWithOwner
	for rows.Next() {
		var item UploadWithOwner
		u, err := scanUpload(rows, &item.OwnerName, &item.OwnerEmail, &item.APIKeyName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		item.Upload = *u
		out = append(out, &item)
	}
	return out, rows.Err()
}

// LocalPathsByUser returns the non-empty staging paths still recorded for a user.
func (r *UploadRepository) LocalPathsByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT local_path FROM uploads WHERE user_id = $1 AND local_path <> ''", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan upload path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Delete removes an upload record by ID.
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploads WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UploadRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploads WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete uploads: %w", err)
	}
	return tag.RowsAffected(), nil
}
