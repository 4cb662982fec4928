package database

import (
	"context"
	"fmt"
)

// AdminLogRepository appends and lists audit records. Records are never
// updated or deleted.
type AdminLogRepository struct {
	db *DB
}

func NewAdminLogRepository(db *DB) *AdminLogRepository {
	return &AdminLogRepository{db: db}
}

func (r *AdminLogRepository) Create(ctx context.Context, l *AdminLog) error {
	details := l.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO admin_logs (id, admin_id, action, resource, resource_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.AdminID, l.Action, l.Resource, l.ResourceID, details, l.IPAddress, l.UserAgent, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin log: %w", err)
	}
	return nil
}

// List returns audit records newest first, joined with the acting admin when
// that account still exists.
func (r *AdminLogRepository) List(ctx context.Context, page Page) ([]*AdminLogWithAdmin, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count admin logs: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT l.id, l.admin_id, l.action, l.resource, l.resource_id, l.details,
			   l.ip_address, l.user_agent, l.created_at, u.name, u.email
		FROM admin_logs l
		LEFT JOIN users u ON u.id = l.admin_id
		ORDER BY l.created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list admin logs: %w", err)
	}
	defer rows.Close()

	var out []*AdminLogWithAdmin
	for rows.Next() {
		var l AdminLogWithAdmin
		if err := rows.Scan(
			&l.ID,
			&l.AdminID,
			&l.Action,
			&l.Resource,
			&l.ResourceID,
			&l.Details,
			&l.IPAddress,
			&l.UserAgent,
			&l.CreatedAt,
			&l.AdminName,
			&l.AdminEmail,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan admin log: %w", err)
		}
		out = append(out, &l)
	}
	return out, total, rows.Err()
}
