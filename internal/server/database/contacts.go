package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const contactColumns = `id, name, email, subject, message, status, ip_address, user_agent,
	replied_at, replied_by, created_at`

// ContactRepository persists contact-form messages.
type ContactRepository struct {
	db *DB
}

func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func scanContact(row rowScanner) (*Contact, error) {
	c := &Contact{}
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Subject,
		&c.Message,
		&c.Status,
		&c.IPAddress,
		&c.UserAgent,
		&c.RepliedAt,
		&c.RepliedBy,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *Contact) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Name, c.Email, c.Subject, c.Message, c.Status, c.IPAddress, c.UserAgent,
		c.RepliedAt, c.RepliedBy, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	c, err := scanContact(r.db.Pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapGet("contact", err)
	}
	return c, nil
}

// UpdateStatus writes the status and reply stamp of a contact.
func (r *ContactRepository) UpdateStatus(ctx context.Context, c *Contact) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE contacts SET status = $2, replied_at = $3, replied_by = $4
		WHERE id = $1
	`, c.ID, c.Status, c.RepliedAt, c.RepliedBy)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns contacts newest first.
func (r *ContactRepository) List(ctx context.Context, page Page) ([]*Contact, int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
