package service

import (
	"context"
	"time"

	"cloudprime/internal/server/database"

	"github.com/google/uuid"
)

// The service layer depends on these narrow store contracts; the database
// repositories satisfy them.

type UserStore interface {
	Create(ctx context.Context, u *database.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*database.User, error)
	Update(ctx context.Context, u *database.User) error
	List(ctx context.Context, page database.Page) ([]*database.User, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type APIKeyStore interface {
	Create(ctx context.Context, k *database.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.APIKey, error)
	GetByKey(ctx context.Context, secret string) (*database.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*database.APIKey, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListAll(ctx context.Context, page database.Page) ([]*database.APIKeyWithOwner, int64, error)
}

type UploadStore interface {
	Create(ctx context.Context, u *database.Upload) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Upload, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page database.Page) ([]*database.Upload, int64, error)
	CountByUser(ctx context.Context, userID uuid.UUID, method string) (int64, error)
	ListAll(ctx context.Context, page database.Page) ([]*database.UploadWithOwner, int64, error)
	Recent(ctx context.Context, n int) ([]*database.UploadWithOwner, error)
	LocalPathsByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ContactStore interface {
	Create(ctx context.Context, c *database.Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Contact, error)
	UpdateStatus(ctx context.Context, c *database.Contact) error
	List(ctx context.Context, page database.Page) ([]*database.Contact, int64, error)
}

type AdminLogStore interface {
	Create(ctx context.Context, l *database.AdminLog) error
	List(ctx context.Context, page database.Page) ([]*database.AdminLogWithAdmin, int64, error)
}

type StatsStore interface {
	WindowCounts(ctx context.Context, table string, now time.Time) (*database.WindowCounts, error)
	StorageUsage(ctx context.Context) (int64, error)
	UsersByRole(ctx context.Context) ([]database.GroupCount, error)
	UploadsByType(ctx context.Context) ([]database.GroupCount, error)
	DailyUploads(ctx context.Context, since time.Time) ([]database.GroupCount, error)
	RecentUsers(ctx context.Context, n int) ([]*database.User, error)
}

// Notifier sends the account emails.
type Notifier interface {
	SendOTP(ctx context.Context, to, name, code string, validFor time.Duration) error
	SendPasswordReset(ctx context.Context, to, name, token string, validFor time.Duration) error
}

// saveUser applies the lazy monthly quota reset and writes u back. Every
// mutation of a user record goes through here.
func saveUser(ctx context.Context, users UserStore, u *database.User, now time.Time) error {
	u.ApplyMonthlyReset(now)
	return users.Update(ctx, u)
}
