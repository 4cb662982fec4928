package database

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeDocument = "document"
	FileTypeOther    = "other"
)

const (
	MethodDashboard = "dashboard"
	MethodAPI       = "api"
)

const (
	ContactNew     = "new"
	ContactRead    = "read"
	ContactReplied = "replied"
	ContactClosed  = "closed"
)

// User is an account together with its monthly upload quota state.
type User struct {
	ID               uuid.UUID
	Name             string
	Email            string
	PasswordHash     string
	Role             string
	IsVerified       bool
	OTP              *string
	OTPExpiresAt     *time.Time
	ResetTokenHash   *string
	ResetExpiresAt   *time.Time
	UploadsThisMonth int
	MonthlyResetDate time.Time
	LoginCount       int
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ApplyMonthlyReset zeroes the upload counter when now falls in a different
// calendar month than MonthlyResetDate. It reports whether a reset happened.
func (u *User) ApplyMonthlyReset(now time.Time) bool {
	last := u.MonthlyResetDate.In(now.Location())
	if last.Year() == now.Year() && last.Month() == now.Month() {
		return false
	}
	u.UploadsThisMonth = 0
	u.MonthlyResetDate = now
	return true
}

// CanUpload applies the monthly reset and reports whether another upload
// fits under limit.
func (u *User) CanUpload(limit int, now time.Time) bool {
	u.ApplyMonthlyReset(now)
	return u.UploadsThisMonth < limit
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// APIKey is a named, revocable credential owned by one user.
type APIKey struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Key        string
	Name       string
	IsActive   bool
	UsageCount int64
	LastUsedAt *time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Usable reports whether the key may authenticate a request at now.
func (k *APIKey) Usable(now time.Time) bool {
	return k.IsActive && now.Before(k.ExpiresAt)
}

// APIKeyWithOwner is an API key joined with its owner for admin listings.
type APIKeyWithOwner struct {
	APIKey
	OwnerName  string
	OwnerEmail string
}

// Upload is the metadata of a file proxied to the upstream host.
type Upload struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	APIKeyID     *uuid.UUID
	FileName     string
	OriginalName string
	FileType     string
	FileSize     int64
	MimeType     string
	LocalPath    string // empty once the staged copy is released
	PublicURL    string
	UploadMethod string
	IsPublic     bool
	Views        int64
	Downloads    int64
	UploadedAt   time.Time
	ExpiresAt    time.Time
}

// Extension returns the lower-cased extension of the stored file name.
func (u *Upload) Extension() string {
	return strings.ToLower(filepath.Ext(u.FileName))
}

func (u *Upload) IsExpired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// UploadWithOwner is an upload joined with its owner and key name.
type UploadWithOwner struct {
	Upload
	OwnerName  string
	OwnerEmail string
	APIKeyName *string
}

// Contact is a message submitted through the public contact form.
type Contact struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Subject   string
	Message   string
	Status    string
	IPAddress string
	UserAgent string
	RepliedAt *time.Time
	RepliedBy *uuid.UUID
	CreatedAt time.Time
}

// AdminLog is an append-only audit record of a privileged action.
type AdminLog struct {
	ID         uuid.UUID
	AdminID    uuid.UUID
	Action     string
	Resource   string
	ResourceID *uuid.UUID
	Details    json.RawMessage
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// AdminLogWithAdmin is an audit record joined with the acting admin.
type AdminLogWithAdmin struct {
	AdminLog
	AdminName  *string
	AdminEmail *string
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

// WindowCounts holds record counts for fixed trailing windows.
type WindowCounts struct {
	Total int64 `json:"total"`
	Today int64 `json:"todayCount"`
	Week  int64 `json:"weekCount"`
	Month int64 `json:"monthCount"`
}

// GroupCount is one bucket of a GROUP BY aggregate.
type GroupCount struct {
	Key   string `json:"_id"`
	Count int64  `json:"count"`
}
