package service

import (
	"encoding/json"
	"time"

	"cloudprime/internal/server/database"

	"github.com/google/uuid"
)

// maskedKey replaces the secret of inactive keys in listings.
const maskedKey = "••••••••"

// UserView is the public shape of an account.
type UserView struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	IsVerified       bool       `json:"isVerified"`
	UploadsThisMonth int        `json:"uploadsThisMonth"`
	MonthlyResetDate time.Time  `json:"monthlyResetDate"`
	LoginCount       int        `json:"loginCount"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func NewUserView(u *database.User) UserView {
	return UserView{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		IsVerified:       u.IsVerified,
		UploadsThisMonth: u.UploadsThisMonth,
		MonthlyResetDate: u.MonthlyResetDate,
		LoginCount:       u.LoginCount,
		LastLogin:        u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
	}
}

// KeyView is an API key as shown to its owner.
type KeyView struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	IsActive   bool       `json:"isActive"`
	LastUsed   *time.Time `json:"lastUsed"`
	UsageCount int64      `json:"usageCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

// NewKeyView masks the secret of inactive keys.
func NewKeyView(k *database.APIKey) KeyView {
	secret := k.Key
	if !k.IsActive {
		secret = maskedKey
	}
	return KeyView{
		ID:         k.ID,
		Name:       k.Name,
		Key:        secret,
		IsActive:   k.IsActive,
		LastUsed:   k.LastUsedAt,
		UsageCount: k.UsageCount,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
	}
}

// OwnerView names the account behind a listed resource.
type OwnerView struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// AdminKeyView is an API key in the admin listing.
type AdminKeyView struct {
	KeyView
	User OwnerView `json:"user"`
}

func newAdminKeyView(k *database.APIKeyWithOwner) AdminKeyView {
	return AdminKeyView{
		KeyView: NewKeyView(&k.APIKey),
		User:    OwnerView{ID: k.UserID, Name: k.OwnerName, Email: k.OwnerEmail},
	}
}

// UploadView is an upload as returned to clients.
type UploadView struct {
	ID            uuid.UUID `json:"id"`
	FileName      string    `json:"fileName"`
	OriginalName  string    `json:"originalName"`
	FileType      string    `json:"fileType"`
	FileSize      string    `json:"fileSize"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	MimeType      string    `json:"mimeType"`
	PublicURL     string    `json:"publicUrl"`
	UploadMethod  string    `json:"uploadMethod"`
	Views         int64     `json:"views"`
	Downloads     int64     `json:"downloads"`
	UploadedAt    time.Time `json:"uploadedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func NewUploadView(u *database.Upload) UploadView {
	return UploadView{
		ID:            u.ID,
		FileName:      u.FileName,
		OriginalName:  u.OriginalName,
		FileType:      u.FileType,
		FileSize:      FormatFileSize(u.FileSize),
		FileSizeBytes: u.FileSize,
		MimeType:      u.MimeType,
		PublicURL:     u.PublicURL,
		UploadMethod:  u.UploadMethod,
		Views:         u.Views,
		Downloads:     u.Downloads,
		UploadedAt:    u.UploadedAt,
		ExpiresAt:     u.ExpiresAt,
	}
}

// AdminUploadView is an upload in the admin listing.
type AdminUploadView struct {
	UploadView
	User       OwnerView `json:"user"`
	APIKeyName *string   `json:"apiKeyName,omitempty"`
}

func newAdminUploadView(u *database.UploadWithOwner) AdminUploadView {
	return AdminUploadView{
		UploadView: NewUploadView(&u.Upload),
		User:       OwnerView{ID: u.UserID, Name: u.OwnerName, Email: u.OwnerEmail},
		APIKeyName: u.APIKeyName,
	}
}

// ContactView is a contact message in the admin listing.
type ContactView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Subject   string     `json:"subject"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	RepliedAt *time.Time `json:"repliedAt,omitempty"`
	RepliedBy *uuid.UUID `json:"repliedBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func NewContactView(c *database.Contact) ContactView {
	return ContactView{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Subject:   c.Subject,
		Message:   c.Message,
		Status:    c.Status,
		IPAddress: c.IPAddress,
		UserAgent: c.UserAgent,
		RepliedAt: c.RepliedAt,
		RepliedBy: c.RepliedBy,
		CreatedAt: c.CreatedAt,
	}
}

// AdminLogView is one audit record.
type AdminLogView struct {
	ID         uuid.UUID       `json:"id"`
	Admin      OwnerView       `json:"admin"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID *uuid.UUID      `json:"resourceId,omitempty"`
	Details    json.RawMessage `json:"details"`
	IPAddress  string          `json:"ipAddress"`
	UserAgent  string          `json:"userAgent"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func newAdminLogView(l *database.AdminLogWithAdmin) AdminLogView {
	admin := OwnerView{ID: l.AdminID}
	if l.AdminName != nil {
		admin.Name = *l.AdminName
	}
	if l.AdminEmail != nil {
		admin.Email = *l.AdminEmail
	}
	details := l.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	return AdminLogView{
		ID:         l.ID,
		Admin:      admin,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		Details:    details,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
}
