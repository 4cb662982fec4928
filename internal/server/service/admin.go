package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudprime/internal/server/database"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Audit actions and resources recorded in the admin log.
const (
	ActionUpdateRole   = "UPDATE_ROLE"
	ActionDelete       = "DELETE"
	ActionUpdateStatus = "UPDATE_STATUS"

	ResourceUser    = "User"
	ResourceUpload  = "Upload"
	ResourceContact = "Contact"
)

const (
	recentUsersLimit   = 5
	recentUploadsLimit = 10
	dailyUploadsDays   = 7
)

// Actor identifies the admin performing a privileged action and where the
// request came from.
type Actor struct {
	AdminID   uuid.UUID
	IPAddress string
	UserAgent string
}

// DashboardStats is the payload of the admin dashboard.
type DashboardStats struct {
	Stats struct {
		Users                 *database.WindowCounts `json:"users"`
		Uploads               *database.WindowCounts `json:"uploads"`
		APIKeys               *database.WindowCounts `json:"apiKeys"`
		Contacts              *database.WindowCounts `json:"contacts"`
		StorageUsage          int64                  `json:"storageUsage"`
		StorageUsageFormatted string                 `json:"storageUsageFormatted"`
	} `json:"stats"`
	Charts struct {
		UsersByRole   []database.GroupCount `json:"usersByRole"`
		UploadsByType []database.GroupCount `json:"uploadsByType"`
		DailyUploads  []database.GroupCount `json:"dailyUploads"`
	} `json:"charts"`
	Recent struct {
		Users   []UserView        `json:"users"`
		Uploads []AdminUploadView `json:"uploads"`
	} `json:"recent"`
}

// AdminService implements the admin console: dashboard, listings and the
// audited mutations.
type AdminService struct {
	users    UserStore
	keys     APIKeyStore
	uploads  UploadStore
	contacts ContactStore
	logs     AdminLogStore
	stats    StatsStore
	files    *UploadService
	now      func() time.Time
}

// NewAdminService creates a new admin service. files performs upload
// removal so admin deletions release quota the same way owner deletions do.
func NewAdminService(users UserStore, keys APIKeyStore, uploads UploadStore, contacts ContactStore, logs AdminLogStore, stats StatsStore, files *UploadService) *AdminService {
	return &AdminService{
		users:    users,
		keys:     keys,
		uploads:  uploads,
		contacts: contacts,
		logs:     logs,
		stats:    stats,
		files:    files,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stats gathers the dashboard aggregates concurrently.
func (s *AdminService) Stats(ctx context.Context) (*DashboardStats, error) {
	now := s.now()
	out := &DashboardStats{}
	g, ctx := errgroup.WithContext(ctx)

	counts := map[string]**database.WindowCounts{
		"users":    &out.Stats.Users,
		"uploads":  &out.Stats.Uploads,
		"api_keys": &out.Stats.APIKeys,
		"contacts": &out.Stats.Contacts,
	}
	for table, dst := range counts {
		g.Go(func() error {
			wc, err := s.stats.WindowCounts(ctx, table, now)
			if err != nil {
				return err
			}
			*dst = wc
			return nil
		})
	}

	g.Go(func() error {
		total, err := s.stats.StorageUsage(ctx)
		out.Stats.StorageUsage = total
		out.Stats.StorageUsageFormatted = FormatFileSize(total)
		return err
	})
	g.Go(func() (err error) {
		out.Charts.UsersByRole, err = s.stats.UsersByRole(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Charts.UploadsByType, err = s.stats.UploadsByType(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Charts.DailyUploads, err = s.stats.DailyUploads(ctx, now.AddDate(0, 0, -dailyUploadsDays))
		return err
	})
	g.Go(func() error {
		users, err := s.stats.RecentUsers(ctx, recentUsersLimit)
		out.Recent.Users = mapSlice(users, NewUserView)
		return err
	})
	g.Go(func() error {
		uploads, err := s.uploads.Recent(ctx, recentUploadsLimit)
		out.Recent.Uploads = mapSlice(uploads, newAdminUploadView)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to gather dashboard stats: %w", err)
	}
	return out, nil
}

func (s *AdminService) ListUsers(ctx context.Context, p PageRequest) (*Paged[UserView], error) {
	p = p.normalize()
	users, total, err := s.users.List(ctx, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(users, NewUserView), total, p), nil
}

func (s *AdminService) ListUploads(ctx context.Context, p PageRequest) (*Paged[AdminUploadView], error) {
	p = p.normalize()
	uploads, total, err := s.uploads.ListAll(ctx, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(uploads, newAdminUploadView), total, p), nil
}

func (s *AdminService) ListAPIKeys(ctx context.Context, p PageRequest) (*Paged[AdminKeyView], error) {
	p = p.normalize()
	keys, total, err := s.keys.ListAll(ctx, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(keys, newAdminKeyView), total, p), nil
}

func (s *AdminService) ListContacts(ctx context.Context, p PageRequest) (*Paged[ContactView], error) {
	p = p.normalize()
	contacts, total, err := s.contacts.List(ctx, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(contacts, NewContactView), total, p), nil
}

func (s *AdminService) ListLogs(ctx context.Context, p PageRequest) (*Paged[AdminLogView], error) {
	p = p.normalize()
	logs, total, err := s.logs.List(ctx, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(logs, newAdminLogView), total, p), nil
}

// UpdateRole changes a user's role. Admins cannot demote themselves.
func (s *AdminService) UpdateRole(ctx context.Context, actor Actor, userID uuid.UUID, role string) (*database.User, error) {
	if role != database.RoleUser && role != database.RoleAdmin {
		return nil, ErrInvalidRole
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.ID == actor.AdminID && role == database.RoleUser {
		return nil, ErrSelfDemotion
	}

	oldRole := user.Role
	user.Role = role
	if err := saveUser(ctx, s.users, user, s.now()); err != nil {
		return nil, err
	}

	return user, s.audit(ctx, actor, ActionUpdateRole, ResourceUser, &user.ID, map[string]any{
		"oldRole": oldRole,
		"newRole": role,
	})
}

// DeleteUser removes an account together with its uploads and API keys.
// Admins cannot delete themselves.
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.ID == actor.AdminID {
		return ErrSelfDeletion
	}

	paths, err := s.uploads.LocalPathsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.files.store.Release(p); err != nil {
			slog.Error("failed to delete residual file", "user_id", user.ID, "path", p, "error", err)
		}
	}

	uploads, err := s.uploads.DeleteByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	keys, err := s.keys.DeleteByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	slog.Info("user deleted", "user_id", user.ID, "admin_id", actor.AdminID, "uploads", uploads, "api_keys", keys)
	return s.audit(ctx, actor, ActionDelete, ResourceUser, &user.ID, map[string]any{
		"email":   user.Email,
		"uploads": uploads,
		"apiKeys": keys,
	})
}

// DeleteUpload removes any user's upload and returns it to the owner's quota.
func (s *AdminService) DeleteUpload(ctx context.Context, actor Actor, uploadID uuid.UUID) error {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUploadNotFound
		}
		return err
	}

	details := map[string]any{"fileName": upload.FileName}
	if owner, err := s.users.GetByID(ctx, upload.UserID); err == nil {
		details["user"] = owner.Email
	}

	if err := s.files.remove(ctx, upload); err != nil {
		return err
	}
	return s.audit(ctx, actor, ActionDelete, ResourceUpload, &upload.ID, details)
}

// UpdateContactStatus moves a contact message to status. Only "replied"
// stamps the reply time and the replying admin.
func (s *AdminService) UpdateContactStatus(ctx context.Context, actor Actor, contactID uuid.UUID, status string) (*database.Contact, error) {
	switch status {
	case database.ContactNew, database.ContactRead, database.ContactReplied, database.ContactClosed:
	default:
		return nil, ErrInvalidStatus
	}

	contact, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	oldStatus := contact.Status
	contact.Status = status
	if status == database.ContactReplied {
		now := s.now()
		admin := actor.AdminID
		contact.RepliedAt = &now
		contact.RepliedBy = &admin
	}
	if err := s.contacts.UpdateStatus(ctx, contact); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	return contact, s.audit(ctx, actor, ActionUpdateStatus, ResourceContact, &contact.ID, map[string]any{
		"oldStatus": oldStatus,
		"newStatus": status,
	})
}

// audit appends one admin log entry. It is not retried; a failure is
// reported as ErrAuditWrite after the mutation has already been applied.
func (s *AdminService) audit(ctx context.Context, actor Actor, action, resource string, resourceID *uuid.UUID, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}

	entry := &database.AdminLog{
		ID:         uuid.New(),
		AdminID:    actor.AdminID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    raw,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  s.now(),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		slog.Error("failed to write admin log", "action", action, "resource", resource, "admin_id", actor.AdminID, "error", err)
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return nil
}
