package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/storage"
	"cloudprime/internal/server/upstream"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cloudprime_uploads_total",
		Help: "Upload attempts by entry point and outcome",
	},
	[]string{"method", "outcome"},
)

// Staged is an incoming file held in the staging area until it is proxied.
type Staged struct {
	File        *storage.StagedFile
	ContentType string
}

// Release removes the staged copy. It is idempotent and nil-safe.
func (s *Staged) Release() {
	if s != nil {
		s.File.Release()
	}
}

// UploadRequest is one upload attempt.
type UploadRequest struct {
	UserID   uuid.UUID
	APIKeyID *uuid.UUID
	Method   string
	Staged   *Staged
}

// UploadLimits are the configured quota and lifetime settings.
type UploadLimits struct {
	PerMonth    int
	MaxFileSize int64
	Expiry      time.Duration
}

// UploadService stages incoming files, proxies them to the image host and
// keeps upload metadata and quota counters in step.
type UploadService struct {
	users    UserStore
	uploads  UploadStore
	store    storage.Store
	upstream upstream.Uploader
	limits   UploadLimits
	now      func() time.Time
}

// NewUploadService creates a new upload service.
func NewUploadService(users UserStore, uploads UploadStore, store storage.Store, up upstream.Uploader, limits UploadLimits) *UploadService {
	return &UploadService{
		users:    users,
		uploads:  uploads,
		store:    store,
		upstream: up,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stage copies an incoming file into the staging area, enforcing the
// maximum file size.
func (s *UploadService) Stage(field, originalName, contentType string, data io.Reader) (*Staged, error) {
	file, err := s.store.Stage(field, sanitizeFilename(originalName), data, s.limits.MaxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, err
	}
	return &Staged{File: file, ContentType: contentType}, nil
}

// UploadFromDashboard runs the upload sequence for a session-authenticated user.
func (s *UploadService) UploadFromDashboard(ctx context.Context, userID uuid.UUID, staged *Staged) (*UploadView, error) {
	return s.ProcessUpload(ctx, UploadRequest{
		UserID: userID,
		Method: database.MethodDashboard,
		Staged: staged,
	})
}

// UploadWithAPIKey runs the upload sequence for a key-authenticated request
// and stamps the upload with the key used.
func (s *UploadService) UploadWithAPIKey(ctx context.Context, ka *KeyAuth, staged *Staged) (*UploadView, error) {
	return s.ProcessUpload(ctx, UploadRequest{
		UserID:   ka.User.ID,
		APIKeyID: &ka.Key.ID,
		Method:   database.MethodAPI,
		Staged:   staged,
	})
}

// ProcessUpload checks the quota, forwards the staged file upstream, records
// the upload and counts it against the quota. The staged file is released on
// every path out of this function.
func (s *UploadService) ProcessUpload(ctx context.Context, req UploadRequest) (*UploadView, error) {
	defer req.Staged.Release()

	view, err := s.processUpload(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	uploadsTotal.WithLabelValues(req.Method, outcome).Inc()
	return view, err
}

func (s *UploadService) processUpload(ctx context.Context, req UploadRequest) (*UploadView, error) {
	// 1. Something must have been staged
	if req.Staged == nil || req.Staged.File == nil {
		return nil, ErrNoFileProvided
	}
	file := req.Staged.File

	// 2. Quota, evaluated after the lazy monthly reset
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	now := s.now()
	if !user.CanUpload(s.limits.PerMonth, now) {
		return nil, fmt.Errorf("%w (%d)", ErrQuotaExceeded, s.limits.PerMonth)
	}

	// 3. Forward to the image host
	contentType := s.contentType(req.Staged)
	publicURL, err := s.upstream.Upload(ctx, upstream.File{
		Path:        file.Path,
		Name:        file.OriginalName,
		ContentType: contentType,
	})
	if err != nil {
		slog.Warn("upstream upload failed", "user_id", user.ID, "file", file.OriginalName, "error", err)
		switch {
		case errors.Is(err, upstream.ErrUnavailable):
			return nil, ErrUpstreamUnavailable
		case errors.Is(err, upstream.ErrRejected):
			return nil, ErrUpstreamRejected
		default:
			return nil, fmt.Errorf("failed to forward upload: %w", err)
		}
	}

	// 4. The local copy is no longer needed
	req.Staged.Release()

	// 5. Persist metadata, then count it against the quota
	upload := &database.Upload{
		ID:           uuid.New(),
		UserID:       user.ID,
		APIKeyID:     req.APIKeyID,
		FileName:     file.Name,
		OriginalName: file.OriginalName,
		FileType:     FileTypeFor(file.OriginalName),
		FileSize:     file.Size,
		MimeType:     contentType,
		PublicURL:    publicURL,
		UploadMethod: req.Method,
		IsPublic:     true,
		UploadedAt:   now,
		ExpiresAt:    now.Add(s.limits.Expiry),
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to create upload record: %w", err)
	}

	user.UploadsThisMonth++
	if err := saveUser(ctx, s.users, user, now); err != nil {
		// No metadata row may outlive a failed quota increment.
		if delErr := s.uploads.Delete(ctx, upload.ID); delErr != nil {
			slog.Error("failed to roll back upload record", "id", upload.ID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to update upload quota: %w", err)
	}

	slog.Info("upload processed",
		"id", upload.ID,
		"user_id", user.ID,
		"method", upload.UploadMethod,
		"file_type", upload.FileType,
		"size", upload.FileSize,
		"uploads_this_month", user.UploadsThisMonth,
	)

	view := NewUploadView(upload)
	return &view, nil
}

// List returns one page of the user's uploads, newest first.
func (s *UploadService) List(ctx context.Context, userID uuid.UUID, p PageRequest) (*Paged[UploadView], error) {
	p = p.normalize()
	uploads, total, err := s.uploads.ListByUser(ctx, userID, p.window())
	if err != nil {
		return nil, err
	}
	return newPaged(mapSlice(uploads, NewUploadView), total, p), nil
}

// Delete removes one of the caller's uploads.
func (s *UploadService) Delete(ctx context.Context, userID, uploadID uuid.UUID) error {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUploadNotFound
		}
		return err
	}
	if upload.UserID != userID {
		return ErrUploadNotFound
	}
	return s.remove(ctx, upload)
}

// remove deletes any residual local file and the metadata record, then
// gives the upload back to its owner's monthly quota.
func (s *UploadService) remove(ctx context.Context, upload *database.Upload) error {
	if err := s.store.Release(upload.LocalPath); err != nil {
		slog.Error("failed to delete residual file", "id", upload.ID, "path", upload.LocalPath, "error", err)
	}

	if err := s.uploads.Delete(ctx, upload.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("failed to delete upload record: %w", err)
	}

	owner, err := s.users.GetByID(ctx, upload.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	owner.ApplyMonthlyReset(s.now())
	if owner.UploadsThisMonth > 0 {
		owner.UploadsThisMonth--
	}
	if err := saveUser(ctx, s.users, owner, s.now()); err != nil {
		return fmt.Errorf("failed to update upload quota: %w", err)
	}

	slog.Info("upload deleted", "id", upload.ID, "user_id", owner.ID, "file", upload.FileName)
	return nil
}

// contentType trusts the client's declared type unless it is missing or
// generic, in which case the staged bytes are sniffed.
func (s *UploadService) contentType(staged *Staged) string {
	declared := strings.TrimSpace(staged.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	mt, err := mimetype.DetectFile(staged.File.Path)
	if err != nil {
		slog.Warn("failed to detect content type", "path", staged.File.Path, "error", err)
		return "application/octet-stream"
	}
	return mt.String()
}

// maxFilenameChars matches the VARCHAR(255) name columns, which count
// characters rather than bytes.
const maxFilenameChars = 255

// sanitizeFilename strips directory components, replaces invalid UTF-8 and
// limits the name to maxFilenameChars characters, keeping a short extension.
func sanitizeFilename(name string) string {
	name = strings.ToValidUTF8(name, "_")

	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")

	// Take only the base name
	name = filepath.Base(name)

	if utf8.RuneCountInString(name) > maxFilenameChars {
		ext := []rune(filepath.Ext(name))
		if len(ext) > 16 {
			ext = nil
		}
		runes := []rune(name)
		name = string(runes[:maxFilenameChars-len(ext)]) + string(ext)
	}

	if name == "" || name == "." || name == "/" {
		name = "upload"
	}

	return name
}
