package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/service/servicetest"
	"cloudprime/internal/server/storage"
	"cloudprime/internal/server/upstream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uploadNow = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

type uploadFixture struct {
	svc     *UploadService
	users   *servicetest.Users
	uploads *servicetest.Uploads
	up      *servicetest.Upstream
	dir     string
	user    database.User
}

func newUploadFixture(t *testing.T, limits UploadLimits) *uploadFixture {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewFileSystemStore(dir)
	require.NoError(t, store.EnsureDir())

	f := &uploadFixture{
		users:   servicetest.NewUsers(),
		uploads: servicetest.NewUploads(),
		up:      &servicetest.Upstream{URL: "https://img.example.com/abc.png"},
		dir:     dir,
	}
	f.svc = NewUploadService(f.users, f.uploads, store, f.up, limits)
	f.svc.now = servicetest.FixedClock(uploadNow)

	f.user = database.User{
		ID:               uuid.New(),
		Name:             "Alice",
		Email:            "alice@example.com",
		Role:             database.RoleUser,
		IsVerified:       true,
		MonthlyResetDate: uploadNow,
		CreatedAt:        uploadNow,
	}
	require.NoError(t, f.users.Create(context.Background(), &f.user))
	return f
}

func defaultLimits() UploadLimits {
	return UploadLimits{PerMonth: 3, MaxFileSize: 1024, Expiry: 7 * 24 * time.Hour}
}

func (f *uploadFixture) stage(t *testing.T, name, content string) *Staged {
	t.Helper()
	staged, err := f.svc.Stage("image", name, "image/png", strings.NewReader(content))
	require.NoError(t, err)
	return staged
}

func (f *uploadFixture) stagedFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestUploadService_ProcessUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("records upload and counts quota", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())

		view, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "pngbytes"))
		require.NoError(t, err)

		assert.Equal(t, "https://img.example.com/abc.png", view.PublicURL)
		assert.Equal(t, "cat.png", view.OriginalName)
		assert.Equal(t, database.FileTypeImage, view.FileType)
		assert.Equal(t, database.MethodDashboard, view.UploadMethod)
		assert.Equal(t, 1, f.users.Get(f.user.ID).UploadsThisMonth)
		assert.Equal(t, 1, f.uploads.Count())
		assert.Zero(t, f.stagedFiles(t), "staged copy should be released")

		require.Equal(t, 1, f.up.CallCount())
		assert.Equal(t, "cat.png", f.up.Calls[0].Name)
		assert.Equal(t, "image/png", f.up.Calls[0].ContentType)

		stored, err := f.uploads.GetByID(ctx, view.ID)
		require.NoError(t, err)
		assert.Equal(t, uploadNow.Add(7*24*time.Hour), stored.ExpiresAt)
		assert.True(t, stored.IsPublic)
		assert.Empty(t, stored.LocalPath)
	})

	t.Run("api upload carries key id", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		user := f.users.Get(f.user.ID)
		key := &database.APIKey{ID: uuid.New(), UserID: user.ID, Name: "ci"}

		view, err := f.svc.UploadWithAPIKey(ctx, &KeyAuth{Key: key, User: &user}, f.stage(t, "doc.pdf", "pdf"))
		require.NoError(t, err)

		stored, err := f.uploads.GetByID(ctx, view.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.APIKeyID)
		assert.Equal(t, key.ID, *stored.APIKeyID)
		assert.Equal(t, database.MethodAPI, stored.UploadMethod)
		assert.Equal(t, database.FileTypeDocument, stored.FileType)
	})

	t.Run("quota exceeded skips upstream", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		u := f.users.Get(f.user.ID)
		u.UploadsThisMonth = 3
		require.NoError(t, f.users.Update(ctx, &u))

		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, KindLimit, KindOf(err))

		assert.Zero(t, f.up.CallCount())
		assert.Zero(t, f.uploads.Count())
		assert.Zero(t, f.stagedFiles(t))
		assert.Equal(t, 3, f.users.Get(f.user.ID).UploadsThisMonth)
	})

	t.Run("new month resets counter before check", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		u := f.users.Get(f.user.ID)
		u.UploadsThisMonth = 3
		u.MonthlyResetDate = time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC)
		require.NoError(t, f.users.Update(ctx, &u))

		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.NoError(t, err)

		after := f.users.Get(f.user.ID)
		assert.Equal(t, 1, after.UploadsThisMonth)
		assert.Equal(t, uploadNow, after.MonthlyResetDate)
	})

	t.Run("upstream failure leaves nothing behind", func(t *testing.T) {
		for _, tc := range []struct {
			name string
			err  error
			want error
		}{
			{"unavailable", fmt.Errorf("%w: dial tcp", upstream.ErrUnavailable), ErrUpstreamUnavailable},
			{"rejected", fmt.Errorf("%w: status 400", upstream.ErrRejected), ErrUpstreamRejected},
		} {
			t.Run(tc.name, func(t *testing.T) {
				f := newUploadFixture(t, defaultLimits())
				f.up.Err = tc.err

				_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
				require.ErrorIs(t, err, tc.want)
				assert.Equal(t, KindUpstream, KindOf(err))

				assert.Zero(t, f.uploads.Count())
				assert.Zero(t, f.stagedFiles(t))
				assert.Zero(t, f.users.Get(f.user.ID).UploadsThisMonth)
			})
		}
	})

	t.Run("failed quota increment removes the record", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		f.users.FailUpdate = servicetest.ErrStore

		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.ErrorIs(t, err, servicetest.ErrStore)
		assert.Zero(t, f.uploads.Count())
		assert.Zero(t, f.stagedFiles(t))
	})

	t.Run("failed record insert releases file", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		f.uploads.FailCreate = servicetest.ErrStore

		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.ErrorIs(t, err, servicetest.ErrStore)
		assert.Zero(t, f.stagedFiles(t))
		assert.Zero(t, f.users.Get(f.user.ID).UploadsThisMonth)
	})

	t.Run("nothing staged", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())

		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, nil)
		assert.ErrorIs(t, err, ErrNoFileProvided)
		assert.Zero(t, f.up.CallCount())
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())

		_, err := f.svc.UploadFromDashboard(ctx, uuid.New(), f.stage(t, "cat.png", "x"))
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Zero(t, f.stagedFiles(t))
	})
}

func TestUploadService_Stage(t *testing.T) {
	f := newUploadFixture(t, defaultLimits())

	t.Run("too large", func(t *testing.T) {
		_, err := f.svc.Stage("image", "big.png", "image/png", strings.NewReader(strings.Repeat("a", 1025)))
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Equal(t, KindTooLarge, KindOf(err))
		assert.Zero(t, f.stagedFiles(t))
	})

	t.Run("strips client directories", func(t *testing.T) {
		staged, err := f.svc.Stage("image", "../../etc/cat.png", "", strings.NewReader("x"))
		require.NoError(t, err)
		defer staged.Release()
		assert.Equal(t, "cat.png", staged.File.OriginalName)
	})
}

func TestUploadService_ContentTypeSniffing(t *testing.T) {
	f := newUploadFixture(t, defaultLimits())
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)

	staged, err := f.svc.Stage("image", "noext", "application/octet-stream", strings.NewReader(png))
	require.NoError(t, err)

	_, err = f.svc.UploadFromDashboard(context.Background(), f.user.ID, staged)
	require.NoError(t, err)
	require.Equal(t, 1, f.up.CallCount())
	assert.Equal(t, "image/png", f.up.Calls[0].ContentType)
}

func TestUploadService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("owner delete gives quota back", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		view, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.NoError(t, err)

		require.NoError(t, f.svc.Delete(ctx, f.user.ID, view.ID))
		assert.Zero(t, f.uploads.Count())
		assert.Zero(t, f.users.Get(f.user.ID).UploadsThisMonth)
	})

	t.Run("counter never goes negative", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		upload := &database.Upload{ID: uuid.New(), UserID: f.user.ID, FileName: "x.png", UploadedAt: uploadNow}
		require.NoError(t, f.uploads.Create(ctx, upload))

		require.NoError(t, f.svc.Delete(ctx, f.user.ID, upload.ID))
		assert.Zero(t, f.users.Get(f.user.ID).UploadsThisMonth)
	})

	t.Run("delete after month rollover resets first", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		u := f.users.Get(f.user.ID)
		u.UploadsThisMonth = 2
		u.MonthlyResetDate = time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
		require.NoError(t, f.users.Update(ctx, &u))
		upload := &database.Upload{ID: uuid.New(), UserID: f.user.ID, FileName: "x.png"}
		require.NoError(t, f.uploads.Create(ctx, upload))

		require.NoError(t, f.svc.Delete(ctx, f.user.ID, upload.ID))
		assert.Zero(t, f.users.Get(f.user.ID).UploadsThisMonth)
	})

	t.Run("other users upload looks missing", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		view, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, "cat.png", "x"))
		require.NoError(t, err)

		err = f.svc.Delete(ctx, uuid.New(), view.ID)
		assert.ErrorIs(t, err, ErrUploadNotFound)
		assert.Equal(t, 1, f.uploads.Count())
	})

	t.Run("unknown upload", func(t *testing.T) {
		f := newUploadFixture(t, defaultLimits())
		assert.ErrorIs(t, f.svc.Delete(ctx, f.user.ID, uuid.New()), ErrUploadNotFound)
	})
}

func TestUploadService_List(t *testing.T) {
	ctx := context.Background()
	f := newUploadFixture(t, UploadLimits{PerMonth: 100, MaxFileSize: 1024, Expiry: time.Hour})

	for i := 0; i < 12; i++ {
		f.svc.now = servicetest.FixedClock(uploadNow.Add(time.Duration(i) * time.Minute))
		_, err := f.svc.UploadFromDashboard(ctx, f.user.ID, f.stage(t, fmt.Sprintf("f%02d.png", i), "x"))
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, f.user.ID, PageRequest{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 12, Page: 2, Pages: 2, Limit: 10}, page.Pagination)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "f01.png", page.Items[0].OriginalName)
	assert.Equal(t, "f00.png", page.Items[1].OriginalName)
}

func TestStaged_ReleaseNil(t *testing.T) {
	var s *Staged
	s.Release()
	(&Staged{}).Release()
}

// --- Filename sanitization ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "photo.png", "photo.png"},
		{"strips directory", "/path/to/photo.png", "photo.png"},
		{"strips windows path", "C:\\Users\\test\\photo.png", "photo.png"},
		{"empty name", "", "upload"},
		{"dot name", ".", "upload"},
		{"replaces slashes", "a/b/c.jpg", "c.jpg"},
		{"trailing slash", "dir/", "dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}

	t.Run("long names keep extension", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("a", 300) + ".png")
		if len(got) != 255 || !strings.HasSuffix(got, ".png") {
			t.Errorf("got %d chars ending %q", len(got), got[len(got)-4:])
		}
	})

	t.Run("long multibyte names are cut on character boundaries", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("日", 300) + ".png")
		if !utf8.ValidString(got) {
			t.Fatalf("result is not valid UTF-8: %q", got)
		}
		if n := utf8.RuneCountInString(got); n != 255 {
			t.Errorf("got %d characters, want 255", n)
		}
		if !strings.HasSuffix(got, ".png") {
			t.Errorf("extension lost: %q", got)
		}
	})

	t.Run("short multibyte names are untouched", func(t *testing.T) {
		in := strings.Repeat("日", 100) + ".png"
		if got := sanitizeFilename(in); got != in {
			t.Errorf("sanitizeFilename(%q) = %q", in, got)
		}
	})

	t.Run("invalid UTF-8 is replaced", func(t *testing.T) {
		got := sanitizeFilename("bad\xff\xfename.png")
		if !utf8.ValidString(got) || got != "bad_name.png" {
			t.Errorf("got %q", got)
		}
	})
}
