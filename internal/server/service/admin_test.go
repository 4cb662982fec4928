package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/service/servicetest"
	"cloudprime/internal/server/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminNow = time.Date(2025, time.May, 20, 15, 0, 0, 0, time.UTC)

type adminFixture struct {
	svc      *AdminService
	users    *servicetest.Users
	keys     *servicetest.Keys
	uploads  *servicetest.Uploads
	contacts *servicetest.Contacts
	logs     *servicetest.Logs
	admin    database.User
	member   database.User
	actor    Actor
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctx := context.Background()
	f := &adminFixture{
		users:    servicetest.NewUsers(),
		keys:     servicetest.NewKeys(),
		uploads:  servicetest.NewUploads(),
		contacts: servicetest.NewContacts(),
		logs:     &servicetest.Logs{},
	}
	store := storage.NewFileSystemStore(t.TempDir())
	files := NewUploadService(f.users, f.uploads, store, &servicetest.Upstream{}, defaultLimits())
	files.now = servicetest.FixedClock(adminNow)
	f.svc = NewAdminService(f.users, f.keys, f.uploads, f.contacts, f.logs, servicetest.NewStats(f.users), files)
	f.svc.now = servicetest.FixedClock(adminNow)

	f.admin = database.User{ID: uuid.New(), Name: "Root", Email: "root@example.com", Role: database.RoleAdmin, IsVerified: true, MonthlyResetDate: adminNow, CreatedAt: adminNow}
	f.member = database.User{ID: uuid.New(), Name: "Mia", Email: "mia@example.com", Role: database.RoleUser, IsVerified: true, MonthlyResetDate: adminNow, CreatedAt: adminNow.Add(-time.Hour)}
	require.NoError(t, f.users.Create(ctx, &f.admin))
	require.NoError(t, f.users.Create(ctx, &f.member))
	f.actor = Actor{AdminID: f.admin.ID, IPAddress: "10.0.0.1", UserAgent: "test"}
	return f
}

func details(t *testing.T, l database.AdminLog) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(l.Details, &m))
	return m
}

func TestAdminService_UpdateRole(t *testing.T) {
	ctx := context.Background()

	t.Run("promote and audit", func(t *testing.T) {
		f := newAdminFixture(t)
		user, err := f.svc.UpdateRole(ctx, f.actor, f.member.ID, database.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, database.RoleAdmin, user.Role)
		assert.Equal(t, database.RoleAdmin, f.users.Get(f.member.ID).Role)

		logs := f.logs.All()
		require.Len(t, logs, 1)
		assert.Equal(t, ActionUpdateRole, logs[0].Action)
		assert.Equal(t, ResourceUser, logs[0].Resource)
		assert.Equal(t, f.member.ID, *logs[0].ResourceID)
		assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
		assert.Equal(t, map[string]any{"oldRole": "user", "newRole": "admin"}, details(t, logs[0]))
	})

	t.Run("self demotion", func(t *testing.T) {
		f := newAdminFixture(t)
		_, err := f.svc.UpdateRole(ctx, f.actor, f.admin.ID, database.RoleUser)
		require.ErrorIs(t, err, ErrSelfDemotion)
		assert.Equal(t, database.RoleAdmin, f.users.Get(f.admin.ID).Role)
		assert.Empty(t, f.logs.All())
	})

	t.Run("invalid role", func(t *testing.T) {
		f := newAdminFixture(t)
		_, err := f.svc.UpdateRole(ctx, f.actor, f.member.ID, "superuser")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("audit failure keeps mutation", func(t *testing.T) {
		f := newAdminFixture(t)
		f.logs.FailCreate = servicetest.ErrStore

		_, err := f.svc.UpdateRole(ctx, f.actor, f.member.ID, database.RoleAdmin)
		require.ErrorIs(t, err, ErrAuditWrite)
		assert.Equal(t, KindInternal, KindOf(err))
		assert.Equal(t, database.RoleAdmin, f.users.Get(f.member.ID).Role)
	})
}

func TestAdminService_DeleteUser(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to uploads and keys", func(t *testing.T) {
		f := newAdminFixture(t)
		require.NoError(t, f.keys.Create(ctx, &database.APIKey{ID: uuid.New(), UserID: f.member.ID, Key: "k"}))
		require.NoError(t, f.uploads.Create(ctx, &database.Upload{ID: uuid.New(), UserID: f.member.ID}))
		require.NoError(t, f.uploads.Create(ctx, &database.Upload{ID: uuid.New(), UserID: f.admin.ID}))

		require.NoError(t, f.svc.DeleteUser(ctx, f.actor, f.member.ID))

		_, err := f.users.GetByID(ctx, f.member.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Equal(t, 1, f.uploads.Count())
		n, _ := f.keys.CountByUser(ctx, f.member.ID)
		assert.Zero(t, n)

		logs := f.logs.All()
		require.Len(t, logs, 1)
		assert.Equal(t, ActionDelete, logs[0].Action)
		assert.Equal(t, map[string]any{"email": "mia@example.com", "uploads": float64(1), "apiKeys": float64(1)}, details(t, logs[0]))
	})

	t.Run("self deletion", func(t *testing.T) {
		f := newAdminFixture(t)
		assert.ErrorIs(t, f.svc.DeleteUser(ctx, f.actor, f.admin.ID), ErrSelfDeletion)
		_, err := f.users.GetByID(ctx, f.admin.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newAdminFixture(t)
		assert.ErrorIs(t, f.svc.DeleteUser(ctx, f.actor, uuid.New()), ErrUserNotFound)
	})
}

func TestAdminService_DeleteUpload(t *testing.T) {
	ctx := context.Background()
	f := newAdminFixture(t)
	u := f.users.Get(f.member.ID)
	u.UploadsThisMonth = 2
	require.NoError(t, f.users.Update(ctx, &u))
	upload := &database.Upload{ID: uuid.New(), UserID: f.member.ID, FileName: "file-1.png"}
	require.NoError(t, f.uploads.Create(ctx, upload))

	require.NoError(t, f.svc.DeleteUpload(ctx, f.actor, upload.ID))
	assert.Zero(t, f.uploads.Count())
	assert.Equal(t, 1, f.users.Get(f.member.ID).UploadsThisMonth)

	logs := f.logs.All()
	require.Len(t, logs, 1)
	assert.Equal(t, ResourceUpload, logs[0].Resource)
	assert.Equal(t, map[string]any{"fileName": "file-1.png", "user": "mia@example.com"}, details(t, logs[0]))

	assert.ErrorIs(t, f.svc.DeleteUpload(ctx, f.actor, upload.ID), ErrUploadNotFound)
}

func TestAdminService_UpdateContactStatus(t *testing.T) {
	ctx := context.Background()
	f := newAdminFixture(t)
	c := &database.Contact{ID: uuid.New(), Name: "Visitor", Status: database.ContactNew}
	require.NoError(t, f.contacts.Create(ctx, c))

	read, err := f.svc.UpdateContactStatus(ctx, f.actor, c.ID, database.ContactRead)
	require.NoError(t, err)
	assert.Equal(t, database.ContactRead, read.Status)
	assert.Nil(t, read.RepliedAt)
	assert.Nil(t, read.RepliedBy)

	replied, err := f.svc.UpdateContactStatus(ctx, f.actor, c.ID, database.ContactReplied)
	require.NoError(t, err)
	require.NotNil(t, replied.RepliedAt)
	assert.Equal(t, adminNow, *replied.RepliedAt)
	assert.Equal(t, f.admin.ID, *replied.RepliedBy)

	logs := f.logs.All()
	require.Len(t, logs, 2)
	assert.Equal(t, map[string]any{"oldStatus": "read", "newStatus": "replied"}, details(t, logs[1]))

	_, err = f.svc.UpdateContactStatus(ctx, f.actor, c.ID, "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.svc.UpdateContactStatus(ctx, f.actor, uuid.New(), database.ContactClosed)
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestAdminService_StatsAndListings(t *testing.T) {
	ctx := context.Background()
	f := newAdminFixture(t)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Stats.Users.Total)
	assert.Equal(t, "1.00 MB", stats.Stats.StorageUsageFormatted)
	assert.Len(t, stats.Recent.Users, 2)
	assert.NotNil(t, stats.Stats.Contacts)

	users, err := f.svc.ListUsers(ctx, PageRequest{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 2, Page: 1, Pages: 2, Limit: 1}, users.Pagination)
	assert.Equal(t, f.admin.ID, users.Items[0].ID)

	_, err = f.svc.UpdateRole(ctx, f.actor, f.member.ID, database.RoleAdmin)
	require.NoError(t, err)
	logs, err := f.svc.ListLogs(ctx, PageRequest{})
	require.NoError(t, err)
	require.Len(t, logs.Items, 1)
	assert.JSONEq(t, `{"oldRole":"user","newRole":"admin"}`, string(logs.Items[0].Details))
}

func TestAdminService_StatsFailure(t *testing.T) {
	f := newAdminFixture(t)
	stats := servicetest.NewStats(f.users)
	stats.Err = servicetest.ErrStore
	f.svc.stats = stats

	_, err := f.svc.Stats(context.Background())
	assert.ErrorIs(t, err, servicetest.ErrStore)
}
