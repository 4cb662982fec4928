package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/service/servicetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keysNow = time.Date(2025, time.April, 10, 8, 0, 0, 0, time.UTC)

type keysFixture struct {
	svc     *APIKeyService
	keys    *servicetest.Keys
	users   *servicetest.Users
	uploads *servicetest.Uploads
	user    database.User
}

func newKeysFixture(t *testing.T) *keysFixture {
	t.Helper()
	f := &keysFixture{keys: servicetest.NewKeys(), users: servicetest.NewUsers(), uploads: servicetest.NewUploads()}
	f.svc = NewAPIKeyService(f.keys, f.users, f.uploads, 5, 30*24*time.Hour, 100)
	f.svc.now = servicetest.FixedClock(keysNow)

	f.user = database.User{
		ID:               uuid.New(),
		Email:            "dev@example.com",
		IsVerified:       true,
		UploadsThisMonth: 25,
		MonthlyResetDate: keysNow,
	}
	require.NoError(t, f.users.Create(context.Background(), &f.user))
	return f
}

func TestAPIKeyService_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("new key", func(t *testing.T) {
		f := newKeysFixture(t)
		key, err := f.svc.Issue(ctx, f.user.ID, "  ci  ")
		require.NoError(t, err)

		assert.Equal(t, "ci", key.Name)
		assert.True(t, key.IsActive)
		assert.Len(t, key.Key, 64)
		assert.Equal(t, keysNow.Add(30*24*time.Hour), key.ExpiresAt)
	})

	t.Run("sixth key is refused", func(t *testing.T) {
		f := newKeysFixture(t)
		for i := 0; i < 5; i++ {
			_, err := f.svc.Issue(ctx, f.user.ID, "key")
			require.NoError(t, err)
		}

		_, err := f.svc.Issue(ctx, f.user.ID, "one too many")
		require.ErrorIs(t, err, ErrKeyLimitReached)
		assert.Equal(t, KindLimit, KindOf(err))
		assert.Contains(t, err.Error(), "(5)")

		n, _ := f.keys.CountByUser(ctx, f.user.ID)
		assert.Equal(t, 5, n)
	})

	t.Run("name rules", func(t *testing.T) {
		f := newKeysFixture(t)
		_, err := f.svc.Issue(ctx, f.user.ID, "   ")
		assert.Equal(t, KindValidation, KindOf(err))
		_, err = f.svc.Issue(ctx, f.user.ID, strings.Repeat("n", 101))
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func TestAPIKeyService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("active key records usage", func(t *testing.T) {
		f := newKeysFixture(t)
		key, err := f.svc.Issue(ctx, f.user.ID, "ci")
		require.NoError(t, err)

		ka, err := f.svc.Authenticate(ctx, key.Key)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, ka.User.ID)
		assert.Equal(t, int64(1), ka.Key.UsageCount)

		_, err = f.svc.Authenticate(ctx, key.Key)
		require.NoError(t, err)
		stored, _ := f.keys.Get(key.ID)
		assert.Equal(t, int64(2), stored.UsageCount)
		require.NotNil(t, stored.LastUsedAt)
		assert.Equal(t, keysNow, *stored.LastUsedAt)
	})

	t.Run("missing or unknown secret", func(t *testing.T) {
		f := newKeysFixture(t)
		_, err := f.svc.Authenticate(ctx, "")
		assert.ErrorIs(t, err, ErrAPIKeyRequired)
		_, err = f.svc.Authenticate(ctx, "nope")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("inactive key", func(t *testing.T) {
		f := newKeysFixture(t)
		key, err := f.svc.Issue(ctx, f.user.ID, "ci")
		require.NoError(t, err)
		_, err = f.svc.Toggle(ctx, f.user.ID, key.ID)
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, key.Key)
		assert.ErrorIs(t, err, ErrInvalidKey)
		stored, _ := f.keys.Get(key.ID)
		assert.Zero(t, stored.UsageCount)
	})

	t.Run("expired key", func(t *testing.T) {
		f := newKeysFixture(t)
		key, err := f.svc.Issue(ctx, f.user.ID, "ci")
		require.NoError(t, err)

		f.svc.now = servicetest.FixedClock(key.ExpiresAt)
		_, err = f.svc.Authenticate(ctx, key.Key)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestAPIKeyService_ToggleAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newKeysFixture(t)
	a, err := f.svc.Issue(ctx, f.user.ID, "a")
	require.NoError(t, err)
	b, err := f.svc.Issue(ctx, f.user.ID, "b")
	require.NoError(t, err)

	toggled, err := f.svc.Toggle(ctx, f.user.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	storedB, _ := f.keys.Get(b.ID)
	assert.True(t, storedB.IsActive, "toggling one key leaves the others alone")

	views, err := f.svc.List(ctx, f.user.ID)
	require.NoError(t, err)
	for _, v := range views {
		if v.ID == a.ID {
			assert.Equal(t, maskedKey, v.Key)
		} else {
			assert.Equal(t, b.Key, v.Key)
		}
	}

	toggled, err = f.svc.Toggle(ctx, f.user.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	stranger := uuid.New()
	_, err = f.svc.Toggle(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, f.svc.Revoke(ctx, stranger, a.ID), ErrKeyNotFound)

	require.NoError(t, f.svc.Revoke(ctx, f.user.ID, a.ID))
	_, ok := f.keys.Get(a.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, f.svc.Revoke(ctx, f.user.ID, a.ID), ErrKeyNotFound)
}

func TestAPIKeyService_StatsAndUsage(t *testing.T) {
	ctx := context.Background()
	f := newKeysFixture(t)
	a, err := f.svc.Issue(ctx, f.user.ID, "a")
	require.NoError(t, err)
	b, err := f.svc.Issue(ctx, f.user.ID, "b")
	require.NoError(t, err)
	_, err = f.svc.Toggle(ctx, f.user.ID, b.ID)
	require.NoError(t, err)

	ka, err := f.svc.Authenticate(ctx, a.Key)
	require.NoError(t, err)
	require.NoError(t, f.uploads.Create(ctx, &database.Upload{ID: uuid.New(), UserID: f.user.ID, APIKeyID: &a.ID, UploadMethod: database.MethodAPI}))
	require.NoError(t, f.uploads.Create(ctx, &database.Upload{ID: uuid.New(), UserID: f.user.ID, UploadMethod: database.MethodDashboard}))

	stats, err := f.svc.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, KeyStats{
		TotalAPIKeys:     2,
		ActiveAPIKeys:    1,
		TotalAPIUploads:  1,
		UploadsThisMonth: 25,
		UploadLimit:      100,
		UsagePercentage:  25,
		APIUsageCount:    1,
	}, *stats)

	usage, err := f.svc.Usage(ctx, ka)
	require.NoError(t, err)
	assert.Equal(t, "a", usage.KeyName)
	assert.Equal(t, int64(1), usage.UsageCount)
	assert.Equal(t, int64(1), usage.TotalUploads)
	assert.Equal(t, 25, usage.UsagePercentage)

	// Next month the counter reads as reset without being written back.
	f.svc.now = servicetest.FixedClock(keysNow.AddDate(0, 1, 0))
	stats, err = f.svc.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.UploadsThisMonth)
	assert.Equal(t, 25, f.users.Get(f.user.ID).UploadsThisMonth)
}
