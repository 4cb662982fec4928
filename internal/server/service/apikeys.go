package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudprime/internal/server/auth"
	"cloudprime/internal/server/database"

	"github.com/google/uuid"
)

// KeyAuth is a request authenticated by API key.
type KeyAuth struct {
	Key  *database.APIKey
	User *database.User
}

// KeyStats summarizes a user's API usage for the dashboard.
type KeyStats struct {
	TotalAPIKeys     int   `json:"totalApiKeys"`
	ActiveAPIKeys    int   `json:"activeApiKeys"`
	TotalAPIUploads  int64 `json:"totalApiUploads"`
	UploadsThisMonth int   `json:"uploadsThisMonth"`
	UploadLimit      int   `json:"uploadLimit"`
	UsagePercentage  int   `json:"usagePercentage"`
	APIUsageCount    int64 `json:"apiUsageCount"`
}

// KeyUsage summarizes one key for the client holding it.
type KeyUsage struct {
	KeyName          string     `json:"keyName"`
	IsActive         bool       `json:"isActive"`
	LastUsed         *time.Time `json:"lastUsed"`
	UsageCount       int64      `json:"usageCount"`
	TotalUploads     int64      `json:"totalUploads"`
	UploadsThisMonth int        `json:"uploadsThisMonth"`
	UploadLimit      int        `json:"uploadLimit"`
	UsagePercentage  int        `json:"usagePercentage"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
}

// APIKeyService is the registry of per-user API keys.
type APIKeyService struct {
	keys        APIKeyStore
	users       UserStore
	uploads     UploadStore
	maxKeys     int
	lifetime    time.Duration
	uploadLimit int
	now         func() time.Time
}

// NewAPIKeyService creates a new API key registry.
func NewAPIKeyService(keys APIKeyStore, users UserStore, uploads UploadStore, maxKeys int, lifetime time.Duration, uploadLimit int) *APIKeyService {
	return &APIKeyService{
		keys:        keys,
		users:       users,
		uploads:     uploads,
		maxKeys:     maxKeys,
		lifetime:    lifetime,
		uploadLimit: uploadLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a named key for userID unless the user already holds maxKeys.
func (s *APIKeyService) Issue(ctx context.Context, userID uuid.UUID, name string) (*database.APIKey, error) {
	name, err := requireText("name", name, maxKeyNameLength)
	if err != nil {
		return nil, err
	}

	count, err := s.keys.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= s.maxKeys {
		return nil, fmt.Errorf("%w (%d)", ErrKeyLimitReached, s.maxKeys)
	}

	now := s.now()
	key := &database.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}

	// A collision of 256-bit secrets is not expected; retry a few times anyway
	// since the column is unique.
	for attempt := 0; ; attempt++ {
		if key.Key, err = auth.GenerateAPIKeySecret(); err != nil {
			return nil, err
		}
		err = s.keys.Create(ctx, key)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrDuplicate) || attempt == 2 {
			return nil, err
		}
	}

	slog.Info("api key issued", "user_id", userID, "key_id", key.ID, "name", key.Name)
	return key, nil
}

// Authenticate resolves a key secret to its owner. Only active, unexpired
// keys pass; each success bumps the key's usage counter.
func (s *APIKeyService) Authenticate(ctx context.Context, secret string) (*KeyAuth, error) {
	if secret == "" {
		return nil, ErrAPIKeyRequired
	}

	key, err := s.keys.GetByKey(ctx, secret)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	now := s.now()
	if !key.Usable(now) {
		return nil, ErrInvalidKey
	}

	count, err := s.keys.RecordUsage(ctx, key.ID, now)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	key.UsageCount = count
	key.LastUsedAt = &now

	user, err := s.users.GetByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	return &KeyAuth{Key: key, User: user}, nil
}

// List returns the user's keys newest first.
func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]KeyView, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mapSlice(keys, NewKeyView), nil
}

// Toggle flips the active flag of one of the caller's keys.
func (s *APIKeyService) Toggle(ctx context.Context, userID, keyID uuid.UUID) (*database.APIKey, error) {
	key, err := s.owned(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	key.IsActive = !key.IsActive
	if err := s.keys.SetActive(ctx, key.ID, key.IsActive); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	slog.Info("api key toggled", "user_id", userID, "key_id", key.ID, "active", key.IsActive)
	return key, nil
}

// Revoke deletes one of the caller's keys.
func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := s.owned(ctx, userID, keyID)
	if err != nil {
		return err
	}
	if err := s.keys.Delete(ctx, key.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}

	slog.Info("api key revoked", "user_id", userID, "key_id", key.ID)
	return nil
}

// Stats summarizes the user's keys and API uploads.
func (s *APIKeyService) Stats(ctx context.Context, userID uuid.UUID) (*KeyStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	apiUploads, err := s.uploads.CountByUser(ctx, userID, database.MethodAPI)
	if err != nil {
		return nil, err
	}

	used := s.usedThisMonth(user)
	stats := &KeyStats{
		TotalAPIKeys:     len(keys),
		TotalAPIUploads:  apiUploads,
		UploadsThisMonth: used,
		UploadLimit:      s.uploadLimit,
		UsagePercentage:  usagePercentage(used, s.uploadLimit),
	}
	for _, k := range keys {
		if k.IsActive {
			stats.ActiveAPIKeys++
		}
		stats.APIUsageCount += k.UsageCount
	}
	return stats, nil
}

// Usage summarizes the key a request was authenticated with.
func (s *APIKeyService) Usage(ctx context.Context, ka *KeyAuth) (*KeyUsage, error) {
	total, err := s.uploads.CountByUser(ctx, ka.User.ID, database.MethodAPI)
	if err != nil {
		return nil, err
	}

	used := s.usedThisMonth(ka.User)
	return &KeyUsage{
		KeyName:          ka.Key.Name,
		IsActive:         ka.Key.IsActive,
		LastUsed:         ka.Key.LastUsedAt,
		UsageCount:       ka.Key.UsageCount,
		TotalUploads:     total,
		UploadsThisMonth: used,
		UploadLimit:      s.uploadLimit,
		UsagePercentage:  usagePercentage(used, s.uploadLimit),
		CreatedAt:        ka.Key.CreatedAt,
		ExpiresAt:        ka.Key.ExpiresAt,
	}, nil
}

// usedThisMonth is the quota counter as it would read after a lazy reset,
// without persisting anything.
func (s *APIKeyService) usedThisMonth(u *database.User) int {
	probe := *u
	probe.ApplyMonthlyReset(s.now())
	return probe.UploadsThisMonth
}

func (s *APIKeyService) owned(ctx context.Context, userID, keyID uuid.UUID) (*database.APIKey, error) {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if key.UserID != userID {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
