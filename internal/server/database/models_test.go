package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_ApplyMonthlyReset(t *testing.T) {
	march := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		resetDate time.Time
		now       time.Time
		wantReset bool
		wantCount int
	}{
		{"same month", march, time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC), false, 7},
		{"next month", march, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), true, 0},
		{"same month next year", march, time.Date(2027, time.March, 3, 10, 0, 0, 0, time.UTC), true, 0},
		{"earlier year", march, time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{UploadsThisMonth: 7, MonthlyResetDate: tt.resetDate}

			assert.Equal(t, tt.wantReset, u.ApplyMonthlyReset(tt.now))
			assert.Equal(t, tt.wantCount, u.UploadsThisMonth)
			if tt.wantReset {
				assert.Equal(t, tt.now, u.MonthlyResetDate)
			} else {
				assert.Equal(t, tt.resetDate, u.MonthlyResetDate)
			}
		})
	}
}

func TestUser_CanUpload(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

	u := &User{UploadsThisMonth: 9, MonthlyResetDate: now}
	assert.True(t, u.CanUpload(10, now))

	u.UploadsThisMonth = 10
	assert.False(t, u.CanUpload(10, now), "at the limit")

	next := now.AddDate(0, 1, 0)
	assert.True(t, u.CanUpload(10, next), "rollover frees the quota")
	assert.Equal(t, 0, u.UploadsThisMonth)
}

func TestAPIKey_Usable(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		active  bool
		expires time.Time
		want    bool
	}{
		{"active and unexpired", true, now.Add(time.Hour), true},
		{"inactive", false, now.Add(time.Hour), false},
		{"expired", true, now.Add(-time.Second), false},
		{"expires exactly now", true, now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &APIKey{IsActive: tt.active, ExpiresAt: tt.expires}
			assert.Equal(t, tt.want, k.Usable(now))
		})
	}
}

func TestUpload_Derived(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	u := &Upload{FileName: "file-1715342400000-abc.JPEG", ExpiresAt: now}

	assert.Equal(t, ".jpeg", u.Extension())
	assert.False(t, u.IsExpired(now))
	assert.True(t, u.IsExpired(now.Add(time.Nanosecond)))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
