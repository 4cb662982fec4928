// Package servicetest provides in-memory implementations of the service
// store contracts and collaborators for tests.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/upstream"

	"github.com/google/uuid"
)

// Users is an in-memory UserStore. Emails are unique ignoring case.
type Users struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]database.User
	FailUpdate error
}

func NewUsers() *Users {
	return &Users{byID: make(map[uuid.UUID]database.User)}
}

func (m *Users) Create(_ context.Context, u *database.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return database.ErrDuplicate
		}
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *Users) GetByID(_ context.Context, id uuid.UUID) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (m *Users) GetByEmail(_ context.Context, email string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *Users) GetByResetTokenHash(_ context.Context, hash string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *Users) Update(_ context.Context, u *database.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.byID[u.ID]; !ok {
		return database.ErrNotFound
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *Users) List(_ context.Context, page database.Page) ([]*database.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*database.User
	for _, u := range m.byID {
		u := u
		all = append(all, &u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, page), int64(len(all)), nil
}

func (m *Users) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *Users) Get(id uuid.UUID) database.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// Keys is an in-memory APIKeyStore.
type Keys struct {
	mu   sync.Mutex
	byID map[uuid.UUID]database.APIKey
}

func NewKeys() *Keys {
	return &Keys{byID: make(map[uuid.UUID]database.APIKey)}
}

func (m *Keys) Create(_ context.Context, k *database.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Key == k.Key {
			return database.ErrDuplicate
		}
	}
	m.byID[k.ID] = *k
	return nil
}

func (m *Keys) GetByID(_ context.Context, id uuid.UUID) (*database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &k, nil
}

func (m *Keys) GetByKey(_ context.Context, secret string) (*database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.byID {
		if k.Key == secret {
			return &k, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *Keys) ListByUser(_ context.Context, userID uuid.UUID) ([]*database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.APIKey
	for _, k := range m.byID {
		if k.UserID == userID {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Keys) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	keys, _ := m.ListByUser(ctx, userID)
	return len(keys), nil
}

func (m *Keys) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	k.IsActive = active
	m.byID[id] = k
	return nil
}

func (m *Keys) RecordUsage(_ context.Context, id uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[id]
	if !ok {
		return 0, database.ErrNotFound
	}
	k.UsageCount++
	k.LastUsedAt = &at
	m.byID[id] = k
	return k.UsageCount, nil
}

func (m *Keys) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *Keys) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, k := range m.byID {
		if k.UserID == userID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *Keys) ListAll(_ context.Context, page database.Page) ([]*database.APIKeyWithOwner, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*database.APIKeyWithOwner
	for _, k := range m.byID {
		all = append(all, &database.APIKeyWithOwner{APIKey: k})
	}
	return window(all, page), int64(len(all)), nil
}

func (m *Keys) Get(id uuid.UUID) (database.APIKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[id]
	return k, ok
}

// Uploads is an in-memory UploadStore. Listings are newest first.
type Uploads struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]database.Upload
	FailCreate error
}

func NewUploads() *Uploads {
	return &Uploads{byID: make(map[uuid.UUID]database.Upload)}
}

func (m *Uploads) Create(_ context.Context, u *database.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *Uploads) GetByID(_ context.Context, id uuid.UUID) (*database.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (m *Uploads) sorted(keep func(database.Upload) bool) []*database.Upload {
	var out []*database.Upload
	for _, u := range m.byID {
		if keep(u) {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

func (m *Uploads) ListByUser(_ context.Context, userID uuid.UUID, page database.Page) ([]*database.Upload, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(u database.Upload) bool { return u.UserID == userID })
	return window(all, page), int64(len(all)), nil
}

func (m *Uploads) CountByUser(_ context.Context, userID uuid.UUID, method string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(u database.Upload) bool {
		return u.UserID == userID && (method == "" || u.UploadMethod == method)
	})
	return int64(len(all)), nil
}

func (m *Uploads) ListAll(_ context.Context, page database.Page) ([]*database.UploadWithOwner, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(database.Upload) bool { return true })
	out := make([]*database.UploadWithOwner, 0, len(all))
	for _, u := range all {
		out = append(out, &database.UploadWithOwner{Upload: *u})
	}
	return window(out, page), int64(len(all)), nil
}

func (m *Uploads) Recent(ctx context.Context, n int) ([]*database.UploadWithOwner, error) {
	out, _, err := m.ListAll(ctx, database.Page{Limit: n})
	return out, err
}

func (m *Uploads) LocalPathsByUser(_ context.Context, userID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for _, u := range m.byID {
		if u.UserID == userID && u.LocalPath != "" {
			paths = append(paths, u.LocalPath)
		}
	}
	return paths, nil
}

func (m *Uploads) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *Uploads) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, u := range m.byID {
		if u.UserID == userID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *Uploads) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Contacts is an in-memory ContactStore.
type Contacts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]database.Contact
}

func NewContacts() *Contacts {
	return &Contacts{byID: make(map[uuid.UUID]database.Contact)}
}

func (m *Contacts) Create(_ context.Context, c *database.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = *c
	return nil
}

func (m *Contacts) GetByID(_ context.Context, id uuid.UUID) (*database.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &c, nil
}

func (m *Contacts) UpdateStatus(_ context.Context, c *database.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return database.ErrNotFound
	}
	m.byID[c.ID] = *c
	return nil
}

func (m *Contacts) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *Contacts) List(_ context.Context, page database.Page) ([]*database.Contact, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*database.Contact
	for _, c := range m.byID {
		c := c
		all = append(all, &c)
	}
	return window(all, page), int64(len(all)), nil
}

// Logs is an in-memory AdminLogStore.
type Logs struct {
	mu         sync.Mutex
	entries    []database.AdminLog
	FailCreate error
}

func (m *Logs) Create(_ context.Context, l *database.AdminLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.entries = append(m.entries, *l)
	return nil
}

func (m *Logs) List(_ context.Context, page database.Page) ([]*database.AdminLogWithAdmin, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*database.AdminLogWithAdmin
	for i := len(m.entries) - 1; i >= 0; i-- {
		all = append(all, &database.AdminLogWithAdmin{AdminLog: m.entries[i]})
	}
	return window(all, page), int64(len(all)), nil
}

func (m *Logs) All() []database.AdminLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.AdminLog(nil), m.entries...)
}

// Stats serves fixed dashboard aggregates; user totals come from Users.
type Stats struct {
	users *Users
	Err   error
}

func NewStats(users *Users) *Stats {
	return &Stats{users: users}
}

func (m *Stats) WindowCounts(_ context.Context, table string, _ time.Time) (*database.WindowCounts, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if table == "users" {
		m.users.mu.Lock()
		n := int64(len(m.users.byID))
		m.users.mu.Unlock()
		return &database.WindowCounts{Total: n, Today: n, Week: n, Month: n}, nil
	}
	return &database.WindowCounts{}, nil
}

func (m *Stats) StorageUsage(context.Context) (int64, error) { return 1048576, nil }

func (m *Stats) UsersByRole(context.Context) ([]database.GroupCount, error) {
	return []database.GroupCount{{Key: database.RoleUser, Count: 1}}, nil
}

func (m *Stats) UploadsByType(context.Context) ([]database.GroupCount, error) {
	return []database.GroupCount{}, nil
}

func (m *Stats) DailyUploads(context.Context, time.Time) ([]database.GroupCount, error) {
	return []database.GroupCount{}, nil
}

func (m *Stats) RecentUsers(ctx context.Context, n int) ([]*database.User, error) {
	users, _, err := m.users.List(ctx, database.Page{Limit: n})
	return users, err
}

func window[T any](all []T, page database.Page) []T {
	if page.Offset >= len(all) {
		return nil
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return all[page.Offset:end]
}

// SentMail is one recorded notification. Code holds the OTP or reset token.
type SentMail struct {
	Kind, To, Code string
}

// Notifier records every mail instead of sending it.
type Notifier struct {
	mu   sync.Mutex
	Sent []SentMail
	Fail error
}

func (f *Notifier) SendOTP(_ context.Context, to, _, code string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, SentMail{"otp", to, code})
	return f.Fail
}

func (f *Notifier) SendPasswordReset(_ context.Context, to, _, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, SentMail{"reset", to, token})
	return f.Fail
}

func (f *Notifier) Last() SentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return SentMail{}
	}
	return f.Sent[len(f.Sent)-1]
}

// Upstream records proxied files and answers with URL or Err.
type Upstream struct {
	mu    sync.Mutex
	Calls []upstream.File
	URL   string
	Err   error
}

func (f *Upstream) Upload(_ context.Context, file upstream.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, file)
	if f.Err != nil {
		return "", f.Err
	}
	return f.URL, nil
}

func (f *Upstream) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// ErrStore is the failure injected through FailCreate and FailUpdate.
var ErrStore = errors.New("store unavailable")

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
