package database

import (
	"context"
	"fmt"
	"time"
)

// StatsRepository runs the aggregate queries behind the admin dashboard.
type StatsRepository struct {
	db *DB
}

func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// countedTables maps each dashboard collection to its creation timestamp column.
var countedTables = map[string]string{
	"users":    "created_at",
	"uploads":  "uploaded_at",
	"api_keys": "created_at",
	"contacts": "created_at",
}

// WindowCounts counts rows of table in total and created since the start of
// today, 7 days ago and 30 days ago.
func (r *StatsRepository) WindowCounts(ctx context.Context, table string, now time.Time) (*WindowCounts, error) {
	column, ok := countedTables[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	week := today.AddDate(0, 0, -7)
	month := today.AddDate(0, 0, -30)

	c := &WindowCounts{}
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE %[1]s >= $1),
			COUNT(*) FILTER (WHERE %[1]s >= $2),
			COUNT(*) FILTER (WHERE %[1]s >= $3)
		FROM %[2]s
	`, column, table)
	if err := r.db.Pool.QueryRow(ctx, query, today, week, month).Scan(&c.Total, &c.Today, &c.Week, &c.Month); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return c, nil
}

// StorageUsage returns the summed size of all uploads in bytes.
func (r *StatsRepository) StorageUsage(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(file_size), 0) FROM uploads").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum storage usage: %w", err)
	}
	return total, nil
}

func (r *StatsRepository) UsersByRole(ctx context.Context) ([]GroupCount, error) {
	return r.groupCounts(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role")
}

func (r *StatsRepository) UploadsByType(ctx context.Context) ([]GroupCount, error) {
	return r.groupCounts(ctx, "SELECT file_type, COUNT(*) FROM uploads GROUP BY file_type ORDER BY file_type")
}

// DailyUploads returns per-day upload counts since the given time, oldest first.
func (r *StatsRepository) DailyUploads(ctx context.Context, since time.Time) ([]GroupCount, error) {
	return r.groupCounts(ctx, `
		SELECT TO_CHAR(uploaded_at, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM uploads
		WHERE uploaded_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
}

// RecentUsers returns the n newest accounts.
func (r *StatsRepository) RecentUsers(ctx context.Context, n int) ([]*User, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *StatsRepository) groupCounts(ctx context.Context, query string, args ...any) ([]GroupCount, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run aggregate: %w", err)
	}
	defer rows.Close()

	out := []GroupCount{}
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
