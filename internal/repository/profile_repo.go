package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reflow_oven/internal/models"
)

type ProfileSQLite struct {
	db *sql.DB
}

func NewProfileSQLite(db *sql.DB) *ProfileSQLite {
	return &ProfileSQLite{db: db}
}

// Ensure implementation of ProfileRepo interface at compile time.
var _ ProfileRepo = (*ProfileSQLite)(nil)

// Each write is a single statement, so SQLite applies it atomically: a
// crash leaves either the old record or the new one.
const (
	insertProfileSQL = `
		INSERT INTO profiles (id, name, waypoints, position, created_at, updated_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM profiles), ?, ?)
	`
	updateProfileSQL = `UPDATE profiles SET name = ?, waypoints = ?, updated_at = ? WHERE id = ?`
	deleteProfileSQL = `DELETE FROM profiles WHERE id = ?`
	selectProfileSQL = `SELECT id, name, waypoints, created_at, updated_at FROM profiles ORDER BY position ASC`
)

// marshalWaypoints stores waypoints as [[time, temp, power], ...].
func marshalWaypoints(w []models.Waypoint) (string, error) {
	if w == nil {
		w = []models.Waypoint{}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalWaypoints(s string) ([]models.Waypoint, error) {
	var w []models.Waypoint
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, err
	}
	return w, nil
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Create inserts a profile at the end of the list.
func (r *ProfileSQLite) Create(ctx context.Context, p models.Profile) error {
	wp, err := marshalWaypoints(p.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints of %q: %w", p.ID, err)
	}
	created := utcOrNow(p.CreatedAt)
	updated := utcOrNow(p.UpdatedAt)
	if _, err := r.db.ExecContext(ctx, insertProfileSQL, p.ID, p.Name, wp, created, updated); err != nil {
		return fmt.Errorf("insert profile %q: %w", p.ID, err)
	}
	return nil
}

// Update rewrites name and waypoints. Returns ErrNotFound if no row matched.
func (r *ProfileSQLite) Update(ctx context.Context, p models.Profile) error {
	wp, err := marshalWaypoints(p.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints of %q: %w", p.ID, err)
	}
	res, err := r.db.ExecContext(ctx, updateProfileSQL, p.Name, wp, utcOrNow(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update profile %q: %w", p.ID, err)
	}
	return expectOneRow(res, p.ID)
}

// Delete removes a profile. Returns ErrNotFound if no row matched.
func (r *ProfileSQLite) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteProfileSQL, id)
	if err != nil {
		return fmt.Errorf("delete profile %q: %w", id, err)
	}
	return expectOneRow(res, id)
}

// List returns all profiles in insertion order.
func (r *ProfileSQLite) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, selectProfileSQL)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Profile, 0, 8)
	for rows.Next() {
		var (
			p  models.Profile
			wp string
		)
		if err := rows.Scan(&p.ID, &p.Name, &wp, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if p.Waypoints, err = unmarshalWaypoints(wp); err != nil {
			return nil, fmt.Errorf("decode waypoints of %q: %w", p.ID, err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: profile %q", ErrNotFound, id)
	}
	return nil
}
