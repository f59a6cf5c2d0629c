package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"
)

// NormalizeEmail is the key guests are looked up by.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type guestExecer interface {
	queryer
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// findOrCreateGuest returns the guest with g's email in g's tenant, creating it on first use.
// An existing guest is returned untouched.
func findOrCreateGuest(ctx context.Context, q guestExecer, g models.Guest, now time.Time) (*models.Guest, error) {
	email := NormalizeEmail(g.Email)
	if email == "" {
		return nil, fmt.Errorf("guest email is required")
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO guests (tenant_id, email, first_name, last_name, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, email) DO NOTHING`,
		g.TenantID, email, strings.TrimSpace(g.FirstName), strings.TrimSpace(g.LastName),
		strings.TrimSpace(g.Phone), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert guest: %w", err)
	}

	return scanGuest(q.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, first_name, last_name, phone, created_at
		FROM guests WHERE tenant_id = ? AND email = ?`, g.TenantID, email))
}

// GetGuest returns a guest by id.
func (db *DB) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return scanGuest(db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, first_name, last_name, phone, created_at
		FROM guests WHERE id = ?`, id))
}

func scanGuest(row *sql.Row) (*models.Guest, error) {
	var (
		g       models.Guest
		created string
	)
	err := row.Scan(&g.ID, &g.TenantID, &g.Email, &g.FirstName, &g.LastName, &g.Phone, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan guest: %w", err)
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &g, nil
}
