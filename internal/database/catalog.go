package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"courtbook/internal/config"
	"courtbook/internal/models"
)

// SyncCatalog applies catalog.yaml to the database in one transaction.
// It upserts tenants, branches, resources and discounts and marks rows missing from the file inactive.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	now := formatTime(time.Now())
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		seen := map[string][]int64{}

		for _, t := range cat.Tenants {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tenants (id, name, slug, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					slug = excluded.slug,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
				t.ID, t.Name, t.Slug, boolInt(t.IsActive), now, now,
			)
			if err != nil {
				return fmt.Errorf("sync tenant %d: %w", t.ID, err)
			}
			seen["tenants"] = append(seen["tenants"], t.ID)

			for _, b := range t.Branches {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO branches (id, tenant_id, name, timezone, requires_approval, is_active, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT(id) DO UPDATE SET
						tenant_id = excluded.tenant_id,
						name = excluded.name,
						timezone = excluded.timezone,
						requires_approval = excluded.requires_approval,
						is_active = excluded.is_active,
						updated_at = excluded.updated_at`,
					b.ID, t.ID, b.Name, b.Timezone, boolInt(b.RequiresApproval), boolInt(b.IsActive), now, now,
				)
				if err != nil {
					return fmt.Errorf("sync branch %d: %w", b.ID, err)
				}
				seen["branches"] = append(seen["branches"], b.ID)

				for _, r := range b.Resources {
					rate, err := decimal.NewFromString(r.PricePerHour)
					if err != nil {
						return fmt.Errorf("resource %d price: %w", r.ID, err)
					}
					_, err = tx.ExecContext(ctx, `
						INSERT INTO resources (id, branch_id, name, type, price_per_hour, currency, is_active, created_at, updated_at)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
						ON CONFLICT(id) DO UPDATE SET
							branch_id = excluded.branch_id,
							name = excluded.name,
							type = excluded.type,
							price_per_hour = excluded.price_per_hour,
							currency = excluded.currency,
							is_active = excluded.is_active,
							updated_at = excluded.updated_at`,
						r.ID, b.ID, r.Name, r.Type, rate.StringFixed(2), r.Currency, boolInt(r.IsActive), now, now,
					)
					if err != nil {
						return fmt.Errorf("sync resource %d: %w", r.ID, err)
					}
					seen["resources"] = append(seen["resources"], r.ID)
				}
			}
		}

		for _, d := range cat.Discounts {
			if err := syncDiscount(ctx, tx, d, now); err != nil {
				return err
			}
			seen["discounts"] = append(seen["discounts"], d.ID)
		}

		// Deactivate rows that disappeared from the catalog. Bookings keep referencing them.
		for _, table := range []string{"discounts", "resources", "branches", "tenants"} {
			if err := deactivateMissing(ctx, tx, table, seen[table], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info().Str("catalog", cat.String()).Msg("Catalog synced")
	return nil
}

func syncDiscount(ctx context.Context, tx *sql.Tx, d config.DiscountConfig, now string) error {
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return fmt.Errorf("discount %d value: %w", d.ID, err)
	}
	days := d.DaysOfWeek
	if days == nil {
		days = []int{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("discount %d days: %w", d.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO discounts (id, tenant_id, branch_id, name, code, type, value, condition_type,
			days_of_week, start_time, end_time, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			branch_id = excluded.branch_id,
			name = excluded.name,
			code = excluded.code,
			type = excluded.type,
			value = excluded.value,
			condition_type = excluded.condition_type,
			days_of_week = excluded.days_of_week,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		d.ID, d.TenantID, nullInt64(d.BranchID), d.Name, nullString(strings.TrimSpace(d.Code)), d.Type,
		value.String(), d.ConditionType, string(daysJSON), d.StartTime, d.EndTime, boolInt(d.IsActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("sync discount %d: %w", d.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM discount_resources WHERE discount_id = ?`, d.ID); err != nil {
		return fmt.Errorf("reset discount %d resources: %w", d.ID, err)
	}
	for _, rid := range d.ResourceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO discount_resources (discount_id, resource_id) VALUES (?, ?)`, d.ID, rid); err != nil {
			return fmt.Errorf("link discount %d to resource %d: %w", d.ID, rid, err)
		}
	}
	return nil
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []int64, now string) error {
	q := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE is_active = 1`, table)
	args := []interface{}{now}
	if len(keep) > 0 {
		q += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("deactivate missing %s: %w", table, err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// GetResource returns an active or inactive resource together with its branch.
func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, *models.Branch, error) {
	var (
		r    models.Resource
		b    models.Branch
		rate string
		rAct int
		bAct int
		appr int
	)
	err := db.QueryRowContext(ctx, `
		SELECT r.id, r.branch_id, r.name, r.type, r.price_per_hour, r.currency, r.is_active,
			b.id, b.tenant_id, b.name, b.timezone, b.requires_approval, b.is_active
		FROM resources r
		JOIN branches b ON b.id = r.branch_id
		WHERE r.id = ?`, id,
	).Scan(&r.ID, &r.BranchID, &r.Name, &r.Type, &rate, &r.Currency, &rAct,
		&b.ID, &b.TenantID, &b.Name, &b.Timezone, &appr, &bAct)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get resource %d: %w", id, err)
	}

	r.HourlyRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, nil, fmt.Errorf("resource %d rate: %w", id, err)
	}
	r.IsActive = rAct == 1
	b.IsActive = bAct == 1
	b.RequiresApproval = appr == 1
	return &r, &b, nil
}

// ListDiscounts returns every discount of the tenant ordered by id, with resource restrictions.
func (db *DB) ListDiscounts(ctx context.Context, tenantID int64) ([]models.Discount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(branch_id, 0), name, COALESCE(code, ''), type, value,
			condition_type, days_of_week, start_time, end_time, is_active
		FROM discounts
		WHERE tenant_id = ?
		ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var out []models.Discount
	index := make(map[int64]int)
	for rows.Next() {
		var (
			d      models.Discount
			typ    string
			cond   string
			value  string
			days   string
			active int
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.BranchID, &d.Name, &d.Code, &typ, &value,
			&cond, &days, &d.StartTime, &d.EndTime, &active); err != nil {
			return nil, err
		}
		d.Type = models.DiscountType(typ)
		d.ConditionType = models.ConditionType(cond)
		d.IsActive = active == 1
		if d.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("discount %d value: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(days), &d.DaysOfWeek); err != nil {
			return nil, fmt.Errorf("discount %d days: %w", d.ID, err)
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	links, err := db.QueryContext(ctx, `
		SELECT dr.discount_id, dr.resource_id
		FROM discount_resources dr
		JOIN discounts d ON d.id = dr.discount_id
		WHERE d.tenant_id = ?
		ORDER BY dr.discount_id, dr.resource_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list discount resources: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var did, rid int64
		if err := links.Scan(&did, &rid); err != nil {
			return nil, err
		}
		if i, ok := index[did]; ok {
			out[i].ResourceIDs = append(out[i].ResourceIDs, rid)
		}
	}
	return out, links.Err()
}
