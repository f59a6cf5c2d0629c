package database

import (
	"context"
	"fmt"
	"time"
)

// auditQueries select a period's rows for each exported table.
var auditQueries = map[string]string{
	"bookings": `
		SELECT id, tenant_id, branch_id, resource_id, COALESCE(user_id, ''), COALESCE(guest_id, 0),
			start_at, end_at, status, source, original_price, total_price, currency,
			COALESCE(discount_id, 0), rejection_reason, survey_sent, created_at
		FROM bookings
		WHERE start_at >= ? AND start_at < ?
		ORDER BY start_at, id`,
	"booking_cancellations": `
		SELECT c.booking_id, b.branch_id, COALESCE(c.cancelled_by, ''), c.reason, c.cancelled_at, b.status
		FROM booking_cancellations c
		JOIN bookings b ON b.id = c.booking_id
		WHERE c.cancelled_at >= ? AND c.cancelled_at < ?
		ORDER BY c.cancelled_at, c.id`,
}

var auditColumns = map[string][]string{
	"bookings": {
		"id", "tenant_id", "branch_id", "resource_id", "user_id", "guest_id",
		"start_at", "end_at", "status", "source", "original_price", "total_price", "currency",
		"discount_id", "rejection_reason", "survey_sent", "created_at",
	},
	"booking_cancellations": {
		"booking_id", "branch_id", "cancelled_by", "reason", "cancelled_at", "status",
	},
}

// AuditTableNames are the tables exported in monthly reports, in sheet order.
var AuditTableNames = []string{"bookings", "booking_cancellations"}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns a table's rows within [from, to) as ordered values.
func (db *DB) GetTableData(ctx context.Context, tableName string, from, to time.Time) ([]string, [][]interface{}, error) {
	q, ok := auditQueries[tableName]
	if !ok {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}
	columns := auditColumns[tableName]

	rows, err := db.QueryContext(ctx, q, formatTime(from), formatTime(to))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var data [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	return columns, data, rows.Err()
}
