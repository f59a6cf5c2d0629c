package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the booking store.
type DB struct {
	*sql.DB
	policy OverlapPolicy
	logger *zerolog.Logger
}

var (
	ErrNotFound    = errors.New("not found")
	ErrSlotTaken   = errors.New("slot already taken")
	ErrStaleStatus = errors.New("booking status changed concurrently")
)

// overlapMarker is the RAISE message of the exclusion triggers.
const overlapMarker = "booking_overlap"

// timeLayout is fixed width so text order equals chronological order.
const timeLayout = "2006-01-02T15:04:05Z"

// OverlapPolicy selects which statuses block a new or updated active booking.
type OverlapPolicy string

const (
	// OverlapStrict forbids any two pending or confirmed bookings from overlapping.
	OverlapStrict OverlapPolicy = "strict"
	// OverlapQueue lets pending requests overlap each other but never a confirmed booking.
	OverlapQueue OverlapPolicy = "queue"
)

// ParseOverlapPolicy maps a config value to a policy, defaulting to strict.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", OverlapStrict:
		return OverlapStrict, nil
	case OverlapQueue:
		return OverlapQueue, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

func (p OverlapPolicy) blocking() string {
	if p == OverlapQueue {
		return "'confirmed'"
	}
	return "'pending','confirmed'"
}

// NewDB opens the database at path, creates the schema and installs the overlap triggers.
func NewDB(path string, policy OverlapPolicy, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if policy == "" {
		policy = OverlapStrict
	}

	// _txlock=immediate makes every transaction take the write lock on BEGIN.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: opens its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, policy: policy, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := instance.installOverlapTriggers(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to install overlap triggers: %w", err)
	}

	logger.Info().Str("path", path).Str("overlap_policy", string(policy)).Msg("Database initialized")
	return instance, nil
}

// Policy returns the overlap policy the triggers were installed with.
func (db *DB) Policy() OverlapPolicy {
	return db.policy
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS branches (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			requires_approval INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY,
			branch_id INTEGER NOT NULL REFERENCES branches(id),
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			price_per_hour TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'CLP',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS discounts (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			branch_id INTEGER REFERENCES branches(id),
			name TEXT NOT NULL,
			code TEXT,
			type TEXT NOT NULL CHECK (type IN ('percentage','fixed_amount')),
			value TEXT NOT NULL,
			condition_type TEXT NOT NULL CHECK (condition_type IN ('promo_code','time_based')),
			days_of_week TEXT NOT NULL DEFAULT '[]',
			start_time TEXT NOT NULL DEFAULT '',
			end_time TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS discount_resources (
			discount_id INTEGER NOT NULL REFERENCES discounts(id) ON DELETE CASCADE,
			resource_id INTEGER NOT NULL REFERENCES resources(id),
			PRIMARY KEY (discount_id, resource_id)
		)`,

		`CREATE TABLE IF NOT EXISTS guests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			email TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (tenant_id, email)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			branch_id INTEGER NOT NULL REFERENCES branches(id),
			resource_id INTEGER NOT NULL REFERENCES resources(id),
			user_id TEXT,
			guest_id INTEGER REFERENCES guests(id),
			contact_email TEXT NOT NULL DEFAULT '',
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','confirmed','cancelled','completed','no_show','rejected')),
			source TEXT NOT NULL DEFAULT 'web' CHECK (source IN ('web','app','phone','walk_in')),
			original_price TEXT NOT NULL,
			total_price TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'CLP',
			notes TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			discount_id INTEGER REFERENCES discounts(id),
			survey_sent INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			CHECK (start_at < end_at),
			CHECK ((user_id IS NULL) <> (guest_id IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS booking_cancellations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL UNIQUE REFERENCES bookings(id),
			cancelled_by TEXT,
			reason TEXT NOT NULL DEFAULT '',
			cancelled_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_branches_tenant ON branches(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_branch ON resources(branch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discounts_tenant ON discounts(tenant_id, is_active)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_discounts_code ON discounts(tenant_id, code COLLATE NOCASE) WHERE code IS NOT NULL AND code <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_window ON bookings(resource_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_branch ON bookings(branch_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_survey ON bookings(status, survey_sent, end_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// installOverlapTriggers (re)creates the exclusion triggers for the configured policy.
// Both abort with overlapMarker when an active row would intersect a blocking row on the same resource.
func (db *DB) installOverlapTriggers() error {
	blocking := db.policy.blocking()
	queries := []string{
		`DROP TRIGGER IF EXISTS bookings_no_overlap_insert`,
		`DROP TRIGGER IF EXISTS bookings_no_overlap_update`,
		fmt.Sprintf(`CREATE TRIGGER bookings_no_overlap_insert
			BEFORE INSERT ON bookings
			WHEN NEW.status IN ('pending','confirmed')
			BEGIN
				SELECT RAISE(ABORT, '%s') WHERE EXISTS (
					SELECT 1 FROM bookings b
					WHERE b.resource_id = NEW.resource_id
						AND b.status IN (%s)
						AND b.start_at < NEW.end_at
						AND b.end_at > NEW.start_at
				);
			END`, overlapMarker, blocking),
		fmt.Sprintf(`CREATE TRIGGER bookings_no_overlap_update
			BEFORE UPDATE OF status, start_at, end_at, resource_id ON bookings
			WHEN NEW.status IN ('pending','confirmed')
			BEGIN
				SELECT RAISE(ABORT, '%s') WHERE EXISTS (
					SELECT 1 FROM bookings b
					WHERE b.resource_id = NEW.resource_id
						AND b.id <> NEW.id
						AND b.status IN (%s)
						AND b.start_at < NEW.end_at
						AND b.end_at > NEW.start_at
				);
			END`, overlapMarker, blocking),
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("exec trigger %s: %w", trimSQL(q), err)
		}
	}
	return tx.Commit()
}

// isOverlapErr reports whether err comes from the exclusion triggers.
func isOverlapErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	return strings.Contains(err.Error(), overlapMarker)
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// inTx runs fn inside a transaction and commits when fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isOverlapErr(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
