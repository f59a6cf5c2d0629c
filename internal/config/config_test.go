package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
tenants:
  - id: 1
    name: Club Centro
    branches:
      - id: 10
        name: Sede Centro
        timezone: America/Santiago
        is_active: true
        resources:
          - id: 100
            name: Cancha 1
            price_per_hour: "20000"
            is_active: true
      - id: 11
        name: Sede Norte
        resources:
          - id: 110
            name: Cancha Norte
            price_per_hour: "15000"
            currency: USD
            is_active: true
discounts:
  - id: 1
    tenant_id: 1
    name: Bienvenida
    code: WELCOME10
    type: percentage
    value: "10"
    condition_type: promo_code
    is_active: true
  - id: 2
    tenant_id: 1
    branch_id: 10
    name: Mañanas
    type: fixed_amount
    value: "2000"
    condition_type: time_based
    days_of_week: [1, 2, 3]
    start_time: "08:00"
    end_time: "12:00"
    resource_ids: [100]
    is_active: true
admins:
  - name: Dueña
    email: owner@club.cl
    telegram_chat_id: 501
    tenant_id: 1
  - name: Dueña
    email: OWNER@club.cl
    telegram_chat_id: 501
    tenant_id: 1
    branch_id: 10
  - name: Norte
    email: norte@club.cl
    tenant_id: 1
    branch_id: 11
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_JWT_SECRET", "s3cret")
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "db", "courtbook.db")+`
auth:
  jwt_secret: ${TEST_JWT_SECRET}
booking:
  overlap_policy: queue
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "queue", cfg.Booking.OverlapPolicy)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 500, cfg.Booking.MaxReasonLength)
	assert.Equal(t, "courtbook.events", cfg.Notify.AMQP.Exchange)
	assert.Equal(t, "Bookings", cfg.Notify.Sheets.SheetName)
	assert.Equal(t, "info", cfg.Logging.Level)

	_, err = os.Stat(filepath.Join(dir, "db"))
	assert.NoError(t, err, "database directory is created")
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
http:
  address: ":9000"
database:
  path: ":memory:"
booking:
  overlap_policy: strict
`)
	t.Setenv("COURTBOOK_HTTP_ADDRESS", ":7000")
	t.Setenv("COURTBOOK_OVERLAP_POLICY", "queue")
	t.Setenv("COURTBOOK_TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Address)
	assert.Equal(t, "queue", cfg.Booking.OverlapPolicy)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDurationDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, 10*time.Second, cfg.HTTPReadTimeout())
	assert.Equal(t, 15*time.Second, cfg.HTTPWriteTimeout())
	assert.Equal(t, 5, cfg.CreateLimit())
	assert.Equal(t, 15*time.Minute, cfg.SurveyInterval())
	assert.Equal(t, time.Hour, cfg.SurveyMinAge())
	assert.Equal(t, 24*time.Hour, cfg.SurveyMaxAge())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.CatalogReloadInterval())

	cfg.Survey.MinAgeMinutes = 90
	cfg.Booking.CreateLimitPerMin = 10
	assert.Equal(t, 90*time.Minute, cfg.SurveyMinAge())
	assert.Equal(t, 10, cfg.CreateLimit())
}

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, "tenant-1", cat.Tenants[0].Slug)
	assert.Equal(t, "UTC", cat.Tenants[0].Branches[1].Timezone)
	assert.Equal(t, "CLP", cat.Tenants[0].Branches[0].Resources[0].Currency)
	assert.Equal(t, "USD", cat.Tenants[0].Branches[1].Resources[0].Currency)
	assert.Equal(t, "Catalog: 1 tenants, 2 branches, 2 resources, 2 discounts", cat.String())
}

func TestCatalogValidate(t *testing.T) {
	base := func() *Catalog {
		return &Catalog{
			Tenants: []TenantConfig{{
				ID: 1, Name: "Club",
				Branches: []BranchConfig{{
					ID: 10, Name: "Centro",
					Resources: []ResourceConfig{{ID: 100, Name: "Cancha", PricePerHour: "1000"}},
				}},
			}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Catalog)
		errMsg string
	}{
		{"valid", func(c *Catalog) {}, ""},
		{"no tenants", func(c *Catalog) { c.Tenants = nil }, "no tenants"},
		{"bad timezone", func(c *Catalog) { c.Tenants[0].Branches[0].Timezone = "Mars/Olympus" }, "invalid timezone"},
		{"negative price", func(c *Catalog) { c.Tenants[0].Branches[0].Resources[0].PricePerHour = "-1" }, "cannot be negative"},
		{"duplicate resource", func(c *Catalog) {
			b := &c.Tenants[0].Branches[0]
			b.Resources = append(b.Resources, ResourceConfig{ID: 100, Name: "Otra", PricePerHour: "1"})
		}, "duplicate id 100"},
		{"percentage over 100", func(c *Catalog) {
			c.Discounts = []DiscountConfig{{ID: 1, TenantID: 1, Name: "x", Code: "X", Type: "percentage", Value: "150", ConditionType: "promo_code"}}
		}, "cannot exceed 100"},
		{"promo without code", func(c *Catalog) {
			c.Discounts = []DiscountConfig{{ID: 1, TenantID: 1, Name: "x", Type: "percentage", Value: "10", ConditionType: "promo_code"}}
		}, "code is required"},
		{"duplicate code ignoring case", func(c *Catalog) {
			c.Discounts = []DiscountConfig{
				{ID: 1, TenantID: 1, Name: "x", Code: "PROMO", Type: "percentage", Value: "10", ConditionType: "promo_code"},
				{ID: 2, TenantID: 1, Name: "y", Code: "promo", Type: "percentage", Value: "5", ConditionType: "promo_code"},
			}
		}, "duplicate code"},
		{"bad day", func(c *Catalog) {
			c.Discounts = []DiscountConfig{{ID: 1, TenantID: 1, Name: "x", Type: "fixed_amount", Value: "10", ConditionType: "time_based", DaysOfWeek: []int{7}}}
		}, "invalid day 7"},
		{"bad clock", func(c *Catalog) {
			c.Discounts = []DiscountConfig{{ID: 1, TenantID: 1, Name: "x", Type: "fixed_amount", Value: "10", ConditionType: "time_based", StartTime: "25:00"}}
		}, "expected HH:MM"},
		{"unknown resource", func(c *Catalog) {
			c.Discounts = []DiscountConfig{{ID: 1, TenantID: 1, Name: "x", Type: "fixed_amount", Value: "10", ConditionType: "time_based", ResourceIDs: []int64{999}}}
		}, "unknown resource 999"},
		{"admin without contact", func(c *Catalog) {
			c.Admins = []AdminConfig{{Name: "nadie", TenantID: 1}}
		}, "email or telegram_chat_id"},
		{"admin in foreign branch", func(c *Catalog) {
			c.Admins = []AdminConfig{{Email: "a@b.c", TenantID: 1, BranchID: 99}}
		}, "does not belong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAdminsFor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)
	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	centro := cat.AdminsFor(1, 10)
	require.Len(t, centro, 1, "same email and chat collapse to one recipient")
	assert.Equal(t, "owner@club.cl", centro[0].Email)

	norte := cat.AdminsFor(1, 11)
	assert.Len(t, norte, 2)

	assert.Empty(t, cat.AdminsFor(2, 10))

	holder := NewCatalogHolder(nil)
	assert.Nil(t, holder.AdminsFor(1, 10))
	holder.Set(cat)
	assert.Len(t, holder.AdminsFor(1, 11), 2)
}

func TestWatchCatalog_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "catalog.yaml", catalogYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates atomic.Int32
	var latest atomic.Pointer[Catalog]
	err := WatchCatalog(ctx, path, 10*time.Millisecond, func(c *Catalog) {
		latest.Store(c)
		updates.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), updates.Load())

	// An invalid edit keeps the previous catalog.
	require.NoError(t, os.WriteFile(path, []byte("tenants: []\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), updates.Load())

	renamed := catalogYAML + "\n"
	require.NoError(t, os.WriteFile(path, []byte(renamed), 0o600))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Club Centro", latest.Load().Tenants[0].Name)
}

func TestWatchCatalog_InitialLoadError(t *testing.T) {
	err := WatchCatalog(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), time.Second, nil)
	assert.Error(t, err)
}
