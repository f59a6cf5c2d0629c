package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Address         string   `yaml:"address"`
		ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
		WriteTimeoutSec int      `yaml:"write_timeout_sec"`
		CORSOrigins     []string `yaml:"cors_origins"`
	} `yaml:"http"`

	GRPC struct {
		Address string `yaml:"address"`
	} `yaml:"grpc"`

	Database struct {
		Path   string       `yaml:"path"`
		Backup BackupConfig `yaml:"backup"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`

	Booking struct {
		OverlapPolicy     string `yaml:"overlap_policy"` // strict | queue
		CreateLimitPerMin int    `yaml:"create_limit_per_min"`
		MaxReasonLength   int    `yaml:"max_reason_length"`
		FrontendURL       string `yaml:"frontend_url"`
	} `yaml:"booking"`

	Survey struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
		MinAgeMinutes   int  `yaml:"min_age_minutes"`
		MaxAgeHours     int  `yaml:"max_age_hours"`
		BatchSize       int  `yaml:"batch_size"`
	} `yaml:"survey"`

	Notify struct {
		Workers       int     `yaml:"workers"`
		QueueSize     int     `yaml:"queue_size"`
		RatePerSecond float64 `yaml:"rate_per_second"`

		Email struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
		} `yaml:"email"`

		Telegram struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token"`
		} `yaml:"telegram"`

		AMQP struct {
			Enabled  bool   `yaml:"enabled"`
			URL      string `yaml:"url"`
			Exchange string `yaml:"exchange"`
		} `yaml:"amqp"`

		Sheets struct {
			Enabled         bool   `yaml:"enabled"`
			CredentialsFile string `yaml:"credentials_file"`
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			SheetName       string `yaml:"sheet_name"`
		} `yaml:"sheets"`
	} `yaml:"notify"`

	Audit struct {
		Enabled       bool    `yaml:"enabled"`
		Monthly       bool    `yaml:"monthly"`
		OutputDir     string  `yaml:"output_dir"`
		ReportChatIDs []int64 `yaml:"report_chat_ids"`
	} `yaml:"audit"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Endpoint    string  `yaml:"endpoint"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"logging"`

	Catalog struct {
		Path               string `yaml:"path"`
		ReloadIntervalSecs int    `yaml:"reload_interval_secs"`
	} `yaml:"catalog"`
}

// BackupConfig schedules sqlite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StoragePath   string `yaml:"storage_path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

// envOverrides are COURTBOOK_* variables applied on top of the YAML file.
type envOverrides struct {
	HTTPAddress      string `envconfig:"HTTP_ADDRESS"`
	DatabasePath     string `envconfig:"DATABASE_PATH"`
	RedisAddress     string `envconfig:"REDIS_ADDRESS"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	OverlapPolicy    string `envconfig:"OVERLAP_POLICY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	AMQPURL          string `envconfig:"AMQP_URL"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	CatalogPath      string `envconfig:"CATALOG_PATH"`
}

// Load reads .env (if any), the YAML config with ${ENV} placeholders, and COURTBOOK_* overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err = cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.Database.Path != ":memory:" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := envconfig.Process("courtbook", &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.HTTP.Address, o.HTTPAddress)
	set(&c.Database.Path, o.DatabasePath)
	set(&c.Redis.Address, o.RedisAddress)
	set(&c.Redis.Password, o.RedisPassword)
	set(&c.Auth.JWTSecret, o.JWTSecret)
	set(&c.Booking.OverlapPolicy, o.OverlapPolicy)
	set(&c.Notify.Email.Password, o.SMTPPassword)
	set(&c.Notify.Telegram.BotToken, o.TelegramBotToken)
	set(&c.Notify.AMQP.URL, o.AMQPURL)
	set(&c.Logging.Level, o.LogLevel)
	set(&c.Catalog.Path, o.CatalogPath)
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/courtbook.db"
	}
	if c.Database.Backup.StoragePath == "" {
		c.Database.Backup.StoragePath = "data/backups"
	}
	if c.Booking.OverlapPolicy == "" {
		c.Booking.OverlapPolicy = "strict"
	}
	if c.Booking.MaxReasonLength <= 0 {
		c.Booking.MaxReasonLength = 500
	}
	if c.Notify.AMQP.Exchange == "" {
		c.Notify.AMQP.Exchange = "courtbook.events"
	}
	if c.Notify.Sheets.SheetName == "" {
		c.Notify.Sheets.SheetName = "Bookings"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
	if c.Audit.OutputDir == "" {
		c.Audit.OutputDir = "data/exports"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "courtbook"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) HTTPReadTimeout() time.Duration {
	if c.HTTP.ReadTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.ReadTimeoutSec) * time.Second
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	if c.HTTP.WriteTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HTTP.WriteTimeoutSec) * time.Second
}

// CreateLimit is the number of booking attempts allowed per client per minute.
func (c *Config) CreateLimit() int {
	if c.Booking.CreateLimitPerMin <= 0 {
		return 5
	}
	return c.Booking.CreateLimitPerMin
}

func (c *Config) SurveyInterval() time.Duration {
	if c.Survey.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Survey.IntervalMinutes) * time.Minute
}

func (c *Config) SurveyMinAge() time.Duration {
	if c.Survey.MinAgeMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Survey.MinAgeMinutes) * time.Minute
}

func (c *Config) SurveyMaxAge() time.Duration {
	if c.Survey.MaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Survey.MaxAgeHours) * time.Hour
}

func (c *Config) BackupInterval() time.Duration {
	if c.Database.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Database.Backup.IntervalHours) * time.Hour
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadIntervalSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadIntervalSecs) * time.Second
}
