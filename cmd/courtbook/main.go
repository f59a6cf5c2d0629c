package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"courtbook/internal/access"
	"courtbook/internal/api"
	"courtbook/internal/booking"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/notify"
	"courtbook/internal/obs"
	"courtbook/internal/survey"
	"courtbook/shared/audit"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("COURTBOOK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracerConfig{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			Environment: os.Getenv("COURTBOOK_ENV"),
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctxShutdown)
		}()
	}

	policy, err := database.ParseOverlapPolicy(cfg.Booking.OverlapPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking.overlap_policy")
	}
	db, err := database.NewDB(cfg.Database.Path, policy, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	catalog := config.NewCatalogHolder(nil)
	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(), func(cat *config.Catalog) {
		ctxSync, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.SyncCatalog(ctxSync, cat); err != nil {
			logger.Error().Err(err).Msg("catalog sync failed, keeping previous catalog")
			return
		}
		catalog.Set(cat)
		logger.Info().Str("catalog", cat.String()).Msg("catalog loaded")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}
	if catalog.Get() == nil {
		logger.Fatal().Msg("initial catalog sync failed")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(ctxPing).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable at startup")
		}
		cancel()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	bus := events.NewEventBus(logger)
	bookings := booking.NewService(
		booking.Config{MaxReasonLength: cfg.Booking.MaxReasonLength},
		db,
		access.NewService(logger),
		bus,
		&logger,
	)

	dir := notify.NewDirectory(db, catalog, logger)
	channels, mailer, telegram, closers := buildChannels(ctx, cfg, dir, logger)
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		RatePerSecond: cfg.Notify.RatePerSecond,
	}, logger, channels...)
	bus.SubscribeAll(dispatcher.Enqueue)
	bus.ObserveConfirmed(func(b models.Booking) {
		metrics.AddConfirmedHours(b.Duration())
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	if cfg.Survey.Enabled {
		if mailer == nil {
			logger.Warn().Msg("survey enabled without email channel, skipping")
		} else {
			var locker survey.Locker
			if rdb != nil {
				locker = survey.NewRedisLocker(rdb)
			}
			surveys := survey.NewService(&survey.Config{
				CheckInterval: cfg.SurveyInterval(),
				MinAge:        cfg.SurveyMinAge(),
				MaxAge:        cfg.SurveyMaxAge(),
				BatchSize:     cfg.Survey.BatchSize,
			}, db, mailer, locker, nil, logger)
			surveys.Start()
			defer surveys.Stop()
		}
	}

	var exporter api.Exporter
	if cfg.Audit.Enabled {
		var reports audit.Notifier
		if telegram != nil {
			reports = telegram
		}
		auditor := audit.NewService(&audit.Config{OutputDir: cfg.Audit.OutputDir}, db, audit.NewExcelizeWriter, reports, logger)
		if cfg.Audit.Monthly {
			auditor.Start()
			defer auditor.Stop()
		}
		exporter = auditor
	}

	go database.NewBackupService(db, cfg.Database.Backup, cfg.BackupInterval(), logger).Start(ctx)

	var limiter *api.RateLimiter
	if rdb != nil {
		limiter = api.NewRateLimiter(rdb, cfg.CreateLimit(), time.Minute, "courtbook:ratelimit:create:", logger)
	}

	ready := map[string]api.HealthCheck{"db": db.PingContext}
	if rdb != nil {
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	router := api.NewRouter(api.RouterConfig{
		Auth:          api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Bookings:      api.NewBookingHandler(bookings, exporter, logger),
		CreateLimiter: limiter,
		Ready:         ready,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout(),
		WriteTimeout: cfg.HTTPWriteTimeout(),
	}

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.GRPC.Address != "" {
		go startGRPCHealth(ctx, cfg.GRPC.Address, db, &logger)
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("address", cfg.HTTP.Address).Str("policy", string(policy)).Msg("courtbook started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server error")
	}
	logger.Info().Msg("courtbook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

// buildChannels constructs the enabled notification channels. A channel that fails to start is logged and skipped.
func buildChannels(ctx context.Context, cfg *config.Config, dir *notify.Directory, logger zerolog.Logger) (
	[]notify.Channel, *notify.Mailer, *notify.Telegram, []func() error,
) {
	var (
		channels []notify.Channel
		mailer   *notify.Mailer
		telegram *notify.Telegram
		closers  []func() error
	)

	if cfg.Notify.Email.Enabled {
		m, err := notify.NewMailer(notify.MailConfig{
			Host:        cfg.Notify.Email.Host,
			Port:        cfg.Notify.Email.Port,
			Username:    cfg.Notify.Email.Username,
			Password:    cfg.Notify.Email.Password,
			From:        cfg.Notify.Email.From,
			FrontendURL: cfg.Booking.FrontendURL,
		}, dir, logger)
		if err != nil {
			logger.Error().Err(err).Msg("email channel disabled")
		} else {
			mailer = m
			channels = append(channels, m)
		}
	}

	if cfg.Notify.Telegram.Enabled {
		t, err := notify.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Audit.ReportChatIDs, dir, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram channel disabled")
		} else {
			telegram = t
			channels = append(channels, t)
		}
	}

	if cfg.Notify.AMQP.Enabled {
		p, err := notify.NewPublisher(cfg.Notify.AMQP.URL, cfg.Notify.AMQP.Exchange)
		if err != nil {
			logger.Error().Err(err).Msg("amqp channel disabled")
		} else {
			channels = append(channels, p)
			closers = append(closers, p.Close)
		}
	}

	if cfg.Notify.Sheets.Enabled {
		values, err := notify.NewGoogleValues(ctx, cfg.Notify.Sheets.CredentialsFile, cfg.Notify.Sheets.SpreadsheetID)
		if err != nil {
			logger.Error().Err(err).Msg("sheets channel disabled")
		} else {
			sheets := notify.NewSheetsService(values, cfg.Notify.Sheets.SheetName, logger)
			if err := sheets.WriteHeader(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to write sheet header")
			}
			channels = append(channels, sheets)
		}
	}

	return channels, mailer, telegram, closers
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// startGRPCHealth serves grpc.health.v1 for orchestrators, tracking the database.
func startGRPCHealth(ctx context.Context, addr string, db *database.DB, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Msg("grpc listen error")
		return
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			if err := db.PingContext(ctxPing); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			cancel()
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				hs.Shutdown()
				gs.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	logger.Info().Str("address", addr).Msg("grpc health server started")
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error().Err(err).Msg("grpc server error")
	}
}
