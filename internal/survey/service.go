package survey

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// LockKey is the redis key guarding the sweep.
const LockKey = "courtbook:survey:sweep"

// Store is the booking storage the sweep needs.
type Store interface {
	ListSurveyCandidates(ctx context.Context, endedAfter, endedBefore time.Time, limit int) ([]models.Booking, error)
	TryClaimSurvey(ctx context.Context, bookingID int64) (bool, error)
	ReleaseSurvey(ctx context.Context, bookingID int64) error
}

// Sender delivers the survey invitation for a booking.
type Sender interface {
	SendSurvey(ctx context.Context, b models.Booking) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration for the survey scheduler.
type Config struct {
	// CheckInterval is how often to sweep. Default: 15 minutes.
	CheckInterval time.Duration

	// MinAge is how long after the end a booking becomes eligible. Default: 1 hour.
	MinAge time.Duration

	// MaxAge is how long after the end a booking stops being eligible. Default: 24 hours.
	MaxAge time.Duration

	// BatchSize caps the bookings handled per sweep.
	BatchSize int

	// MaxConcurrentSends limits parallel survey sends. Default: 5.
	MaxConcurrentSends int

	// LockTTL bounds how long a crashed replica can hold the sweep lock.
	LockTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:      15 * time.Minute,
		MinAge:             time.Hour,
		MaxAge:             24 * time.Hour,
		BatchSize:          500,
		MaxConcurrentSends: 5,
		LockTTL:            10 * time.Minute,
	}
}

// Result summarises one sweep.
type Result struct {
	Candidates int
	Sent       int
	Failed     int
	Skipped    int
	Locked     bool
}

// Service sends one satisfaction survey per completed confirmed booking.
type Service struct {
	config  *Config
	store   Store
	sender  Sender
	locker  Locker
	clock   Clock
	logger  zerolog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a survey scheduler. locker and clock may be nil.
func NewService(config *Config, store Store, sender Sender, locker Locker, clock Clock, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.MinAge <= 0 {
		config.MinAge = def.MinAge
	}
	if config.MaxAge <= config.MinAge {
		config.MaxAge = def.MaxAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxConcurrentSends <= 0 {
		config.MaxConcurrentSends = def.MaxConcurrentSends
	}
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if clock == nil {
		clock = systemClock{}
	}

	return &Service{
		config: config,
		store:  store,
		sender: sender,
		locker: locker,
		clock:  clock,
		logger: logger.With().Str("component", "survey").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("min_age", s.config.MinAge).
		Dur("max_age", s.config.MaxAge).
		Msg("Survey service started")
}

// Stop gracefully stops the sweep loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Survey service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	// Run immediately on start
	s.CheckNow()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckNow()
		}
	}
}

// CheckNow runs one sweep with a bounded timeout and logs the outcome.
func (s *Service) CheckNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("survey sweep failed")
		return
	}
	if res.Candidates > 0 {
		s.logger.Info().
			Int("candidates", res.Candidates).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Msg("survey sweep finished")
	}
}

// Sweep claims each eligible booking, sends its survey, and releases the claim if the send fails.
// A claimed booking is never sent twice, even by concurrent sweeps.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	var res Result

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, LockKey, s.config.LockTTL)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Locked = true
			s.logger.Debug().Msg("survey sweep held by another instance")
			return res, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), LockKey); err != nil {
				s.logger.Warn().Err(err).Msg("survey lock release failed")
			}
		}()
	}

	now := s.clock.Now()
	candidates, err := s.store.ListSurveyCandidates(ctx, now.Add(-s.config.MaxAge), now.Add(-s.config.MinAge), s.config.BatchSize)
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)

	var sent, failed, skipped atomic.Int32
	sem := make(chan struct{}, s.config.MaxConcurrentSends)
	var wg sync.WaitGroup

	for _, b := range candidates {
		wg.Add(1)
		sem <- struct{}{}

		go func(b models.Booking) {
			defer wg.Done()
			defer func() { <-sem }()

			switch s.sendOne(ctx, b) {
			case "sent":
				sent.Add(1)
			case "failed":
				failed.Add(1)
			default:
				skipped.Add(1)
			}
		}(b)
	}
	wg.Wait()

	res.Sent = int(sent.Load())
	res.Failed = int(failed.Load())
	res.Skipped = int(skipped.Load())
	return res, nil
}

func (s *Service) sendOne(ctx context.Context, b models.Booking) string {
	log := s.logger.With().Int64("booking_id", b.ID).Logger()

	claimed, err := s.store.TryClaimSurvey(ctx, b.ID)
	if err != nil {
		log.Error().Err(err).Msg("survey claim failed")
		metrics.IncSurvey("failed")
		return "failed"
	}
	if !claimed {
		return "skipped"
	}

	if err := s.sender.SendSurvey(ctx, b); err != nil {
		log.Error().Err(err).Msg("survey send failed")
		if rerr := s.store.ReleaseSurvey(context.WithoutCancel(ctx), b.ID); rerr != nil {
			log.Error().Err(rerr).Msg("survey release failed")
		}
		metrics.IncSurvey("failed")
		return "failed"
	}

	metrics.IncSurvey("sent")
	log.Debug().Msg("survey sent")
	return "sent"
}
