package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"courtbook/internal/events"
	"courtbook/internal/metrics"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

// Channel delivers booking events to one external system.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event events.Event) error
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// Workers is the number of delivery goroutines.
	Workers int
	// QueueSize bounds the number of events waiting for delivery.
	QueueSize int
	// RatePerSecond caps deliveries across all channels. Zero disables the cap.
	RatePerSecond float64
	// SendTimeout bounds a single channel delivery.
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:       4,
		QueueSize:     256,
		RatePerSecond: 20,
		SendTimeout:   15 * time.Second,
	}
}

// Dispatcher fans queued events out to channels on background workers,
// so booking operations never wait for or fail on a notification.
type Dispatcher struct {
	config   DispatcherConfig
	channels []Channel
	queue    chan events.Event
	limiter  *rate.Limiter
	logger   zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewDispatcher(cfg DispatcherConfig, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Dispatcher{
		config:   cfg,
		channels: channels,
		queue:    make(chan events.Event, cfg.QueueSize),
		limiter:  limiter,
		logger:   logger.With().Str("component", "notify").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Enqueue buffers event for delivery without blocking. It has the EventHandler signature.
func (d *Dispatcher) Enqueue(_ context.Context, event events.Event) error {
	select {
	case d.queue <- event:
		return nil
	default:
		metrics.IncNotificationDropped()
		return fmt.Errorf("event %s for booking %d: %w", event.Kind, event.Booking.ID, ErrQueueFull)
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	d.logger.Info().
		Int("workers", d.config.Workers).
		Int("queue_size", d.config.QueueSize).
		Strs("channels", names).
		Msg("Notification dispatcher started")
}

// Stop delivers what is already queued and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info().Msg("Notification dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			for {
				select {
				case e := <-d.queue:
					d.dispatch(e)
				default:
					return
				}
			}
		case e := <-d.queue:
			d.dispatch(e)
		}
	}
}

func (d *Dispatcher) dispatch(e events.Event) {
	for _, ch := range d.channels {
		d.deliver(ch, e)
	}
}

func (d *Dispatcher) deliver(ch Channel, e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
	defer cancel()

	log := d.logger.With().
		Str("channel", ch.Name()).
		Str("event_id", e.ID).
		Str("event", string(e.Kind)).
		Int64("booking_id", e.Booking.ID).
		Logger()

	if err := d.limiter.Wait(ctx); err != nil {
		metrics.IncNotification(ch.Name(), "throttled")
		log.Warn().Err(err).Msg("notification rate limit wait aborted")
		return
	}

	err := safeDeliver(ctx, ch, e)
	if err != nil {
		metrics.IncNotification(ch.Name(), "error")
		log.Error().Err(err).Msg("notification delivery failed")
		return
	}
	metrics.IncNotification(ch.Name(), "ok")
	log.Debug().Msg("notification delivered")
}

func safeDeliver(ctx context.Context, ch Channel, e events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Deliver(ctx, e)
}
