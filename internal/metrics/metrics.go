package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by initial status.",
		},
		[]string{"status"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by claimants or admins.",
		},
	)

	adminDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "admin_decision_total",
			Help:      "Count of admin decisions over pending bookings.",
		},
		[]string{"decision"},
	)

	cascadeRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_cascade_rejected_total",
			Help:      "Count of pending bookings rejected because an overlapping booking was confirmed.",
		},
	)

	bookingFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_operation_failed_total",
			Help:      "Count of failed lifecycle operations by operation and error kind.",
		},
		[]string{"operation", "kind"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courtbook",
			Name:      "booking_operation_duration_seconds",
			Help:      "Duration of lifecycle operations.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	notificationSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "notification_sent_total",
			Help:      "Count of notification deliveries by channel and result.",
		},
		[]string{"channel", "status"},
	)

	notificationDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "notification_dropped_total",
			Help:      "Count of notifications dropped because the dispatch queue was full.",
		},
	)

	surveySent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "survey_sent_total",
			Help:      "Count of survey emails by result.",
		},
		[]string{"status"},
	)

	confirmedHours = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_confirmed_hours_total",
			Help:      "Sum of booked hours that became confirmed.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_rate_limited_total",
			Help:      "Count of booking requests refused by the per-IP limiter.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingCancelled, adminDecision, cascadeRejected,
			bookingFailed, operationDuration, notificationSent, notificationDropped,
			surveySent, rateLimited, confirmedHours,
		)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncAdminDecision(decision string) {
	adminDecision.WithLabelValues(decision).Inc()
}

func AddCascadeRejected(n int) {
	if n > 0 {
		cascadeRejected.Add(float64(n))
	}
}

func IncOperationFailed(operation, kind string) {
	bookingFailed.WithLabelValues(operation, kind).Inc()
}

// ObserveOperation records the time elapsed since start.
func ObserveOperation(operation string, start time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func IncNotification(channel, status string) {
	notificationSent.WithLabelValues(channel, status).Inc()
}

func IncNotificationDropped() {
	notificationDropped.Inc()
}

func IncSurvey(status string) {
	surveySent.WithLabelValues(status).Inc()
}

// AddConfirmedHours adds the length of a booking that became confirmed.
func AddConfirmedHours(d time.Duration) {
	if d > 0 {
		confirmedHours.Add(d.Hours())
	}
}

func IncRateLimited() {
	rateLimited.Inc()
}
