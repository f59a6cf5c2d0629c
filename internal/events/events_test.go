package events

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/models"
)

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))

	var confirmed, all []Event
	bus.Subscribe(models.EventConfirmed, func(_ context.Context, e Event) error {
		confirmed = append(confirmed, e)
		return nil
	})
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		all = append(all, e)
		return errors.New("queue full")
	})

	bus.NotifyBookingEvent(context.Background(), models.Booking{ID: 7}, models.EventConfirmed)
	bus.NotifyBookingEvent(context.Background(), models.Booking{ID: 8}, models.EventCancelled)

	require.Len(t, confirmed, 1)
	assert.Equal(t, int64(7), confirmed[0].Booking.ID)
	assert.NotEmpty(t, confirmed[0].ID)
	assert.False(t, confirmed[0].CreatedAt.IsZero())

	require.Len(t, all, 2)
	assert.Equal(t, models.EventCancelled, all[1].Kind)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestEventBus_ObserveConfirmed(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))
	ctx := context.Background()

	var seen []int64
	bus.ObserveConfirmed(func(b models.Booking) {
		seen = append(seen, b.ID)
	})

	bus.NotifyBookingEvent(ctx, models.Booking{ID: 1}, models.EventCreatedPending)
	bus.NotifyBookingEvent(ctx, models.Booking{ID: 1}, models.EventConfirmed)
	bus.NotifyBookingEvent(ctx, models.Booking{ID: 2}, models.EventCreatedConfirmed)
	bus.NotifyBookingEvent(ctx, models.Booking{ID: 3}, models.EventRejected)
	bus.NotifyBookingEvent(ctx, models.Booking{ID: 2}, models.EventCancelled)

	assert.Equal(t, []int64{1, 2}, seen)
}
