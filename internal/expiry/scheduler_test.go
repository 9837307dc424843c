package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
)

func TestScheduler_SweepsAtStartAndStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2024, 6, 1, 13, 30, 0, 0, time.UTC)
	expires := now.Add(-time.Minute)
	ref := "INT1"
	repo := appointment.NewMemoryRepository()
	hold, err := repo.Create(ctx, &appointment.Appointment{
		TenantID:         uuid.New(),
		ProfessionalID:   uuid.New(),
		ServiceID:        uuid.New(),
		StartsAt:         now.Add(time.Hour),
		DurationMinutes:  30,
		CustomerName:     "Ana",
		CustomerPhone:    "11922220000",
		Status:           appointment.StatusPendingPayment,
		HoldExpiresAt:    &expires,
		PaymentReference: &ref,
	})
	require.NoError(t, err)

	sweeper := NewSweeper(repo, nil, nil, nil, nil, nil, Options{}).WithClock(func() time.Time { return now })

	done := make(chan error, 1)
	go func() { done <- NewScheduler(sweeper, time.Hour, zap.NewNop()).Run(ctx) }()

	require.Eventually(t, func() bool {
		a, err := repo.GetAppointmentByID(context.Background(), hold.ID)
		return err == nil && a.Status == appointment.StatusCancelled
	}, time.Second, 5*time.Millisecond, "first sweep runs without waiting for the interval")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop with its context")
	}
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newCronLogger(zap.New(core))

	l.Info("wake", "now", "13:00")
	l.Error(errors.New("boom"), "panic", "stack", "...")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "cron", entries[0].LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
