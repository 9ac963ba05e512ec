package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lead-console/internal/models"
)

func TestScheduleRollsPastTimeForward(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT", Mobile: "0612345678"})
	now := env.clock.Now()

	tests := map[string]struct {
		at       time.Time
		expected time.Time
		err      error
	}{
		"future today": {
			at:       now.Add(2 * time.Hour),
			expected: now.Add(2 * time.Hour),
		},
		"earlier today moves to tomorrow": {
			at:       now.Add(-time.Hour),
			expected: now.Add(23 * time.Hour),
		},
		"exactly now moves to tomorrow": {
			at:       now,
			expected: now.AddDate(0, 0, 1),
		},
		"two days ago stays past": {
			at:  now.AddDate(0, 0, -2),
			err: models.ErrAppointmentInPast,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", tc.at, "chat")
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, a.At.Equal(tc.expected), "at %s", a.At)
			assert.True(t, a.RemindAt.Equal(tc.expected.Add(-DefaultReminderLeadTime)))
			assert.False(t, a.Sent)
		})
	}

	_, err := env.scheduler.Schedule(operator, DefaultDatasetName, "7", now.Add(time.Hour), "chat")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestScheduleUpdatesNextAppointment(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})
	now := env.clock.Now()

	late, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", now.Add(3*time.Hour), "chat")
	require.NoError(t, err)
	early, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", now.Add(time.Hour), "chat")
	require.NoError(t, err)

	record, err := env.datasets.FindByID(DefaultDatasetName, "1")
	require.NoError(t, err)
	require.NotNil(t, record.NextAppointmentAt)
	assert.True(t, record.NextAppointmentAt.Equal(early.At))

	_, err = env.scheduler.Cancel(early.ID)
	require.NoError(t, err)
	record, err = env.datasets.FindByID(DefaultDatasetName, "1")
	require.NoError(t, err)
	require.NotNil(t, record.NextAppointmentAt)
	assert.True(t, record.NextAppointmentAt.Equal(late.At))

	_, err = env.scheduler.Cancel(early.ID)
	assert.ErrorIs(t, err, models.ErrAppointmentNotFound)
}

func TestScanFiresOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT", Mobile: "0612345678"})
	now := env.clock.Now()

	a, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", now.Add(3*time.Minute), "33612345678@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, a.RemindAt.Before(now), "reminder is already due")

	n, err := env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Equal(t, 1, env.notifier.count())
	sent := env.notifier.sent[0]
	assert.Equal(t, "33612345678@s.whatsapp.net", sent.target)
	assert.Contains(t, sent.message, "DUPONT")
	assert.Contains(t, sent.message, "10:03")
	require.NotNil(t, sent.action)
	assert.Equal(t, "rec:open:default:1", sent.action.Action)

	stored, err := env.appointments.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Sent)

	_, err = env.scheduler.Cancel(a.ID)
	assert.ErrorIs(t, err, models.ErrAppointmentSent)
}

// racingRepository runs beforeDelete right before each conditional delete.
type racingRepository struct {
	models.AppointmentRepository
	beforeDelete func()
}

func (r *racingRepository) DeleteUnsent(id string) (bool, error) {
	if r.beforeDelete != nil {
		r.beforeDelete()
	}
	return r.AppointmentRepository.DeleteUnsent(id)
}

func TestCancelLosesToScanClaim(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT", Mobile: "0612345678"})
	now := env.clock.Now()

	a, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", now.Add(3*time.Minute), "33612345678@s.whatsapp.net")
	require.NoError(t, err)

	fired := 0
	env.scheduler.repo = &racingRepository{
		AppointmentRepository: env.appointments,
		beforeDelete: func() {
			fired, err = env.scheduler.ScanOnce(context.Background())
			require.NoError(t, err)
		},
	}

	_, err = env.scheduler.Cancel(a.ID)
	assert.ErrorIs(t, err, models.ErrAppointmentSent)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, env.notifier.count())

	stored, err := env.appointments.Get(a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "a sent appointment stays for audit")
	assert.True(t, stored.Sent)
}

func TestScanDoesNotRetryFailedDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})
	env.notifier.err = errors.New("transport down")

	_, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", env.clock.Now().Add(time.Minute), "chat")
	require.NoError(t, err)

	n, err := env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, env.notifier.count())
}

func TestScanSkipsFutureReminders(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})

	_, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", env.clock.Now().Add(time.Hour), "chat")
	require.NoError(t, err)

	n, err := env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(56 * time.Minute)
	n, err = env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanSurvivesPanickingNotifier(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "A"}, &models.LeadRecord{LastName: "B"})
	calls := 0
	env.scheduler.notifier = NotifierFunc(func(_ context.Context, target, _ string, _ *models.Button) error {
		calls++
		if target == "boom" {
			panic("boom")
		}
		return nil
	})

	_, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", env.clock.Now().Add(time.Minute), "boom")
	require.NoError(t, err)
	_, err = env.scheduler.Schedule(operator, DefaultDatasetName, "2", env.clock.Now().Add(2*time.Minute), "ok")
	require.NoError(t, err)

	n, err := env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}

func TestDeletingDatasetDropsAppointments(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.datasets.Create("other")
	require.NoError(t, err)
	_, err = env.datasets.Import("other", []*models.LeadRecord{{LastName: "A"}}, 0)
	require.NoError(t, err)
	a, err := env.scheduler.Schedule(operator, "other", "1", env.clock.Now().Add(time.Minute), "chat")
	require.NoError(t, err)

	require.NoError(t, env.datasets.Delete("other"))

	stored, err := env.appointments.Get(a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	n, err := env.scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})
	_, err := env.scheduler.Schedule(operator, DefaultDatasetName, "1", env.clock.Now().Add(time.Minute), "chat")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.scheduler.Run(ctx) }()

	require.Eventually(t, func() bool { return env.notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, env.notifier.count())
}
