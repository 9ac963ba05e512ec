package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lead-console/internal/models"
	"lead-console/internal/repositories"
)

type sentNotice struct {
	target  string
	message string
	action  *models.Button
}

// recordingNotifier keeps every notification and fails when err is set.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, target, message string, action *models.Button) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{target: target, message: message, action: action})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock        *testClock
	sessionRepo  *repositories.MemorySessionRepository
	appointments *repositories.MemoryAppointmentRepository
	sessions     *SessionStore
	datasets     *DatasetStore
	callers      *CallerService
	engine       *DispositionEngine
	notifier     *recordingNotifier
	scheduler    *Scheduler
	exports      *ExportService
	console      *Console
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	clock := &testClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}

	env := &testEnv{
		clock:        clock,
		sessionRepo:  repositories.NewMemorySessionRepository(),
		appointments: repositories.NewMemoryAppointmentRepository(),
		notifier:     &recordingNotifier{},
	}
	env.sessions = NewSessionStore(env.sessionRepo)
	env.datasets = NewDatasetStore(repositories.NewMemoryDatasetRepository(), logger)
	env.datasets.now = clock.Now
	env.callers = NewCallerService(repositories.NewMemoryCallerRepository(), logger)
	env.callers.now = clock.Now
	env.engine = NewDispositionEngine(env.sessions, env.datasets, env.callers, time.UTC, logger)
	env.engine.now = clock.Now
	env.scheduler = NewScheduler(env.appointments, env.datasets, env.notifier, SchedulerConfig{
		Interval: 10 * time.Millisecond,
		Now:      clock.Now,
	}, logger)
	env.exports = NewExportService(env.datasets, nil)
	env.exports.now = clock.Now
	env.console = NewConsole(env.sessions, env.datasets, env.engine, env.scheduler, env.callers, env.exports, time.UTC, logger)
	env.console.now = clock.Now

	require.NoError(t, env.datasets.EnsureDefault())
	return env
}

// seed imports records into the default dataset.
func (e *testEnv) seed(t *testing.T, records ...*models.LeadRecord) {
	t.Helper()
	_, err := e.datasets.Import(DefaultDatasetName, records, 0)
	require.NoError(t, err)
}

func (e *testEnv) caller(t *testing.T, name string) *models.Caller {
	t.Helper()
	c, err := e.callers.Add(name)
	require.NoError(t, err)
	return c
}
