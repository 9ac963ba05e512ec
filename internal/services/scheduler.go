package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lead-console/internal/metrics"
	"lead-console/internal/models"
	"lead-console/internal/wsnotify"
)

const (
	DefaultReminderLeadTime = 5 * time.Minute
	DefaultScanInterval     = 30 * time.Second
)

type SchedulerConfig struct {
	LeadTime time.Duration
	Interval time.Duration
	// Location formats times in reminder messages.
	Location *time.Location
	Now      func() time.Time
}

// Scheduler stores callbacks and fires their reminders at most once. The scan
// claims an appointment by flipping its sent flag before notifying, so a
// failed delivery is never retried and an interrupted scan never repeats one.
type Scheduler struct {
	repo     models.AppointmentRepository
	datasets *DatasetStore
	notifier Notifier
	leadTime time.Duration
	interval time.Duration
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewScheduler(repo models.AppointmentRepository, datasets *DatasetStore, notifier Notifier, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = DefaultReminderLeadTime
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScanInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Scheduler{
		repo:     repo,
		datasets: datasets,
		notifier: notifier,
		leadTime: cfg.LeadTime,
		interval: cfg.Interval,
		location: cfg.Location,
		now:      cfg.Now,
		logger:   logger,
	}
	datasets.OnDelete(repo.DeleteByDataset)
	return s
}

// Schedule books a callback. A time that is not in the future is moved to the
// same time on the next day; if that is still past the request is rejected.
func (s *Scheduler) Schedule(operatorID int64, dataset, recordID string, at time.Time, target string) (*models.Appointment, error) {
	if _, err := s.datasets.FindByID(dataset, recordID); err != nil {
		return nil, err
	}

	now := s.now()
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
		if !at.After(now) {
			return nil, fmt.Errorf("%w: %s", models.ErrAppointmentInPast, at.Format(time.RFC3339))
		}
	}

	appointment := &models.Appointment{
		ID:           uuid.NewString(),
		RecordID:     recordID,
		DatasetName:  dataset,
		OperatorID:   operatorID,
		At:           at.UTC(),
		RemindAt:     at.Add(-s.leadTime).UTC(),
		NotifyTarget: target,
		CreatedAt:    now.UTC(),
	}
	if err := s.repo.Save(appointment); err != nil {
		return nil, err
	}
	if err := s.refreshNext(dataset, recordID); err != nil {
		return nil, err
	}

	s.logger.Info("appointment scheduled",
		zap.String("appointment_id", appointment.ID),
		zap.String("dataset", dataset),
		zap.String("record_id", recordID),
		zap.Time("at", appointment.At))
	return appointment, nil
}

// Cancel removes an unsent appointment.
func (s *Scheduler) Cancel(id string) (*models.Appointment, error) {
	appointment, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if appointment == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrAppointmentNotFound, id)
	}
	if appointment.Sent {
		return nil, fmt.Errorf("%w: %s", models.ErrAppointmentSent, id)
	}
	// The scan may claim it between the read above and the delete.
	deleted, err := s.repo.DeleteUnsent(id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, fmt.Errorf("%w: %s", models.ErrAppointmentSent, id)
	}
	if err := s.refreshNext(appointment.DatasetName, appointment.RecordID); err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	s.logger.Info("appointment cancelled", zap.String("appointment_id", id))
	return appointment, nil
}

func (s *Scheduler) ListForRecord(dataset, recordID string) ([]*models.Appointment, error) {
	return s.repo.ListByRecord(dataset, recordID)
}

// refreshNext recomputes the record's cached next appointment from the
// remaining unsent future appointments.
func (s *Scheduler) refreshNext(dataset, recordID string) error {
	appointments, err := s.repo.ListByRecord(dataset, recordID)
	if err != nil {
		return err
	}
	now := s.now()
	var next *time.Time
	for _, a := range appointments {
		if a.Sent || !a.At.After(now) {
			continue
		}
		if next == nil || a.At.Before(*next) {
			at := a.At
			next = &at
		}
	}
	return s.datasets.SetNextAppointment(dataset, recordID, next)
}

// ScanOnce fires every due reminder and returns how many were delivered. A
// failing appointment is logged and skipped.
func (s *Scheduler) ScanOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds()) }()

	due, err := s.repo.ListDue(s.now())
	if err != nil {
		metrics.ScanErrorsTotal.Inc()
		return 0, fmt.Errorf("error listing due appointments: %w", err)
	}

	delivered := 0
	for _, appointment := range due {
		if ctx.Err() != nil {
			break
		}
		if s.fire(ctx, appointment) {
			delivered++
		}
	}
	return delivered, nil
}

func (s *Scheduler) fire(ctx context.Context, appointment *models.Appointment) (delivered bool) {
	log := s.logger.With(
		zap.String("appointment_id", appointment.ID),
		zap.String("dataset", appointment.DatasetName),
		zap.String("record_id", appointment.RecordID))

	defer func() {
		if r := recover(); r != nil {
			metrics.ScanErrorsTotal.Inc()
			log.Error("reminder panicked", zap.Any("panic", r))
			delivered = false
		}
	}()

	claimed, err := s.repo.MarkSent(appointment.ID, s.now().UTC())
	if err != nil {
		metrics.ScanErrorsTotal.Inc()
		log.Error("failed to claim appointment", zap.Error(err))
		return false
	}
	if !claimed {
		metrics.RemindersTotal.WithLabelValues("skipped").Inc()
		return false
	}

	message, action := s.reminderMessage(appointment)
	notifyErr := s.notifier.Notify(ctx, appointment.NotifyTarget, message, action)
	if notifyErr != nil {
		metrics.RemindersTotal.WithLabelValues("failed").Inc()
		log.Warn("reminder not delivered", zap.String("target", appointment.NotifyTarget), zap.Error(notifyErr))
	} else {
		metrics.RemindersTotal.WithLabelValues("sent").Inc()
		log.Info("reminder sent", zap.String("target", appointment.NotifyTarget))
	}
	wsnotify.SendReminderEvent(appointment.ID, appointment.OperatorID, appointment.DatasetName,
		appointment.RecordID, appointment.At, notifyErr)

	if err := s.refreshNext(appointment.DatasetName, appointment.RecordID); err != nil {
		log.Warn("failed to refresh next appointment", zap.Error(err))
	}
	return notifyErr == nil
}

func (s *Scheduler) reminderMessage(a *models.Appointment) (string, *models.Button) {
	at := a.At.In(s.location).Format("02/01 15:04")
	action := &models.Button{
		Label:  "Ouvrir la fiche",
		Action: models.Action("rec", "open", a.DatasetName, a.RecordID),
	}
	record, err := s.datasets.FindByID(a.DatasetName, a.RecordID)
	if err != nil {
		return fmt.Sprintf("⏰ Rappel : rendez-vous à %s (fiche %s, base %s)", at, a.RecordID, a.DatasetName), action
	}
	msg := fmt.Sprintf("⏰ Rappel : rendez-vous à %s avec %s", at, record.DisplayName())
	if phones := record.Phones(); len(phones) > 0 {
		msg += " (" + phones[0] + ")"
	}
	return msg, action
}

// Run scans on every tick until ctx is cancelled. Scan errors are logged and
// never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.Duration("lead_time", s.leadTime))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.safeScan(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) safeScan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ScanErrorsTotal.Inc()
			s.logger.Error("scan panicked", zap.Any("panic", r))
		}
	}()
	if n, err := s.ScanOnce(ctx); err != nil {
		s.logger.Error("scan failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("scan delivered reminders", zap.Int("count", n))
	}
}
