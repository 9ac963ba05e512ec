package services

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lead-console/internal/metrics"
	"lead-console/internal/models"
	"lead-console/internal/wsnotify"
)

// DispositionEngine moves records between idle, ongoing, treated and missed
// for one operator. A book stores a single state per record, so every
// transition is exclusive. Daily counters only move on a real change of
// state: calling a transition into the state a record is already in leaves
// the counters alone.
type DispositionEngine struct {
	sessions *SessionStore
	datasets *DatasetStore
	callers  *CallerService
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispositionEngine(sessions *SessionStore, datasets *DatasetStore, callers *CallerService, location *time.Location, logger *zap.Logger) *DispositionEngine {
	if location == nil {
		location = time.UTC
	}
	e := &DispositionEngine{
		sessions: sessions,
		datasets: datasets,
		callers:  callers,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
	datasets.OnDelete(e.ForgetDataset)
	callers.OnDeactivate(e.PurgeCaller)
	return e
}

// DayKey is the operator-local calendar day of t.
func (e *DispositionEngine) DayKey(t time.Time) string {
	return t.In(e.location).Format("2006-01-02")
}

// MarkOngoing assigns the record to an active caller. Calling it again with
// another caller reassigns the record without counting a second ongoing entry.
func (e *DispositionEngine) MarkOngoing(operatorID int64, dataset, recordID, callerID string) (*models.Assignment, error) {
	if _, err := e.datasets.FindByID(dataset, recordID); err != nil {
		return nil, err
	}
	caller, err := e.callers.Active(callerID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	assignment := models.Assignment{CallerID: caller.ID, CallerName: caller.Name, Since: now.UTC()}
	changed := false
	err = e.sessions.Update(operatorID, func(s *models.OperatorSession) error {
		if err := e.recordExists(dataset, recordID); err != nil {
			return err
		}
		book := s.Book(dataset)
		book.Assignments[recordID] = assignment
		book.LastCallers[recordID] = assignment
		if book.States[recordID] != models.DispositionOngoing {
			book.States[recordID] = models.DispositionOngoing
			s.Day(e.DayKey(now)).Ongoing++
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.transitioned(operatorID, dataset, recordID, models.DispositionOngoing, changed, assignment.CallerID, assignment.CallerName, now)
	return &assignment, nil
}

func (e *DispositionEngine) MarkTreated(operatorID int64, dataset, recordID string) error {
	return e.close(operatorID, dataset, recordID, models.DispositionTreated)
}

func (e *DispositionEngine) MarkMissed(operatorID int64, dataset, recordID string) error {
	return e.close(operatorID, dataset, recordID, models.DispositionMissed)
}

// close moves a record to treated or missed, releasing its ongoing assignment
// into the last-caller map.
func (e *DispositionEngine) close(operatorID int64, dataset, recordID string, target models.Disposition) error {
	if _, err := e.datasets.FindByID(dataset, recordID); err != nil {
		return err
	}

	now := e.now()
	changed := false
	var last models.Assignment
	err := e.sessions.Update(operatorID, func(s *models.OperatorSession) error {
		if err := e.recordExists(dataset, recordID); err != nil {
			return err
		}
		book := s.Book(dataset)
		if book.States[recordID] == target {
			return errUnchanged
		}
		released := false
		if a, ok := book.Assignments[recordID]; ok {
			a.Since = now.UTC()
			book.LastCallers[recordID] = a
			delete(book.Assignments, recordID)
			released = true
		}
		last = book.LastCallers[recordID]

		book.States[recordID] = target
		day := s.Day(e.DayKey(now))
		switch target {
		case models.DispositionTreated:
			day.Treated++
			// Only the caller released by this transition handled the call.
			if released {
				book.TreatedAudit[recordID] = append(book.TreatedAudit[recordID], models.TreatedEntry{
					CallerID: last.CallerID,
					At:       now.UTC(),
				})
			}
		case models.DispositionMissed:
			day.Missed++
		}
		changed = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		err = nil
	}
	if err != nil {
		return err
	}
	e.transitioned(operatorID, dataset, recordID, target, changed, last.CallerID, last.CallerName, now)
	return nil
}

// recordExists runs under the operator lock so a dataset deleted after the
// first lookup does not get its book recreated.
func (e *DispositionEngine) recordExists(dataset, recordID string) error {
	_, err := e.datasets.FindByID(dataset, recordID)
	return err
}

func (e *DispositionEngine) transitioned(operatorID int64, dataset, recordID string, state models.Disposition, changed bool, callerID, callerName string, at time.Time) {
	if !changed {
		e.logger.Debug("disposition unchanged",
			zap.Int64("operator_id", operatorID),
			zap.String("dataset", dataset),
			zap.String("record_id", recordID),
			zap.Stringer("state", state))
		return
	}
	metrics.DispositionTransitionsTotal.WithLabelValues(state.String()).Inc()
	e.logger.Info("disposition changed",
		zap.Int64("operator_id", operatorID),
		zap.String("dataset", dataset),
		zap.String("record_id", recordID),
		zap.Stringer("state", state),
		zap.String("caller_id", callerID))
	wsnotify.SendDispositionEvent(operatorID, dataset, recordID, state.String(), callerID, callerName, at)
}

func (e *DispositionEngine) book(operatorID int64, dataset string) (*models.DispositionBook, error) {
	s, err := e.sessions.View(operatorID)
	if err != nil {
		return nil, err
	}
	return s.Book(dataset), nil
}

func (e *DispositionEngine) StateOf(operatorID int64, dataset, recordID string) (models.Disposition, error) {
	book, err := e.book(operatorID, dataset)
	if err != nil {
		return models.DispositionIdle, err
	}
	return book.StateOf(recordID), nil
}

// AssignmentOf returns the current ongoing assignment of a record, if any.
func (e *DispositionEngine) AssignmentOf(operatorID int64, dataset, recordID string) (*models.Assignment, error) {
	book, err := e.book(operatorID, dataset)
	if err != nil {
		return nil, err
	}
	a, ok := book.Assignments[recordID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// LastCallerOf returns the last caller that handled a record, kept after the
// record leaves ongoing.
func (e *DispositionEngine) LastCallerOf(operatorID int64, dataset, recordID string) (*models.Assignment, error) {
	book, err := e.book(operatorID, dataset)
	if err != nil {
		return nil, err
	}
	a, ok := book.LastCallers[recordID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Records returns the ids in a state, ordered by position.
func (e *DispositionEngine) Records(operatorID int64, dataset string, state models.Disposition) ([]string, error) {
	book, err := e.book(operatorID, dataset)
	if err != nil {
		return nil, err
	}
	ids := book.IDsIn(state)
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids, nil
}

// CallerCounts returns how many records the caller holds right now across the
// operator's datasets and how many it treated today.
func (e *DispositionEngine) CallerCounts(operatorID int64, callerID string) (ongoingNow int, treatedToday int, err error) {
	s, err := e.sessions.View(operatorID)
	if err != nil {
		return 0, 0, err
	}
	today := e.DayKey(e.now())
	for _, book := range s.Datasets {
		if book == nil {
			continue
		}
		for _, a := range book.Assignments {
			if a.CallerID == callerID {
				ongoingNow++
			}
		}
		for _, entries := range book.TreatedAudit {
			for _, entry := range entries {
				if entry.CallerID == callerID && e.DayKey(entry.At) == today {
					treatedToday++
				}
			}
		}
	}
	return ongoingNow, treatedToday, nil
}

// Today returns the operator's counters for the current day.
func (e *DispositionEngine) Today(operatorID int64) (models.DailyStats, error) {
	s, err := e.sessions.View(operatorID)
	if err != nil {
		return models.DailyStats{}, err
	}
	if stats, ok := s.Daily[e.DayKey(e.now())]; ok && stats != nil {
		return *stats, nil
	}
	return models.DailyStats{}, nil
}

// ForgetDataset drops every operator's dispositions for a deleted dataset.
func (e *DispositionEngine) ForgetDataset(name string) error {
	return e.sessions.UpdateAll(func(s *models.OperatorSession) bool {
		changed := false
		if _, ok := s.Datasets[name]; ok {
			delete(s.Datasets, name)
			changed = true
		}
		if s.ActiveDataset == name {
			s.ActiveDataset = ""
			changed = true
		}
		if s.Pending != nil && s.Pending.Dataset == name {
			s.Pending = nil
			changed = true
		}
		return changed
	})
}

// PurgeCaller removes a caller's current assignments. The records keep their
// state and the last-caller history is untouched.
func (e *DispositionEngine) PurgeCaller(callerID string) error {
	return e.sessions.UpdateAll(func(s *models.OperatorSession) bool {
		changed := false
		for _, book := range s.Datasets {
			if book == nil {
				continue
			}
			for id, a := range book.Assignments {
				if a.CallerID == callerID {
					delete(book.Assignments, id)
					changed = true
				}
			}
		}
		return changed
	})
}
