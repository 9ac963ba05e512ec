package repositories

import (
	"sort"
	"sync"
	"time"

	"lead-console/internal/models"
)

// The memory repositories back tests, the leadctl dry runs and the "memory"
// driver. They hand out copies so callers never alias stored state.

type MemoryDatasetRepository struct {
	mu       sync.RWMutex
	datasets map[string]*models.Dataset
}

func NewMemoryDatasetRepository() *MemoryDatasetRepository {
	return &MemoryDatasetRepository{datasets: make(map[string]*models.Dataset)}
}

func cloneDataset(d *models.Dataset) *models.Dataset {
	c := d.Summary()
	c.Records = make([]*models.LeadRecord, len(d.Records))
	for i, r := range d.Records {
		c.Records[i] = r.Clone()
	}
	if d.LastImportAt != nil {
		at := *d.LastImportAt
		c.LastImportAt = &at
	}
	return c
}

func (r *MemoryDatasetRepository) Create(dataset *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[dataset.Name]; ok {
		return models.ErrDatasetExists
	}
	r.datasets[dataset.Name] = cloneDataset(dataset)
	return nil
}

func (r *MemoryDatasetRepository) Get(name string) (*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[name]
	if !ok {
		return nil, nil
	}
	return cloneDataset(d), nil
}

func (r *MemoryDatasetRepository) List() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasets))
	for name := range r.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MemoryDatasetRepository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.datasets, name)
	return nil
}

func (r *MemoryDatasetRepository) AppendRecords(dataset *models.Dataset, records []*models.LeadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.datasets[dataset.Name]
	if !ok {
		return models.ErrDatasetNotFound
	}
	next := cloneDataset(dataset)
	next.Records = stored.Records
	for _, rec := range records {
		next.Records = append(next.Records, rec.Clone())
	}
	r.datasets[dataset.Name] = next
	return nil
}

func (r *MemoryDatasetRepository) UpdateRecord(datasetName string, record *models.LeadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.datasets[datasetName]
	if !ok {
		return models.ErrDatasetNotFound
	}
	for i, rec := range stored.Records {
		if rec.ID == record.ID {
			stored.Records[i] = record.Clone()
			return nil
		}
	}
	return models.ErrRecordNotFound
}

type MemoryCallerRepository struct {
	mu      sync.RWMutex
	callers map[string]*models.Caller
}

func NewMemoryCallerRepository() *MemoryCallerRepository {
	return &MemoryCallerRepository{callers: make(map[string]*models.Caller)}
}

func (r *MemoryCallerRepository) Save(caller *models.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *caller
	r.callers[caller.ID] = &c
	return nil
}

func (r *MemoryCallerRepository) Get(id string) (*models.Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCallerRepository) List() ([]*models.Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	callers := make([]*models.Caller, 0, len(r.callers))
	for _, c := range r.callers {
		cp := *c
		callers = append(callers, &cp)
	}
	sort.Slice(callers, func(i, j int) bool {
		if callers[i].CreatedAt.Equal(callers[j].CreatedAt) {
			return callers[i].Name < callers[j].Name
		}
		return callers[i].CreatedAt.Before(callers[j].CreatedAt)
	})
	return callers, nil
}

func (r *MemoryCallerRepository) Update(caller *models.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callers[caller.ID]; !ok {
		return models.ErrCallerNotFound
	}
	c := *caller
	r.callers[caller.ID] = &c
	return nil
}

type MemoryAppointmentRepository struct {
	mu           sync.Mutex
	appointments map[string]*models.Appointment
}

func NewMemoryAppointmentRepository() *MemoryAppointmentRepository {
	return &MemoryAppointmentRepository{appointments: make(map[string]*models.Appointment)}
}

func copyAppointment(a *models.Appointment) *models.Appointment {
	c := *a
	if a.SentAt != nil {
		at := *a.SentAt
		c.SentAt = &at
	}
	return &c
}

func (r *MemoryAppointmentRepository) Save(appointment *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[appointment.ID] = copyAppointment(appointment)
	return nil
}

func (r *MemoryAppointmentRepository) Get(id string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, nil
	}
	return copyAppointment(a), nil
}

func (r *MemoryAppointmentRepository) DeleteUnsent(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Sent {
		return false, nil
	}
	delete(r.appointments, id)
	return true, nil
}

func (r *MemoryAppointmentRepository) ListByRecord(datasetName, recordID string) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appointments {
		if a.DatasetName == datasetName && a.RecordID == recordID {
			out = append(out, copyAppointment(a))
		}
	}
	sortByTime(out, func(a *models.Appointment) time.Time { return a.At })
	return out, nil
}

func (r *MemoryAppointmentRepository) ListDue(now time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appointments {
		if !a.Sent && !a.RemindAt.After(now) {
			out = append(out, copyAppointment(a))
		}
	}
	sortByTime(out, func(a *models.Appointment) time.Time { return a.RemindAt })
	return out, nil
}

func (r *MemoryAppointmentRepository) MarkSent(id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Sent {
		return false, nil
	}
	a.Sent = true
	sentAt := at
	a.SentAt = &sentAt
	return true, nil
}

func (r *MemoryAppointmentRepository) DeleteByDataset(datasetName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.appointments {
		if a.DatasetName == datasetName {
			delete(r.appointments, id)
		}
	}
	return nil
}

func sortByTime(list []*models.Appointment, key func(*models.Appointment) time.Time) {
	sort.Slice(list, func(i, j int) bool {
		ti, tj := key(list[i]), key(list[j])
		if ti.Equal(tj) {
			return list[i].ID < list[j].ID
		}
		return ti.Before(tj)
	})
}

// MemorySessionRepository keeps deep copies of sessions.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[int64]*models.OperatorSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[int64]*models.OperatorSession)}
}

func (r *MemorySessionRepository) Get(operatorID int64) (*models.OperatorSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[operatorID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepository) Save(session *models.OperatorSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.OperatorID] = session.Clone()
	return nil
}

func (r *MemorySessionRepository) ListOperatorIDs() ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
