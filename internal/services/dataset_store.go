package services

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lead-console/internal/metrics"
	"lead-console/internal/models"
	"lead-console/internal/utils"
)

const DefaultDatasetName = "default"

var datasetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,40}$`)

// DatasetStore owns the named datasets. Mutations of one dataset are
// serialized; creating and deleting datasets is serialized globally so the
// "at least one dataset" rule cannot race.
type DatasetStore struct {
	repo    models.DatasetRepository
	locks   *keyedMutex
	members sync.Mutex
	hookMu  sync.RWMutex
	hooks   []func(name string) error
	logger  *zap.Logger
	now     func() time.Time
}

func NewDatasetStore(repo models.DatasetRepository, logger *zap.Logger) *DatasetStore {
	return &DatasetStore{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// OnDelete registers a cascade run after a dataset is deleted.
func (s *DatasetStore) OnDelete(fn func(name string) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func ValidDatasetName(name string) bool {
	return datasetNamePattern.MatchString(name)
}

func (s *DatasetStore) Create(name string) (*models.Dataset, error) {
	name = strings.TrimSpace(name)
	if !ValidDatasetName(name) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDatasetName, name)
	}

	s.members.Lock()
	defer s.members.Unlock()

	existing, err := s.repo.Get(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrDatasetExists, name)
	}

	dataset := &models.Dataset{
		Name:         name,
		RegionCounts: make(map[string]int),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(dataset); err != nil {
		return nil, err
	}
	s.logger.Info("dataset created", zap.String("dataset", name))
	return dataset, nil
}

// EnsureDefault creates the default dataset when none exists.
func (s *DatasetStore) EnsureDefault() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return nil
	}
	_, err = s.Create(DefaultDatasetName)
	if errors.Is(err, models.ErrDatasetExists) {
		return nil
	}
	return err
}

func (s *DatasetStore) Delete(name string) error {
	s.members.Lock()
	defer s.members.Unlock()

	names, err := s.repo.List()
	if err != nil {
		return err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", models.ErrDatasetNotFound, name)
	}
	if len(names) <= 1 {
		return models.ErrLastDataset
	}

	unlock := s.locks.Lock(name)
	err = s.repo.Delete(name)
	unlock()
	if err != nil {
		return err
	}
	s.logger.Info("dataset deleted", zap.String("dataset", name))

	s.hookMu.RLock()
	hooks := append([]func(string) error(nil), s.hooks...)
	s.hookMu.RUnlock()

	var cascadeErr error
	for _, hook := range hooks {
		if err := hook(name); err != nil {
			s.logger.Error("dataset delete cascade failed", zap.String("dataset", name), zap.Error(err))
			if cascadeErr == nil {
				cascadeErr = fmt.Errorf("error cascading delete of %s: %w", name, err)
			}
		}
	}
	return cascadeErr
}

func (s *DatasetStore) List() ([]string, error) {
	names, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *DatasetStore) get(name string) (*models.Dataset, error) {
	dataset, err := s.repo.Get(name)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrDatasetNotFound, name)
	}
	return dataset, nil
}

// Get returns the dataset with its records.
func (s *DatasetStore) Get(name string) (*models.Dataset, error) {
	return s.get(name)
}

// Open returns the dataset aggregates, failing when it does not exist.
func (s *DatasetStore) Open(name string) (*models.Dataset, error) {
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return dataset.Summary(), nil
}

// Import appends records in order, assigning each the next position as id, and
// rewrites the aggregates in the same repository call. It returns the number of
// records added. The records are copied; the caller's slice is not modified.
func (s *DatasetStore) Import(name string, records []*models.LeadRecord, byteSize int64) (int, error) {
	defer utils.TimeTrack(time.Now(), "dataset import")

	unlock := s.locks.Lock(name)
	defer unlock()

	dataset, err := s.get(name)
	if err != nil {
		return 0, err
	}

	added := make([]*models.LeadRecord, 0, len(records))
	next := len(dataset.Records)
	for _, r := range records {
		if r == nil || !r.HasIdentity() {
			continue
		}
		next++
		c := r.Clone()
		c.ID = strconv.Itoa(next)
		c.NextAppointmentAt = nil
		added = append(added, c)
	}

	now := s.now().UTC()
	all := append(dataset.Records, added...)
	recomputeAggregates(dataset, all)
	dataset.ImportedByteSize += byteSize
	dataset.LastImportAt = &now

	if err := s.repo.AppendRecords(dataset, added); err != nil {
		return 0, err
	}
	metrics.ImportBytesTotal.Add(float64(byteSize))
	s.logger.Info("records imported",
		zap.String("dataset", name),
		zap.Int("added", len(added)),
		zap.Int("record_count", dataset.RecordCount))
	return len(added), nil
}

// Append adds a single record and returns it with its id.
func (s *DatasetStore) Append(name string, record *models.LeadRecord) (*models.LeadRecord, error) {
	if record == nil || !record.HasIdentity() {
		return nil, errors.New("record has no identity")
	}
	if _, err := s.Import(name, []*models.LeadRecord{record}, 0); err != nil {
		return nil, err
	}
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return dataset.Records[len(dataset.Records)-1], nil
}

func recomputeAggregates(dataset *models.Dataset, records []*models.LeadRecord) {
	dataset.RecordCount = len(records)
	dataset.PhoneCount = 0
	dataset.RegionCounts = make(map[string]int)
	for _, r := range records {
		dataset.PhoneCount += len(r.Phones())
		if r.Region != "" {
			dataset.RegionCounts[r.Region]++
		}
	}
}

func findRecord(dataset *models.Dataset, id string) (*models.LeadRecord, bool) {
	// Ids are positions, so try the direct index first.
	if pos, err := strconv.Atoi(id); err == nil && pos >= 1 && pos <= len(dataset.Records) {
		if r := dataset.Records[pos-1]; r.ID == id {
			return r, true
		}
	}
	for _, r := range dataset.Records {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (s *DatasetStore) FindByID(name, id string) (*models.LeadRecord, error) {
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	record, ok := findRecord(dataset, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrRecordNotFound, name, id)
	}
	return record, nil
}

// FindByPhone returns every record whose mobile or voip equals the normalized
// query. It is a linear scan over the dataset.
func (s *DatasetStore) FindByPhone(name, raw string) ([]*models.LeadRecord, error) {
	phone, ok := utils.NormalizePhone(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidPhone, raw)
	}
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	var out []*models.LeadRecord
	for _, r := range dataset.Records {
		if r.Mobile == phone || r.VoIP == phone {
			out = append(out, r)
		}
	}
	return out, nil
}

// Records returns the records whose ids are listed, in dataset order. Unknown
// ids are skipped.
func (s *DatasetStore) Records(name string, ids []string) ([]*models.LeadRecord, error) {
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*models.LeadRecord
	for _, r := range dataset.Records {
		if wanted[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *DatasetStore) updateRecord(name, id string, fn func(*models.LeadRecord) error) (*models.LeadRecord, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	record, err := s.FindByID(name, id)
	if err != nil {
		return nil, err
	}
	if err := fn(record); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRecord(name, record); err != nil {
		return nil, err
	}
	return record, nil
}

// AddNote appends a note; notes are never edited or reordered.
func (s *DatasetStore) AddNote(name, id, note string) (*models.LeadRecord, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, models.ErrEmptyNote
	}
	return s.updateRecord(name, id, func(r *models.LeadRecord) error {
		r.Notes = append(r.Notes, note)
		return nil
	})
}

// SetNextAppointment stores the cached nearest appointment of a record.
func (s *DatasetStore) SetNextAppointment(name, id string, at *time.Time) error {
	_, err := s.updateRecord(name, id, func(r *models.LeadRecord) error {
		if at == nil {
			r.NextAppointmentAt = nil
			return nil
		}
		t := at.UTC()
		r.NextAppointmentAt = &t
		return nil
	})
	return err
}

// WithNotes returns the records that carry at least one note.
func (s *DatasetStore) WithNotes(name string) ([]*models.LeadRecord, error) {
	dataset, err := s.get(name)
	if err != nil {
		return nil, err
	}
	var out []*models.LeadRecord
	for _, r := range dataset.Records {
		if len(r.Notes) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}
