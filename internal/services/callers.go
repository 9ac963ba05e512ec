package services

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lead-console/internal/models"
)

const maxCallerNameLength = 40

// CallerService manages the agents an operator assigns to calls. Callers are
// never deleted, only deactivated.
type CallerService struct {
	repo   models.CallerRepository
	mu     sync.RWMutex
	hooks  []func(callerID string) error
	logger *zap.Logger
	now    func() time.Time
}

func NewCallerService(repo models.CallerRepository, logger *zap.Logger) *CallerService {
	return &CallerService{repo: repo, logger: logger, now: time.Now}
}

// OnDeactivate registers a cascade run after a caller is deactivated.
func (s *CallerService) OnDeactivate(fn func(callerID string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *CallerService) Add(name string) (*models.Caller, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || utf8.RuneCountInString(name) > maxCallerNameLength {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidCallerName, name)
	}
	caller := &models.Caller{
		ID:        uuid.NewString(),
		Name:      name,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Save(caller); err != nil {
		return nil, err
	}
	s.logger.Info("caller added", zap.String("caller_id", caller.ID), zap.String("name", name))
	return caller, nil
}

func (s *CallerService) Get(id string) (*models.Caller, error) {
	caller, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCallerNotFound, id)
	}
	return caller, nil
}

// Active returns the caller only if it exists and is active.
func (s *CallerService) Active(id string) (*models.Caller, error) {
	if id == "" {
		return nil, models.ErrNoActiveCaller
	}
	caller, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !caller.Active {
		return nil, fmt.Errorf("%w: %s is inactive", models.ErrNoActiveCaller, caller.Name)
	}
	return caller, nil
}

func (s *CallerService) List(activeOnly bool) ([]*models.Caller, error) {
	callers, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return callers, nil
	}
	active := callers[:0]
	for _, c := range callers {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

// Deactivate soft-deletes a caller and runs the cascades, which purge its
// current assignments. Deactivating twice is a no-op.
func (s *CallerService) Deactivate(id string) error {
	caller, err := s.Get(id)
	if err != nil {
		return err
	}
	if !caller.Active {
		return nil
	}
	caller.Active = false
	if err := s.repo.Update(caller); err != nil {
		return err
	}
	s.logger.Info("caller deactivated", zap.String("caller_id", id))

	s.mu.RLock()
	hooks := append([]func(string) error(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(id); err != nil {
			return fmt.Errorf("error purging caller %s: %w", id, err)
		}
	}
	return nil
}
