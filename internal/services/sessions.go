package services

import (
	"errors"
	"fmt"
	"strconv"

	"lead-console/internal/models"
)

// SessionStore serializes access to operator sessions. Every read-modify-write
// of a session goes through Update, which holds that operator's lock.
type SessionStore struct {
	repo  models.SessionRepository
	locks *keyedMutex
}

func NewSessionStore(repo models.SessionRepository) *SessionStore {
	return &SessionStore{repo: repo, locks: newKeyedMutex()}
}

func (s *SessionStore) load(operatorID int64) (*models.OperatorSession, error) {
	session, err := s.repo.Get(operatorID)
	if err != nil {
		return nil, fmt.Errorf("error loading session %d: %w", operatorID, err)
	}
	if session == nil {
		session = models.NewOperatorSession(operatorID)
	}
	return session, nil
}

// View returns a snapshot of the session; a new operator gets an empty one.
func (s *SessionStore) View(operatorID int64) (*models.OperatorSession, error) {
	unlock := s.locks.Lock(strconv.FormatInt(operatorID, 10))
	defer unlock()
	return s.load(operatorID)
}

// Update applies fn to the session and saves it when fn succeeds.
func (s *SessionStore) Update(operatorID int64, fn func(*models.OperatorSession) error) error {
	unlock := s.locks.Lock(strconv.FormatInt(operatorID, 10))
	defer unlock()

	session, err := s.load(operatorID)
	if err != nil {
		return err
	}
	if err := fn(session); err != nil {
		return err
	}
	if err := s.repo.Save(session); err != nil {
		return fmt.Errorf("error saving session %d: %w", operatorID, err)
	}
	return nil
}

// UpdateAll applies fn to every stored session and saves those it changed.
func (s *SessionStore) UpdateAll(fn func(*models.OperatorSession) bool) error {
	ids, err := s.repo.ListOperatorIDs()
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	for _, id := range ids {
		err := s.Update(id, func(session *models.OperatorSession) error {
			if !fn(session) {
				return errUnchanged
			}
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) {
			return err
		}
	}
	return nil
}

var errUnchanged = errors.New("session unchanged")
