package models

import "time"

type Caller struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CallerRepository interface {
	Save(caller *Caller) error
	Get(id string) (*Caller, error)
	List() ([]*Caller, error)
	Update(caller *Caller) error
}
