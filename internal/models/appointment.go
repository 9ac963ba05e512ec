package models

import "time"

type Appointment struct {
	ID           string     `json:"id"`
	RecordID     string     `json:"record_id"`
	DatasetName  string     `json:"dataset_name"`
	OperatorID   int64      `json:"operator_id"`
	At           time.Time  `json:"at"`
	RemindAt     time.Time  `json:"remind_at"`
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	NotifyTarget string     `json:"notify_target"`
	CreatedAt    time.Time  `json:"created_at"`
}

type AppointmentRepository interface {
	Save(appointment *Appointment) error
	Get(id string) (*Appointment, error)
	// DeleteUnsent removes the appointment only while its reminder is unsent and
	// reports whether a row was removed.
	DeleteUnsent(id string) (bool, error)
	ListByRecord(datasetName, recordID string) ([]*Appointment, error)
	// ListDue returns unsent appointments whose reminder time is not after now,
	// oldest reminder first.
	ListDue(now time.Time) ([]*Appointment, error)
	// MarkSent flips sent from false to true and reports whether this call did
	// the flip.
	MarkSent(id string, at time.Time) (bool, error)
	DeleteByDataset(datasetName string) error
}
