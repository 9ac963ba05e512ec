package models

import "time"

// Disposition is the call outcome of a record for one operator. Idle is the
// zero value and is never stored.
type Disposition int

const (
	DispositionIdle Disposition = iota
	DispositionOngoing
	DispositionTreated
	DispositionMissed
)

func (d Disposition) String() string {
	switch d {
	case DispositionOngoing:
		return "ongoing"
	case DispositionTreated:
		return "treated"
	case DispositionMissed:
		return "missed"
	default:
		return "idle"
	}
}

type PendingKind string

const (
	PendingDatasetName       PendingKind = "dataset_name"
	PendingImportTarget      PendingKind = "import_target"
	PendingSearchNumber      PendingKind = "search_number"
	PendingNoteTarget        PendingKind = "note_target"
	PendingAppointmentTarget PendingKind = "appointment_target"
	PendingCallerName        PendingKind = "caller_name"
)

// PendingInput is the single text reply an operator is expected to send next.
type PendingInput struct {
	Kind     PendingKind `json:"kind"`
	Dataset  string      `json:"dataset,omitempty"`
	RecordID string      `json:"record_id,omitempty"`
}

type DailyStats struct {
	Treated int `json:"treated"`
	Missed  int `json:"missed"`
	Ongoing int `json:"ongoing"`
}

type Assignment struct {
	CallerID   string    `json:"caller_id"`
	CallerName string    `json:"caller_name"`
	Since      time.Time `json:"since"`
}

type TreatedEntry struct {
	CallerID string    `json:"caller_id"`
	At       time.Time `json:"at"`
}

// DispositionBook holds one operator's dispositions for one dataset. States
// keeps a single value per record, so a record cannot be in two states.
type DispositionBook struct {
	States       map[string]Disposition    `json:"states"`
	Assignments  map[string]Assignment     `json:"assignments"`
	LastCallers  map[string]Assignment     `json:"last_callers"`
	TreatedAudit map[string][]TreatedEntry `json:"treated_audit"`
}

func NewDispositionBook() *DispositionBook {
	return &DispositionBook{
		States:       make(map[string]Disposition),
		Assignments:  make(map[string]Assignment),
		LastCallers:  make(map[string]Assignment),
		TreatedAudit: make(map[string][]TreatedEntry),
	}
}

// ensure fills maps left nil by a decoded "null".
func (b *DispositionBook) ensure() {
	if b.States == nil {
		b.States = make(map[string]Disposition)
	}
	if b.Assignments == nil {
		b.Assignments = make(map[string]Assignment)
	}
	if b.LastCallers == nil {
		b.LastCallers = make(map[string]Assignment)
	}
	if b.TreatedAudit == nil {
		b.TreatedAudit = make(map[string][]TreatedEntry)
	}
}

func (b *DispositionBook) StateOf(recordID string) Disposition {
	return b.States[recordID]
}

// IDsIn returns the record ids currently in the given state.
func (b *DispositionBook) IDsIn(state Disposition) []string {
	var ids []string
	for id, s := range b.States {
		if s == state {
			ids = append(ids, id)
		}
	}
	return ids
}

type OperatorSession struct {
	OperatorID    int64                       `json:"operator_id"`
	ActiveDataset string                      `json:"active_dataset"`
	Pending       *PendingInput               `json:"pending,omitempty"`
	Daily         map[string]*DailyStats      `json:"daily"`
	Datasets      map[string]*DispositionBook `json:"datasets"`
}

func NewOperatorSession(operatorID int64) *OperatorSession {
	return &OperatorSession{
		OperatorID: operatorID,
		Daily:      make(map[string]*DailyStats),
		Datasets:   make(map[string]*DispositionBook),
	}
}

// Book returns the disposition book for a dataset, creating it if needed.
func (s *OperatorSession) Book(dataset string) *DispositionBook {
	if s.Datasets == nil {
		s.Datasets = make(map[string]*DispositionBook)
	}
	book, ok := s.Datasets[dataset]
	if !ok || book == nil {
		book = NewDispositionBook()
		s.Datasets[dataset] = book
	}
	book.ensure()
	return book
}

// Day returns the stats bucket for a day key (YYYY-MM-DD), creating it if needed.
func (s *OperatorSession) Day(key string) *DailyStats {
	if s.Daily == nil {
		s.Daily = make(map[string]*DailyStats)
	}
	stats, ok := s.Daily[key]
	if !ok {
		stats = &DailyStats{}
		s.Daily[key] = stats
	}
	return stats
}

// SessionRepository stores operator sessions. Get returns nil, nil for an
// unknown operator.
type SessionRepository interface {
	Get(operatorID int64) (*OperatorSession, error)
	Save(session *OperatorSession) error
	ListOperatorIDs() ([]int64, error)
}

func (b *DispositionBook) Clone() *DispositionBook {
	c := NewDispositionBook()
	for id, s := range b.States {
		c.States[id] = s
	}
	for id, a := range b.Assignments {
		c.Assignments[id] = a
	}
	for id, a := range b.LastCallers {
		c.LastCallers[id] = a
	}
	for id, entries := range b.TreatedAudit {
		c.TreatedAudit[id] = append([]TreatedEntry(nil), entries...)
	}
	return c
}

func (s *OperatorSession) Clone() *OperatorSession {
	c := NewOperatorSession(s.OperatorID)
	c.ActiveDataset = s.ActiveDataset
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	for day, stats := range s.Daily {
		st := *stats
		c.Daily[day] = &st
	}
	for name, book := range s.Datasets {
		c.Datasets[name] = book.Clone()
	}
	return c
}
