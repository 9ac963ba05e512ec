package models

import (
	"strings"
	"time"
)

type LeadRecord struct {
	ID                string     `json:"id"`
	LastName          string     `json:"last_name,omitempty"`
	FirstName         string     `json:"first_name,omitempty"`
	RawFullName       string     `json:"raw_full_name,omitempty"`
	Mobile            string     `json:"mobile,omitempty"`
	VoIP              string     `json:"voip,omitempty"`
	Email             string     `json:"email,omitempty"`
	Address           string     `json:"address,omitempty"`
	City              string     `json:"city,omitempty"`
	PostalCode        string     `json:"postal_code,omitempty"`
	Region            string     `json:"region,omitempty"`
	IBAN              string     `json:"iban,omitempty"`
	BIC               string     `json:"bic,omitempty"`
	BirthDate         string     `json:"birth_date,omitempty"`
	Status            string     `json:"status,omitempty"`
	Notes             []string   `json:"notes,omitempty"`
	NextAppointmentAt *time.Time `json:"next_appointment_at,omitempty"`
}

// HasIdentity reports whether the record carries at least one field that makes
// it worth keeping. Records without identity are never materialized.
func (r *LeadRecord) HasIdentity() bool {
	return r.Mobile != "" || r.VoIP != "" || r.Email != "" || r.HasName() || r.IBAN != ""
}

func (r *LeadRecord) HasName() bool {
	return r.LastName != "" || r.FirstName != "" || r.RawFullName != ""
}

// Phones returns the non-empty canonical numbers of the record, mobile first.
func (r *LeadRecord) Phones() []string {
	phones := make([]string, 0, 2)
	if r.Mobile != "" {
		phones = append(phones, r.Mobile)
	}
	if r.VoIP != "" {
		phones = append(phones, r.VoIP)
	}
	return phones
}

func (r *LeadRecord) DisplayName() string {
	if r.RawFullName != "" {
		return r.RawFullName
	}
	name := strings.TrimSpace(r.LastName + " " + r.FirstName)
	if name != "" {
		return name
	}
	if len(r.Phones()) > 0 {
		return r.Phones()[0]
	}
	if r.Email != "" {
		return r.Email
	}
	return "fiche " + r.ID
}

func (r *LeadRecord) Clone() *LeadRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Notes != nil {
		c.Notes = append([]string(nil), r.Notes...)
	}
	if r.NextAppointmentAt != nil {
		at := *r.NextAppointmentAt
		c.NextAppointmentAt = &at
	}
	return &c
}
