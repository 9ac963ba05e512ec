// Package export renders datasets as CSV or XLSX and reads the CSV form back.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"lead-console/internal/models"
)

// NotesSeparator joins a record's notes into a single cell.
const NotesSeparator = " | "

// Columns is the fixed export column order.
var Columns = []string{
	"id",
	"last_name",
	"first_name",
	"raw_full_name",
	"email",
	"mobile",
	"voip",
	"city",
	"postal_code",
	"region",
	"address",
	"iban",
	"bic",
	"birth_date",
	"status",
	"notes",
	"next_appointment_at",
}

// Row returns the cells of a record in column order.
func Row(r *models.LeadRecord) []string {
	next := ""
	if r.NextAppointmentAt != nil {
		next = r.NextAppointmentAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.LastName,
		r.FirstName,
		r.RawFullName,
		r.Email,
		r.Mobile,
		r.VoIP,
		r.City,
		r.PostalCode,
		r.Region,
		r.Address,
		r.IBAN,
		r.BIC,
		r.BirthDate,
		r.Status,
		strings.Join(r.Notes, NotesSeparator),
		next,
	}
}

func WriteCSV(w io.Writer, records []*models.LeadRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}
	for _, r := range records {
		if err := writer.Write(Row(r)); err != nil {
			return fmt.Errorf("error writing record %s: %w", r.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV reads rows written by WriteCSV. Columns are matched by header name,
// so reordered or partial files are accepted. Derived columns (id, region,
// next_appointment_at) are ignored. Rows that cannot be read are returned as
// rejected text; only an unreadable header is an error.
func ReadCSV(r io.Reader) ([]*models.LeadRecord, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}

	var records []*models.LeadRecord
	var rejected []string
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		cell := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		record := &models.LeadRecord{
			LastName:    cell("last_name"),
			FirstName:   cell("first_name"),
			RawFullName: cell("raw_full_name"),
			Email:       cell("email"),
			Mobile:      cell("mobile"),
			VoIP:        cell("voip"),
			City:        cell("city"),
			PostalCode:  cell("postal_code"),
			Address:     cell("address"),
			IBAN:        cell("iban"),
			BIC:         cell("bic"),
			BirthDate:   cell("birth_date"),
			Status:      cell("status"),
		}
		if notes := cell("notes"); notes != "" {
			record.Notes = strings.Split(notes, NotesSeparator)
		}
		records = append(records, record)
	}
	return records, rejected, nil
}
