package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

type SQLDatasetRepository struct {
	db *sql.DB
}

func NewSQLDatasetRepository(db *sql.DB) *SQLDatasetRepository {
	return &SQLDatasetRepository{db: db}
}

const recordColumns = `id, last_name, first_name, raw_full_name, mobile, voip, email,
	address, city, postal_code, region, iban, bic, birth_date, status, notes, next_appointment_at`

func (r *SQLDatasetRepository) Create(dataset *models.Dataset) error {
	regions, err := json.Marshal(dataset.RegionCounts)
	if err != nil {
		return fmt.Errorf("error encoding region counts: %v", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO datasets (name, record_count, imported_byte_size, last_import_at, phone_count, region_counts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dataset.Name,
		dataset.RecordCount,
		dataset.ImportedByteSize,
		utils.NullMillis(dataset.LastImportAt),
		dataset.PhoneCount,
		string(regions),
		utils.Millis(dataset.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving dataset: %v", err)
	}
	return nil
}

func (r *SQLDatasetRepository) Get(name string) (*models.Dataset, error) {
	dataset := &models.Dataset{}
	var lastImport sql.NullInt64
	var regions sql.NullString
	var createdAt int64

	err := r.db.QueryRow(`
		SELECT name, record_count, imported_byte_size, last_import_at, phone_count, region_counts, created_at
		FROM datasets
		WHERE name = ?`, name).Scan(
		&dataset.Name,
		&dataset.RecordCount,
		&dataset.ImportedByteSize,
		&lastImport,
		&dataset.PhoneCount,
		&regions,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting dataset: %v", err)
	}

	dataset.LastImportAt = utils.FromNullMillis(lastImport)
	dataset.CreatedAt = utils.FromMillis(createdAt)
	dataset.RegionCounts = make(map[string]int)
	if regions.Valid && regions.String != "" {
		if err := json.Unmarshal([]byte(regions.String), &dataset.RegionCounts); err != nil {
			return nil, fmt.Errorf("error decoding region counts: %v", err)
		}
	}

	records, err := r.records(name)
	if err != nil {
		return nil, err
	}
	dataset.Records = records
	return dataset, nil
}

func (r *SQLDatasetRepository) records(name string) ([]*models.LeadRecord, error) {
	rows, err := r.db.Query(`SELECT `+recordColumns+` FROM lead_records WHERE dataset_name = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("error querying records: %v", err)
	}
	defer rows.Close()

	var records []*models.LeadRecord
	for rows.Next() {
		record := &models.LeadRecord{}
		var lastName, firstName, rawName, mobile, voip, email, address, city,
			postalCode, region, iban, bic, birthDate, status, notes sql.NullString
		var next sql.NullInt64

		if err := rows.Scan(
			&record.ID, &lastName, &firstName, &rawName, &mobile, &voip, &email,
			&address, &city, &postalCode, &region, &iban, &bic, &birthDate, &status, &notes, &next,
		); err != nil {
			return nil, fmt.Errorf("error scanning record: %v", err)
		}

		record.LastName = lastName.String
		record.FirstName = firstName.String
		record.RawFullName = rawName.String
		record.Mobile = mobile.String
		record.VoIP = voip.String
		record.Email = email.String
		record.Address = address.String
		record.City = city.String
		record.PostalCode = postalCode.String
		record.Region = region.String
		record.IBAN = iban.String
		record.BIC = bic.String
		record.BirthDate = birthDate.String
		record.Status = status.String
		record.NextAppointmentAt = utils.FromNullMillis(next)
		if notes.Valid && notes.String != "" {
			if err := json.Unmarshal([]byte(notes.String), &record.Notes); err != nil {
				return nil, fmt.Errorf("error decoding notes of record %s: %v", record.ID, err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %v", err)
	}
	return records, nil
}

func (r *SQLDatasetRepository) List() ([]string, error) {
	rows, err := r.db.Query(`SELECT name FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error listing datasets: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning dataset name: %v", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLDatasetRepository) Delete(name string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lead_records WHERE dataset_name = ?`, name); err != nil {
		return fmt.Errorf("error deleting records: %v", err)
	}
	if _, err := tx.Exec(`DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("error deleting dataset: %v", err)
	}
	return tx.Commit()
}

// AppendRecords inserts the records after the existing ones and rewrites the
// aggregates in the same transaction.
func (r *SQLDatasetRepository) AppendRecords(dataset *models.Dataset, records []*models.LeadRecord) error {
	regions, err := json.Marshal(dataset.RegionCounts)
	if err != nil {
		return fmt.Errorf("error encoding region counts: %v", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO lead_records (dataset_name, position, ` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %v", err)
	}
	defer stmt.Close()

	for _, record := range records {
		position, err := strconv.Atoi(record.ID)
		if err != nil {
			return fmt.Errorf("record id %q is not a position: %v", record.ID, err)
		}
		args, err := recordArgs(record)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(append([]interface{}{dataset.Name, position, record.ID}, args...)...); err != nil {
			return fmt.Errorf("error inserting record %s: %v", record.ID, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE datasets
		SET record_count = ?, imported_byte_size = ?, last_import_at = ?, phone_count = ?, region_counts = ?
		WHERE name = ?`,
		dataset.RecordCount,
		dataset.ImportedByteSize,
		utils.NullMillis(dataset.LastImportAt),
		dataset.PhoneCount,
		string(regions),
		dataset.Name,
	)
	if err != nil {
		return fmt.Errorf("error updating dataset: %v", err)
	}
	return tx.Commit()
}

func (r *SQLDatasetRepository) UpdateRecord(datasetName string, record *models.LeadRecord) error {
	args, err := recordArgs(record)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		UPDATE lead_records
		SET last_name = ?, first_name = ?, raw_full_name = ?, mobile = ?, voip = ?, email = ?,
			address = ?, city = ?, postal_code = ?, region = ?, iban = ?, bic = ?,
			birth_date = ?, status = ?, notes = ?, next_appointment_at = ?
		WHERE dataset_name = ? AND id = ?`,
		append(args, datasetName, record.ID)...,
	)
	if err != nil {
		return fmt.Errorf("error updating record: %v", err)
	}
	return nil
}

// recordArgs returns the column values after id, in recordColumns order.
func recordArgs(record *models.LeadRecord) ([]interface{}, error) {
	notes := sql.NullString{}
	if len(record.Notes) > 0 {
		data, err := json.Marshal(record.Notes)
		if err != nil {
			return nil, fmt.Errorf("error encoding notes: %v", err)
		}
		notes = sql.NullString{String: string(data), Valid: true}
	}
	return []interface{}{
		utils.NullString(record.LastName),
		utils.NullString(record.FirstName),
		utils.NullString(record.RawFullName),
		utils.NullString(record.Mobile),
		utils.NullString(record.VoIP),
		utils.NullString(record.Email),
		utils.NullString(record.Address),
		utils.NullString(record.City),
		utils.NullString(record.PostalCode),
		utils.NullString(record.Region),
		utils.NullString(record.IBAN),
		utils.NullString(record.BIC),
		utils.NullString(record.BirthDate),
		utils.NullString(record.Status),
		notes,
		utils.NullMillis(record.NextAppointmentAt),
	}, nil
}
