package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

type SQLAppointmentRepository struct {
	db *sql.DB
}

func NewSQLAppointmentRepository(db *sql.DB) *SQLAppointmentRepository {
	return &SQLAppointmentRepository{db: db}
}

const appointmentColumns = `id, record_id, dataset_name, operator_id, scheduled_at, remind_at, sent, sent_at, notify_target, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	var at, remindAt, createdAt int64
	var sentAt sql.NullInt64
	if err := row.Scan(&a.ID, &a.RecordID, &a.DatasetName, &a.OperatorID, &at, &remindAt,
		&a.Sent, &sentAt, &a.NotifyTarget, &createdAt); err != nil {
		return nil, err
	}
	a.At = utils.FromMillis(at)
	a.RemindAt = utils.FromMillis(remindAt)
	a.SentAt = utils.FromNullMillis(sentAt)
	a.CreatedAt = utils.FromMillis(createdAt)
	return a, nil
}

func (r *SQLAppointmentRepository) Save(a *models.Appointment) error {
	_, err := r.db.Exec(`
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.RecordID,
		a.DatasetName,
		a.OperatorID,
		utils.Millis(a.At),
		utils.Millis(a.RemindAt),
		utils.BoolToInt(a.Sent),
		utils.NullMillis(a.SentAt),
		a.NotifyTarget,
		utils.Millis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving appointment: %v", err)
	}
	return nil
}

func (r *SQLAppointmentRepository) Get(id string) (*models.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting appointment: %v", err)
	}
	return a, nil
}

// DeleteUnsent shares the sent = 0 guard with MarkSent, so a cancel and a scan
// cannot both win.
func (r *SQLAppointmentRepository) DeleteUnsent(id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM appointments WHERE id = ? AND sent = 0`, id)
	if err != nil {
		return false, fmt.Errorf("error deleting appointment: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %v", err)
	}
	return n == 1, nil
}

func (r *SQLAppointmentRepository) ListByRecord(datasetName, recordID string) ([]*models.Appointment, error) {
	return r.list(`SELECT `+appointmentColumns+` FROM appointments
		WHERE dataset_name = ? AND record_id = ?
		ORDER BY scheduled_at, id`, datasetName, recordID)
}

func (r *SQLAppointmentRepository) ListDue(now time.Time) ([]*models.Appointment, error) {
	return r.list(`SELECT `+appointmentColumns+` FROM appointments
		WHERE sent = 0 AND remind_at <= ?
		ORDER BY remind_at, id`, utils.Millis(now))
}

func (r *SQLAppointmentRepository) list(query string, args ...interface{}) ([]*models.Appointment, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying appointments: %v", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning appointment: %v", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkSent is a compare-and-set on the sent flag: the row only changes when it
// is still unsent, so concurrent scans cannot both claim it.
func (r *SQLAppointmentRepository) MarkSent(id string, at time.Time) (bool, error) {
	res, err := r.db.Exec(`UPDATE appointments SET sent = 1, sent_at = ? WHERE id = ? AND sent = 0`,
		utils.Millis(at), id)
	if err != nil {
		return false, fmt.Errorf("error marking appointment sent: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %v", err)
	}
	return n == 1, nil
}

func (r *SQLAppointmentRepository) DeleteByDataset(datasetName string) error {
	if _, err := r.db.Exec(`DELETE FROM appointments WHERE dataset_name = ?`, datasetName); err != nil {
		return fmt.Errorf("error deleting dataset appointments: %v", err)
	}
	return nil
}
