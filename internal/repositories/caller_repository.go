package repositories

import (
	"database/sql"
	"fmt"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

type SQLCallerRepository struct {
	db *sql.DB
}

func NewSQLCallerRepository(db *sql.DB) *SQLCallerRepository {
	return &SQLCallerRepository{db: db}
}

func (r *SQLCallerRepository) Save(caller *models.Caller) error {
	_, err := r.db.Exec(`INSERT INTO callers (id, name, active, created_at) VALUES (?, ?, ?, ?)`,
		caller.ID, caller.Name, utils.BoolToInt(caller.Active), utils.Millis(caller.CreatedAt))
	if err != nil {
		return fmt.Errorf("error saving caller: %v", err)
	}
	return nil
}

func (r *SQLCallerRepository) Get(id string) (*models.Caller, error) {
	caller := &models.Caller{}
	var createdAt int64
	err := r.db.QueryRow(`SELECT id, name, active, created_at FROM callers WHERE id = ?`, id).
		Scan(&caller.ID, &caller.Name, &caller.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting caller: %v", err)
	}
	caller.CreatedAt = utils.FromMillis(createdAt)
	return caller, nil
}

func (r *SQLCallerRepository) List() ([]*models.Caller, error) {
	rows, err := r.db.Query(`SELECT id, name, active, created_at FROM callers ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("error querying callers: %v", err)
	}
	defer rows.Close()

	var callers []*models.Caller
	for rows.Next() {
		caller := &models.Caller{}
		var createdAt int64
		if err := rows.Scan(&caller.ID, &caller.Name, &caller.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning caller: %v", err)
		}
		caller.CreatedAt = utils.FromMillis(createdAt)
		callers = append(callers, caller)
	}
	return callers, rows.Err()
}

func (r *SQLCallerRepository) Update(caller *models.Caller) error {
	_, err := r.db.Exec(`UPDATE callers SET name = ?, active = ? WHERE id = ?`,
		caller.Name, utils.BoolToInt(caller.Active), caller.ID)
	if err != nil {
		return fmt.Errorf("error updating caller: %v", err)
	}
	return nil
}
