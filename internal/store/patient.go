package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row addressed by ID does not exist.
var ErrNotFound = errors.New("not found")

const patientColumns = `p.id, p.name, p.age, p.gender, p.phone, p.address, p.notes,
	p.status, p.has_been_edited, p.created_at, COALESCE(p.updated_at, '')`

// AddPatient inserts a new patient and returns its ID. An empty status defaults to waiting.
func (db *DB) AddPatient(ctx context.Context, p *Patient) (int64, error) {
	if p.Name == "" {
		return 0, fmt.Errorf("add patient: name is required")
	}
	status := p.Status
	if status == "" {
		status = StatusWaiting
	}
	created := p.CreatedAt
	if created == "" {
		created = db.now().Format(TimestampLayout)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO patients (name, age, gender, phone, address, notes, status, has_been_edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
		p.Name, p.Age, p.Gender, p.Phone, p.Address, p.Notes, status, p.HasBeenEdited, created, p.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("add patient: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePatientStatus moves a patient through the queue. Any status change
// made at the desk marks the record as edited and bumps updated_at.
func (db *DB) UpdatePatientStatus(ctx context.Context, id int64, status string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE patients SET status = ?, has_been_edited = 1, updated_at = ? WHERE id = ?`,
		status, db.now().Format(TimestampLayout), id)
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("patient %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetPatient returns a single patient by ID, or ErrNotFound.
func (db *DB) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	row := db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients p WHERE p.id = ?`, id)
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Address, &p.Notes,
		&p.Status, &p.HasBeenEdited, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// AllPatients returns every patient ordered by ID.
func (db *DB) AllPatients(ctx context.Context) ([]Patient, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients p ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Address, &p.Notes,
			&p.Status, &p.HasBeenEdited, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TodayPatients returns the patients that belong to the given local calendar day:
// anyone with an appointment that day, plus walk-ins (no appointments at all)
// created or updated that day who are waiting or with the doctor.
// Results are ordered by appointment time, walk-ins last.
func (db *DB) TodayPatients(ctx context.Context, day time.Time) ([]Patient, error) {
	d := day.Format(DateLayout)
	rows, err := db.QueryContext(ctx, `
		SELECT `+patientColumns+`,
			(SELECT MIN(a.time) FROM appointments a WHERE a.patient_id = p.id AND a.date = ?) AS appointment_time
		FROM patients p
		WHERE EXISTS (SELECT 1 FROM appointments a WHERE a.patient_id = p.id AND a.date = ?)
		   OR (NOT EXISTS (SELECT 1 FROM appointments a WHERE a.patient_id = p.id)
		       AND (substr(p.created_at, 1, 10) = ? OR substr(COALESCE(p.updated_at, ''), 1, 10) = ?)
		       AND p.status IN (?, ?))
		ORDER BY appointment_time IS NULL, appointment_time, p.id`,
		d, d, d, d, StatusWaiting, StatusWithDoctor)
	if err != nil {
		return nil, fmt.Errorf("today patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Patient
	for rows.Next() {
		var p Patient
		var apptTime sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Address, &p.Notes,
			&p.Status, &p.HasBeenEdited, &p.CreatedAt, &p.UpdatedAt, &apptTime); err != nil {
			return nil, err
		}
		if apptTime.Valid && apptTime.String != "" {
			t := apptTime.String
			p.AppointmentTime = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func upsertPatient(ctx context.Context, tx *sql.Tx, p *Patient) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO patients (id, name, age, gender, phone, address, notes, status, has_been_edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			phone = excluded.phone,
			address = excluded.address,
			notes = excluded.notes,
			status = excluded.status,
			has_been_edited = excluded.has_been_edited,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.Address, p.Notes, p.Status, p.HasBeenEdited, p.CreatedAt, p.UpdatedAt)
	return err
}
