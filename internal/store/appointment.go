package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddAppointment books a visit. When PatientID is set and PatientName is empty,
// the name is copied from the patient record.
func (db *DB) AddAppointment(ctx context.Context, a *Appointment) (int64, error) {
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return 0, fmt.Errorf("add appointment: invalid date %q", a.Date)
	}
	status := a.Status
	if status == "" {
		status = StatusScheduled
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO appointments (patient_id, patient_name, date, time, status, notes, created_at)
		VALUES (NULLIF(?, 0),
			CASE WHEN ? = '' THEN COALESCE((SELECT name FROM patients WHERE id = ?), '') ELSE ? END,
			?, ?, ?, ?, ?)`,
		a.PatientID, a.PatientName, a.PatientID, a.PatientName,
		a.Date, a.Time, status, a.Notes, db.now().Format(TimestampLayout))
	if err != nil {
		return 0, fmt.Errorf("add appointment: %w", err)
	}
	return res.LastInsertId()
}

// Appointments returns every appointment. Callers filter by date themselves.
func (db *DB) Appointments(ctx context.Context) ([]Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(patient_id, 0), patient_name, date, time, status, notes, created_at
		FROM appointments ORDER BY date, time, id`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Date, &a.Time, &a.Status, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func upsertAppointment(ctx context.Context, tx *sql.Tx, a *Appointment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, date, time, status, notes, created_at)
		VALUES (?, NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_id = excluded.patient_id,
			patient_name = excluded.patient_name,
			date = excluded.date,
			time = excluded.time,
			status = excluded.status,
			notes = excluded.notes,
			created_at = excluded.created_at`,
		a.ID, a.PatientID, a.PatientName, a.Date, a.Time, a.Status, a.Notes, a.CreatedAt)
	return err
}
