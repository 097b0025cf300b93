package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on live appointment slots.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the repository needs. Tests substitute a
// pgxmock pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		startTime string
	)

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.Date,
		&startTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	t, err := schedule.ParseTimeOfDay(startTime)
	if err != nil {
		return nil, fmt.Errorf("stored start_time %q: %w", startTime, err)
	}
	a.Time = t

	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, patient_id, visit_date, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'booked', now(), now())
		RETURNING id, practitioner_id, patient_id, visit_date, start_time, status, created_at, updated_at
	`, appt.ID, appt.PractitionerID, appt.PatientID, appt.Date, appt.Time.String())

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, practitioner_id, patient_id, visit_date, start_time, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, practitioner_id, patient_id, visit_date, start_time, status, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time
		FROM appointments
		WHERE practitioner_id = $1
		  AND visit_date = $2
		  AND status <> 'cancelled'
	`, practitionerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []schedule.TimeOfDay
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := schedule.ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("stored start_time %q: %w", raw, err)
		}
		times = append(times, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return times, nil
}

const listQuery = `
	SELECT a.id, a.practitioner_id, a.patient_id, a.visit_date, a.start_time, a.status, a.created_at, a.updated_at,
	       pat.name, pra.name
	FROM appointments a
	JOIN users pat ON pat.id = a.patient_id
	JOIN users pra ON pra.id = a.practitioner_id
	WHERE %s = $1
	ORDER BY a.visit_date, a.start_time
`

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	return r.list(ctx, fmt.Sprintf(listQuery, "a.patient_id"), patientID)
}

func (r *PgRepository) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]AppointmentDetail, error) {
	return r.list(ctx, fmt.Sprintf(listQuery, "a.practitioner_id"), practitionerID)
}

func (r *PgRepository) list(ctx context.Context, query string, id uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var (
			d         AppointmentDetail
			startTime string
		)
		err := rows.Scan(
			&d.ID,
			&d.PractitionerID,
			&d.PatientID,
			&d.Date,
			&startTime,
			&d.Status,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.PatientName,
			&d.PractitionerName,
		)
		if err != nil {
			return nil, err
		}
		t, err := schedule.ParseTimeOfDay(startTime)
		if err != nil {
			return nil, fmt.Errorf("stored start_time %q: %w", startTime, err)
		}
		d.Time = t
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
