package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/db"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, appointment_type, date, time, reason, created_at`

func toPGDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func toPGTime(t civil.Time) pgtype.Time {
	us := int64(t.Hour)*3600e6 + int64(t.Minute)*60e6 + int64(t.Second)*1e6 + int64(t.Nanosecond)/1e3
	return pgtype.Time{Microseconds: us, Valid: true}
}

func fromPGTime(t pgtype.Time) civil.Time {
	us := t.Microseconds
	return civil.Time{
		Hour:       int(us / 3600e6),
		Minute:     int(us / 60e6 % 60),
		Second:     int(us / 1e6 % 60),
		Nanosecond: int(us%1e6) * 1000,
	}
}

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var tod pgtype.Time
	if err := row.Scan(&a.ID, &a.PatientID, &a.AppointmentType, &date, &tod, &a.Reason, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Date = civil.DateOf(date.Time)
	a.Time = fromPGTime(tod)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO schedule_appointments (patient_id, appointment_type, date, time, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.PatientID, a.AppointmentType, toPGDate(a.Date), toPGTime(a.Time), a.Reason,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppt(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM schedule_appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppt(db.Conn(ctx, r.pool).QueryRow(ctx,
		`DELETE FROM schedule_appointments WHERE id = $1 RETURNING `+apptCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("delete appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ListAll(ctx context.Context) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+apptCols+` FROM schedule_appointments ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *appointmentRepoPG) SetPatient(ctx context.Context, id, patientID int64) (*Appointment, error) {
	a, err := r.scanAppt(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE schedule_appointments SET patient_id = $2 WHERE id = $1 RETURNING `+apptCols, id, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("link patient to appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ExistsAt(ctx context.Context, date civil.Date, t civil.Time) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedule_appointments WHERE date = $1 AND time = $2)`,
		toPGDate(date), toPGTime(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment slot: %w", err)
	}
	return exists, nil
}
