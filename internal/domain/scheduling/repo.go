package scheduling

import (
	"context"

	"cloud.google.com/go/civil"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// Delete removes the appointment and returns it as it was.
	Delete(ctx context.Context, id int64) (*Appointment, error)
	// ListAll orders by date descending, then id descending.
	ListAll(ctx context.Context) ([]*Appointment, error)
	SetPatient(ctx context.Context, id, patientID int64) (*Appointment, error)
	ExistsAt(ctx context.Context, date civil.Date, t civil.Time) (bool, error)
}
