// Package scheduling owns the appointment lifecycle: creation, listing split
// into upcoming and past, cancellation, patient linkage and joining a video
// meeting.
package scheduling

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/domain/identity"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/events"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/meeting"
)

// Lifecycle event types.
const (
	EventScheduled          = "appointment.scheduled"
	EventCancelled          = "appointment.cancelled"
	EventPatientLinked      = "appointment.patient_linked"
	EventMeetingProvisioned = "appointment.meeting_provisioned"
)

// UserLookup resolves linked patients.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*identity.User, error)
}

// Policy holds opt-in scheduling guards. Both are off by default.
type Policy struct {
	PreventOverlap  bool
	RejectPastDates bool
}

type Config struct {
	Policy Policy
	// Location interprets appointment dates and times. Defaults to UTC.
	Location *time.Location
	// ProvisionTimeout bounds each meeting provisioning call.
	ProvisionTimeout time.Duration
}

type Scheduler struct {
	appts       AppointmentRepository
	users       UserLookup
	provisioner meeting.Provisioner
	publisher   events.Publisher
	policy      Policy
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

func NewScheduler(appts AppointmentRepository, users UserLookup, provisioner meeting.Provisioner,
	publisher events.Publisher, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = 10 * time.Second
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Scheduler{
		appts:       appts,
		users:       users,
		provisioner: meeting.WithTimeout(provisioner, cfg.ProvisionTimeout),
		publisher:   publisher,
		policy:      cfg.Policy,
		loc:         cfg.Location,
		now:         time.Now,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

func recipientsOf(a *Appointment) []int64 {
	if a.PatientID == nil {
		return nil
	}
	return []int64{*a.PatientID}
}

func (s *Scheduler) publish(ctx context.Context, eventType string, actor auth.Identity, a *Appointment, data interface{}) {
	ev := events.New(eventType, actor.UserID, data, recipientsOf(a)...)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("appointment_id", a.ID).Msg("event publish failed")
	}
}

// Schedule creates an appointment. A patient always schedules for
// themselves; staff may name a patient or leave the appointment unlinked.
func (s *Scheduler) Schedule(ctx context.Context, id auth.Identity, req ScheduleRequest) (*Appointment, error) {
	if id.Role == auth.RolePatient {
		if req.PatientID != nil && *req.PatientID != id.UserID {
			return nil, apperr.Forbidden("patients can only schedule their own appointments")
		}
		self := id.UserID
		req.PatientID = &self
	}

	a, err := req.toAppointment()
	if err != nil {
		return nil, err
	}

	if a.PatientID != nil && id.Role != auth.RolePatient {
		if _, err := s.requirePatient(ctx, *a.PatientID); err != nil {
			return nil, err
		}
	}
	if s.policy.RejectPastDates && a.Date.Before(s.today()) {
		return nil, apperr.Validation("date %s is in the past", a.Date)
	}
	if s.policy.PreventOverlap {
		taken, err := s.appts.ExistsAt(ctx, a.Date, a.Time)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("an appointment is already booked for %s %s", a.Date, a.Time)
		}
	}

	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("appointment_id", a.ID).
		Str("type", a.AppointmentType).
		Str("date", a.Date.String()).
		Str("time", a.Time.String()).
		Str("actor", id.String()).
		Msg("appointment scheduled")
	s.publish(ctx, EventScheduled, id, a, a)
	return a, nil
}

// requirePatient returns the user behind patientID, or a validation error
// when the id does not belong to a patient.
func (s *Scheduler) requirePatient(ctx context.Context, patientID int64) (*identity.User, error) {
	u, err := s.users.GetByID(ctx, patientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("user %d does not exist", patientID)
	}
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RolePatient {
		return nil, apperr.Validation("user %d is a %s, not a patient", patientID, u.Role)
	}
	return u, nil
}

func (s *Scheduler) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// ListAll returns every appointment, newest date first.
func (s *Scheduler) ListAll(ctx context.Context) ([]*Appointment, error) {
	appts, err := s.appts.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return appts, nil
}

// Partition lists all appointments split at the calendar date of now in the
// scheduler's location. Every appointment lands in exactly one half.
func (s *Scheduler) Partition(ctx context.Context, now time.Time) (upcoming, past []*Appointment, err error) {
	appts, err := s.ListAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	upcoming, past = Partition(appts, civil.DateOf(now.In(s.loc)))
	return upcoming, past, nil
}

// Upcoming returns the appointments dated today or later.
func (s *Scheduler) Upcoming(ctx context.Context) ([]*Appointment, error) {
	upcoming, _, err := s.Partition(ctx, s.now())
	return upcoming, err
}

// Cancel deletes the appointment. Patients may cancel only their own.
func (s *Scheduler) Cancel(ctx context.Context, id auth.Identity, apptID int64) error {
	if id.Role == auth.RolePatient {
		a, err := s.appts.GetByID(ctx, apptID)
		if err != nil {
			return err
		}
		if a.PatientID == nil || *a.PatientID != id.UserID {
			return apperr.Forbidden("appointment %d belongs to another patient", apptID)
		}
	}

	a, err := s.appts.Delete(ctx, apptID)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("appointment_id", apptID).Str("actor", id.String()).Msg("appointment cancelled")
	s.publish(ctx, EventCancelled, id, a, a)
	return nil
}

// LinkPatient attaches an existing patient to an appointment.
func (s *Scheduler) LinkPatient(ctx context.Context, id auth.Identity, apptID, patientID int64) (*Appointment, error) {
	if patientID <= 0 {
		return nil, apperr.Validation("patient_id must be positive")
	}
	if _, err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	a, err := s.appts.SetPatient(ctx, apptID, patientID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("appointment_id", apptID).
		Int64("patient_id", patientID).
		Str("actor", id.String()).
		Msg("patient linked to appointment")
	s.publish(ctx, EventPatientLinked, id, a, a)
	return a, nil
}

// Join provisions a meeting for the appointment and returns its URL. The
// appointment is not modified whether or not provisioning succeeds.
func (s *Scheduler) Join(ctx context.Context, id auth.Identity, apptID int64) (string, error) {
	a, err := s.appts.GetByID(ctx, apptID)
	if err != nil {
		return "", err
	}
	if id.Role == auth.RolePatient && (a.PatientID == nil || *a.PatientID != id.UserID) {
		return "", apperr.Forbidden("appointment %d belongs to another patient", apptID)
	}
	if a.PatientID == nil {
		return "", apperr.Linkage("appointment %d has no patient linked", apptID)
	}
	if *a.PatientID <= 0 {
		return "", apperr.Linkage("appointment %d references invalid patient %d", apptID, *a.PatientID)
	}
	patient, err := s.users.GetByID(ctx, *a.PatientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Linkage("patient %d linked to appointment %d no longer exists", *a.PatientID, apptID)
	}
	if err != nil {
		return "", err
	}

	start := a.StartsAt(s.loc)
	url, err := s.provisioner.Provision(ctx, meeting.Request{
		AppointmentID: a.ID,
		Summary:       "Appointment: " + a.AppointmentType,
		Description:   a.Reason,
		Start:         start,
		End:           start.Add(MeetingWindow),
		AttendeeEmail: patient.Email,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", apptID).Msg("meeting provisioning failed")
		return "", apperr.Provisioning(err, "could not create a meeting for appointment %d", apptID)
	}

	s.logger.Info().Int64("appointment_id", apptID).Str("actor", id.String()).Msg("meeting provisioned")
	s.publish(ctx, EventMeetingProvisioned, id, a, &meetingEvent{Appointment: a, MeetingURL: url})
	return url, nil
}

type meetingEvent struct {
	*Appointment
	MeetingURL string `json:"meeting_url"`
}
